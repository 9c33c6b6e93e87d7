package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
)

const dayLayout = "2006-01-02"

// SQLiteRecordRepository implements RecordRepository for SQLite.
type SQLiteRecordRepository struct {
	db *sql.DB
}

var _ RecordRepository = (*SQLiteRecordRepository)(nil)

func NewSQLiteRecordRepository(db *sql.DB) *SQLiteRecordRepository {
	return &SQLiteRecordRepository{db: db}
}

// OpenArchive initialises the database at path and wraps it in a repository.
func OpenArchive(path string) (*SQLiteRecordRepository, error) {
	db, err := InitSQLite(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteRecordRepository(db), nil
}

func (r *SQLiteRecordRepository) Append(ctx context.Context, rec events.ArchivedRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	params := rec.Record.Parameters
	if params == nil {
		params = []string{}
	}
	paramBytes, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	query := `
		INSERT INTO records (id, session_id, observed_at, observed_day, kind, speaker, message, parameters, rendered)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.ObservedAt, rec.ObservedAt.Format(dayLayout), string(rec.Record.Kind),
		rec.Record.Speaker, rec.Record.Message, string(paramBytes), rec.Rendered,
	)
	if err != nil {
		return fmt.Errorf("failed to archive record: %w", err)
	}
	return nil
}

func (r *SQLiteRecordRepository) getMany(ctx context.Context, query string, args ...any) ([]events.ArchivedRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.ArchivedRecord
	for rows.Next() {
		var a events.ArchivedRecord
		var kind, paramStr string
		err := rows.Scan(
			&a.ID, &a.SessionID, &a.ObservedAt, &kind,
			&a.Record.Speaker, &a.Record.Message, &paramStr, &a.Rendered,
		)
		if err != nil {
			return nil, err
		}
		a.Record.Kind = events.Kind(kind)
		if err := json.Unmarshal([]byte(paramStr), &a.Record.Parameters); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRecordRepository) ListByDay(ctx context.Context, day string) ([]events.ArchivedRecord, error) {
	query := `SELECT id, session_id, observed_at, kind, speaker, message, parameters, rendered FROM records WHERE observed_day = ? ORDER BY observed_at ASC, rowid ASC`
	return r.getMany(ctx, query, day)
}

func (r *SQLiteRecordRepository) ListBySession(ctx context.Context, sessionID string) ([]events.ArchivedRecord, error) {
	query := `SELECT id, session_id, observed_at, kind, speaker, message, parameters, rendered FROM records WHERE session_id = ? ORDER BY observed_at ASC, rowid ASC`
	return r.getMany(ctx, query, sessionID)
}

func (r *SQLiteRecordRepository) CountByKind(ctx context.Context) (map[events.Kind]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM records GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[events.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[events.Kind(kind)] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteRecordRepository) Close() error {
	return r.db.Close()
}
