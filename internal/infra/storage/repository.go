// Package storage archives observed records in SQLite.
// The archive is write-mostly: nothing reads it back at startup.
package storage

import (
	"context"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
)

// RecordRepository defines the archive operations.
type RecordRepository interface {
	events.Persister

	// ListByDay returns the records observed on day (YYYY-MM-DD, local time), oldest first.
	ListByDay(ctx context.Context, day string) ([]events.ArchivedRecord, error)

	// ListBySession returns everything one connection observed.
	ListBySession(ctx context.Context, sessionID string) ([]events.ArchivedRecord, error)

	// CountByKind tallies archived records per record kind.
	CountByKind(ctx context.Context) (map[events.Kind]int, error)
}
