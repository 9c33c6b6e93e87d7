package network

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/logger"
)

// ArchiveReader is the read side of the record archive.
type ArchiveReader interface {
	ListByDay(ctx context.Context, day string) ([]events.ArchivedRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]events.ArchivedRecord, error)
	CountByKind(ctx context.Context) (map[events.Kind]int, error)
}

// ReplayHandler serves the archived records as JSON for operators.
type ReplayHandler struct {
	archive ArchiveReader
	logger  *logger.Logger
	clock   func() time.Time
}

// NewReplayHandler creates a replay handler over archive.
func NewReplayHandler(archive ArchiveReader, log *logger.Logger) *ReplayHandler {
	return &ReplayHandler{
		archive: archive,
		logger:  log,
		clock:   time.Now,
	}
}

// ReplayRecord is one archived record as served over HTTP.
type ReplayRecord struct {
	ID         string   `json:"id"`
	SessionID  string   `json:"session_id"`
	ObservedAt string   `json:"observed_at"`
	Kind       string   `json:"kind"`
	Speaker    string   `json:"speaker,omitempty"`
	Message    string   `json:"message"`
	Parameters []string `json:"parameters,omitempty"`
	Rendered   string   `json:"rendered,omitempty"`
}

// ReplayResponse is the body of GET /api/archive/replay.
type ReplayResponse struct {
	Day          string         `json:"day,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	FilteredBy   string         `json:"filtered_by,omitempty"`
	TotalRecords int            `json:"total_records"`
	GeneratedAt  string         `json:"generated_at"`
	Records      []ReplayRecord `json:"records"`
}

// HandleReplay lists one day or one session.
// GET /api/archive/replay?day=YYYY-MM-DD&kind=chat&rendered_only=true
// GET /api/archive/replay?session=<uuid>
func (rh *ReplayHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	day := q.Get("day")
	sessionID := q.Get("session")
	kind := q.Get("kind")
	renderedOnly := q.Get("rendered_only") == "true"

	var (
		records []events.ArchivedRecord
		err     error
	)
	switch {
	case sessionID != "":
		records, err = rh.archive.ListBySession(r.Context(), sessionID)
	default:
		if day == "" {
			day = rh.clock().Format("2006-01-02")
		} else if _, perr := time.Parse("2006-01-02", day); perr != nil {
			rh.jsonError(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		records, err = rh.archive.ListByDay(r.Context(), day)
	}
	if err != nil {
		rh.logger.Errorf("Archive replay failed: %v", err)
		rh.jsonError(w, "archive unavailable", http.StatusInternalServerError)
		return
	}

	var filters []string
	if kind != "" {
		filters = append(filters, "kind="+kind)
	}
	if renderedOnly {
		filters = append(filters, "rendered_only")
	}

	out := make([]ReplayRecord, 0, len(records))
	for _, rec := range records {
		if kind != "" && string(rec.Record.Kind) != kind {
			continue
		}
		if renderedOnly && rec.Rendered == "" {
			continue
		}
		out = append(out, toReplayRecord(rec))
	}

	response := ReplayResponse{
		SessionID:    sessionID,
		FilteredBy:   strings.Join(filters, ","),
		TotalRecords: len(out),
		GeneratedAt:  rh.clock().Format(time.RFC3339),
		Records:      out,
	}
	if sessionID == "" {
		response.Day = day
	}

	rh.logger.Event("ARCHIVE_REPLAY", "operator", "Records:"+strconv.Itoa(len(out)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleStats returns record counts per kind.
// GET /api/archive/stats
func (rh *ReplayHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := rh.archive.CountByKind(r.Context())
	if err != nil {
		rh.logger.Errorf("Archive stats failed: %v", err)
		rh.jsonError(w, "archive unavailable", http.StatusInternalServerError)
		return
	}

	stats := map[string]int{"total_records": 0}
	for k, n := range counts {
		stats[string(k)] = n
		stats["total_records"] += n
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"generated_at": rh.clock().Format(time.RFC3339),
		"stats":        stats,
	})
}

// RegisterRoutes sets up the archive API routes.
func (rh *ReplayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/archive/replay", rh.HandleReplay)
	mux.HandleFunc("/api/archive/stats", rh.HandleStats)
}

func toReplayRecord(rec events.ArchivedRecord) ReplayRecord {
	return ReplayRecord{
		ID:         rec.ID,
		SessionID:  rec.SessionID,
		ObservedAt: rec.ObservedAt.Format(time.RFC3339),
		Kind:       string(rec.Record.Kind),
		Speaker:    rec.Record.Speaker,
		Message:    rec.Record.Message,
		Parameters: rec.Record.Parameters,
		Rendered:   rec.Rendered,
	}
}

// jsonError sends an error response.
func (rh *ReplayHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
