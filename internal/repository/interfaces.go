package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rpattn/auditq/internal/domain"

	"github.com/google/uuid"
)

// ErrEntryNotFound is returned when a log entry id does not exist.
var ErrEntryNotFound = errors.New("log entry not found")

// LogEntryRepository defines the interface for audit log persistence. The
// log is append-only: entries are created once and never updated or deleted.
//
// Ordering contract: every listing method returns entries ordered by
// timestamp descending with ties broken by id descending, so point-in-time
// selection is deterministic even when two entries share a timestamp.
type LogEntryRepository interface {
	// Append persists a new log entry.
	Append(ctx context.Context, entry domain.LogEntry) (domain.LogEntry, error)

	// EntriesAtOrBefore returns up to limit entries for ref whose timestamp
	// is at or before ts, newest first.
	EntriesAtOrBefore(ctx context.Context, ref domain.ObjectRef, ts time.Time, limit int) ([]domain.LogEntry, error)

	// Entry fetches a single entry by id; ErrEntryNotFound when absent.
	Entry(ctx context.Context, id uuid.UUID) (domain.LogEntry, error)

	// ListForObject returns ref's full trail, newest first.
	ListForObject(ctx context.Context, ref domain.ObjectRef, limit int, offset int) ([]domain.LogEntry, error)

	// CountForObject returns the number of entries recorded for ref.
	CountForObject(ctx context.Context, ref domain.ObjectRef) (int64, error)
}
