// Package history answers point-in-time queries against the audit log: the
// state of a tracked object, or of a single field, as it existed at an
// arbitrary timestamp. Lookups select the most recent log entry not after
// the target timestamp and decode its serialized fields.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/auditq/internal/domain"
)

// ErrNoLogSource indicates a lookup against an object type the engine was
// never wired to. This is an integration defect, not a runtime condition:
// every tracked type must be registered before serving queries.
var ErrNoLogSource = errors.New("no log source registered")

// LogSource supplies read access to the audit log for tracked objects.
// Implementations must return entries ordered by timestamp descending with
// ties broken by id descending, so that selection is deterministic even when
// two entries share a timestamp.
type LogSource interface {
	// EntriesAtOrBefore returns up to limit entries for ref whose timestamp
	// is at or before ts, newest first.
	EntriesAtOrBefore(ctx context.Context, ref domain.ObjectRef, ts time.Time, limit int) ([]domain.LogEntry, error)
	// Entry fetches the full log entry for a previously returned id. The
	// lookup results carry only the entry id; callers needing the complete
	// record pay for the second query explicitly.
	Entry(ctx context.Context, id uuid.UUID) (domain.LogEntry, error)
}

// Engine resolves historical object and field state. It holds no mutable
// state beyond the source registry and performs exactly one read query per
// lookup, so it is safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	sources map[string]LogSource
}

// NewEngine returns an engine with no registered sources.
func NewEngine() *Engine {
	return &Engine{sources: make(map[string]LogSource)}
}

// Register wires the log source for an object type. Registering the same
// type twice replaces the earlier source.
func (e *Engine) Register(objectType string, source LogSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[objectType] = source
}

func (e *Engine) sourceFor(objectType string) (LogSource, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	source, ok := e.sources[objectType]
	if !ok {
		return nil, fmt.Errorf("%w for object type %q", ErrNoLogSource, objectType)
	}
	return source, nil
}

// ObjectStateAt returns the state of ref as of the given timestamp: the most
// recent log entry not after ts, with its serialized fields decoded. A
// missing entry is a normal outcome reported through LogFound, never an
// error; source failures propagate unchanged.
func (e *Engine) ObjectStateAt(ctx context.Context, ref domain.ObjectRef, ts time.Time) (domain.HistoricalObjectState, error) {
	source, err := e.sourceFor(ref.ObjectType)
	if err != nil {
		return domain.HistoricalObjectState{}, err
	}

	entries, err := source.EntriesAtOrBefore(ctx, ref, ts, 1)
	if err != nil {
		return domain.HistoricalObjectState{}, err
	}
	if len(entries) == 0 {
		return domain.HistoricalObjectState{LogFound: false}, nil
	}

	entry := entries[0]
	return domain.HistoricalObjectState{
		LogFound:         true,
		SerializedFields: domain.DecodeSerializedFields(entry.SerializedData),
		Timestamp:        entry.Timestamp,
		LogEntryID:       entry.ID,
	}, nil
}

// FieldStateAt returns the state of a single field of ref as of the given
// timestamp. It is layered on ObjectStateAt so the two operations can never
// disagree about which entry is current as of ts.
func (e *Engine) FieldStateAt(ctx context.Context, ref domain.ObjectRef, fieldName string, ts time.Time) (domain.HistoricalFieldState, error) {
	objectState, err := e.ObjectStateAt(ctx, ref, ts)
	if err != nil {
		return domain.HistoricalFieldState{}, err
	}

	if !objectState.LogFound {
		return domain.HistoricalFieldState{
			LogFound:   false,
			FieldFound: false,
			FieldName:  fieldName,
		}, nil
	}

	state := domain.HistoricalFieldState{
		LogFound:   true,
		FieldName:  fieldName,
		Timestamp:  objectState.Timestamp,
		LogEntryID: objectState.LogEntryID,
	}

	value, ok := objectState.SerializedFields[fieldName]
	if !ok {
		return state, nil
	}

	state.FieldFound = true
	state.Value = value
	return state, nil
}

// Entry fetches the full log entry behind a lookup result's LogEntryID from
// the source registered for objectType.
func (e *Engine) Entry(ctx context.Context, objectType string, id uuid.UUID) (domain.LogEntry, error) {
	source, err := e.sourceFor(objectType)
	if err != nil {
		return domain.LogEntry{}, err
	}
	return source.Entry(ctx, id)
}
