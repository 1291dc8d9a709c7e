package auditor

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/rpattn/auditq/internal/domain"
	"github.com/rpattn/auditq/internal/repository"
)

// Recorder appends audit log entries for tracked object mutations.
type Recorder struct {
	registry *Registry
	entries  repository.LogEntryRepository
	now      func() time.Time
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the timestamp source, used by tests to record entries
// at known times.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder wires a recorder over a registry and a log entry repository.
func NewRecorder(registry *Registry, entries repository.LogEntryRepository, opts ...RecorderOption) *Recorder {
	recorder := &Recorder{
		registry: registry,
		entries:  entries,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(recorder)
	}
	return recorder
}

// Record diffs the object across a mutation and appends a log entry holding
// the per-field changes and the serialized after-state. For creates, before
// is nil; for deletes, after is nil. An update whose diff is empty is a
// no-op: nothing is appended and recorded is false.
func (r *Recorder) Record(ctx context.Context, ref domain.ObjectRef, action string, before, after map[string]any, actor string) (domain.LogEntry, bool, error) {
	opts, err := r.registry.OptionsFor(ref.ObjectType)
	if err != nil {
		return domain.LogEntry{}, false, err
	}

	diff := domain.DiffFields(before, after, opts.diffOptions())
	if diff == nil && action == domain.ActionUpdate {
		return domain.LogEntry{}, false, nil
	}

	var changes json.RawMessage
	if diff != nil {
		encoded, err := json.Marshal(diff)
		if err != nil {
			return domain.LogEntry{}, false, fmt.Errorf("failed to marshal changes: %w", err)
		}
		changes = encoded
	}

	serialized, err := domain.EncodeSerializedFields(r.trackedFields(after, opts))
	if err != nil {
		return domain.LogEntry{}, false, fmt.Errorf("failed to marshal serialized fields: %w", err)
	}

	entry := domain.LogEntry{
		ObjectType:     ref.ObjectType,
		ObjectID:       ref.ObjectID,
		Action:         action,
		Actor:          actor,
		Changes:        changes,
		SerializedData: serialized,
		Timestamp:      r.now().UTC(),
	}

	created, err := r.entries.Append(ctx, entry)
	if err != nil {
		return domain.LogEntry{}, false, err
	}
	return created, true, nil
}

// trackedFields applies include/exclude filtering and mask paths to the
// state persisted on the entry.
func (r *Recorder) trackedFields(fields map[string]any, opts Options) map[string]any {
	if fields == nil {
		return nil
	}

	tracked := make(map[string]any, len(fields))
	for name, value := range fields {
		if len(opts.IncludeFields) > 0 && !slices.Contains(opts.IncludeFields, name) {
			continue
		}
		if slices.Contains(opts.ExcludeFields, name) {
			continue
		}
		tracked[name] = value
	}

	if len(opts.MaskFields) > 0 {
		tracked = domain.MaskFieldValues(tracked, opts.MaskFields)
	}
	return tracked
}
