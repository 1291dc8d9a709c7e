package auditor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/auditq/internal/domain"
)

// capturingRepository records appended entries in memory.
type capturingRepository struct {
	appended []domain.LogEntry
}

func (c *capturingRepository) Append(_ context.Context, entry domain.LogEntry) (domain.LogEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	c.appended = append(c.appended, entry)
	return entry, nil
}

func (c *capturingRepository) EntriesAtOrBefore(context.Context, domain.ObjectRef, time.Time, int) ([]domain.LogEntry, error) {
	return nil, nil
}

func (c *capturingRepository) Entry(context.Context, uuid.UUID) (domain.LogEntry, error) {
	return domain.LogEntry{}, nil
}

func (c *capturingRepository) ListForObject(context.Context, domain.ObjectRef, int, int) ([]domain.LogEntry, error) {
	return nil, nil
}

func (c *capturingRepository) CountForObject(context.Context, domain.ObjectRef) (int64, error) {
	return 0, nil
}

var accountRef = domain.ObjectRef{ObjectType: "account", ObjectID: "7"}

func newTestRecorder(opts Options) (*Recorder, *capturingRepository) {
	registry := NewRegistry()
	registry.Register(accountRef.ObjectType, opts)
	repo := &capturingRepository{}
	recorder := NewRecorder(registry, repo, WithClock(func() time.Time {
		return time.Unix(1000, 0).UTC()
	}))
	return recorder, repo
}

func TestRecord_AppendsEntryWithDiffAndSerializedState(t *testing.T) {
	recorder, repo := newTestRecorder(Options{})

	before := map[string]any{"name": "a", "plan": "free"}
	after := map[string]any{"name": "a", "plan": "pro"}

	entry, recorded, err := recorder.Record(context.Background(), accountRef, domain.ActionUpdate, before, after, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recorded {
		t.Fatalf("expected entry to be recorded")
	}
	if len(repo.appended) != 1 {
		t.Fatalf("expected one appended entry, got %d", len(repo.appended))
	}
	if entry.Action != domain.ActionUpdate || entry.Actor != "alice" {
		t.Fatalf("unexpected entry metadata: %#v", entry)
	}
	if !entry.Timestamp.Equal(time.Unix(1000, 0).UTC()) {
		t.Fatalf("clock not applied: %v", entry.Timestamp)
	}

	var changes map[string]domain.FieldChange
	if err := json.Unmarshal(entry.Changes, &changes); err != nil {
		t.Fatalf("changes not valid JSON: %v", err)
	}
	if changes["plan"].Old != "free" || changes["plan"].New != "pro" {
		t.Fatalf("unexpected changes: %#v", changes)
	}
	if _, ok := changes["name"]; ok {
		t.Fatalf("unchanged field recorded in diff: %#v", changes)
	}

	fields := domain.DecodeSerializedFields(entry.SerializedData)
	if fields["plan"] != "pro" || fields["name"] != "a" {
		t.Fatalf("serialized state mismatch: %#v", fields)
	}
}

func TestRecord_NoOpUpdateSkipsAppend(t *testing.T) {
	recorder, repo := newTestRecorder(Options{})

	state := map[string]any{"name": "a"}
	_, recorded, err := recorder.Record(context.Background(), accountRef, domain.ActionUpdate, state, state, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded {
		t.Fatalf("no-op update must not be recorded")
	}
	if len(repo.appended) != 0 {
		t.Fatalf("no-op update appended an entry: %#v", repo.appended)
	}
}

func TestRecord_DeleteCarriesEmptyFieldsEnvelope(t *testing.T) {
	recorder, repo := newTestRecorder(Options{})

	before := map[string]any{"name": "a"}
	_, recorded, err := recorder.Record(context.Background(), accountRef, domain.ActionDelete, before, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recorded {
		t.Fatalf("delete must be recorded")
	}

	entry := repo.appended[0]
	if fields := domain.DecodeSerializedFields(entry.SerializedData); fields != nil {
		t.Fatalf("delete should serialize to absent fields, got %#v", fields)
	}
}

func TestRecord_MasksSerializedStateAndDiff(t *testing.T) {
	recorder, repo := newTestRecorder(Options{MaskFields: []string{"password"}})

	before := map[string]any{"password": "hunter22"}
	after := map[string]any{"password": "swordfish"}

	_, _, err := recorder.Record(context.Background(), accountRef, domain.ActionUpdate, before, after, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := repo.appended[0]
	fields := domain.DecodeSerializedFields(entry.SerializedData)
	if fields["password"] != "****dfish" {
		t.Fatalf("serialized value not masked: %#v", fields["password"])
	}

	var changes map[string]domain.FieldChange
	if err := json.Unmarshal(entry.Changes, &changes); err != nil {
		t.Fatalf("changes not valid JSON: %v", err)
	}
	if changes["password"].New != "****dfish" {
		t.Fatalf("diff value not masked: %#v", changes["password"])
	}
}

func TestRecord_ExcludedFieldsLeftOutOfSerializedState(t *testing.T) {
	recorder, repo := newTestRecorder(Options{ExcludeFields: []string{"internal_notes"}})

	after := map[string]any{"name": "a", "internal_notes": "secret"}
	_, _, err := recorder.Record(context.Background(), accountRef, domain.ActionCreate, nil, after, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fields := domain.DecodeSerializedFields(repo.appended[0].SerializedData)
	if _, ok := fields["internal_notes"]; ok {
		t.Fatalf("excluded field serialized: %#v", fields)
	}
	if fields["name"] != "a" {
		t.Fatalf("tracked field missing: %#v", fields)
	}
}

func TestRecord_UnregisteredTypeIsAnError(t *testing.T) {
	recorder, _ := newTestRecorder(Options{})

	ghost := domain.ObjectRef{ObjectType: "ghost", ObjectID: "1"}
	_, _, err := recorder.Record(context.Background(), ghost, domain.ActionCreate, nil, map[string]any{"a": 1}, "")
	if err == nil {
		t.Fatalf("expected error for unregistered type")
	}
}

func TestRecord_CreateWithEmptyStateStillRecorded(t *testing.T) {
	recorder, repo := newTestRecorder(Options{})

	_, recorded, err := recorder.Record(context.Background(), accountRef, domain.ActionCreate, nil, map[string]any{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recorded {
		t.Fatalf("create with empty state must still be recorded")
	}
	if len(repo.appended) != 1 {
		t.Fatalf("expected one entry, got %d", len(repo.appended))
	}
}
