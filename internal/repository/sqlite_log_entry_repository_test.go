package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/auditq/internal/domain"
)

func newSQLiteRepo(t *testing.T) *SQLiteLogEntryRepository {
	t.Helper()
	repo, err := OpenSQLiteLogEntryRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func appendEntry(t *testing.T, repo LogEntryRepository, ref domain.ObjectRef, ts time.Time, serialized string) domain.LogEntry {
	t.Helper()
	entry := domain.LogEntry{
		ObjectType: ref.ObjectType,
		ObjectID:   ref.ObjectID,
		Action:     domain.ActionUpdate,
		Timestamp:  ts,
	}
	if serialized != "" {
		entry.SerializedData = json.RawMessage(serialized)
	}
	created, err := repo.Append(context.Background(), entry)
	if err != nil {
		t.Fatalf("failed to append entry: %v", err)
	}
	return created
}

func TestSQLiteRepository_AppendAssignsIDAndTimestamp(t *testing.T) {
	repo := newSQLiteRepo(t)
	ref := domain.ObjectRef{ObjectType: "user", ObjectID: "1"}

	created, err := repo.Append(context.Background(), domain.LogEntry{
		ObjectType: ref.ObjectType,
		ObjectID:   ref.ObjectID,
		Action:     domain.ActionCreate,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if created.Timestamp.IsZero() {
		t.Fatalf("expected generated timestamp")
	}
}

func TestSQLiteRepository_EntriesAtOrBeforeSelectsNewestFirst(t *testing.T) {
	repo := newSQLiteRepo(t)
	ref := domain.ObjectRef{ObjectType: "user", ObjectID: "1"}

	older := appendEntry(t, repo, ref, time.Unix(1, 0).UTC(), `{"fields": {"name": "a"}}`)
	newer := appendEntry(t, repo, ref, time.Unix(5, 0).UTC(), `{"fields": {"name": "b"}}`)

	// T between the two entries selects the older one.
	entries, err := repo.EntriesAtOrBefore(context.Background(), ref, time.Unix(3, 0).UTC(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != older.ID {
		t.Fatalf("expected older entry at T=3, got %#v", entries)
	}

	// T after both selects the newer one.
	entries, err = repo.EntriesAtOrBefore(context.Background(), ref, time.Unix(10, 0).UTC(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != newer.ID {
		t.Fatalf("expected newer entry at T=10, got %#v", entries)
	}

	// T before both finds nothing.
	entries, err = repo.EntriesAtOrBefore(context.Background(), ref, time.Unix(0, 0).UTC(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries before the log starts, got %#v", entries)
	}
}

func TestSQLiteRepository_BoundaryTimestampIsInclusive(t *testing.T) {
	repo := newSQLiteRepo(t)
	ref := domain.ObjectRef{ObjectType: "user", ObjectID: "1"}

	entry := appendEntry(t, repo, ref, time.Unix(5, 0).UTC(), "")

	entries, err := repo.EntriesAtOrBefore(context.Background(), ref, time.Unix(5, 0).UTC(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != entry.ID {
		t.Fatalf("entry at exactly T must match, got %#v", entries)
	}
}

func TestSQLiteRepository_EqualTimestampsOrderedByIDDescending(t *testing.T) {
	repo := newSQLiteRepo(t)
	ref := domain.ObjectRef{ObjectType: "user", ObjectID: "1"}
	ts := time.Unix(5, 0).UTC()

	first := appendEntry(t, repo, ref, ts, "")
	second := appendEntry(t, repo, ref, ts, "")

	want := first.ID
	if second.ID.String() > first.ID.String() {
		want = second.ID
	}

	entries, err := repo.EntriesAtOrBefore(context.Background(), ref, ts, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != want {
		t.Fatalf("expected id tie-break to pick %s, got %#v", want, entries)
	}
}

func TestSQLiteRepository_ScopesEntriesToObject(t *testing.T) {
	repo := newSQLiteRepo(t)
	ref := domain.ObjectRef{ObjectType: "user", ObjectID: "1"}
	other := domain.ObjectRef{ObjectType: "user", ObjectID: "2"}

	appendEntry(t, repo, other, time.Unix(1, 0).UTC(), "")

	entries, err := repo.EntriesAtOrBefore(context.Background(), ref, time.Unix(10, 0).UTC(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries leaked across objects: %#v", entries)
	}
}

func TestSQLiteRepository_EntryRoundTripsPayloads(t *testing.T) {
	repo := newSQLiteRepo(t)
	ref := domain.ObjectRef{ObjectType: "user", ObjectID: "1"}

	created, err := repo.Append(context.Background(), domain.LogEntry{
		ObjectType:     ref.ObjectType,
		ObjectID:       ref.ObjectID,
		Action:         domain.ActionUpdate,
		Actor:          "alice",
		Changes:        json.RawMessage(`{"name":{"old":"a","new":"b"}}`),
		SerializedData: json.RawMessage(`{"fields":{"name":"b"}}`),
		Timestamp:      time.Unix(5, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fetched, err := repo.Entry(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.Actor != "alice" || fetched.Action != domain.ActionUpdate {
		t.Fatalf("metadata lost: %#v", fetched)
	}
	if !fetched.Timestamp.Equal(time.Unix(5, 0).UTC()) {
		t.Fatalf("timestamp drifted: %v", fetched.Timestamp)
	}
	if string(fetched.Changes) != `{"name":{"old":"a","new":"b"}}` {
		t.Fatalf("changes drifted: %s", fetched.Changes)
	}
	if fields := domain.DecodeSerializedFields(fetched.SerializedData); fields["name"] != "b" {
		t.Fatalf("serialized data drifted: %#v", fields)
	}
}

func TestSQLiteRepository_EntryNotFound(t *testing.T) {
	repo := newSQLiteRepo(t)

	_, err := repo.Entry(context.Background(), uuid.New())
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestSQLiteRepository_CloseReleasesHandle(t *testing.T) {
	repo, err := OpenSQLiteLogEntryRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite repository: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	_, err = repo.Append(context.Background(), domain.LogEntry{
		ObjectType: "user",
		ObjectID:   "1",
		Action:     domain.ActionCreate,
	})
	if err == nil {
		t.Fatalf("expected error appending to a closed store")
	}
}

func TestSQLiteRepository_ListAndCountForObject(t *testing.T) {
	repo := newSQLiteRepo(t)
	ref := domain.ObjectRef{ObjectType: "user", ObjectID: "1"}

	for i := 1; i <= 5; i++ {
		appendEntry(t, repo, ref, time.Unix(int64(i), 0).UTC(), "")
	}

	entries, err := repo.ListForObject(context.Background(), ref, 3, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Fatalf("entries not newest first: %#v", entries)
		}
	}

	page, err := repo.ListForObject(context.Background(), ref, 3, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 entries on second page, got %d", len(page))
	}

	count, err := repo.CountForObject(context.Background(), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected count 5, got %d", count)
	}
}
