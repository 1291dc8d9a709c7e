package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/auditq/internal/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// sqliteSchema creates the audit_log table. Timestamps are stored as unix
// nanoseconds so the DESC ordering contract holds exactly, without relying
// on text collation of formatted dates.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	object_type TEXT NOT NULL,
	object_id TEXT NOT NULL,
	action TEXT NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	changes TEXT,
	serialized_data TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_object ON audit_log(object_type, object_id, timestamp DESC, id DESC);
`

// SQLiteLogEntryRepository is a SQLite-backed log store. It owns the
// underlying database handle; callers close it on shutdown.
type SQLiteLogEntryRepository struct {
	db *sql.DB
}

// OpenSQLiteLogEntryRepository opens (or creates) a SQLite-backed repository
// at the given DSN. Use "file:auditq.sqlite" for a file database or
// ":memory:" for tests and throwaway deployments.
func OpenSQLiteLogEntryRepository(dsn string) (*SQLiteLogEntryRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// table-lock errors from concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit_log schema: %w", err)
	}

	return &SQLiteLogEntryRepository{db: db}, nil
}

// NewSQLiteLogEntryRepository wraps an existing database handle. The caller
// is responsible for applying the schema.
func NewSQLiteLogEntryRepository(db *sql.DB) *SQLiteLogEntryRepository {
	return &SQLiteLogEntryRepository{db: db}
}

// Close releases the underlying database handle.
func (r *SQLiteLogEntryRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteLogEntryRepository) Append(ctx context.Context, entry domain.LogEntry) (domain.LogEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO audit_log (id, object_type, object_id, action, actor, changes, serialized_data, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(),
		entry.ObjectType,
		entry.ObjectID,
		entry.Action,
		entry.Actor,
		rawToNullString(entry.Changes),
		rawToNullString(entry.SerializedData),
		entry.Timestamp.UnixNano(),
	)
	if err != nil {
		return domain.LogEntry{}, fmt.Errorf("failed to append log entry: %w", err)
	}

	return entry, nil
}

func (r *SQLiteLogEntryRepository) EntriesAtOrBefore(ctx context.Context, ref domain.ObjectRef, ts time.Time, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 1
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, object_type, object_id, action, actor, changes, serialized_data, timestamp
		 FROM audit_log
		 WHERE object_type = ?
		   AND object_id = ?
		   AND timestamp <= ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		ref.ObjectType,
		ref.ObjectID,
		ts.UnixNano(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	return scanSQLiteLogEntries(rows)
}

func (r *SQLiteLogEntryRepository) Entry(ctx context.Context, id uuid.UUID) (domain.LogEntry, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, object_type, object_id, action, actor, changes, serialized_data, timestamp
		 FROM audit_log
		 WHERE id = ?`,
		id.String(),
	)

	entry, err := scanSQLiteLogEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LogEntry{}, ErrEntryNotFound
		}
		return domain.LogEntry{}, fmt.Errorf("failed to get log entry: %w", err)
	}
	return entry, nil
}

func (r *SQLiteLogEntryRepository) ListForObject(ctx context.Context, ref domain.ObjectRef, limit int, offset int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, object_type, object_id, action, actor, changes, serialized_data, timestamp
		 FROM audit_log
		 WHERE object_type = ?
		   AND object_id = ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ? OFFSET ?`,
		ref.ObjectType,
		ref.ObjectID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	return scanSQLiteLogEntries(rows)
}

func (r *SQLiteLogEntryRepository) CountForObject(ctx context.Context, ref domain.ObjectRef) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM audit_log WHERE object_type = ? AND object_id = ?`,
		ref.ObjectType,
		ref.ObjectID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count log entries: %w", err)
	}
	return count, nil
}

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLogEntries(rows *sql.Rows) ([]domain.LogEntry, error) {
	entries := []domain.LogEntry{}
	for rows.Next() {
		entry, err := scanSQLiteLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate log entries: %w", rowsErr)
	}

	return entries, nil
}

func scanSQLiteLogEntry(row sqliteRowScanner) (domain.LogEntry, error) {
	var (
		entry      domain.LogEntry
		rawID      string
		changes    sql.NullString
		serialized sql.NullString
		timestamp  int64
	)
	if err := row.Scan(
		&rawID,
		&entry.ObjectType,
		&entry.ObjectID,
		&entry.Action,
		&entry.Actor,
		&changes,
		&serialized,
		&timestamp,
	); err != nil {
		return domain.LogEntry{}, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return domain.LogEntry{}, fmt.Errorf("invalid log entry id %q: %w", rawID, err)
	}
	entry.ID = id
	if changes.Valid {
		entry.Changes = json.RawMessage(changes.String)
	}
	if serialized.Valid {
		entry.SerializedData = json.RawMessage(serialized.String)
	}
	entry.Timestamp = time.Unix(0, timestamp).UTC()

	return entry, nil
}

func rawToNullString(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
