package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/auditq/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type logEntryRepository struct {
	pool *pgxpool.Pool
}

// NewLogEntryRepository wires a Postgres-backed repository over pgxpool.
func NewLogEntryRepository(pool *pgxpool.Pool) LogEntryRepository {
	return &logEntryRepository{pool: pool}
}

func (r *logEntryRepository) Append(ctx context.Context, entry domain.LogEntry) (domain.LogEntry, error) {
	if r.pool == nil {
		return domain.LogEntry{}, fmt.Errorf("log entry repository not initialized")
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO audit_log (id, object_type, object_id, action, actor, changes, serialized_data, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID,
		entry.ObjectType,
		entry.ObjectID,
		entry.Action,
		entry.Actor,
		entry.Changes,
		entry.SerializedData,
		entry.Timestamp,
	)
	if err != nil {
		return domain.LogEntry{}, fmt.Errorf("failed to append log entry: %w", err)
	}

	return entry, nil
}

func (r *logEntryRepository) EntriesAtOrBefore(ctx context.Context, ref domain.ObjectRef, ts time.Time, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 1
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, object_type, object_id, action, actor, changes, serialized_data, timestamp
		 FROM audit_log
		 WHERE object_type = $1
		   AND object_id = $2
		   AND timestamp <= $3
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $4`,
		ref.ObjectType,
		ref.ObjectID,
		ts,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	return scanLogEntries(rows)
}

func (r *logEntryRepository) Entry(ctx context.Context, id uuid.UUID) (domain.LogEntry, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, object_type, object_id, action, actor, changes, serialized_data, timestamp
		 FROM audit_log
		 WHERE id = $1`,
		id,
	)

	entry, err := scanLogEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LogEntry{}, ErrEntryNotFound
		}
		return domain.LogEntry{}, fmt.Errorf("failed to get log entry: %w", err)
	}
	return entry, nil
}

func (r *logEntryRepository) ListForObject(ctx context.Context, ref domain.ObjectRef, limit int, offset int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, object_type, object_id, action, actor, changes, serialized_data, timestamp
		 FROM audit_log
		 WHERE object_type = $1
		   AND object_id = $2
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		ref.ObjectType,
		ref.ObjectID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	return scanLogEntries(rows)
}

func (r *logEntryRepository) CountForObject(ctx context.Context, ref domain.ObjectRef) (int64, error) {
	var count int64
	err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM audit_log WHERE object_type = $1 AND object_id = $2`,
		ref.ObjectType,
		ref.ObjectID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count log entries: %w", err)
	}
	return count, nil
}

func scanLogEntries(rows pgx.Rows) ([]domain.LogEntry, error) {
	entries := []domain.LogEntry{}
	for rows.Next() {
		entry, err := scanLogEntry(rows)
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

func scanLogEntry(row pgx.Row) (domain.LogEntry, error) {
	var (
		entry     domain.LogEntry
		actor     pgtype.Text
		timestamp pgtype.Timestamptz
	)
	if err := row.Scan(
		&entry.ID,
		&entry.ObjectType,
		&entry.ObjectID,
		&entry.Action,
		&actor,
		&entry.Changes,
		&entry.SerializedData,
		&timestamp,
	); err != nil {
		return domain.LogEntry{}, err
	}

	if actor.Valid {
		entry.Actor = actor.String
	}
	if timestamp.Valid {
		entry.Timestamp = timestamp.Time
	}

	return entry, nil
}
