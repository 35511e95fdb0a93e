package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// checkpointID is the primary key of the only row in the checkpoints table.
const checkpointID = 1

const (
	queryEnsureCheckpoint = `
		INSERT INTO checkpoints (id, cursor, events_ingested)
		VALUES ($1, NULL, 0)
		ON CONFLICT (id) DO NOTHING
	`

	queryLoadCheckpoint = `
		SELECT cursor, events_ingested, updated_at
		FROM checkpoints
		WHERE id = $1
	`

	querySaveCheckpoint = `
		UPDATE checkpoints
		SET cursor = $2, events_ingested = $3, updated_at = $4
		WHERE id = $1
	`
)

// PostgresStore keeps the checkpoint in row id=1 of the checkpoints table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a checkpoint store on an open pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Ensure creates the checkpoint row if it does not exist. Safe to call repeatedly.
func (s *PostgresStore) Ensure(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, queryEnsureCheckpoint, checkpointID); err != nil {
		errorsTotal.WithLabelValues("postgres", "ensure").Inc()
		return fmt.Errorf("failed to ensure checkpoint row: %w", err)
	}
	return nil
}

// Load reads the checkpoint. A missing row loads as the zero checkpoint and a
// NULL cursor as the empty cursor.
func (s *PostgresStore) Load(ctx context.Context) (Checkpoint, error) {
	var (
		cursor    sql.NullString
		ingested  int64
		updatedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, queryLoadCheckpoint, checkpointID).Scan(&cursor, &ingested, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, nil
	}
	if err != nil {
		errorsTotal.WithLabelValues("postgres", "load").Inc()
		return Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	return Checkpoint{
		Cursor:         cursor.String,
		EventsIngested: ingested,
		UpdatedAt:      updatedAt.Time,
	}, nil
}

// Save overwrites the checkpoint. It returns ErrNotFound when Ensure was never run.
func (s *PostgresStore) Save(ctx context.Context, cp Checkpoint) error {
	cursor := sql.NullString{String: cp.Cursor, Valid: cp.Cursor != ""}

	res, err := s.db.ExecContext(ctx, querySaveCheckpoint, checkpointID, cursor, cp.EventsIngested, s.now().UTC())
	if err != nil {
		errorsTotal.WithLabelValues("postgres", "save").Inc()
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		errorsTotal.WithLabelValues("postgres", "save").Inc()
		return ErrNotFound
	}

	savesTotal.WithLabelValues("postgres").Inc()
	return nil
}
