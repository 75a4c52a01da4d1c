// File: internal/store/postgres.go

// Package store persists application-state snapshots at suspension
// boundaries so attempts can be paused, resumed, and audited.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when no snapshot exists for an application ID.
var ErrNotFound = errors.New("application state not found")

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps one row per application attempt, upserted on every
// save. The snapshot document is stored as JSONB next to the columns used
// for querying.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.StateStore = (*PostgresStore)(nil)

const upsertSQL = `
INSERT INTO application_states (application_id, overall_status, current_url, updated_at, snapshot)
VALUES ($1, $2, $3, to_timestamp($4), $5)
ON CONFLICT (application_id) DO UPDATE
SET overall_status = EXCLUDED.overall_status,
    current_url    = EXCLUDED.current_url,
    updated_at     = EXCLUDED.updated_at,
    snapshot       = EXCLUDED.snapshot`

const selectSQL = `
SELECT snapshot FROM application_states WHERE application_id = $1`

// NewPostgresStore verifies connectivity and returns the store.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("store.postgres")}, nil
}

// Save upserts the snapshot for its application ID.
func (s *PostgresStore) Save(ctx context.Context, state *schemas.ApplicationStateSnapshot) error {
	if state == nil || state.ApplicationID == "" {
		return fmt.Errorf("snapshot with application_id is required")
	}

	doc, err := jsonAPI.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx, upsertSQL,
		state.ApplicationID,
		state.OverallStatus,
		state.CurrentURL,
		state.UpdatedAt,
		doc,
	)
	if err != nil {
		return fmt.Errorf("persisting state for %s: %w", state.ApplicationID, err)
	}

	s.log.Debug("State snapshot persisted",
		zap.String("application_id", state.ApplicationID),
		zap.String("status", state.OverallStatus),
	)
	return nil
}

// Load fetches the snapshot for an application ID.
func (s *PostgresStore) Load(ctx context.Context, applicationID string) (*schemas.ApplicationStateSnapshot, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, selectSQL, applicationID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, applicationID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading state for %s: %w", applicationID, err)
	}

	var state schemas.ApplicationStateSnapshot
	if err := jsonAPI.Unmarshal(doc, &state); err != nil {
		return nil, fmt.Errorf("decoding state for %s: %w", applicationID, err)
	}
	return &state, nil
}
