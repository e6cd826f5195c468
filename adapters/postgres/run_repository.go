package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"corrcov/domain/core"
	"corrcov/domain/finemap"
)

// RunRepository persists correction runs in PostgreSQL
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// EnsureSchema creates the correction_runs table if it does not exist
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS correction_runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			nsnps INTEGER NOT NULL,
			nrep INTEGER NOT NULL,
			seed BIGINT NOT NULL,
			threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
			desired_coverage DOUBLE PRECISION NOT NULL DEFAULT 0,
			corrected_coverage DOUBLE PRECISION NOT NULL,
			required_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
			set_size INTEGER NOT NULL DEFAULT 0,
			converged BOOLEAN NOT NULL,
			runtime_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create correction_runs table: %w", err)
	}
	return nil
}

// Insert adds a correction run record
func (r *RunRepository) Insert(ctx context.Context, run *finemap.CorrectionRun) error {
	query := `
		INSERT INTO correction_runs (
			id, kind, nsnps, nrep, seed, threshold, desired_coverage,
			corrected_coverage, required_threshold, set_size, converged,
			runtime_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID.String(),
		string(run.Kind),
		run.NSnps,
		run.NRep,
		int64(run.Seed),
		run.Threshold,
		run.DesiredCoverage,
		run.CorrectedCoverage,
		run.RequiredThreshold,
		run.SetSize,
		run.Converged,
		run.RuntimeMs,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert correction run: %w", err)
	}
	return nil
}

// GetByID fetches a single correction run
func (r *RunRepository) GetByID(ctx context.Context, id core.RunID) (*finemap.CorrectionRun, error) {
	query := `
		SELECT id, kind, nsnps, nrep, seed, threshold, desired_coverage,
			   corrected_coverage, required_threshold, set_size, converged,
			   runtime_ms, created_at
		FROM correction_runs
		WHERE id = $1`

	var run finemap.CorrectionRun
	var seed int64
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&run.ID,
		&run.Kind,
		&run.NSnps,
		&run.NRep,
		&seed,
		&run.Threshold,
		&run.DesiredCoverage,
		&run.CorrectedCoverage,
		&run.RequiredThreshold,
		&run.SetSize,
		&run.Converged,
		&run.RuntimeMs,
		&run.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // no such run
		}
		return nil, fmt.Errorf("failed to get correction run: %w", err)
	}
	run.Seed = uint64(seed)
	return &run, nil
}

// List returns correction runs ordered newest first
func (r *RunRepository) List(ctx context.Context, limit, offset int) ([]*finemap.CorrectionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, kind, nsnps, nrep, seed, threshold, desired_coverage,
			   corrected_coverage, required_threshold, set_size, converged,
			   runtime_ms, created_at
		FROM correction_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list correction runs: %w", err)
	}
	defer rows.Close()

	var runs []*finemap.CorrectionRun
	for rows.Next() {
		var run finemap.CorrectionRun
		var seed int64
		err := rows.Scan(
			&run.ID,
			&run.Kind,
			&run.NSnps,
			&run.NRep,
			&seed,
			&run.Threshold,
			&run.DesiredCoverage,
			&run.CorrectedCoverage,
			&run.RequiredThreshold,
			&run.SetSize,
			&run.Converged,
			&run.RuntimeMs,
			&run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correction run: %w", err)
		}
		run.Seed = uint64(seed)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
