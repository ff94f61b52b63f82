package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

const requestColumns = `id, owner_id, topic, industry, focus_areas, timeframe, depth, visualizations,
	competitors, notes, status, progress, results, artifact_url, created_at, updated_at`

// Create inserts a new research request.
func (db *DB) Create(ctx context.Context, req *types.ResearchRequest) error {
	if err := req.CheckInvariants(); err != nil {
		return err
	}
	results, err := marshalResults(req.Results)
	if err != nil {
		return err
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO research_requests (`+requestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		req.ID, req.Owner, req.Topic, req.Industry, nonNil(req.FocusAreas), req.Timeframe, req.Depth,
		req.Visualizations, nonNil(req.Competitors), req.Notes, req.Status, req.Progress, results,
		nullIfEmpty(req.ArtifactURL), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to create research request: %w", err)
	}
	return nil
}

// Get retrieves a research request by ID
func (db *DB) Get(ctx context.Context, id uuid.UUID) (*types.ResearchRequest, error) {
	req, err := scanRequest(db.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM research_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get research request: %w", err)
	}
	return req, nil
}

// Update applies patch inside a transaction holding the row lock.
func (db *DB) Update(ctx context.Context, id uuid.UUID, patch store.Patch) (*types.ResearchRequest, error) {
	return db.mutate(ctx, id, func(cur *types.ResearchRequest, now time.Time) (*types.ResearchRequest, error) {
		return store.ApplyPatch(cur, patch, now)
	})
}

// Transition moves the request from one status to another, or fails with
// store.ErrConflict when the stored status is no longer from.
func (db *DB) Transition(ctx context.Context, id uuid.UUID, from, to types.Status, patch store.Patch) (*types.ResearchRequest, error) {
	return db.mutate(ctx, id, func(cur *types.ResearchRequest, now time.Time) (*types.ResearchRequest, error) {
		return store.ApplyTransition(cur, from, to, patch, now)
	})
}

// List returns the owner's requests newest first, without results.
func (db *DB) List(ctx context.Context, owner uuid.UUID) ([]*types.ResearchRequest, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+requestColumns+`
		 FROM research_requests
		 WHERE owner_id = $1
		 ORDER BY created_at DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list research requests: %w", err)
	}
	defer rows.Close()

	out := make([]*types.ResearchRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan research request: %w", err)
		}
		req.Results = nil
		out = append(out, req)
	}
	return out, rows.Err()
}

// Delete removes a research request.
func (db *DB) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM research_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete research request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListStale returns requests in status not updated since olderThan, oldest first.
func (db *DB) ListStale(ctx context.Context, status types.Status, olderThan time.Time) ([]*types.ResearchRequest, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+requestColumns+`
		 FROM research_requests
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at ASC`,
		status, olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale research requests: %w", err)
	}
	defer rows.Close()

	var out []*types.ResearchRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan research request: %w", err)
		}
		req.Results = nil
		out = append(out, req)
	}
	return out, rows.Err()
}

// mutate reads the row FOR UPDATE, computes the next state and writes it back in one
// transaction, so concurrent writers serialize on the row.
func (db *DB) mutate(ctx context.Context, id uuid.UUID, next func(cur *types.ResearchRequest, now time.Time) (*types.ResearchRequest, error)) (*types.ResearchRequest, error) {
	var updated *types.ResearchRequest
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		cur, err := scanRequest(tx.QueryRow(ctx,
			`SELECT `+requestColumns+` FROM research_requests WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("failed to lock research request: %w", err)
		}

		updated, err = next(cur, time.Now().UTC())
		if err != nil {
			return err
		}

		results, err := marshalResults(updated.Results)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE research_requests
			 SET topic = $2, industry = $3, focus_areas = $4, timeframe = $5, depth = $6,
			     visualizations = $7, competitors = $8, notes = $9, status = $10, progress = $11,
			     results = $12, artifact_url = $13, updated_at = $14
			 WHERE id = $1`,
			id, updated.Topic, updated.Industry, nonNil(updated.FocusAreas), updated.Timeframe, updated.Depth,
			updated.Visualizations, nonNil(updated.Competitors), updated.Notes, updated.Status, updated.Progress,
			results, nullIfEmpty(updated.ArtifactURL), updated.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update research request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scanRequest(row pgx.Row) (*types.ResearchRequest, error) {
	var (
		req         types.ResearchRequest
		results     []byte
		artifactURL *string
	)
	err := row.Scan(&req.ID, &req.Owner, &req.Topic, &req.Industry, &req.FocusAreas, &req.Timeframe,
		&req.Depth, &req.Visualizations, &req.Competitors, &req.Notes, &req.Status, &req.Progress,
		&results, &artifactURL, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		req.Results = &types.Results{}
		if err := json.Unmarshal(results, req.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results: %w", err)
		}
	}
	if artifactURL != nil {
		req.ArtifactURL = *artifactURL
	}
	req.FocusAreas = nonNil(req.FocusAreas)
	req.Competitors = nonNil(req.Competitors)
	return &req, nil
}

func marshalResults(r *types.Results) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	return data, nil
}

var _ store.RequestStore = (*DB)(nil)
