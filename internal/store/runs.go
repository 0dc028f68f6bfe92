package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/lox/inatfetch/internal/models"
)

// StartFetchRun records the start of a pipeline run and fills in run.ID.
func (s *Store) StartFetchRun(ctx context.Context, run *models.FetchRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	result, err := s.execWithRetry(ctx, `
		INSERT INTO fetch_runs (run_id, started_at, species_name, place_name, filter)
		VALUES (?, ?, ?, ?, ?)
	`, run.RunID, run.StartedAt, run.SpeciesName, run.PlaceName, run.Filter)
	if err != nil {
		return eris.Wrap(err, "insert fetch run")
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "fetch run id")
	}
	return nil
}

// CompleteFetchRun updates the run with its final counts and status.
func (s *Store) CompleteFetchRun(ctx context.Context, run *models.FetchRun) error {
	if run == nil {
		return nil
	}
	if run.ID == 0 {
		return eris.Errorf("complete fetch run %s: run was never started", run.RunID)
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	result, err := s.execWithRetry(ctx, `
		UPDATE fetch_runs SET
			finished_at = ?,
			taxon_id = ?,
			place_id = ?,
			pages = ?,
			fetched = ?,
			skipped = ?,
			filtered_out = ?,
			kept = ?,
			status = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.TaxonID, run.PlaceID, run.Pages, run.Fetched, run.Skipped,
		run.FilteredOut, run.Kept, run.Status, run.ErrorMessage, run.ID)
	if err != nil {
		return eris.Wrap(err, "update fetch run")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return eris.Errorf("update fetch run %d: no such run", run.ID)
	}
	return nil
}

// RunQuery narrows GetRecentFetchRuns. Zero values match everything.
type RunQuery struct {
	Limit   int
	Status  models.RunStatus
	Species string
}

// GetRecentFetchRuns returns the most recent runs matching q, newest first.
func (s *Store) GetRecentFetchRuns(ctx context.Context, q RunQuery) ([]models.FetchRun, error) {
	builder := sq.Select(
		"id", "run_id", "started_at", "finished_at", "species_name", "place_name", "taxon_id", "place_id",
		"filter", "pages", "fetched", "skipped", "filtered_out", "kept", "status", "error_message",
	).From("fetch_runs").OrderBy("id DESC")
	if q.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(q.Status)})
	}
	if q.Species != "" {
		builder = builder.Where("species_name = ? COLLATE NOCASE", q.Species)
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "build fetch runs query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query fetch runs")
	}
	defer rows.Close()

	var results []models.FetchRun
	for rows.Next() {
		var r models.FetchRun
		if err := rows.Scan(&r.ID, &r.RunID, &r.StartedAt, &r.FinishedAt, &r.SpeciesName, &r.PlaceName,
			&r.TaxonID, &r.PlaceID, &r.Filter, &r.Pages, &r.Fetched, &r.Skipped, &r.FilteredOut,
			&r.Kept, &r.Status, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
