package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Brite-Nites/serper-tap/internal/domain"
)

func (s *PGStore) CreateJob(ctx context.Context, p domain.JobParams) (*domain.Job, error) {
	sql := fmt.Sprintf(`
		INSERT INTO %s
			(job_id, keyword, state, pages, batch_size, concurrency, dry_run, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'running', now())
		ON CONFLICT (job_id) DO NOTHING`, s.jobsTable)

	if _, err := s.db.Exec(ctx, sql,
		p.JobID, p.Keyword, p.State, p.Pages, p.BatchSize, p.Concurrency, p.DryRun); err != nil {
		return nil, err
	}
	return s.GetJob(ctx, p.JobID)
}

func (s *PGStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	sql := fmt.Sprintf(`
		SELECT job_id, keyword, state, pages, batch_size, concurrency, dry_run,
		       status, created_at, started_at, finished_at,
		       zips, queries, successes, failures, skipped, places, credits
		FROM %s WHERE job_id = $1`, s.jobsTable)

	rows, err := s.db.Query(ctx, sql, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("job %q not found", jobID)
	}
	j := &domain.Job{}
	var status string
	if err := rows.Scan(
		&j.JobID, &j.Keyword, &j.State, &j.Pages, &j.BatchSize, &j.Concurrency, &j.DryRun,
		&status, &j.CreatedAt, &j.StartedAt, &j.FinishedAt,
		&j.Totals.Zips, &j.Totals.Queries, &j.Totals.Successes, &j.Totals.Failures,
		&j.Totals.Skipped, &j.Totals.Places, &j.Totals.Credits,
	); err != nil {
		return nil, err
	}
	j.Status = domain.JobStatus(status)
	return j, rows.Err()
}

func (s *PGStore) ListRunningJobIDs(ctx context.Context) ([]string, error) {
	sql := fmt.Sprintf(`SELECT job_id FROM %s WHERE status = 'running'`, s.jobsTable)
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkJobDone sets status=done, finished_at=now() idempotently. Completion
// soundness (spec §8 property 5) is enforced by the WHERE clause: a job is
// only flipped when no queued/processing rows remain.
func (s *PGStore) MarkJobDone(ctx context.Context, jobID string) (bool, error) {
	sql := fmt.Sprintf(`
		UPDATE %s SET status = 'done', finished_at = now()
		WHERE job_id = $1
		  AND status = 'running'
		  AND NOT EXISTS (
		    SELECT 1 FROM %s
		    WHERE job_id = $1 AND status IN ('queued', 'processing')
		  )`, s.jobsTable, s.queriesTable)
	affected, err := s.db.AtomicUpdateWhere(ctx, sql, jobID)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// UpdateTotals recomputes the rollup from the authoritative per-query table
// (spec §4.7) and writes it back.
func (s *PGStore) UpdateTotals(ctx context.Context, jobID string) (domain.Totals, error) {
	sql := fmt.Sprintf(`
		SELECT
			count(DISTINCT zip),
			count(*),
			count(*) FILTER (WHERE status = 'success'),
			count(*) FILTER (WHERE status = 'failed'),
			count(*) FILTER (WHERE status = 'skipped'),
			coalesce(sum(credits) FILTER (WHERE status != 'queued'), 0)
		FROM %s WHERE job_id = $1`, s.queriesTable)

	rows, err := s.db.Query(ctx, sql, jobID)
	if err != nil {
		return domain.Totals{}, err
	}
	var t domain.Totals
	if rows.Next() {
		if err := rows.Scan(&t.Zips, &t.Queries, &t.Successes, &t.Failures, &t.Skipped, &t.Credits); err != nil {
			rows.Close()
			return domain.Totals{}, err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Totals{}, err
	}

	placesCount, err := s.CountPlaces(ctx, jobID)
	if err != nil {
		return domain.Totals{}, err
	}
	t.Places = placesCount

	upd := fmt.Sprintf(`
		UPDATE %s SET zips=$2, queries=$3, successes=$4, failures=$5,
		              skipped=$6, places=$7, credits=$8,
		              started_at = coalesce(started_at, now())
		WHERE job_id = $1`, s.jobsTable)
	if _, err := s.db.Exec(ctx, upd, jobID, t.Zips, t.Queries, t.Successes, t.Failures, t.Skipped, t.Places, t.Credits); err != nil {
		return domain.Totals{}, err
	}
	return t, nil
}

func (s *PGStore) CountPlaces(ctx context.Context, jobID string) (int, error) {
	sql := fmt.Sprintf(`SELECT count(*) FROM %s WHERE job_id = $1`, s.placesTable)
	rows, err := s.db.Query(ctx, sql, jobID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func (s *PGStore) SumCreditsSince(ctx context.Context, since time.Time) (int64, error) {
	sql := fmt.Sprintf(`SELECT coalesce(sum(credits), 0) FROM %s WHERE created_at >= $1`, s.jobsTable)
	rows, err := s.db.Query(ctx, sql, since)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}
