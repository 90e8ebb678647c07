package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Brite-Nites/serper-tap/internal/domain"
)

// EnqueueQueries is the idempotent upsert of spec §4.3: match_on =
// (job_id, zip, page). Rows already present (e.g. from a crashed creator
// retrying) are not modified. Returns the count of newly inserted rows.
func (s *PGStore) EnqueueQueries(ctx context.Context, queries []domain.Query) (int, error) {
	if len(queries) == 0 {
		return 0, nil
	}
	cols := []string{"job_id", "zip", "page", "q", "status"}
	rows := make([][]any, 0, len(queries))
	for _, q := range queries {
		rows = append(rows, []any{q.JobID, q.Zip, q.Page, q.Q, string(domain.QueryQueued)})
	}
	inserted, err := s.db.Upsert(ctx, s.queriesTable, cols, rows, []string{"job_id", "zip", "page"})
	return int(inserted), err
}

// ClaimQueries is the atomic dequeue of spec §4.3: one atomic conditional
// UPDATE flips up to batchSize queued rows (lowest (zip, page) first) to
// processing under a freshly-generated claim_id, then a plain SELECT reads
// back exactly the rows this call claimed. Grounded on
// ryanshabaneh-atlas-queue's claimSQL (CTE + FOR UPDATE SKIP LOCKED), split
// into two statements here because spec §4.3 step 3 describes claim and
// select-back as separate operations.
func (s *PGStore) ClaimQueries(ctx context.Context, jobID string, batchSize int) (string, []domain.Query, error) {
	claimID := uuid.NewString()

	updateSQL := fmt.Sprintf(`
		UPDATE %[1]s SET status = 'processing', claim_id = $1, claimed_at = now()
		WHERE (job_id, zip, page) IN (
			SELECT job_id, zip, page FROM %[1]s
			WHERE job_id = $2 AND status = 'queued'
			ORDER BY zip, page
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)`, s.queriesTable)

	affected, err := s.db.AtomicUpdateWhere(ctx, updateSQL, claimID, jobID, batchSize)
	if err != nil {
		return "", nil, err
	}
	if affected == 0 {
		return claimID, nil, nil
	}

	selectSQL := fmt.Sprintf(`
		SELECT job_id, zip, page, q, status, claim_id, claimed_at, ran_at,
		       api_status, results_count, credits, error
		FROM %s WHERE job_id = $1 AND claim_id = $2
		ORDER BY zip, page`, s.queriesTable)

	rows, err := s.db.Query(ctx, selectSQL, jobID, claimID)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()

	batch := make([]domain.Query, 0, affected)
	for rows.Next() {
		var q domain.Query
		var status string
		if err := rows.Scan(
			&q.JobID, &q.Zip, &q.Page, &q.Q, &status, &q.ClaimID, &q.ClaimedAt, &q.RanAt,
			&q.APIStatus, &q.ResultsCount, &q.Credits, &q.Error,
		); err != nil {
			return "", nil, err
		}
		q.Status = domain.QueryStatus(status)
		batch = append(batch, q)
	}
	return claimID, batch, rows.Err()
}

// MarkQueryResults writes back outcomes for a claimed batch. Only rows
// whose current status=processing AND claim_id matches the writer's claim
// are updated (fencing, grounded on atlas-queue's markCompleted/markRetry
// pattern), so a stale writer from a reclaimed batch can never clobber a
// fresher claim. Chunking at MERGE_CHUNK_SIZE is the caller's
// responsibility (executor). Each update is written by its own conditional
// UPDATE statement; the rows of one call are not combined into a single
// statement.
func (s *PGStore) MarkQueryResults(ctx context.Context, jobID, claimID string, updates []QueryResultUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	var total int64
	sql := fmt.Sprintf(`
		UPDATE %s SET status = $1, api_status = $2, results_count = $3,
		              credits = $4, error = $5, ran_at = $6
		WHERE job_id = $7 AND zip = $8 AND page = $9
		  AND status = 'processing' AND claim_id = $10`, s.queriesTable)

	for _, u := range updates {
		affected, err := s.db.AtomicUpdateWhere(ctx, sql,
			string(u.Status), u.APIStatus, u.ResultsCount, u.Credits, u.Error, u.RanAt,
			jobID, u.Zip, u.Page, claimID)
		if err != nil {
			return int(total), err
		}
		total += affected
	}
	return int(total), nil
}

// SkipRemainingPages implements the early-exit update of spec §4.3: a
// no-op unless page == 1 and resultsCount < threshold, in which case every
// still-queued page 2..pages row for this zip transitions to skipped. The
// WHERE status='queued' predicate guarantees property 7 (spec §8): a row
// that is no longer queued is never touched.
func (s *PGStore) SkipRemainingPages(ctx context.Context, jobID, zip string, page, resultsCount, pages, threshold int) (int, error) {
	if page != 1 || resultsCount >= threshold || pages < 2 {
		return 0, nil
	}
	sql := fmt.Sprintf(`
		UPDATE %s SET status = 'skipped', error = 'early_exit'
		WHERE job_id = $1 AND zip = $2 AND page BETWEEN 2 AND $3 AND status = 'queued'`,
		s.queriesTable)
	affected, err := s.db.AtomicUpdateWhere(ctx, sql, jobID, zip, pages)
	return int(affected), err
}

// ReapStuckClaims implements the stuck-claim recovery sweep of spec §4.3:
// rows claimed longer than olderThan ago are returned to queued with
// claim_id cleared. Grounded on atlas-queue's reapOrphanedJobs.
func (s *PGStore) ReapStuckClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	sql := fmt.Sprintf(`
		UPDATE %s SET status = 'queued', claim_id = NULL, claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < $1`, s.queriesTable)
	affected, err := s.db.AtomicUpdateWhere(ctx, sql, cutoff)
	return int(affected), err
}

func (s *PGStore) CountQueuedOrProcessing(ctx context.Context, jobID string) (int, int, error) {
	sql := fmt.Sprintf(`
		SELECT count(*) FILTER (WHERE status = 'queued'),
		       count(*) FILTER (WHERE status = 'processing')
		FROM %s WHERE job_id = $1`, s.queriesTable)
	rows, err := s.db.Query(ctx, sql, jobID)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()
	var queued, processing int
	if rows.Next() {
		if err := rows.Scan(&queued, &processing); err != nil {
			return 0, 0, err
		}
	}
	return queued, processing, rows.Err()
}
