package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Brite-Nites/serper-tap/internal/domain"
)

// MemStore is an in-memory Store used by the test suite so the queue,
// executor, lifecycle, and budget packages can be exercised without a live
// Postgres. It preserves the same atomicity guarantees the pgx-backed
// PGStore relies on Postgres for (a single mutex serializes claims exactly
// the way Postgres's row-level locking does for AtomicUpdateWhere).
type MemStore struct {
	mu sync.Mutex

	jobs    map[string]*domain.Job
	queries map[string]*domain.Query // key: job_id|zip|page
	places  map[string]*domain.Place // key: job_id|place_uid
}

func NewMemStore() *MemStore {
	return &MemStore{
		jobs:    make(map[string]*domain.Job),
		queries: make(map[string]*domain.Query),
		places:  make(map[string]*domain.Place),
	}
}

func queryKey(jobID, zip string, page int) string { return fmt.Sprintf("%s|%s|%d", jobID, zip, page) }
func placeKey(jobID, placeUID string) string       { return jobID + "|" + placeUID }

func (m *MemStore) CreateJob(ctx context.Context, p domain.JobParams) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[p.JobID]; ok {
		return cloneJob(j), nil
	}
	j := &domain.Job{
		JobID: p.JobID, Keyword: p.Keyword, State: p.State, Pages: p.Pages,
		BatchSize: p.BatchSize, Concurrency: p.Concurrency, DryRun: p.DryRun,
		Status: domain.JobRunning, CreatedAt: time.Now(),
	}
	m.jobs[p.JobID] = j
	return cloneJob(j), nil
}

func (m *MemStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %q not found", jobID)
	}
	return cloneJob(j), nil
}

func (m *MemStore) ListRunningJobIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, j := range m.jobs {
		if j.Status == domain.JobRunning {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemStore) MarkJobDone(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != domain.JobRunning {
		return false, nil
	}
	for _, q := range m.queries {
		if q.JobID == jobID && (q.Status == domain.QueryQueued || q.Status == domain.QueryProcessing) {
			return false, nil
		}
	}
	now := time.Now()
	j.Status = domain.JobDone
	j.FinishedAt = &now
	return true, nil
}

func (m *MemStore) UpdateTotals(ctx context.Context, jobID string) (domain.Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return domain.Totals{}, fmt.Errorf("job %q not found", jobID)
	}
	var t domain.Totals
	zips := map[string]struct{}{}
	for _, q := range m.queries {
		if q.JobID != jobID {
			continue
		}
		t.Queries++
		zips[q.Zip] = struct{}{}
		switch q.Status {
		case domain.QuerySuccess:
			t.Successes++
		case domain.QueryFailed:
			t.Failures++
		case domain.QuerySkipped:
			t.Skipped++
		}
		if q.Status != domain.QueryQueued {
			t.Credits += q.Credits
		}
	}
	t.Zips = len(zips)
	for _, p := range m.places {
		if p.JobID == jobID {
			t.Places++
		}
	}
	j.Totals = t
	if j.StartedAt == nil {
		now := time.Now()
		j.StartedAt = &now
	}
	return t, nil
}

func (m *MemStore) EnqueueQueries(ctx context.Context, queries []domain.Query) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, q := range queries {
		k := queryKey(q.JobID, q.Zip, q.Page)
		if _, ok := m.queries[k]; ok {
			continue
		}
		qq := q
		qq.Status = domain.QueryQueued
		m.queries[k] = &qq
		inserted++
	}
	return inserted, nil
}

func (m *MemStore) ClaimQueries(ctx context.Context, jobID string, batchSize int) (string, []domain.Query, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*domain.Query
	for _, q := range m.queries {
		if q.JobID == jobID && q.Status == domain.QueryQueued {
			candidates = append(candidates, q)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Zip != candidates[j].Zip {
			return candidates[i].Zip < candidates[j].Zip
		}
		return candidates[i].Page < candidates[j].Page
	})
	if len(candidates) > batchSize {
		candidates = candidates[:batchSize]
	}

	claimID := uuid.NewString()
	now := time.Now()
	batch := make([]domain.Query, 0, len(candidates))
	for _, q := range candidates {
		q.Status = domain.QueryProcessing
		id := claimID
		q.ClaimID = &id
		q.ClaimedAt = &now
		batch = append(batch, *q)
	}
	return claimID, batch, nil
}

func (m *MemStore) MarkQueryResults(ctx context.Context, jobID, claimID string, updates []QueryResultUpdate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	affected := 0
	for _, u := range updates {
		k := queryKey(jobID, u.Zip, u.Page)
		q, ok := m.queries[k]
		if !ok || q.Status != domain.QueryProcessing || q.ClaimID == nil || *q.ClaimID != claimID {
			continue
		}
		q.Status = u.Status
		q.APIStatus = u.APIStatus
		q.ResultsCount = u.ResultsCount
		q.Credits = u.Credits
		q.Error = u.Error
		ranAt := u.RanAt
		q.RanAt = &ranAt
		affected++
	}
	return affected, nil
}

func (m *MemStore) SkipRemainingPages(ctx context.Context, jobID, zip string, page, resultsCount, pages, threshold int) (int, error) {
	if page != 1 || resultsCount >= threshold || pages < 2 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	affected := 0
	for p := 2; p <= pages; p++ {
		k := queryKey(jobID, zip, p)
		q, ok := m.queries[k]
		if !ok || q.Status != domain.QueryQueued {
			continue
		}
		q.Status = domain.QuerySkipped
		q.Error = "early_exit"
		affected++
	}
	return affected, nil
}

func (m *MemStore) ReapStuckClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	reclaimed := 0
	for _, q := range m.queries {
		if q.Status == domain.QueryProcessing && q.ClaimedAt != nil && q.ClaimedAt.Before(cutoff) {
			q.Status = domain.QueryQueued
			q.ClaimID = nil
			q.ClaimedAt = nil
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (m *MemStore) CountQueuedOrProcessing(ctx context.Context, jobID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var queued, processing int
	for _, q := range m.queries {
		if q.JobID != jobID {
			continue
		}
		switch q.Status {
		case domain.QueryQueued:
			queued++
		case domain.QueryProcessing:
			processing++
		}
	}
	return queued, processing, nil
}

func (m *MemStore) UpsertPlaces(ctx context.Context, places []domain.Place) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, p := range places {
		k := placeKey(p.JobID, p.PlaceUID)
		if _, ok := m.places[k]; ok {
			continue
		}
		pp := p
		m.places[k] = &pp
		inserted++
	}
	return inserted, nil
}

func (m *MemStore) CountPlaces(ctx context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.places {
		if p.JobID == jobID {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) SumCreditsSince(ctx context.Context, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, j := range m.jobs {
		if !j.CreatedAt.Before(since) {
			total += j.Totals.Credits
		}
	}
	return total, nil
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	return &c
}

var _ Store = (*MemStore)(nil)
var _ Store = (*PGStore)(nil)
