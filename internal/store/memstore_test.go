package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brite-Nites/serper-tap/internal/domain"
)

func seedJobWithQueries(t *testing.T, s *MemStore, jobID string, n int) {
	t.Helper()
	ctx := context.Background()
	_, err := s.CreateJob(ctx, domain.JobParams{
		JobID: jobID, Keyword: "bars", State: "AZ", Pages: 1, BatchSize: 50, Concurrency: 10,
	})
	require.NoError(t, err)

	rows := make([]domain.Query, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, domain.Query{JobID: jobID, Zip: "zip", Page: i + 1, Q: "q"})
	}
	_, err = s.EnqueueQueries(ctx, rows)
	require.NoError(t, err)
}

// TestDisjointClaim verifies spec §8 property 1: concurrent claims on the
// same job never return overlapping rows.
func TestDisjointClaim(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	const total = 200
	seedJobWithQueries(t, s, "job-1", total)

	var mu sync.Mutex
	seen := make(map[int]struct{})
	var wg sync.WaitGroup
	workers := 8
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, batch, err := s.ClaimQueries(ctx, "job-1", 7)
				require.NoError(t, err)
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, q := range batch {
					_, dup := seen[q.Page]
					assert.False(t, dup, "page %d claimed twice", q.Page)
					seen[q.Page] = struct{}{}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, total)
}

// TestIdempotentEnqueue verifies spec §8 property 3.
func TestIdempotentEnqueue(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	seedJobWithQueries(t, s, "job-2", 10)

	rows := make([]domain.Query, 0, 10)
	for i := 0; i < 10; i++ {
		rows = append(rows, domain.Query{JobID: "job-2", Zip: "zip", Page: i + 1, Q: "q"})
	}
	inserted, err := s.EnqueueQueries(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted, "re-enqueueing identical rows must insert nothing")

	queued, _, err := s.CountQueuedOrProcessing(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, 10, queued)
}

// TestNoDuplicatePlaces verifies spec §8 property 2.
func TestNoDuplicatePlaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	place := domain.Place{JobID: "job-3", PlaceUID: "p1", PayloadRaw: "{}"}

	n1, err := s.UpsertPlaces(ctx, []domain.Place{place})
	require.NoError(t, err)
	assert.Equal(t, 1, n1)

	n2, err := s.UpsertPlaces(ctx, []domain.Place{place})
	require.NoError(t, err)
	assert.Equal(t, 0, n2)

	count, err := s.CountPlaces(ctx, "job-3")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestEarlyExitSafety verifies spec §8 property 7: skip_remaining_pages
// never touches a row that is not queued.
func TestEarlyExitSafety(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	seedJobWithQueries(t, s, "job-4", 3) // pages 1,2,3 for "zip"

	// Manually mark page 2 as success so it's no longer queued.
	_, batch, err := s.ClaimQueries(ctx, "job-4", 10)
	require.NoError(t, err)
	var claimID string
	for _, q := range batch {
		if q.Page == 2 {
			claimID = *q.ClaimID
		}
	}
	_, err = s.MarkQueryResults(ctx, "job-4", claimID, []QueryResultUpdate{
		{Zip: "zip", Page: 2, Status: domain.QuerySuccess, RanAt: time.Now()},
	})
	require.NoError(t, err)

	// Re-queue pages 1 and 3 (simulate reaper) then trigger early exit.
	_, err = s.ReapStuckClaims(ctx, -time.Hour)
	require.NoError(t, err)

	affected, err := s.SkipRemainingPages(ctx, "job-4", "zip", 1, 0, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, affected, "only page 3 (still queued) should be skipped; page 2 is terminal")
}

// TestCompletionSoundness verifies spec §8 property 5.
func TestCompletionSoundness(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	seedJobWithQueries(t, s, "job-5", 2)

	done, err := s.MarkJobDone(ctx, "job-5")
	require.NoError(t, err)
	assert.False(t, done, "job cannot be done while queries remain queued")

	claimID, batch, err := s.ClaimQueries(ctx, "job-5", 10)
	require.NoError(t, err)
	updates := make([]QueryResultUpdate, 0, len(batch))
	for _, q := range batch {
		updates = append(updates, QueryResultUpdate{Zip: q.Zip, Page: q.Page, Status: domain.QuerySuccess, RanAt: time.Now()})
	}
	_, err = s.MarkQueryResults(ctx, "job-5", claimID, updates)
	require.NoError(t, err)

	done, err = s.MarkJobDone(ctx, "job-5")
	require.NoError(t, err)
	assert.True(t, done)
}
