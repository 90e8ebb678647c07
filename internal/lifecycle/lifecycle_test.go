package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brite-Nites/serper-tap/internal/budget"
	"github.com/Brite-Nites/serper-tap/internal/domain"
	"github.com/Brite-Nites/serper-tap/internal/store"
	"github.com/Brite-Nites/serper-tap/internal/zips"
)

func newTestLifecycle(t *testing.T) (*Lifecycle, *store.MemStore) {
	t.Helper()
	db := store.NewMemStore()
	src, err := zips.NewStaticSource("AZ,85001\nAZ,85002\nAZ,85003\n")
	require.NoError(t, err)
	g := budget.New(db, nil, budget.Options{DailyBudgetUSD: 50, CostPerCredit: 0.01, SoftPct: 80, HardPct: 100}, nil)
	return New(db, src, g, nil), db
}

func TestCreateJobHappyPath(t *testing.T) {
	lc, db := newTestLifecycle(t)
	job, err := lc.CreateJob(context.Background(), domain.JobParams{
		JobID: "j1", Keyword: "bars", State: "AZ", Pages: 2, BatchSize: 50, Concurrency: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, job.Status)
	assert.Equal(t, 3, job.Totals.Zips)
	assert.Equal(t, 6, job.Totals.Queries)

	queued, _, err := db.CountQueuedOrProcessing(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, 6, queued)
}

func TestCreateJobValidationError(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	_, err := lc.CreateJob(context.Background(), domain.JobParams{
		JobID: "j2", Keyword: "", State: "AZ", Pages: 1, BatchSize: 1, Concurrency: 1,
	})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
}

func TestCreateJobBudgetExceeded(t *testing.T) {
	db := store.NewMemStore()
	src, err := zips.NewStaticSource("AZ,85001\nAZ,85002\nAZ,85003\n")
	require.NoError(t, err)
	g := budget.New(db, nil, budget.Options{DailyBudgetUSD: 0.01, CostPerCredit: 0.01, SoftPct: 80, HardPct: 100}, nil)
	lc := New(db, src, g, nil)

	_, err = lc.CreateJob(context.Background(), domain.JobParams{
		JobID: "j3", Keyword: "bars", State: "AZ", Pages: 5, BatchSize: 1, Concurrency: 1,
	})
	var bErr *budget.Exceeded
	require.True(t, errors.As(err, &bErr))
}

func TestMarkDoneIdempotent(t *testing.T) {
	lc, db := newTestLifecycle(t)
	ctx := context.Background()
	_, err := lc.CreateJob(ctx, domain.JobParams{JobID: "j4", Keyword: "bars", State: "AZ", Pages: 1, BatchSize: 50, Concurrency: 5})
	require.NoError(t, err)

	claimID, batch, err := db.ClaimQueries(ctx, "j4", 10)
	require.NoError(t, err)
	updates := make([]store.QueryResultUpdate, 0, len(batch))
	for _, q := range batch {
		updates = append(updates, store.QueryResultUpdate{Zip: q.Zip, Page: q.Page, Status: domain.QuerySuccess})
	}
	_, err = db.MarkQueryResults(ctx, "j4", claimID, updates)
	require.NoError(t, err)

	done, err := lc.MarkDone(ctx, "j4")
	require.NoError(t, err)
	assert.True(t, done)

	done2, err := lc.MarkDone(ctx, "j4")
	require.NoError(t, err)
	assert.False(t, done2, "second MarkDone call is a no-op, not an error")
}
