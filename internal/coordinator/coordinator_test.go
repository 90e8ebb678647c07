package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brite-Nites/serper-tap/internal/budget"
	"github.com/Brite-Nites/serper-tap/internal/domain"
	"github.com/Brite-Nites/serper-tap/internal/executor"
	"github.com/Brite-Nites/serper-tap/internal/lifecycle"
	"github.com/Brite-Nites/serper-tap/internal/search"
	"github.com/Brite-Nites/serper-tap/internal/store"
	"github.com/Brite-Nites/serper-tap/internal/zips"
)

// TestRunDrainsToCompletion exercises spec §4.6's outer loop end to end: a
// freshly created job is fully processed and marked done, without any
// worker ever touching a database, grounded on MockClient's deterministic
// results.
func TestRunDrainsToCompletion(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemStore()
	src, err := zips.NewStaticSource("AZ,85001\nAZ,85002\n")
	require.NoError(t, err)
	g := budget.New(db, nil, budget.Options{DailyBudgetUSD: 50, CostPerCredit: 0.01, SoftPct: 80, HardPct: 100}, nil)
	lc := lifecycle.New(db, src, g, nil)

	cl := search.NewMockClient(search.MockClientOptions{ResultsPerPage1: 5})
	ex := executor.New(db, cl, executor.Options{EarlyExitThreshold: 3, MergeChunkSize: 500}, nil)

	job, err := lc.CreateJob(ctx, domain.JobParams{
		JobID: "coord-1", Keyword: "bars", State: "AZ", Pages: 2, BatchSize: 10, Concurrency: 5,
	})
	require.NoError(t, err)
	require.Equal(t, domain.JobRunning, job.Status)

	co := New(db, lc, ex, Options{LoopDelay: 10 * time.Millisecond, IdlePollInterval: 10 * time.Millisecond}, nil)
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, co.Run(runCtx))

	final, err := db.GetJob(ctx, "coord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, final.Status)
	assert.NotNil(t, final.FinishedAt)
}
