package budget

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brite-Nites/serper-tap/internal/domain"
	"github.com/Brite-Nites/serper-tap/internal/store"
)

func TestGuardAllowsWithinBudget(t *testing.T) {
	db := store.NewMemStore()
	g := New(db, nil, Options{DailyBudgetUSD: 50, CostPerCredit: 0.01, SoftPct: 80, HardPct: 100}, nil)

	err := g.Check(context.Background(), 10, 3) // 30 credits = $0.30
	require.NoError(t, err)
}

// TestGuardBlocksOverBudget verifies spec §8 property 6.
func TestGuardBlocksOverBudget(t *testing.T) {
	db := store.NewMemStore()
	g := New(db, nil, Options{DailyBudgetUSD: 1, CostPerCredit: 0.01, SoftPct: 80, HardPct: 100}, nil)

	// zips=100, pages=2 -> estimated_credits=200, estimated_cost=$2.00 > $1.00 ceiling.
	err := g.Check(context.Background(), 100, 2)
	require.Error(t, err)

	var exceeded *Exceeded
	require.True(t, errors.As(err, &exceeded))
	assert.InDelta(t, 2.00, exceeded.EstimatedCost, 0.001)
	assert.InDelta(t, 1.00, exceeded.HardCeiling, 0.001)
}

func TestGuardAccountsForPriorSpend(t *testing.T) {
	db := store.NewMemStore()
	ctx := context.Background()

	_, err := db.CreateJob(ctx, domain.JobParams{JobID: "prior", Keyword: "k", State: "AZ", Pages: 1, BatchSize: 1, Concurrency: 1})
	require.NoError(t, err)
	_, err = db.EnqueueQueries(ctx, []domain.Query{{JobID: "prior", Zip: "z", Page: 1, Q: "q"}})
	require.NoError(t, err)
	claimID, batch, err := db.ClaimQueries(ctx, "prior", 10)
	require.NoError(t, err)
	_, err = db.MarkQueryResults(ctx, "prior", claimID, []store.QueryResultUpdate{
		{Zip: batch[0].Zip, Page: batch[0].Page, Status: domain.QuerySuccess, Credits: 80},
	})
	require.NoError(t, err)
	_, err = db.UpdateTotals(ctx, "prior")
	require.NoError(t, err)

	g := New(db, nil, Options{DailyBudgetUSD: 1, CostPerCredit: 0.01, SoftPct: 80, HardPct: 100}, nil)
	// Already spent 80 credits = $0.80; requesting 15 more credits = $0.15 -> $0.95 <= $1.00, allowed.
	require.NoError(t, g.Check(ctx, 5, 3))
	// Requesting 30 more credits = $0.30 -> $1.10 > $1.00, blocked.
	require.Error(t, g.Check(ctx, 10, 3))
}
