// Package budget implements the Cost & Budget Guard (spec §4.8): a
// creation-time check that a new job's worst-case cost plus today's spend
// fits the daily ceiling. Advisory only during execution — correctness is
// enforced solely at job creation.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brite-Nites/serper-tap/internal/store"
)

// Exceeded is the structured BudgetExceeded error (spec §7): it carries
// both the estimate and the remaining budget so the caller can surface a
// message naming both numeric facts.
type Exceeded struct {
	EstimatedCost  float64
	SpentToday     float64
	DailyBudgetUSD float64
	HardCeiling    float64
}

func (e *Exceeded) Error() string {
	return fmt.Sprintf(
		"budget exceeded: estimated_cost=%.2f spent_today=%.2f hard_ceiling=%.2f (daily_budget=%.2f)",
		e.EstimatedCost, e.SpentToday, e.HardCeiling, e.DailyBudgetUSD,
	)
}

// SpentTodayFunc is the signature of a day-boundary spend lookup. Guard does
// not take one: it performs the lookup itself in spentTodayCredits, reading
// the Redis-cached counter first and falling back to the store when the
// cache is absent, cold or unavailable.
type SpentTodayFunc func(ctx context.Context) (credits int64, err error)

// Guard evaluates spec §4.8's gate.
type Guard struct {
	db            store.Store
	cache         *SpendCache
	dailyBudget   float64
	costPerCredit float64
	softPct       float64
	hardPct       float64
	log           *slog.Logger
}

type Options struct {
	DailyBudgetUSD float64
	CostPerCredit  float64
	SoftPct        float64
	HardPct        float64
}

// New builds a Guard. cache may be nil, in which case every check reads
// spent_today straight from the store.
func New(db store.Store, cache *SpendCache, opts Options, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		db: db, cache: cache, dailyBudget: opts.DailyBudgetUSD, costPerCredit: opts.CostPerCredit,
		softPct: opts.SoftPct, hardPct: opts.HardPct, log: log,
	}
}

// Check implements spec §4.8's at-creation evaluation. zips × pages is the
// worst-case (pre-early-exit) credit estimate. On approval, the cache (if
// any) is incremented by the estimate so subsequent checks in the same day
// don't under-count in-flight jobs before their rollups land in Postgres.
func (g *Guard) Check(ctx context.Context, zips, pages int) error {
	estimatedCredits := int64(zips) * int64(pages)
	estimatedCost := float64(estimatedCredits) * g.costPerCredit

	spentCredits, err := g.spentTodayCredits(ctx)
	if err != nil {
		return fmt.Errorf("budget guard: spent today: %w", err)
	}
	spentToday := float64(spentCredits) * g.costPerCredit

	hardCeiling := g.dailyBudget * g.hardPct / 100
	softCeiling := g.dailyBudget * g.softPct / 100

	if spentToday+estimatedCost > hardCeiling {
		return &Exceeded{
			EstimatedCost: estimatedCost, SpentToday: spentToday,
			DailyBudgetUSD: g.dailyBudget, HardCeiling: hardCeiling,
		}
	}
	if spentToday+estimatedCost > softCeiling {
		g.log.Warn("budget soft threshold crossed",
			"spent_today", spentToday, "estimated_cost", estimatedCost, "soft_ceiling", softCeiling)
	}
	if err := g.cache.Add(ctx, estimatedCredits); err != nil {
		g.log.Warn("budget cache increment failed, next check falls back to store", "error", err)
	}
	return nil
}

func (g *Guard) spentTodayCredits(ctx context.Context) (int64, error) {
	if g.cache != nil {
		if credits, ok := g.cache.Get(ctx); ok {
			return credits, nil
		}
	}
	return g.db.SumCreditsSince(ctx, startOfToday())
}

func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
