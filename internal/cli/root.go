// Package cli provides the command-line interface for serper-tap,
// grounded on raphi011-knowhow's internal/cli: a cobra root command with
// PersistentPreRunE doing once-per-invocation setup (config, store, search
// client) and PersistentPostRun tearing resources back down.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brite-Nites/serper-tap/internal/budget"
	"github.com/Brite-Nites/serper-tap/internal/config"
	"github.com/Brite-Nites/serper-tap/internal/coordinator"
	"github.com/Brite-Nites/serper-tap/internal/executor"
	"github.com/Brite-Nites/serper-tap/internal/lifecycle"
	"github.com/Brite-Nites/serper-tap/internal/search"
	"github.com/Brite-Nites/serper-tap/internal/store"
	"github.com/Brite-Nites/serper-tap/internal/zips"

	goredis "github.com/redis/go-redis/v9"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0"

var (
	cfg     *config.Settings
	log     *slog.Logger
	pool    *storePool
	db      store.Store
	lc      *lifecycle.Lifecycle
	ex      *executor.Executor
	guard   *budget.Guard
	rdb     *goredis.Client
	zipSrc  zips.Source
	cl      search.Client
)

type storePool struct {
	close func()
}

var rootCmd = &cobra.Command{
	Use:     "serper-tap",
	Short:   "Queue-backed web-search scraping pipeline",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return setup(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	rootCmd.AddCommand(createJobCmd)
	rootCmd.AddCommand(processBatchesCmd)
	rootCmd.AddCommand(monitorJobCmd)
	rootCmd.AddCommand(healthCheckCmd)
}

func setup(ctx context.Context) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pgPool, err := store.OpenPool(ctx, store.PoolOptions{DSN: cfg.PGDSN, MaxConns: int32(cfg.ProcessorMaxWorkers)})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	adapter := store.NewPGAdapter(pgPool)
	db = store.NewPGStore(adapter, store.PGStoreOptions{})
	pool = &storePool{close: pgPool.Close}

	zipSrc, err = zips.NewStaticSource(zips.SampleCSV)
	if err != nil {
		return fmt.Errorf("load zips reference: %w", err)
	}

	if cfg.UseMockAPI {
		cl = search.NewMockClient(search.MockClientOptions{ResultsPerPage1: cfg.EarlyExitThreshold - 1})
	} else {
		cl, err = search.NewSerperClient(search.SerperClientOptions{
			APIKey: cfg.SerperAPIKey, Timeout: cfg.SerperTimeout,
			MaxRetries: cfg.MaxRetriesPerQuery, RetryDelay: cfg.RetryDelay,
		})
		if err != nil {
			return fmt.Errorf("build search client: %w", err)
		}
	}

	var cache *budget.SpendCache
	if cfg.RedisURL != "" {
		rdb, err = budget.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, budget guard will read Postgres directly", "error", err)
		} else {
			cache = budget.NewSpendCache(rdb)
		}
	}
	guard = budget.New(db, cache, budget.Options{
		DailyBudgetUSD: cfg.DailyBudgetUSD, CostPerCredit: cfg.CostPerCredit,
		SoftPct: cfg.BudgetSoftPct, HardPct: cfg.BudgetHardPct,
	}, log)

	lc = lifecycle.New(db, zipSrc, guard, log)
	ex = executor.New(db, cl, executor.Options{
		EarlyExitThreshold: cfg.EarlyExitThreshold,
		MergeChunkSize:     cfg.MergeChunkSize,
	}, log)
	return nil
}

func teardown() {
	if rdb != nil {
		_ = rdb.Close()
	}
	if pool != nil {
		pool.close()
	}
}

func newCoordinator() *coordinator.Coordinator {
	return coordinator.New(db, lc, ex, coordinator.Options{
		LoopDelay: cfg.LoopDelay, IdlePollInterval: cfg.IdlePollInterval,
		ReclaimAfter: cfg.ReclaimAfter,
	}, log)
}
