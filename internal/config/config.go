// Package config loads and validates environment variables at startup.
//
// Settings is constructed once by a cmd/ entrypoint and passed by reference
// to every component; nothing in this module reads os.Getenv after Load
// returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all runtime configuration for the pipeline. It is immutable
// after Load returns.
type Settings struct {
	// Store locator.
	BigQueryProjectID string
	BigQueryDataset    string
	PGDSN              string
	RedisURL           string

	// Search client.
	UseMockAPI          bool
	SerperAPIKey        string
	SerperTimeout       time.Duration
	MaxRetriesPerQuery  int
	RetryDelay          time.Duration

	// Budget guard.
	DailyBudgetUSD float64
	CostPerCredit  float64
	BudgetSoftPct  float64
	BudgetHardPct  float64

	// Coordinator & executor defaults.
	ProcessorMaxWorkers int
	DefaultBatchSize    int
	DefaultConcurrency  int
	DefaultPages        int
	EarlyExitThreshold  int
	MergeChunkSize      int
	LoopDelay           time.Duration
	IdlePollInterval    time.Duration

	// Stuck-claim recovery.
	ReclaimAfter time.Duration
}

// Load reads environment variables and returns a validated Settings.
// An invalid numeric or boolean value falls back to its default rather than
// aborting, matching the teacher's envInt/envFloat/envBool helpers; only
// genuinely required combinations are treated as fatal: a store locator,
// and SERPER_API_KEY when USE_MOCK_API is false.
func Load() (*Settings, error) {
	s := &Settings{
		BigQueryProjectID: envString("BIGQUERY_PROJECT_ID", ""),
		BigQueryDataset:    envString("BIGQUERY_DATASET", ""),
		PGDSN:              envString("PG_DSN", ""),
		RedisURL:           envString("REDIS_URL", ""),

		UseMockAPI:         envBool("USE_MOCK_API", true),
		SerperAPIKey:       envString("SERPER_API_KEY", ""),
		SerperTimeout:      time.Duration(envInt("SERPER_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxRetriesPerQuery: envInt("MAX_RETRIES_PER_QUERY", 3),
		RetryDelay:         time.Duration(envFloat("RETRY_DELAY_SECONDS", 5)*1000) * time.Millisecond,

		DailyBudgetUSD: envFloat("DAILY_BUDGET_USD", 50),
		CostPerCredit:  envFloat("COST_PER_CREDIT", 0.001),
		BudgetSoftPct:  envFloat("BUDGET_SOFT_PCT", 80),
		BudgetHardPct:  envFloat("BUDGET_HARD_PCT", 100),

		ProcessorMaxWorkers: envInt("PROCESSOR_MAX_WORKERS", 4),
		DefaultBatchSize:    envInt("DEFAULT_BATCH_SIZE", 150),
		DefaultConcurrency:  envInt("DEFAULT_CONCURRENCY", 20),
		DefaultPages:        envInt("DEFAULT_PAGES", 3),
		EarlyExitThreshold:  envInt("EARLY_EXIT_THRESHOLD", 10),
		MergeChunkSize:      envInt("MERGE_CHUNK_SIZE", 500),
		LoopDelay:           time.Duration(envFloat("PROCESSOR_LOOP_DELAY_SECONDS", 3)*1000) * time.Millisecond,
		IdlePollInterval:    time.Duration(envFloat("IDLE_POLL_INTERVAL", 5)*1000) * time.Millisecond,

		ReclaimAfter: time.Duration(envInt("T_RECLAIM_SECONDS", 3600)) * time.Second,
	}

	if s.PGDSN == "" && s.BigQueryProjectID == "" {
		return nil, fmt.Errorf("either PG_DSN or BIGQUERY_PROJECT_ID/BIGQUERY_DATASET is required")
	}
	if !s.UseMockAPI && s.SerperAPIKey == "" {
		return nil, fmt.Errorf("SERPER_API_KEY is required unless USE_MOCK_API=true")
	}
	return s, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}
