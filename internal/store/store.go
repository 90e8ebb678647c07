package store

import (
	"context"
	"time"

	"github.com/Brite-Nites/serper-tap/internal/domain"
)

// QueryResultUpdate is one row of the batched write-back performed by
// MarkQueryResults (spec §4.3).
type QueryResultUpdate struct {
	Zip          string
	Page         int
	Status       domain.QueryStatus
	APIStatus    int
	ResultsCount int
	Credits      int64
	Error        string
	RanAt        time.Time
}

// Store is the full set of typed, domain-level operations the rest of the
// core calls. It is built on top of Adapter's four generic primitives so
// that no SQL leaks past this package (Design Note, spec §9). Both the
// pgx-backed implementation (PGStore in this package) and the in-memory
// MemStore used by tests satisfy this interface.
type Store interface {
	// Job Lifecycle (H)
	CreateJob(ctx context.Context, p domain.JobParams) (*domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListRunningJobIDs(ctx context.Context) ([]string, error)
	MarkJobDone(ctx context.Context, jobID string) (bool, error)
	UpdateTotals(ctx context.Context, jobID string) (domain.Totals, error)

	// Query Expander + Queue Protocol (B, C)
	EnqueueQueries(ctx context.Context, rows []domain.Query) (inserted int, err error)
	ClaimQueries(ctx context.Context, jobID string, batchSize int) (claimID string, batch []domain.Query, err error)
	MarkQueryResults(ctx context.Context, jobID, claimID string, updates []QueryResultUpdate) (affected int, err error)
	SkipRemainingPages(ctx context.Context, jobID, zip string, page, resultsCount, pages, threshold int) (affected int, err error)
	ReapStuckClaims(ctx context.Context, olderThan time.Duration) (reclaimed int, err error)
	CountQueuedOrProcessing(ctx context.Context, jobID string) (queued, processing int, err error)

	// Batch Executor (E)
	UpsertPlaces(ctx context.Context, places []domain.Place) (inserted int, err error)
	CountPlaces(ctx context.Context, jobID string) (int, error)

	// Cost & Budget Guard (G)
	SumCreditsSince(ctx context.Context, since time.Time) (credits int64, err error)
}
