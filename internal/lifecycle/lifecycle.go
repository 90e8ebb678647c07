// Package lifecycle is the Job Lifecycle component (spec §4.1/H): create a
// job record, validate parameters, run the budget guard, expand and
// enqueue, and mark jobs done.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Brite-Nites/serper-tap/internal/budget"
	"github.com/Brite-Nites/serper-tap/internal/domain"
	"github.com/Brite-Nites/serper-tap/internal/expand"
	"github.com/Brite-Nites/serper-tap/internal/store"
	"github.com/Brite-Nites/serper-tap/internal/zips"
)

// ValidationError is spec §7's ValidationError: bad job parameters at
// creation, surfaced to the caller, never persisted.
type ValidationError struct {
	Field, Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// Lifecycle wires together validation, the budget guard, the expander, and
// the queue to implement create-job and mark-done.
type Lifecycle struct {
	db    store.Store
	zips  zips.Source
	guard *budget.Guard
	log   *slog.Logger
}

func New(db store.Store, zipSource zips.Source, guard *budget.Guard, log *slog.Logger) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}
	return &Lifecycle{db: db, zips: zipSource, guard: guard, log: log}
}

// CreateJob validates params, runs the budget guard, expands the job into
// (zip, page) queries, and enqueues them — spec §2's control-flow entry
// point ("Job Lifecycle.create → Expander → Queue.enqueue"). Returns the
// created job record. In dry-run mode the job and its queries are still
// persisted (spec §3 lists dry_run as a frozen parameter, not a skip-write
// flag) but callers may use it to label test runs.
func (l *Lifecycle) CreateJob(ctx context.Context, p domain.JobParams) (*domain.Job, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	zipList, err := l.zips.ZipsForState(p.State)
	if err != nil {
		return nil, fmt.Errorf("zips_for_state(%q): %w", p.State, err)
	}
	if l.guard != nil {
		if err := l.guard.Check(ctx, len(zipList), p.Pages); err != nil {
			return nil, err
		}
	}

	_, err = l.db.CreateJob(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	queries, err := expand.Queries(l.zips, p)
	if err != nil {
		return nil, fmt.Errorf("expand queries: %w", err)
	}
	inserted, err := l.db.EnqueueQueries(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("enqueue queries: %w", err)
	}
	l.log.Info("job created", "job_id", p.JobID, "zips", len(zipList), "pages", p.Pages, "queries_enqueued", inserted)

	if _, err := l.db.UpdateTotals(ctx, p.JobID); err != nil {
		return nil, fmt.Errorf("initial rollup: %w", err)
	}
	return l.db.GetJob(ctx, p.JobID)
}

// MarkDone implements spec §4.7's completion predicate: a job transitions
// to done iff no queued/processing rows remain. The store enforces the
// predicate atomically; MarkDone is a thin, idempotent wrapper.
func (l *Lifecycle) MarkDone(ctx context.Context, jobID string) (bool, error) {
	done, err := l.db.MarkJobDone(ctx, jobID)
	if err != nil {
		return false, err
	}
	if done {
		l.log.Info("job done", "job_id", jobID)
	}
	return done, nil
}

func validate(p domain.JobParams) error {
	if p.JobID == "" {
		return &ValidationError{Field: "job_id", Reason: "must not be empty"}
	}
	if p.Keyword == "" {
		return &ValidationError{Field: "keyword", Reason: "must not be empty"}
	}
	if p.State == "" {
		return &ValidationError{Field: "state", Reason: "must not be empty"}
	}
	if p.Pages < 1 {
		return &ValidationError{Field: "pages", Reason: "must be >= 1"}
	}
	if p.BatchSize < 1 {
		return &ValidationError{Field: "batch_size", Reason: "must be >= 1"}
	}
	if p.Concurrency < 1 {
		return &ValidationError{Field: "concurrency", Reason: "must be >= 1"}
	}
	return nil
}
