// Package coordinator implements the Job Coordinator (spec §4.6): the outer
// loop that enumerates running jobs, invokes the Batch Executor, updates
// rollups, and terminates jobs, plus the periodic stuck-claim reaper sweep.
package coordinator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Brite-Nites/serper-tap/internal/executor"
	"github.com/Brite-Nites/serper-tap/internal/lifecycle"
	"github.com/Brite-Nites/serper-tap/internal/store"
)

// Options configures pacing and the reaper sweep schedule.
type Options struct {
	LoopDelay        time.Duration
	IdlePollInterval time.Duration
	ReclaimAfter     time.Duration
	// ReaperCronSpec is a standard 5-field cron expression; defaults to
	// every 5 minutes. Grounded on robfig/cron's schedule syntax, adopted
	// here the way the pack's other background-sweep jobs do for periodic
	// maintenance work outside the hot path.
	ReaperCronSpec string
}

// Coordinator drives spec §4.6's loop. stopRequested mirrors the teacher's
// main.go atomic stop flag set from a signal handler (fetchd.go), checked
// only between batches so an in-flight ProcessBatch always completes (spec
// §4.6 "Cancellation").
type Coordinator struct {
	db            store.Store
	lc            *lifecycle.Lifecycle
	ex            *executor.Executor
	opts          Options
	log           *slog.Logger
	stopRequested atomic.Int32
	cron          *cron.Cron
}

func New(db store.Store, lc *lifecycle.Lifecycle, ex *executor.Executor, opts Options, log *slog.Logger) *Coordinator {
	if opts.LoopDelay <= 0 {
		opts.LoopDelay = 3 * time.Second
	}
	if opts.IdlePollInterval <= 0 {
		opts.IdlePollInterval = 5 * time.Second
	}
	if opts.ReclaimAfter <= 0 {
		opts.ReclaimAfter = time.Hour
	}
	if opts.ReaperCronSpec == "" {
		opts.ReaperCronSpec = "*/5 * * * *"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{db: db, lc: lc, ex: ex, opts: opts, log: log}
}

// RequestStop flags the coordinator to exit after the current batch.
func (c *Coordinator) RequestStop() {
	c.stopRequested.Store(1)
}

func (c *Coordinator) stopping() bool {
	return c.stopRequested.Load() == 1
}

// Run drives spec §4.6's loop until all running jobs complete or a stop is
// requested, whichever comes first — matching process-batches's exit
// contract (spec §6: "Exits 0 when all running jobs complete").
func (c *Coordinator) Run(ctx context.Context) error {
	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.opts.ReaperCronSpec, c.sweepStuckClaims(ctx)); err != nil {
		return err
	}
	c.cron.Start()
	defer c.cron.Stop()

	for !c.stopping() {
		running, err := c.db.ListRunningJobIDs(ctx)
		if err != nil {
			c.log.Error("list running jobs failed", "error", err)
			time.Sleep(c.opts.LoopDelay)
			continue
		}
		if len(running) == 0 {
			return nil
		}

		for _, jobID := range running {
			if c.stopping() {
				return nil
			}
			if err := c.processJob(ctx, jobID); err != nil {
				c.log.Error("process batch failed", "job_id", jobID, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.LoopDelay):
		}
	}
	return nil
}

func (c *Coordinator) processJob(ctx context.Context, jobID string) error {
	job, err := c.db.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	res, err := c.ex.ProcessBatch(ctx, jobID, job.BatchSize, job.Concurrency)
	if err != nil {
		return err
	}
	if res.Processed == 0 {
		queued, processing, err := c.db.CountQueuedOrProcessing(ctx, jobID)
		if err != nil {
			return err
		}
		if queued == 0 && processing == 0 {
			_, err := c.lc.MarkDone(ctx, jobID)
			return err
		}
	}
	return nil
}

// sweepStuckClaims returns a cron.FuncJob implementing spec §4.3's periodic
// stuck-claim recovery, grounded on ryanshabaneh-atlas-queue's
// reapOrphanedJobs sweep.
func (c *Coordinator) sweepStuckClaims(ctx context.Context) func() {
	return func() {
		n, err := c.db.ReapStuckClaims(ctx, c.opts.ReclaimAfter)
		if err != nil {
			c.log.Error("reap stuck claims failed", "error", err)
			return
		}
		if n > 0 {
			c.log.Info("reclaimed stuck claims", "count", n)
		}
	}
}
