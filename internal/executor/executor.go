// Package executor implements the Batch Executor (spec §4.5): given one
// claimed batch, fan out to the Search Client bounded by the job's
// concurrency, persist places before queries (the crash-safety substitute
// for cross-table atomicity, spec §9), apply the early-exit optimization,
// and recompute the job rollup.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Brite-Nites/serper-tap/internal/domain"
	"github.com/Brite-Nites/serper-tap/internal/search"
	"github.com/Brite-Nites/serper-tap/internal/store"
)

// Result is the outcome of one ProcessBatch call (spec §4.5 contract).
type Result struct {
	Processed int
	Places    int
	Credits   int64
}

// Options configures the fan-out and chunking knobs the spec exposes via
// environment (§6).
type Options struct {
	EarlyExitThreshold int
	MergeChunkSize     int

	// AIMD tuning knobs; zero values fall back to teacher-derived defaults.
	SLOMult      float64
	Max429Rate   float64
	TunerEvery   time.Duration
	MinWindow    int
}

// Executor runs ProcessBatch against a Store and a search.Client.
type Executor struct {
	db   store.Store
	cl   search.Client
	opts Options
	log  *slog.Logger
}

func New(db store.Store, cl search.Client, opts Options, log *slog.Logger) *Executor {
	if opts.EarlyExitThreshold <= 0 {
		opts.EarlyExitThreshold = 10
	}
	if opts.MergeChunkSize <= 0 {
		opts.MergeChunkSize = 500
	}
	if opts.SLOMult <= 0 {
		opts.SLOMult = 2.0
	}
	if opts.Max429Rate <= 0 {
		opts.Max429Rate = 0.01
	}
	if opts.TunerEvery <= 0 {
		opts.TunerEvery = 2 * time.Second
	}
	if opts.MinWindow <= 0 {
		opts.MinWindow = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{db: db, cl: cl, opts: opts, log: log}
}

type queryOutcome struct {
	q         domain.Query
	places    []search.Place
	update    store.QueryResultUpdate
	apiMs     int64
	earlyExit bool
}

// ProcessBatch implements spec §4.5 steps 1-7.
func (e *Executor) ProcessBatch(ctx context.Context, jobID string, batchSize, concurrency int) (Result, error) {
	claimID, batch, err := e.db.ClaimQueries(ctx, jobID, batchSize)
	if err != nil {
		return Result{}, err
	}
	if len(batch) == 0 {
		return Result{}, nil
	}

	job, err := e.db.GetJob(ctx, jobID)
	if err != nil {
		return Result{}, err
	}

	gate := NewConcurrencyGate(concurrency)
	metrics := newLatencyMetrics(256)
	tuner := NewAutoTuner(gate, metrics, e.opts.MinWindow, concurrency, e.opts.SLOMult, e.opts.Max429Rate, e.opts.TunerEvery)

	outcomes := make([]queryOutcome, len(batch))
	var wg sync.WaitGroup
	for i, q := range batch {
		if !gate.Acquire(ctx) {
			break
		}
		wg.Add(1)
		go func(i int, q domain.Query) {
			defer wg.Done()
			defer gate.Release()
			outcomes[i] = e.runOne(ctx, q, metrics)
			tuner.Recalc()
		}(i, q)
	}
	wg.Wait()

	var allPlaces []domain.Place
	updates := make([]store.QueryResultUpdate, 0, len(outcomes))
	type earlyExitKey struct {
		zip          string
		resultsCount int
	}
	var earlyExits []earlyExitKey

	now := time.Now()
	for _, o := range outcomes {
		for _, p := range o.places {
			allPlaces = append(allPlaces, toDomainPlace(jobID, claimID, job, o, p, now))
		}
		updates = append(updates, o.update)
		if o.earlyExit {
			earlyExits = append(earlyExits, earlyExitKey{zip: o.q.Zip, resultsCount: o.update.ResultsCount})
		}
	}

	// Step 4: places before queries, chunked at MergeChunkSize. A failure
	// here aborts the batch before any query is marked success (spec §4.5
	// "Failure isolation" / §7 BatchAbort): claimed rows remain processing
	// and are recovered later by the stuck-claim reaper.
	var placesWritten int
	for start := 0; start < len(allPlaces); start += e.opts.MergeChunkSize {
		end := min(start+e.opts.MergeChunkSize, len(allPlaces))
		n, err := e.db.UpsertPlaces(ctx, allPlaces[start:end])
		if err != nil {
			e.log.Error("batch abort during places upsert", "job_id", jobID, "claim_id", claimID, "error", err)
			return Result{}, err
		}
		placesWritten += n
	}

	// Step 5: mark query outcomes, chunked.
	var marked int
	for start := 0; start < len(updates); start += e.opts.MergeChunkSize {
		end := min(start+e.opts.MergeChunkSize, len(updates))
		n, err := e.db.MarkQueryResults(ctx, jobID, claimID, updates[start:end])
		if err != nil {
			e.log.Error("mark_query_results failed", "job_id", jobID, "claim_id", claimID, "error", err)
			return Result{}, err
		}
		marked += n
	}

	// Step 6: early-exit updates over pages 2..job.Pages.
	for _, ee := range earlyExits {
		if _, err := e.db.SkipRemainingPages(ctx, jobID, ee.zip, 1, ee.resultsCount, job.Pages, e.opts.EarlyExitThreshold); err != nil {
			e.log.Warn("skip_remaining_pages failed", "job_id", jobID, "zip", ee.zip, "error", err)
		}
	}

	// Step 7: rollup.
	totals, err := e.db.UpdateTotals(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	e.log.Debug("batch processed", "job_id", jobID, "claim_id", claimID,
		"queries", totals.Queries, "successes", totals.Successes, "failures", totals.Failures)

	var credits int64
	for _, u := range updates {
		credits += u.Credits
	}
	return Result{Processed: marked, Places: placesWritten, Credits: credits}, nil
}

func (e *Executor) runOne(ctx context.Context, q domain.Query, metrics *latencyMetrics) queryOutcome {
	res, err := e.cl.Search(ctx, q.Q, q.Page)
	ranAt := time.Now()
	metrics.record(res.APIStatus, float64(res.ElapsedMs))

	if err != nil {
		return queryOutcome{
			q: q,
			update: store.QueryResultUpdate{
				Zip: q.Zip, Page: q.Page, Status: domain.QueryFailed,
				APIStatus: res.APIStatus, ResultsCount: 0, Credits: res.Credits,
				Error: err.Error(), RanAt: ranAt,
			},
			apiMs: res.ElapsedMs,
		}
	}

	return queryOutcome{
		q:      q,
		places: res.Places,
		update: store.QueryResultUpdate{
			Zip: q.Zip, Page: q.Page, Status: domain.QuerySuccess,
			APIStatus: res.APIStatus, ResultsCount: len(res.Places), Credits: res.Credits,
			Error: "", RanAt: ranAt,
		},
		apiMs:     res.ElapsedMs,
		earlyExit: q.Page == 1 && len(res.Places) < e.opts.EarlyExitThreshold,
	}
}

// toDomainPlace builds the place row for a search result, always keeping
// the raw text (spec §3 "payload_raw, always present") and setting the
// structured payload only when it looks like parseable JSON (spec §7
// PayloadParseFailure: payload = NULL, payload_raw preserved byte-identical).
// The contextual columns (spec §3) are denormalized from the owning job and
// query row rather than requiring a join at read time; ingest_id ties every
// place in a batch back to the claim that produced it.
func toDomainPlace(jobID, claimID string, job *domain.Job, o queryOutcome, p search.Place, now time.Time) domain.Place {
	var payload []byte
	if looksLikeJSON(p.PayloadRaw) {
		payload = []byte(p.PayloadRaw)
	}
	return domain.Place{
		JobID: jobID, PlaceUID: p.PlaceUID,
		Payload: payload, PayloadRaw: p.PayloadRaw,
		Keyword: job.Keyword, State: job.State, Zip: o.q.Zip, Page: o.q.Page,
		APIStatus: o.update.APIStatus, APIMs: o.apiMs, ResultsCount: o.update.ResultsCount, Credits: o.update.Credits,
		IngestTS: now, Source: "serper", SourceVersion: "v1", IngestID: claimID,
	}
}

func looksLikeJSON(s string) bool {
	for _, c := range s {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
