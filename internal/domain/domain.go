// Package domain holds the core entities shared across every component:
// Job, Query, Place, and their status enums. No package here talks to a
// store or the network — it is pure data, the way
// ryanshabaneh-atlas-queue/internal/domain defines Job/Worker/ExecutionLog.
package domain

import "time"

// JobStatus is the lifecycle status of a Job.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
)

// QueryStatus is the lifecycle status of a single (zip, page) Query.
type QueryStatus string

const (
	QueryQueued     QueryStatus = "queued"
	QueryProcessing QueryStatus = "processing"
	QuerySuccess    QueryStatus = "success"
	QueryFailed     QueryStatus = "failed"
	QuerySkipped    QueryStatus = "skipped"
)

// Terminal reports whether s is a terminal QueryStatus (success, failed, or
// skipped). Terminal rows are never re-claimed.
func (s QueryStatus) Terminal() bool {
	switch s {
	case QuerySuccess, QueryFailed, QuerySkipped:
		return true
	default:
		return false
	}
}

// JobParams are the immutable parameters frozen at job creation.
type JobParams struct {
	JobID       string
	Keyword     string
	State       string
	Pages       int
	BatchSize   int
	Concurrency int
	DryRun      bool
}

// Job is the full identity + lifecycle + rollup record for a job.
type Job struct {
	JobID       string
	Keyword     string
	State       string
	Pages       int
	BatchSize   int
	Concurrency int
	DryRun      bool

	Status     JobStatus
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time

	Totals Totals
}

// Totals is the job rollup. Skipped is tracked as an explicit fourth bucket
// rather than folded into Successes/Failures (resolves the Open Question in
// spec §9/REDESIGN FLAGS).
type Totals struct {
	Zips      int
	Queries   int
	Successes int
	Failures  int
	Skipped   int
	Places    int
	Credits   int64
}

// Query is one (zip, page) unit of work.
type Query struct {
	JobID  string
	Zip    string
	Page   int
	Q      string

	Status       QueryStatus
	ClaimID      *string
	ClaimedAt    *time.Time
	RanAt        *time.Time
	APIStatus    int
	ResultsCount int
	Credits      int64
	Error        string
}

// Place is one distinct search result belonging to a job.
type Place struct {
	JobID         string
	PlaceUID      string
	Payload       []byte // nullable JSON; nil if parse failed
	PayloadRaw    string // always present
	Keyword       string
	State         string
	Zip           string
	Page          int
	APIStatus     int
	APIMs         int64
	ResultsCount  int
	Credits       int64
	IngestTS      time.Time
	Source        string
	SourceVersion string
	IngestID      string
}
