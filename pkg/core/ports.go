package core

import (
	"context"
	"iter"
	"time"
)

// RecordStore is the abstract capability the core consumes for streamed
// reads of data sources and transactional writes of results, job state,
// and adjudication cases. The core never owns storage layout; every
// adapter (pgstore, or a caller's own) implements this contract.
type RecordStore interface {
	// Stream returns a finite, non-restartable sequence of Records for a
	// DataSource, produced in the store's own stable order.
	Stream(ctx context.Context, dataSourceID string) (iter.Seq2[Record, error], error)

	// GetDataSource resolves a DataSource by ID.
	GetDataSource(ctx context.Context, dataSourceID string) (DataSource, error)

	// WriteResults persists a batch of MatchingResults. Idempotent on
	// (job_id, record_b_id).
	WriteResults(ctx context.Context, jobID string, batch []MatchingResult) error

	// PersistJobState atomically writes status, counters, and timestamps
	// for a job.
	PersistJobState(ctx context.Context, job ReconciliationJob) error

	// GetJob resolves a job by ID.
	GetJob(ctx context.Context, jobID string) (ReconciliationJob, error)

	// ListJobs lists jobs for a project, optionally filtered by status.
	ListJobs(ctx context.Context, projectID string, status *JobStatus) ([]ReconciliationJob, error)

	// DeleteJob removes a job and cascades to its results.
	DeleteJob(ctx context.Context, jobID string) error

	// PersistCase creates or idempotently re-returns an existing case for
	// the same ResultRef.
	PersistCase(ctx context.Context, c AdjudicationCase) (AdjudicationCase, error)

	// UpdateCase persists a mutated case (assignment, resolution).
	UpdateCase(ctx context.Context, c AdjudicationCase) error

	// GetCase resolves a case by ID.
	GetCase(ctx context.Context, caseID string) (AdjudicationCase, error)

	// ListCases lists cases matching a filter, paginated.
	ListCases(ctx context.Context, filter CaseFilter, pageNumber, pageSize int) ([]AdjudicationCase, int, error)

	// PersistDecision stores a decision keyed by its ID: a new ID appends
	// a decision to its case; an existing ID is updated in place (Appeal
	// uses this to mark the current decision appealed).
	PersistDecision(ctx context.Context, d AdjudicationDecision) error

	// ListDecisions lists decisions for a case, most recent first.
	ListDecisions(ctx context.Context, caseID string) ([]AdjudicationDecision, error)
}

// MetricSink is an optional capability for counters and histograms keyed
// by dependency class, job state, and circuit state. A nil MetricSink (or
// the NoopMetricSink) must be tolerated everywhere.
type MetricSink interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// BroadcastSink is an optional capability the core publishes progress and
// lifecycle events to. Absence is tolerated.
type BroadcastSink interface {
	Publish(ctx context.Context, channel string, event any) error
}

// Cache is an optional capability. Absence (a nil Cache, or one that
// always errors) must never fail a job; callers degrade gracefully.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Clock is an injectable time source: Now for wall-clock timestamps,
// Monotonic for deadline arithmetic immune to wall-clock adjustment.
type Clock interface {
	Now() time.Time
	Monotonic() time.Duration
}
