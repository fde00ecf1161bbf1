// Package jobstate implements the Job State Machine: the persistent
// lifecycle of a reconciliation job, its transition table, and the
// checkpointing of progress counters.
package jobstate

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/core"
)

// transitions enumerates the legal (from, to) pairs from §4.5's table.
// pending->running is the only non-terminal->non-terminal edge; every
// other destination is terminal.
var transitions = map[core.JobStatus]map[core.JobStatus]bool{
	core.JobStatusPending: {
		core.JobStatusRunning:   true,
		core.JobStatusCancelled: true,
	},
	core.JobStatusRunning: {
		core.JobStatusCompleted: true,
		core.JobStatusFailed:    true,
		core.JobStatusCancelled: true,
		core.JobStatusTimedOut:  true,
	},
}

// Machine drives a ReconciliationJob through its lifecycle and persists
// state via a RecordStore at every transition and at checkpoints.
type Machine struct {
	store  core.RecordStore
	clock  core.Clock
	logger ectologger.Logger
}

// New creates a Machine bound to a RecordStore for persistence.
func New(store core.RecordStore, clock core.Clock, logger ectologger.Logger) *Machine {
	return &Machine{store: store, clock: clock, logger: logger}
}

// Transition moves job from its current status to to, enforcing the
// transition table. A duplicate pending->running->running transition (a
// second Start on an already-running job) is a no-op returning the job
// unchanged, per §4.5's idempotence requirement; an attempted transition
// out of a terminal state is a conflict.
func (m *Machine) Transition(ctx context.Context, job core.ReconciliationJob, to core.JobStatus) (core.ReconciliationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "jobstate.Machine.Transition")
	defer span.End()

	if job.Status == to {
		return job, nil
	}

	if job.Status.Terminal() {
		return job, fmt.Errorf("%w: job %s is in terminal state %s", core.ErrConflict, job.ID, job.Status)
	}

	allowed := transitions[job.Status]
	if allowed == nil || !allowed[to] {
		return job, fmt.Errorf("%w: illegal transition %s -> %s for job %s", core.ErrConflict, job.Status, to, job.ID)
	}

	now := m.clock.Now()
	job.Status = to

	switch to {
	case core.JobStatusRunning:
		job.StartedAt = &now
	case core.JobStatusCompleted, core.JobStatusFailed, core.JobStatusCancelled, core.JobStatusTimedOut:
		job.CompletedAt = &now
	}

	if err := m.store.PersistJobState(ctx, job); err != nil {
		return job, fmt.Errorf("jobstate: persisting transition: %w", err)
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id": job.ID,
		"to":     to,
	}).Info("job state transition")

	return job, nil
}

// Checkpoint persists the job's current counters and status without
// necessarily changing status, used at the per_record_checkpoint_interval
// boundary described in §4.5.
func (m *Machine) Checkpoint(ctx context.Context, job core.ReconciliationJob) error {
	ctx, span := tracing.StartSpan(ctx, "jobstate.Machine.Checkpoint")
	defer span.End()

	if job.Counters.Processed > job.Counters.Total && job.Counters.Total > 0 {
		return fmt.Errorf("%w: processed %d exceeds total %d for job %s", core.ErrInvalidInput, job.Counters.Processed, job.Counters.Total, job.ID)
	}
	if job.Counters.Matched+job.Counters.Unmatched > job.Counters.Processed {
		return fmt.Errorf("%w: matched+unmatched exceeds processed for job %s", core.ErrInvalidInput, job.ID)
	}

	if err := m.store.PersistJobState(ctx, job); err != nil {
		return fmt.Errorf("jobstate: checkpointing: %w", err)
	}
	return nil
}

// ApplyProgress folds a batch's classification counts into job's
// counters, preserving monotonicity.
func ApplyProgress(job core.ReconciliationJob, processed, matched, unmatched int) core.ReconciliationJob {
	job.Counters.Processed += processed
	job.Counters.Matched += matched
	job.Counters.Unmatched += unmatched
	return job
}

// EstimateCompletion projects a finish time from elapsed time and
// progress so far; returns nil if progress is zero (no basis to project).
func EstimateCompletion(started time.Time, now time.Time, processed, total int) *time.Time {
	if processed <= 0 || total <= 0 || processed >= total {
		return nil
	}
	elapsed := now.Sub(started)
	perRecord := elapsed / time.Duration(processed)
	remaining := perRecord * time.Duration(total-processed)
	eta := now.Add(remaining)
	return &eta
}
