// Package jobprocessor implements the Job Processor: a bounded-concurrency
// runner that owns active reconciliation jobs, drives the Matching Engine
// over a Record Store guarded by the Resilience Manager, and checkpoints
// progress through the Job State Machine.
package jobprocessor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/adjudication"
	"github.com/Ramsey-B/reconcile/pkg/blocking"
	"github.com/Ramsey-B/reconcile/pkg/core"
	"github.com/Ramsey-B/reconcile/pkg/jobstate"
	"github.com/Ramsey-B/reconcile/pkg/matching"
	"github.com/Ramsey-B/reconcile/pkg/resilience"
)

// ErrQueueFull is returned by Submit when the in-memory FIFO backing the
// concurrency budget is itself at capacity.
var ErrQueueFull = errors.New("jobprocessor: queue full")

// errCancelled is the sentinel onBatch returns to unwind matching.Engine.Run
// cleanly when a handle's cancellation flag has been set.
var errCancelled = errors.New("jobprocessor: job cancelled")

// Config tunes the processor's concurrency budget and checkpoint cadence.
type Config struct {
	// Concurrency (C) is the number of jobs that may run at once. Default
	// ties to GOMAXPROCS/NumCPU per §4.6.
	Concurrency int

	// QueueCapacity bounds the in-memory FIFO of jobs waiting for a slot.
	QueueCapacity int

	// CheckpointInterval is the number of source-B records processed (P)
	// between progress checkpoints and, if attached, broadcast events.
	CheckpointInterval int

	// JobDeadline (D) is the maximum time a running job may go without a
	// progress update before the stuck-job sweep times it out.
	JobDeadline time.Duration

	// StuckSweepInterval is how often the background sweep examines
	// running jobs for staleness.
	StuckSweepInterval time.Duration

	// BatchSize is the matching engine's batch size for source B.
	BatchSize int
}

// DefaultConfig returns the §4.6 defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        runtime.NumCPU(),
		QueueCapacity:      256,
		CheckpointInterval: 500,
		JobDeadline:        time.Hour,
		StuckSweepInterval: 30 * time.Second,
		BatchSize:          100,
	}
}

// jobHandle is the mutable, lock-guarded state the processor tracks for one
// in-flight job: its cancellation flag and the timestamp of its last
// progress update, consulted by the stuck-job sweep.
type jobHandle struct {
	mu             sync.Mutex
	job            core.ReconciliationJob
	cancelled      bool
	lastProgressAt time.Time
}

func (h *jobHandle) cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
}

func (h *jobHandle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (h *jobHandle) touch(now time.Time) {
	h.mu.Lock()
	h.lastProgressAt = now
	h.mu.Unlock()
}

func (h *jobHandle) snapshot() (core.ReconciliationJob, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job, h.lastProgressAt
}

// Processor runs reconciliation jobs within a fixed concurrency budget,
// queuing the rest in an in-memory FIFO until a slot frees — §4.6's
// backpressure model.
type Processor struct {
	cfg        Config
	store      core.RecordStore
	resilience *resilience.Manager
	engine     *matching.Engine
	machine    *jobstate.Machine
	broadcast  core.BroadcastSink
	metrics    core.MetricSink
	clock      core.Clock
	logger     ectologger.Logger

	queue    chan core.ReconciliationJob
	stopCh   chan struct{}
	stoppedC chan struct{}

	mu      sync.RWMutex
	handles map[string]*jobHandle
	running bool

	cache        core.Cache
	adjudication *adjudication.Service
}

// New constructs a Processor. broadcast and metrics may be nil.
func New(
	cfg Config,
	store core.RecordStore,
	resilienceMgr *resilience.Manager,
	engine *matching.Engine,
	machine *jobstate.Machine,
	broadcast core.BroadcastSink,
	metrics core.MetricSink,
	clock core.Clock,
	logger ectologger.Logger,
) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 500
	}
	if cfg.JobDeadline <= 0 {
		cfg.JobDeadline = time.Hour
	}
	if cfg.StuckSweepInterval <= 0 {
		cfg.StuckSweepInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if metrics == nil {
		metrics = core.NoopMetricSink{}
	}
	return &Processor{
		cfg:        cfg,
		store:      store,
		resilience: resilienceMgr,
		engine:     engine,
		machine:    machine,
		broadcast:  broadcast,
		metrics:    metrics,
		clock:      clock,
		logger:     logger,
		queue:      make(chan core.ReconciliationJob, cfg.QueueCapacity),
		stopCh:     make(chan struct{}),
		stoppedC:   make(chan struct{}),
		handles:    make(map[string]*jobHandle),
	}
}

// WithCache attaches an optional Cache that keeps a copy of each DataSource
// descriptor the Record Store returns, served only when a later store
// lookup fails. A nil cache (the default) disables this; every lookup goes
// straight to the store.
func (p *Processor) WithCache(cache core.Cache) *Processor {
	p.cache = cache
	return p
}

// WithAdjudication attaches the Adjudication Service used to open a case
// for every needs_adjudication result a batch produces, per §4.9. A nil
// service (the default) disables this: results still classify as
// needs_adjudication, but no case is opened for them.
func (p *Processor) WithAdjudication(svc *adjudication.Service) *Processor {
	p.adjudication = svc
	return p
}

// Start spawns the worker pool and the stuck-job sweep. It returns once the
// goroutines are launched; it does not block.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("jobprocessor: already running")
	}
	p.running = true
	p.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "jobprocessor.Processor.Start")
	defer span.End()

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"concurrency": p.cfg.Concurrency,
	}).Info("starting job processor")

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, i)
	}

	wg.Add(1)
	go p.sweepLoop(ctx, &wg)

	go func() {
		<-p.stopCh
		close(p.queue)
		wg.Wait()
		close(p.stoppedC)
	}()

	return nil
}

// Stop signals every worker and the sweep to exit, and waits for them to
// drain: the queue is closed, and workers keep running jobs until every
// job already queued has run.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.stoppedC:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues a pending job for execution. It does not itself move the
// job to running — that happens when a worker dequeues it. Submit rejects a
// job that is not pending or fails validation, and otherwise fails only
// when the FIFO itself is full or the caller's context is cancelled first,
// never because the concurrency budget is currently exhausted.
func (p *Processor) Submit(ctx context.Context, job core.ReconciliationJob) error {
	if job.Status != core.JobStatusPending {
		return fmt.Errorf("%w: job %s is not pending", core.ErrInvalidInput, job.ID)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("jobprocessor: submit %s: %w", job.ID, err)
	}
	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, job.ID)
	}
}

// Cancel sets the cancellation flag on job's handle. The matching loop
// observes it between batches, per §4.6/§5's one-batch cancel-latency bound.
func (p *Processor) Cancel(ctx context.Context, jobID string) error {
	p.mu.RLock()
	h, ok := p.handles[jobID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: job %s has no active handle", core.ErrNotFound, jobID)
	}
	h.cancel()
	p.logger.WithContext(ctx).WithFields(map[string]any{"job_id": jobID}).Info("cancellation requested")
	return nil
}

// Progress returns the ephemeral JobProgress for an active job, and false
// if the job has no active handle (not running, or already terminal).
func (p *Processor) Progress(jobID string) (core.JobProgress, bool) {
	p.mu.RLock()
	h, ok := p.handles[jobID]
	p.mu.RUnlock()
	if !ok {
		return core.JobProgress{}, false
	}
	job, lastProgress := h.snapshot()
	return core.JobProgress{
		JobID:               job.ID,
		Phase:               string(job.Status),
		Processed:           job.Counters.Processed,
		Matched:             job.Counters.Matched,
		Unmatched:           job.Counters.Unmatched,
		StartedAt:           derefOrZero(job.StartedAt),
		EstimatedCompletion: estimateFor(job, lastProgress),
	}, true
}

func derefOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func estimateFor(job core.ReconciliationJob, now time.Time) *time.Time {
	if job.StartedAt == nil {
		return nil
	}
	return jobstate.EstimateCompletion(*job.StartedAt, now, job.Counters.Processed, job.Counters.Total)
}

func (p *Processor) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()
	p.logger.WithContext(ctx).WithFields(map[string]any{"worker": id}).Debug("job processor worker started")

	for job := range p.queue {
		p.runJob(ctx, job)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{"worker": id}).Debug("job processor worker stopped")
}

// runJob executes one job end-to-end: transition to running, stream and
// index source A, classify source B in batches, checkpoint, and transition
// to a terminal state.
func (p *Processor) runJob(ctx context.Context, job core.ReconciliationJob) {
	ctx, span := tracing.StartSpan(ctx, "jobprocessor.Processor.runJob")
	defer span.End()

	job, err := p.machine.Transition(ctx, job, core.JobStatusRunning)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("failed to start job")
		return
	}

	now := p.clock.Now()
	handle := &jobHandle{job: job, lastProgressAt: now}
	p.mu.Lock()
	p.handles[job.ID] = handle
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.handles, job.ID)
		p.mu.Unlock()
	}()

	p.logger.WithContext(ctx).WithFields(map[string]any{"job_id": job.ID}).Info("job started")

	if _, err := p.resolveDataSource(ctx, job.SourceAID); err != nil {
		p.fail(ctx, handle, fmt.Errorf("jobprocessor: source A not resolvable: %w", err))
		return
	}
	if _, err := p.resolveDataSource(ctx, job.SourceBID); err != nil {
		p.fail(ctx, handle, fmt.Errorf("jobprocessor: source B not resolvable: %w", err))
		return
	}

	idx, runErr := p.buildIndex(ctx, job)
	if runErr != nil {
		p.fail(ctx, handle, runErr)
		return
	}

	sourceB, openErr := p.store.Stream(ctx, job.SourceBID)
	if openErr != nil {
		p.fail(ctx, handle, fmt.Errorf("jobprocessor: opening source B: %w", openErr))
		return
	}

	recordsSinceCheckpoint := 0
	onBatch := func(ctx context.Context, batch []core.MatchingResult) error {
		if handle.isCancelled() {
			return errCancelled
		}

		if _, writeErr := resilience.ExecuteDatabase(ctx, p.resilience, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.store.WriteResults(ctx, job.ID, batch)
		}); writeErr != nil {
			return fmt.Errorf("jobprocessor: writing results: %w", writeErr)
		}

		p.openAdjudicationCases(ctx, job, batch)

		matched, unmatched := 0, 0
		for _, r := range batch {
			switch r.Classification {
			case core.ClassificationMatched:
				matched++
			case core.ClassificationNeedsAdjudication:
				unmatched++ // counted as processed-not-matched until a human resolves it
			default:
				unmatched++
			}
		}
		job = jobstate.ApplyProgress(job, len(batch), matched, unmatched)
		handle.mu.Lock()
		handle.job = job
		handle.mu.Unlock()

		now := p.clock.Now()
		handle.touch(now)
		recordsSinceCheckpoint += len(batch)

		if recordsSinceCheckpoint >= p.cfg.CheckpointInterval {
			if err := p.machine.Checkpoint(ctx, job); err != nil {
				return fmt.Errorf("jobprocessor: checkpointing: %w", err)
			}
			recordsSinceCheckpoint = 0
			p.publishProgress(ctx, job)
		}

		p.metrics.SetGauge("job_processed_total", float64(job.Counters.Processed), map[string]string{"job_id": job.ID})
		return nil
	}

	runErr = p.engine.RunForProject(ctx, job.ProjectID, idx, job.Spec, job.Threshold, sourceB, p.cfg.BatchSize, onBatch)

	if err := p.machine.Checkpoint(ctx, job); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Warn("final checkpoint failed")
	}
	p.publishProgress(ctx, job)

	switch {
	case runErr == nil:
		p.complete(ctx, handle, job)
	case errors.Is(runErr, errCancelled):
		p.cancelTerminal(ctx, handle, job)
	default:
		job.FailureReason = runErr.Error()
		handle.mu.Lock()
		handle.job = job
		handle.mu.Unlock()
		p.fail(ctx, handle, runErr)
	}
}

// resolveDataSource validates a DataSource exists before a job streams
// it. The Record Store is always asked first; a descriptor it returns is
// written through to the cache (via the Resilience Manager's cache
// breaker), and a cached descriptor is served only when the store call
// fails. The store's error is returned when there is no cache or no
// cached copy; a cache failure on its own never fails the job, per §4.8's
// graceful-degradation model.
func (p *Processor) resolveDataSource(ctx context.Context, dataSourceID string) (core.DataSource, error) {
	if p.cache == nil {
		return resilience.ExecuteDatabase(ctx, p.resilience, func(ctx context.Context) (core.DataSource, error) {
			return p.store.GetDataSource(ctx, dataSourceID)
		})
	}

	key := "reconcile:datasource:" + dataSourceID

	return resilience.WithCached(
		ctx,
		p.logger,
		func(ctx context.Context) (core.DataSource, error) {
			return resilience.ExecuteDatabase(ctx, p.resilience, func(ctx context.Context) (core.DataSource, error) {
				return p.store.GetDataSource(ctx, dataSourceID)
			})
		},
		func(ctx context.Context) (core.DataSource, bool) {
			var found bool
			raw, err := resilience.ExecuteCache(ctx, p.resilience, func(ctx context.Context) ([]byte, error) {
				val, ok, getErr := p.cache.Get(ctx, key)
				found = ok
				return val, getErr
			})
			if err != nil || !found {
				return core.DataSource{}, false
			}
			var ds core.DataSource
			if err := json.Unmarshal(raw, &ds); err != nil {
				return core.DataSource{}, false
			}
			return ds, true
		},
		func(ctx context.Context, ds core.DataSource) {
			raw, err := json.Marshal(ds)
			if err != nil {
				return
			}
			_, _ = resilience.ExecuteCache(ctx, p.resilience, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, p.cache.Set(ctx, key, raw, 15*time.Minute)
			})
		},
	)
}

func (p *Processor) buildIndex(ctx context.Context, job core.ReconciliationJob) (*blocking.Index, error) {
	sourceA, err := p.store.Stream(ctx, job.SourceAID)
	if err != nil {
		return nil, fmt.Errorf("jobprocessor: opening source A: %w", err)
	}
	idx, err := blocking.Build(ctx, sourceA, job.Spec.BlockingKeys)
	if err != nil {
		return nil, fmt.Errorf("jobprocessor: building blocking index: %w", err)
	}
	return idx, nil
}

// openAdjudicationCases opens an AdjudicationCase for every
// needs_adjudication result in batch, per §4.9 ("each needs_adjudication
// result ... creates an AdjudicationCase in state open"). OpenCase is
// idempotent per ResultRef, so re-running this on a re-delivered or
// re-checkpointed batch is safe. A nil adjudication service (the default)
// disables this without failing the batch.
func (p *Processor) openAdjudicationCases(ctx context.Context, job core.ReconciliationJob, batch []core.MatchingResult) {
	if p.adjudication == nil {
		return
	}
	for _, r := range batch {
		if r.Classification != core.ClassificationNeedsAdjudication {
			continue
		}
		ref := core.ResultRef{JobID: job.ID, RecordBID: r.RecordBID}
		if _, err := p.adjudication.OpenCase(ctx, job.ProjectID, job.ID, ref); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"job_id":      job.ID,
				"record_b_id": r.RecordBID,
			}).Warn("failed to open adjudication case")
		}
	}
}

func (p *Processor) publishProgress(ctx context.Context, job core.ReconciliationJob) {
	if p.broadcast == nil {
		return
	}
	progress := core.JobProgress{
		JobID:     job.ID,
		Phase:     string(job.Status),
		Processed: job.Counters.Processed,
		Matched:   job.Counters.Matched,
		Unmatched: job.Counters.Unmatched,
		StartedAt: derefOrZero(job.StartedAt),
	}
	if err := p.broadcast.Publish(ctx, "jobs.progress."+job.ID, progress); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Warn("failed to publish progress event")
	}
}

func (p *Processor) complete(ctx context.Context, handle *jobHandle, job core.ReconciliationJob) {
	job, err := p.machine.Transition(ctx, job, core.JobStatusCompleted)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("failed to complete job")
		return
	}
	handle.mu.Lock()
	handle.job = job
	handle.mu.Unlock()
	p.logger.WithContext(ctx).WithFields(map[string]any{"job_id": job.ID}).Info("job completed")
}

func (p *Processor) cancelTerminal(ctx context.Context, handle *jobHandle, job core.ReconciliationJob) {
	job, err := p.machine.Transition(ctx, job, core.JobStatusCancelled)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("failed to mark job cancelled")
		return
	}
	handle.mu.Lock()
	handle.job = job
	handle.mu.Unlock()
	p.logger.WithContext(ctx).WithFields(map[string]any{"job_id": job.ID}).Info("job cancelled")
}

func (p *Processor) fail(ctx context.Context, handle *jobHandle, cause error) {
	handle.mu.Lock()
	job := handle.job
	job.FailureReason = cause.Error()
	handle.job = job
	handle.mu.Unlock()

	job, err := p.machine.Transition(ctx, job, core.JobStatusFailed)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("failed to mark job failed")
		return
	}
	p.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{"job_id": job.ID}).Warn("job failed")
}

// sweepLoop periodically times out jobs whose handle has not progressed in
// JobDeadline, grounded on the ticker-driven background scan pattern.
func (p *Processor) sweepLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(p.cfg.StuckSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sweepStuckJobs(ctx)
		}
	}
}

func (p *Processor) sweepStuckJobs(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "jobprocessor.Processor.sweepStuckJobs")
	defer span.End()

	now := p.clock.Now()

	p.mu.RLock()
	var stuck []*jobHandle
	for _, h := range p.handles {
		_, lastProgress := h.snapshot()
		if now.Sub(lastProgress) >= p.cfg.JobDeadline {
			stuck = append(stuck, h)
		}
	}
	p.mu.RUnlock()

	for _, h := range stuck {
		job, _ := h.snapshot()
		p.logger.WithContext(ctx).WithFields(map[string]any{"job_id": job.ID}).Warn("job exceeded deadline, timing out")
		job, err := p.machine.Transition(ctx, job, core.JobStatusTimedOut)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("failed to time out stuck job")
			continue
		}
		h.mu.Lock()
		h.job = job
		h.mu.Unlock()
	}
}
