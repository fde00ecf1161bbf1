package integration

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/reconcile/pkg/core"
	"github.com/Ramsey-B/reconcile/pkg/jobprocessor"
	"github.com/Ramsey-B/reconcile/pkg/jobstate"
	"github.com/Ramsey-B/reconcile/pkg/matching"
	"github.com/Ramsey-B/reconcile/pkg/resilience"
)

type lifecycleClock struct{ now time.Time }

func (c *lifecycleClock) Now() time.Time           { return c.now }
func (c *lifecycleClock) Monotonic() time.Duration { return time.Since(c.now) }

// cancellationStore is a core.RecordStore that streams a large source B
// in order with a short delay on every record, so the test can observe
// progress and request cancellation mid-run, per scenario 5 of
// spec.md §8.
type cancellationStore struct {
	sourceA []core.Record
	sourceB []core.Record

	mu        sync.Mutex
	persisted []core.ReconciliationJob
	written   int
}

func (s *cancellationStore) Stream(ctx context.Context, dataSourceID string) (iter.Seq2[core.Record, error], error) {
	var recs []core.Record
	switch dataSourceID {
	case "src-a":
		recs = s.sourceA
	case "src-b":
		recs = s.sourceB
	}
	return func(yield func(core.Record, error) bool) {
		for _, r := range recs {
			if dataSourceID == "src-b" {
				// A small per-record delay keeps the 1,000-record run on
				// the wire long enough for the test to observe partial
				// progress and issue a cancellation mid-flight.
				time.Sleep(time.Millisecond)
			}
			if !yield(r, nil) {
				return
			}
		}
	}, nil
}

func (s *cancellationStore) GetDataSource(ctx context.Context, id string) (core.DataSource, error) {
	return core.DataSource{ID: id}, nil
}

func (s *cancellationStore) WriteResults(ctx context.Context, jobID string, batch []core.MatchingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written += len(batch)
	return nil
}

func (s *cancellationStore) PersistJobState(ctx context.Context, job core.ReconciliationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted = append(s.persisted, job)
	return nil
}

func (s *cancellationStore) lastPersisted() (core.ReconciliationJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.persisted) == 0 {
		return core.ReconciliationJob{}, false
	}
	return s.persisted[len(s.persisted)-1], true
}

func (s *cancellationStore) GetJob(ctx context.Context, id string) (core.ReconciliationJob, error) {
	return core.ReconciliationJob{}, core.ErrNotFound
}
func (s *cancellationStore) ListJobs(ctx context.Context, projectID string, status *core.JobStatus) ([]core.ReconciliationJob, error) {
	return nil, nil
}
func (s *cancellationStore) DeleteJob(ctx context.Context, id string) error { return nil }
func (s *cancellationStore) PersistCase(ctx context.Context, c core.AdjudicationCase) (core.AdjudicationCase, error) {
	return c, nil
}
func (s *cancellationStore) UpdateCase(ctx context.Context, c core.AdjudicationCase) error { return nil }
func (s *cancellationStore) GetCase(ctx context.Context, id string) (core.AdjudicationCase, error) {
	return core.AdjudicationCase{}, core.ErrNotFound
}
func (s *cancellationStore) ListCases(ctx context.Context, filter core.CaseFilter, pageNumber, pageSize int) ([]core.AdjudicationCase, int, error) {
	return nil, 0, nil
}
func (s *cancellationStore) PersistDecision(ctx context.Context, d core.AdjudicationDecision) error {
	return nil
}
func (s *cancellationStore) ListDecisions(ctx context.Context, id string) ([]core.AdjudicationDecision, error) {
	return nil, nil
}

// Scenario 5: cancellation of a 1,000-record job after partial progress,
// spec.md §8.
func TestScenario_CancellationDuringRun(t *testing.T) {
	const total = 1000

	sourceA := make([]core.Record, 1)
	sourceA[0] = recordOf("a1", map[string]string{"id": "match-all"})

	sourceB := make([]core.Record, total)
	for i := 0; i < total; i++ {
		sourceB[i] = recordOf(paddedID(i), map[string]string{"id": "match-all"})
	}

	store := &cancellationStore{sourceA: sourceA, sourceB: sourceB}
	clock := &lifecycleClock{now: time.Now()}
	logger := testLogger()
	manager := resilience.NewManager(resilience.DefaultConfig(), clock, logger, nil)
	engine := matching.NewEngine(logger, matching.DefaultConfig())
	machine := jobstate.New(store, clock, logger)

	proc := jobprocessor.New(jobprocessor.Config{
		Concurrency:        1,
		QueueCapacity:      1,
		CheckpointInterval: 10,
		JobDeadline:        time.Hour,
		StuckSweepInterval: time.Hour,
		BatchSize:          10,
	}, store, manager, engine, machine, nil, nil, clock, logger)

	ctx := context.Background()
	require.NoError(t, proc.Start(ctx))
	defer proc.Stop(ctx)

	spec := core.MatchingSpec{FieldRules: []core.FieldRule{{Field: "id", Function: core.SimilarityExact, Weight: 1.0}}}
	job := core.ReconciliationJob{
		ID:          "job-cancel",
		ProjectID:   "proj-1",
		OwnerUserID: "user-1",
		SourceAID:   "src-a",
		SourceBID:   "src-b",
		Spec:        spec,
		Threshold:   1.0,
		Status:      core.JobStatusPending,
	}
	require.NoError(t, proc.Submit(ctx, job))

	require.Eventually(t, func() bool {
		p, ok := proc.Progress("job-cancel")
		return ok && p.Processed >= 100
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, proc.Cancel(ctx, "job-cancel"))

	require.Eventually(t, func() bool {
		last, ok := store.lastPersisted()
		return ok && last.Status.Terminal()
	}, 5*time.Second, time.Millisecond)

	final, ok := store.lastPersisted()
	require.True(t, ok)
	assert.Equal(t, core.JobStatusCancelled, final.Status)
	assert.GreaterOrEqual(t, final.Counters.Processed, 100)
	assert.Less(t, final.Counters.Processed, total)
	assert.NotNil(t, final.CompletedAt)
	assert.LessOrEqual(t, final.Counters.Matched+final.Counters.Unmatched, final.Counters.Processed)
}

func paddedID(i int) string {
	const digits = "0123456789"
	b := make([]byte, 4)
	for pos := 3; pos >= 0; pos-- {
		b[pos] = digits[i%10]
		i /= 10
	}
	return string(b)
}
