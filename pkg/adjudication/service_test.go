package adjudication

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/reconcile/pkg/core"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time           { return c.now }
func (c *fakeClock) Monotonic() time.Duration { return time.Since(c.now) }

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

// fakeStore is a minimal in-memory core.RecordStore exercising only the
// case/decision surface the adjudication Service calls.
type fakeStore struct {
	cases      map[string]core.AdjudicationCase
	byRef      map[core.ResultRef]string
	decisions  map[string][]core.AdjudicationDecision
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cases:     make(map[string]core.AdjudicationCase),
		byRef:     make(map[core.ResultRef]string),
		decisions: make(map[string][]core.AdjudicationDecision),
	}
}

func (s *fakeStore) Stream(ctx context.Context, dataSourceID string) (iter.Seq2[core.Record, error], error) {
	return nil, nil
}
func (s *fakeStore) GetDataSource(ctx context.Context, dataSourceID string) (core.DataSource, error) {
	return core.DataSource{}, nil
}
func (s *fakeStore) WriteResults(ctx context.Context, jobID string, batch []core.MatchingResult) error {
	return nil
}
func (s *fakeStore) PersistJobState(ctx context.Context, job core.ReconciliationJob) error {
	return nil
}
func (s *fakeStore) GetJob(ctx context.Context, jobID string) (core.ReconciliationJob, error) {
	return core.ReconciliationJob{}, nil
}
func (s *fakeStore) ListJobs(ctx context.Context, projectID string, status *core.JobStatus) ([]core.ReconciliationJob, error) {
	return nil, nil
}
func (s *fakeStore) DeleteJob(ctx context.Context, jobID string) error { return nil }

func (s *fakeStore) PersistCase(ctx context.Context, c core.AdjudicationCase) (core.AdjudicationCase, error) {
	if existingID, ok := s.byRef[c.ResultRef]; ok {
		return s.cases[existingID], nil
	}
	s.cases[c.ID] = c
	s.byRef[c.ResultRef] = c.ID
	return c, nil
}

func (s *fakeStore) UpdateCase(ctx context.Context, c core.AdjudicationCase) error {
	s.cases[c.ID] = c
	return nil
}

func (s *fakeStore) GetCase(ctx context.Context, caseID string) (core.AdjudicationCase, error) {
	c, ok := s.cases[caseID]
	if !ok {
		return core.AdjudicationCase{}, core.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) ListCases(ctx context.Context, filter core.CaseFilter, pageNumber, pageSize int) ([]core.AdjudicationCase, int, error) {
	var out []core.AdjudicationCase
	for _, c := range s.cases {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (s *fakeStore) PersistDecision(ctx context.Context, d core.AdjudicationDecision) error {
	existing := s.decisions[d.CaseID]
	for i, e := range existing {
		if e.ID == d.ID {
			existing[i] = d
			s.decisions[d.CaseID] = existing
			return nil
		}
	}
	s.decisions[d.CaseID] = append([]core.AdjudicationDecision{d}, existing...)
	return nil
}

func (s *fakeStore) ListDecisions(ctx context.Context, caseID string) ([]core.AdjudicationDecision, error) {
	return s.decisions[caseID], nil
}

func TestService_OpenCaseIsIdempotentPerResultRef(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeClock{now: time.Now()}, noopLogger())
	ref := core.ResultRef{JobID: "job-1", RecordBID: "rec-b1"}

	first, err := svc.OpenCase(context.Background(), "proj-1", "job-1", ref)
	require.NoError(t, err)

	second, err := svc.OpenCase(context.Background(), "proj-1", "job-1", ref)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.cases, 1)
}

func TestService_AssignMovesOpenCaseToAssigned(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeClock{now: time.Now()}, noopLogger())
	c, err := svc.OpenCase(context.Background(), "proj-1", "job-1", core.ResultRef{JobID: "job-1", RecordBID: "b1"})
	require.NoError(t, err)

	assigned, err := svc.Assign(context.Background(), c.ID, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, core.CaseStatusAssigned, assigned.Status)
	require.NotNil(t, assigned.Assignee)
	assert.Equal(t, "reviewer-1", *assigned.Assignee)
}

func TestService_AssignRejectsNonOpenCase(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeClock{now: time.Now()}, noopLogger())
	c, err := svc.OpenCase(context.Background(), "proj-1", "job-1", core.ResultRef{JobID: "job-1", RecordBID: "b1"})
	require.NoError(t, err)
	_, err = svc.Assign(context.Background(), c.ID, "reviewer-1")
	require.NoError(t, err)

	_, err = svc.Assign(context.Background(), c.ID, "reviewer-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestService_ResolveRejectsUnknownDecisionKind(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeClock{now: time.Now()}, noopLogger())
	c, err := svc.OpenCase(context.Background(), "proj-1", "job-1", core.ResultRef{JobID: "job-1", RecordBID: "b1"})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), c.ID, core.DecisionKind("maybe"), "reviewer-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestService_ResolveTransitionsCaseToResolved(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeClock{now: time.Now()}, noopLogger())
	c, err := svc.OpenCase(context.Background(), "proj-1", "job-1", core.ResultRef{JobID: "job-1", RecordBID: "b1"})
	require.NoError(t, err)

	decision, err := svc.Resolve(context.Background(), c.ID, core.DecisionAccept, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, core.DecisionAccept, decision.Decision)

	resolved, err := store.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, core.CaseStatusResolved, resolved.Status)
}

func TestService_ResolveRejectsAlreadyResolvedCase(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeClock{now: time.Now()}, noopLogger())
	c, err := svc.OpenCase(context.Background(), "proj-1", "job-1", core.ResultRef{JobID: "job-1", RecordBID: "b1"})
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), c.ID, core.DecisionAccept, "reviewer-1")
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), c.ID, core.DecisionReject, "reviewer-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestService_AppealReopensResolvedCaseAndFlagsLatestDecision(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeClock{now: time.Now()}, noopLogger())
	c, err := svc.OpenCase(context.Background(), "proj-1", "job-1", core.ResultRef{JobID: "job-1", RecordBID: "b1"})
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), c.ID, core.DecisionAccept, "reviewer-1")
	require.NoError(t, err)

	reopened, err := svc.Appeal(context.Background(), c.ID, "evidence was wrong")
	require.NoError(t, err)
	assert.Equal(t, core.CaseStatusOpen, reopened.Status)
	assert.Nil(t, reopened.ResolvedBy)

	decisions, err := svc.Decisions(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Appealed)
}

func TestService_AppealRejectsNonResolvedCase(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeClock{now: time.Now()}, noopLogger())
	c, err := svc.OpenCase(context.Background(), "proj-1", "job-1", core.ResultRef{JobID: "job-1", RecordBID: "b1"})
	require.NoError(t, err)

	_, err = svc.Appeal(context.Background(), c.ID, "too early")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestService_CloseRequiresResolvedCase(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeClock{now: time.Now()}, noopLogger())
	c, err := svc.OpenCase(context.Background(), "proj-1", "job-1", core.ResultRef{JobID: "job-1", RecordBID: "b1"})
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), c.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = svc.Resolve(context.Background(), c.ID, core.DecisionAccept, "reviewer-1")
	require.NoError(t, err)

	closed, err := svc.Close(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, core.CaseStatusClosed, closed.Status)
}

func TestService_ListAppliesPaginationDefaults(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeClock{now: time.Now()}, noopLogger())
	_, err := svc.OpenCase(context.Background(), "proj-1", "job-1", core.ResultRef{JobID: "job-1", RecordBID: "b1"})
	require.NoError(t, err)

	page, err := svc.List(context.Background(), core.CaseFilter{}, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, page.PageNumber)
	assert.Equal(t, 50, page.PageSize)
	assert.Equal(t, 1, page.Total)
}
