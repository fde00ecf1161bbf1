// Package adjudication implements the Adjudication Workflow: the human
// review loop over needs_adjudication matching results — case creation,
// assignment, decision, appeal, and filtered listing.
package adjudication

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/core"
)

// Service drives AdjudicationCase and AdjudicationDecision lifecycles
// against a RecordStore. It holds no state of its own; every operation is
// read-modify-write against the store.
type Service struct {
	store  core.RecordStore
	clock  core.Clock
	logger ectologger.Logger
}

// New creates an adjudication Service.
func New(store core.RecordStore, clock core.Clock, logger ectologger.Logger) *Service {
	return &Service{store: store, clock: clock, logger: logger}
}

// OpenCase creates an AdjudicationCase for a needs_adjudication result.
// Creation is idempotent per ResultRef: PersistCase re-returns the existing
// case on a second call for the same (job, record B) pair, matching the
// failure semantics in §4.9 ("duplicate case creation ... is idempotent").
func (s *Service) OpenCase(ctx context.Context, projectID, jobID string, ref core.ResultRef) (core.AdjudicationCase, error) {
	ctx, span := tracing.StartSpan(ctx, "adjudication.Service.OpenCase")
	defer span.End()

	c := core.AdjudicationCase{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		JobID:     jobID,
		ResultRef: ref,
		Status:    core.CaseStatusOpen,
		CreatedAt: s.clock.Now(),
	}

	persisted, err := s.store.PersistCase(ctx, c)
	if err != nil {
		return core.AdjudicationCase{}, fmt.Errorf("adjudication: opening case: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"case_id": persisted.ID,
		"job_id":  jobID,
	}).Info("adjudication case opened")

	return persisted, nil
}

// Assign records assignee against a case and moves it to assigned. Only an
// open case may be assigned.
func (s *Service) Assign(ctx context.Context, caseID, assignee string) (core.AdjudicationCase, error) {
	ctx, span := tracing.StartSpan(ctx, "adjudication.Service.Assign")
	defer span.End()

	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return core.AdjudicationCase{}, fmt.Errorf("adjudication: assign: %w", err)
	}
	if c.Status != core.CaseStatusOpen {
		return core.AdjudicationCase{}, fmt.Errorf("%w: case %s is %s, not open", core.ErrConflict, caseID, c.Status)
	}

	now := s.clock.Now()
	c.Status = core.CaseStatusAssigned
	c.Assignee = &assignee
	c.AssignedAt = &now

	if err := s.store.UpdateCase(ctx, c); err != nil {
		return core.AdjudicationCase{}, fmt.Errorf("adjudication: persisting assignment: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"case_id":  caseID,
		"assignee": assignee,
	}).Info("adjudication case assigned")

	return c, nil
}

// Resolve attaches a decision to a case and transitions it to resolved.
// Per §4.9, a decision may be recorded against an open or assigned case;
// a resolved or closed case requires an appeal to reopen first, else this
// returns a conflict.
func (s *Service) Resolve(ctx context.Context, caseID string, decision core.DecisionKind, decidedBy string) (core.AdjudicationDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "adjudication.Service.Resolve")
	defer span.End()

	if decision != core.DecisionAccept && decision != core.DecisionReject && decision != core.DecisionDefer {
		return core.AdjudicationDecision{}, fmt.Errorf("%w: unknown decision %q", core.ErrInvalidInput, decision)
	}

	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return core.AdjudicationDecision{}, fmt.Errorf("adjudication: resolve: %w", err)
	}
	if c.Status == core.CaseStatusResolved || c.Status == core.CaseStatusClosed {
		return core.AdjudicationDecision{}, fmt.Errorf("%w: case %s is %s, requires an appeal to reopen", core.ErrConflict, caseID, c.Status)
	}

	now := s.clock.Now()
	d := core.AdjudicationDecision{
		ID:        uuid.New().String(),
		CaseID:    caseID,
		Decision:  decision,
		DecidedBy: decidedBy,
		DecidedAt: now,
	}

	if err := s.store.PersistDecision(ctx, d); err != nil {
		return core.AdjudicationDecision{}, fmt.Errorf("adjudication: persisting decision: %w", err)
	}

	c.Status = core.CaseStatusResolved
	c.ResolvedBy = &decidedBy
	c.ResolvedAt = &now
	if err := s.store.UpdateCase(ctx, c); err != nil {
		return core.AdjudicationDecision{}, fmt.Errorf("adjudication: resolving case: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"case_id":  caseID,
		"decision": decision,
	}).Info("adjudication case resolved")

	return d, nil
}

// Appeal flips appealed on a resolved case's latest decision and reopens
// the case, per §4.9 ("an explicit action flips appealed on the latest
// decision and opens a new decision slot"). Only a resolved case may be
// appealed.
//
// ListDecisions returns most-recent-first, so the head of the list is the
// decision being appealed. PersistDecision is keyed by decision ID and
// upserts, so re-persisting the same ID with Appealed set mutates it in
// place rather than appending a duplicate row.
func (s *Service) Appeal(ctx context.Context, caseID, reason string) (core.AdjudicationCase, error) {
	ctx, span := tracing.StartSpan(ctx, "adjudication.Service.Appeal")
	defer span.End()

	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return core.AdjudicationCase{}, fmt.Errorf("adjudication: appeal: %w", err)
	}
	if c.Status != core.CaseStatusResolved {
		return core.AdjudicationCase{}, fmt.Errorf("%w: case %s is %s, only a resolved case may be appealed", core.ErrConflict, caseID, c.Status)
	}

	decisions, err := s.store.ListDecisions(ctx, caseID)
	if err != nil {
		return core.AdjudicationCase{}, fmt.Errorf("adjudication: listing decisions: %w", err)
	}
	if len(decisions) == 0 {
		return core.AdjudicationCase{}, fmt.Errorf("%w: case %s has no decision to appeal", core.ErrConflict, caseID)
	}

	latest := decisions[0]
	now := s.clock.Now()
	latest.Appealed = true
	latest.AppealReason = &reason
	latest.AppealedAt = &now
	if err := s.store.PersistDecision(ctx, latest); err != nil {
		return core.AdjudicationCase{}, fmt.Errorf("adjudication: recording appeal: %w", err)
	}

	c.Status = core.CaseStatusOpen
	c.ResolvedBy = nil
	c.ResolvedAt = nil
	if err := s.store.UpdateCase(ctx, c); err != nil {
		return core.AdjudicationCase{}, fmt.Errorf("adjudication: reopening case: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{"case_id": caseID}).Info("adjudication case reopened on appeal")

	return c, nil
}

// Close transitions a resolved case to closed, its final state, once no
// further appeal is expected.
func (s *Service) Close(ctx context.Context, caseID string) (core.AdjudicationCase, error) {
	ctx, span := tracing.StartSpan(ctx, "adjudication.Service.Close")
	defer span.End()

	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return core.AdjudicationCase{}, fmt.Errorf("adjudication: close: %w", err)
	}
	if c.Status != core.CaseStatusResolved {
		return core.AdjudicationCase{}, fmt.Errorf("%w: case %s is %s, only a resolved case may be closed", core.ErrConflict, caseID, c.Status)
	}
	c.Status = core.CaseStatusClosed
	if err := s.store.UpdateCase(ctx, c); err != nil {
		return core.AdjudicationCase{}, fmt.Errorf("adjudication: closing case: %w", err)
	}
	return c, nil
}

// List returns a page of cases matching filter, and the total count across
// all pages.
func (s *Service) List(ctx context.Context, filter core.CaseFilter, pageNumber, pageSize int) (core.Page, error) {
	ctx, span := tracing.StartSpan(ctx, "adjudication.Service.List")
	defer span.End()

	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 50
	}

	cases, total, err := s.store.ListCases(ctx, filter, pageNumber, pageSize)
	if err != nil {
		return core.Page{}, fmt.Errorf("adjudication: listing cases: %w", err)
	}

	return core.Page{
		Items:      cases,
		Total:      total,
		PageNumber: pageNumber,
		PageSize:   pageSize,
	}, nil
}

// Decisions returns every decision recorded against a case, most recent
// first, including appealed ones.
func (s *Service) Decisions(ctx context.Context, caseID string) ([]core.AdjudicationDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "adjudication.Service.Decisions")
	defer span.End()

	decisions, err := s.store.ListDecisions(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("adjudication: listing decisions: %w", err)
	}
	return decisions, nil
}
