package core

import "time"

// CaseStatus is the AdjudicationCase lifecycle status.
type CaseStatus string

const (
	CaseStatusOpen     CaseStatus = "open"
	CaseStatusAssigned CaseStatus = "assigned"
	CaseStatusResolved CaseStatus = "resolved"
	CaseStatusClosed   CaseStatus = "closed"
)

// ResultRef identifies the specific MatchingResult an AdjudicationCase was
// opened for, which is the natural key for case-creation idempotence.
type ResultRef struct {
	JobID     string
	RecordBID string
}

// AdjudicationCase is a unit of human review for one needs_adjudication
// matching result.
type AdjudicationCase struct {
	ID             string
	ProjectID      string
	JobID          string
	ResultRef      ResultRef
	Status         CaseStatus
	Assignee       *string
	AssignedAt     *time.Time
	ResolvedBy     *string
	ResolvedAt     *time.Time
	ResolutionNote *string
	CreatedAt      time.Time
}

// DecisionKind is the verdict recorded by an AdjudicationDecision.
type DecisionKind string

const (
	DecisionAccept DecisionKind = "accept"
	DecisionReject DecisionKind = "reject"
	DecisionDefer  DecisionKind = "defer"
)

// AdjudicationDecision is an immutable record attached to a case. A case
// accumulates more than one decision only when an earlier one was
// appealed and the case was reopened.
type AdjudicationDecision struct {
	ID           string
	CaseID       string
	Decision     DecisionKind
	DecidedBy    string
	DecidedAt    time.Time
	Appealed     bool
	AppealReason *string
	AppealedAt   *time.Time
}

// CaseFilter narrows a case listing by project, status, and/or assignee.
type CaseFilter struct {
	ProjectID *string
	Status    *CaseStatus
	Assignee  *string
}

// Page is a pagination request/response envelope shared by listing
// operations exposed to adapters.
type Page struct {
	Items      any
	Total      int
	PageNumber int
	PageSize   int
}
