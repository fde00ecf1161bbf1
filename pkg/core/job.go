package core

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var jobValidate = validator.New()

// JobStatus is the Job State Machine's status.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// Terminal reports whether a status is one of the state machine's terminal
// states, from which no further transition is permitted.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

// JobCounters holds the monotonic progress counters of a reconciliation
// job. Invariants: Processed <= Total once Total is known; Matched +
// Unmatched <= Processed.
type JobCounters struct {
	Total     int
	Processed int
	Matched   int
	Unmatched int
}

// ReconciliationJob owns two DataSource references, a MatchingSpec, a
// confidence threshold, status, progress counters and timestamps.
type ReconciliationJob struct {
	ID            string
	ProjectID     string       `validate:"required"`
	OwnerUserID   string       `validate:"required"`
	SourceAID     string       `validate:"required"`
	SourceBID     string       `validate:"required"`
	Spec          MatchingSpec `validate:"-"`
	SpecHash      string
	Threshold     float64 `validate:"gte=0,lte=1"`
	Status        JobStatus
	Counters      JobCounters
	FailureReason string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// Validate checks invariants that must hold before a job is admitted:
// required identifiers, threshold in range, and a well-formed MatchingSpec.
// Spec is validated separately via its own Validate (tagged "-" here) since
// it carries a cross-field invariant validator/v10 can't express.
func (j ReconciliationJob) Validate() error {
	if err := jobValidate.Struct(j); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return j.Spec.Validate()
}

// Classification is the per-result verdict the matching engine assigns.
type Classification string

const (
	ClassificationMatched           Classification = "matched"
	ClassificationUnmatched         Classification = "unmatched"
	ClassificationNeedsAdjudication Classification = "needs_adjudication"
)

// FieldBreakdown is the per-field similarity contribution to a result,
// carrying both the similarity and the compared values for display.
type FieldBreakdown struct {
	Field      string  `json:"field"`
	Similarity float64 `json:"similarity"`
	ValueA     string  `json:"value_a"`
	ValueB     string  `json:"value_b"`
}

// MatchingResult is a pair (recordA_id, recordB_id?) with confidence,
// classification, and per-field breakdown. Written once per examined
// B-record; never mutated.
type MatchingResult struct {
	JobID          string           `json:"job_id"`
	RecordAID      *string          `json:"record_a_id,omitempty"`
	RecordBID      string           `json:"record_b_id"`
	Confidence     float64          `json:"confidence"`
	Classification Classification   `json:"classification"`
	Breakdown      []FieldBreakdown `json:"breakdown"`
}

// JobProgress is the ephemeral snapshot the Job Processor holds while a
// job runs. It is reconciled to persisted job counters at checkpoints.
type JobProgress struct {
	JobID               string
	Phase               string
	Processed           int
	Matched             int
	Unmatched           int
	StartedAt           time.Time
	EstimatedCompletion *time.Time
}
