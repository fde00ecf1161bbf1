package pgstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/reconcile/pkg/core"
)

func TestEncodeDecodeFields_RoundTrips(t *testing.T) {
	fields := map[string]core.FieldValue{
		"name": {Raw: "John Smith"},
		"age":  {Raw: float64(42)},
		"note": {Raw: nil, IsNil: true},
	}

	raw, err := encodeFields(fields)
	require.NoError(t, err)

	decoded, err := decodeFields(raw)
	require.NoError(t, err)
	assert.Equal(t, fields, decoded)
}

func TestDecodeFields_RejectsMalformedJSON(t *testing.T) {
	_, err := decodeFields([]byte("not json"))
	assert.Error(t, err)
}

func TestJobFromRow_DecodesSpecAndCounters(t *testing.T) {
	spec := core.MatchingSpec{
		FieldRules: []core.FieldRule{{Field: "name", Function: core.SimilarityJaroWinkler, Weight: 1}},
	}
	specJSON, err := json.Marshal(spec)
	require.NoError(t, err)

	row := jobRow{
		ID:          "job-1",
		ProjectID:   "proj-1",
		OwnerUserID: "user-1",
		SourceAID:   "src-a",
		SourceBID:   "src-b",
		SpecJSON:    specJSON,
		SpecHash:    "abc123",
		Threshold:   0.8,
		Status:      string(core.JobStatusRunning),
		Total:       100,
		Processed:   40,
		Matched:     10,
		Unmatched:   30,
		CreatedAt:   time.Now(),
	}

	job, err := jobFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusRunning, job.Status)
	assert.Equal(t, core.JobCounters{Total: 100, Processed: 40, Matched: 10, Unmatched: 30}, job.Counters)
	require.Len(t, job.Spec.FieldRules, 1)
	assert.Equal(t, "name", job.Spec.FieldRules[0].Field)
}

func TestJobFromRow_RejectsMalformedSpecJSON(t *testing.T) {
	_, err := jobFromRow(jobRow{ID: "job-1", SpecJSON: []byte("not json")})
	assert.Error(t, err)
}

func TestCaseFromRow_MapsResultRefAndStatus(t *testing.T) {
	row := caseRow{
		ID:              "case-1",
		ProjectID:       "proj-1",
		JobID:           "job-1",
		ResultJobID:     "job-1",
		ResultRecordBID: "rec-b1",
		Status:          string(core.CaseStatusAssigned),
		CreatedAt:       time.Now(),
	}

	c := caseFromRow(row)
	assert.Equal(t, core.CaseStatusAssigned, c.Status)
	assert.Equal(t, core.ResultRef{JobID: "job-1", RecordBID: "rec-b1"}, c.ResultRef)
}

func TestDecisionFromRow_MapsDecisionKind(t *testing.T) {
	row := decisionRow{
		ID:        "dec-1",
		CaseID:    "case-1",
		Decision:  string(core.DecisionAccept),
		DecidedBy: "reviewer-1",
		DecidedAt: time.Now(),
	}

	d := decisionFromRow(row)
	assert.Equal(t, core.DecisionAccept, d.Decision)
	assert.False(t, d.Appealed)
}

func TestResultFingerprint_IsStableForIdenticalResults(t *testing.T) {
	aID := "rec-a1"
	r := core.MatchingResult{
		RecordAID:      &aID,
		RecordBID:      "rec-b1",
		Confidence:     0.91,
		Classification: core.ClassificationMatched,
		Breakdown:      []core.FieldBreakdown{{Field: "name", Similarity: 0.9}},
	}

	fp1, err := resultFingerprint(r)
	require.NoError(t, err)
	fp2, err := resultFingerprint(r)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
}

func TestResultFingerprint_ChangesWhenClassificationChanges(t *testing.T) {
	aID := "rec-a1"
	base := core.MatchingResult{
		RecordAID:      &aID,
		RecordBID:      "rec-b1",
		Confidence:     0.91,
		Classification: core.ClassificationMatched,
	}
	changed := base
	changed.Classification = core.ClassificationNeedsAdjudication

	fpBase, err := resultFingerprint(base)
	require.NoError(t, err)
	fpChanged, err := resultFingerprint(changed)
	require.NoError(t, err)

	assert.NotEqual(t, fpBase, fpChanged)
}

func TestResultFingerprint_IgnoresJobIDAndRecordBID(t *testing.T) {
	aID := "rec-a1"
	r1 := core.MatchingResult{JobID: "job-1", RecordAID: &aID, RecordBID: "rec-b1", Confidence: 0.5}
	r2 := core.MatchingResult{JobID: "job-2", RecordAID: &aID, RecordBID: "rec-b2", Confidence: 0.5}

	fp1, err := resultFingerprint(r1)
	require.NoError(t, err)
	fp2, err := resultFingerprint(r2)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
}
