package comparator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/reconcile/pkg/core"
)

func field(v string) core.FieldValue { return core.FieldValue{Raw: v} }

func TestComparator_CompareWeightsAndTracksBreakdown(t *testing.T) {
	c := New()
	a := core.Record{ID: "a1", Fields: map[string]core.FieldValue{
		"name": field("John Smith"),
		"zip":  field("10001"),
	}}
	b := core.Record{ID: "b1", Fields: map[string]core.FieldValue{
		"name": field("Jon Smith"),
		"zip":  field("10001"),
	}}

	spec, err := core.MatchingSpec{
		FieldRules: []core.FieldRule{
			{Field: "name", Function: core.SimilarityJaroWinkler, Weight: 0.6},
			{Field: "zip", Function: core.SimilarityExact, Weight: 0.4},
		},
	}.Canonicalize()
	require.NoError(t, err)

	confidence, breakdown := c.Compare(a, b, spec)
	require.Len(t, breakdown, 2)
	assert.Greater(t, confidence, 0.9)
	assert.LessOrEqual(t, confidence, 1.0)
}

func TestComparator_MissingFieldContributesZeroButConsumesWeight(t *testing.T) {
	c := New()
	a := core.Record{ID: "a1", Fields: map[string]core.FieldValue{"name": field("Jane")}}
	b := core.Record{ID: "b1", Fields: map[string]core.FieldValue{}}

	spec, err := core.MatchingSpec{
		FieldRules: []core.FieldRule{{Field: "name", Function: core.SimilarityExact, Weight: 1}},
	}.Canonicalize()
	require.NoError(t, err)

	confidence, breakdown := c.Compare(a, b, spec)
	assert.Equal(t, 0.0, confidence)
	require.Len(t, breakdown, 1)
	assert.Equal(t, "", breakdown[0].ValueB)
}

func TestComparator_AppliesNormalizerBeforeScoring(t *testing.T) {
	c := New()
	a := core.Record{ID: "a1", Fields: map[string]core.FieldValue{"name": field("JANE")}}
	b := core.Record{ID: "b1", Fields: map[string]core.FieldValue{"name": field("jane")}}

	spec, err := core.MatchingSpec{
		FieldRules: []core.FieldRule{{Field: "name", Function: core.SimilarityExact, Weight: 1, Normalizer: "lowercase"}},
	}.Canonicalize()
	require.NoError(t, err)

	confidence, _ := c.Compare(a, b, spec)
	assert.Equal(t, 1.0, confidence)
}
