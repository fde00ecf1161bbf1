package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchingSpec_ValidateRejectsEmptyFieldRules(t *testing.T) {
	spec := MatchingSpec{}
	err := spec.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMatchingSpec_ValidateRejectsZeroWeightSum(t *testing.T) {
	spec := MatchingSpec{
		FieldRules: []FieldRule{
			{Field: "name", Function: SimilarityJaroWinkler, Weight: 0},
		},
	}
	err := spec.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMatchingSpec_ValidateRejectsMissingFieldName(t *testing.T) {
	spec := MatchingSpec{
		FieldRules: []FieldRule{
			{Function: SimilarityJaroWinkler, Weight: 1},
		},
	}
	err := spec.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMatchingSpec_CanonicalizeNormalizesWeightsAndOrder(t *testing.T) {
	spec := MatchingSpec{
		FieldRules: []FieldRule{
			{Field: "zip", Function: SimilarityExact, Weight: 2},
			{Field: "name", Function: SimilarityJaroWinkler, Weight: 2},
		},
	}

	canon, err := spec.Canonicalize()
	require.NoError(t, err)

	require.Len(t, canon.FieldRules, 2)
	assert.Equal(t, "name", canon.FieldRules[0].Field)
	assert.Equal(t, "zip", canon.FieldRules[1].Field)
	assert.InDelta(t, 0.5, canon.FieldRules[0].Weight, 1e-9)
	assert.InDelta(t, 0.5, canon.FieldRules[1].Weight, 1e-9)
}

func TestMatchingSpec_CanonicalizePreservesRelationshipType(t *testing.T) {
	spec := MatchingSpec{
		FieldRules:       []FieldRule{{Field: "name", Function: SimilarityExact, Weight: 1}},
		RelationshipType: "SAME_MERGED_ORG",
	}

	canon, err := spec.Canonicalize()
	require.NoError(t, err)
	assert.Equal(t, "SAME_MERGED_ORG", canon.RelationshipType)
}

func TestMatchingSpec_HashIsStableUnderFieldOrder(t *testing.T) {
	a := MatchingSpec{
		FieldRules: []FieldRule{
			{Field: "name", Function: SimilarityExact, Weight: 1},
			{Field: "zip", Function: SimilarityExact, Weight: 1},
		},
	}
	b := MatchingSpec{
		FieldRules: []FieldRule{
			{Field: "zip", Function: SimilarityExact, Weight: 1},
			{Field: "name", Function: SimilarityExact, Weight: 1},
		},
	}

	hashA, err := a.Hash()
	require.NoError(t, err)
	hashB, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)
}

func TestMatchingSpec_HashDiffersByRelationshipType(t *testing.T) {
	base := MatchingSpec{FieldRules: []FieldRule{{Field: "name", Function: SimilarityExact, Weight: 1}}}
	withHint := base
	withHint.RelationshipType = "SAME_MERGED_ORG"

	hashBase, err := base.Hash()
	require.NoError(t, err)
	hashHint, err := withHint.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, hashBase, hashHint)
}
