// Package comparator implements the Field Comparator: given two records
// and a MatchingSpec, it computes an overall confidence and a per-field
// breakdown.
package comparator

import (
	"github.com/Ramsey-B/reconcile/pkg/core"
	"github.com/Ramsey-B/reconcile/pkg/normalizers"
	"github.com/Ramsey-B/reconcile/pkg/similarity"
)

// Comparator scores a candidate pair under a canonicalized MatchingSpec.
type Comparator struct {
	scorer *similarity.Scorer
}

// New creates a Comparator.
func New() *Comparator {
	return &Comparator{scorer: similarity.NewScorer()}
}

// Compare computes the weight-normalized confidence for (a, b) under
// spec, which must already be canonicalized (weights summing to 1.0). A
// field absent from either record contributes 0 similarity but still
// consumes its weight. An empty field-rule set yields confidence 0.
func (c *Comparator) Compare(a, b core.Record, spec core.MatchingSpec) (float64, []core.FieldBreakdown) {
	breakdown := make([]core.FieldBreakdown, 0, len(spec.FieldRules))
	if len(spec.FieldRules) == 0 {
		return 0, breakdown
	}

	var confidence float64
	for _, rule := range spec.FieldRules {
		valA, okA := a.Get(rule.Field)
		valB, okB := b.Get(rule.Field)

		if rule.Normalizer != "" {
			if okA {
				valA = normalizers.Apply(valA, rule.Normalizer)
			}
			if okB {
				valB = normalizers.Apply(valB, rule.Normalizer)
			}
		}

		var sim float64
		if okA && okB {
			sim = similarity.Apply(rule.Function, valA, valB, c.scorer)
		}

		confidence += rule.Weight * sim
		breakdown = append(breakdown, core.FieldBreakdown{
			Field:      rule.Field,
			Similarity: sim,
			ValueA:     valA,
			ValueB:     valB,
		})
	}

	return confidence, breakdown
}
