package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

var specValidate = validator.New()

// SimilarityFunction names one of the stateless pairwise similarity
// algorithms a FieldRule may select.
type SimilarityFunction string

const (
	SimilarityExact             SimilarityFunction = "exact"
	SimilaritySubstring         SimilarityFunction = "substring"
	SimilarityLevenshtein       SimilarityFunction = "levenshtein"
	SimilarityJaroWinkler       SimilarityFunction = "jaro_winkler"
	SimilarityPhoneticSoundex   SimilarityFunction = "phonetic_soundex"
	SimilarityPhoneticMetaphone SimilarityFunction = "phonetic_metaphone"
)

// FieldRule declares how one field is compared: which field, which
// similarity function, and its weight in the overall confidence.
type FieldRule struct {
	Field      string             `json:"field" validate:"required"`
	Function   SimilarityFunction `json:"function" validate:"required"`
	Weight     float64            `json:"weight" validate:"gte=0"`
	Normalizer string             `json:"normalizer,omitempty"`
}

// BlockingKey names a field whose equality is required for two records to
// be considered candidates at all.
type BlockingKey struct {
	Field string `json:"field" validate:"required"`
}

// MatchingSpec is the declarative rule set governing a job: the fields to
// compare, how, and at what weight, plus optional blocking keys that prune
// the candidate space before scoring.
type MatchingSpec struct {
	FieldRules   []FieldRule   `json:"field_rules" validate:"required,min=1,dive"`
	BlockingKeys []BlockingKey `json:"blocking_keys,omitempty" validate:"omitempty,dive"`

	// RelationshipType, when set, names a graph edge label the Matching
	// Engine's optional RelationshipHint consults to widen a
	// record's candidate set beyond its blocking-key buckets (e.g.
	// "SAME_MERGED_ORG"). Blocking works fully without it.
	RelationshipType string `json:"relationship_type,omitempty"`
}

// Validate checks the admission invariants: struct-tag constraints first
// (required fields, non-negative weights), then the cross-field invariant
// validator/v10 tags can't express on their own (weights must sum to a
// positive value).
func (s MatchingSpec) Validate() error {
	if err := specValidate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var total float64
	for _, r := range s.FieldRules {
		total += r.Weight
	}
	if total <= 0 {
		return fmt.Errorf("%w: field rule weights must sum to a positive value", ErrInvalidInput)
	}
	return nil
}

// Canonicalize returns a copy of the spec with weights normalized so they
// sum to 1.0, and field rules sorted by field name so the canonical form
// is independent of declaration order.
func (s MatchingSpec) Canonicalize() (MatchingSpec, error) {
	if err := s.Validate(); err != nil {
		return MatchingSpec{}, err
	}

	var total float64
	for _, r := range s.FieldRules {
		total += r.Weight
	}

	rules := make([]FieldRule, len(s.FieldRules))
	copy(rules, s.FieldRules)
	for i := range rules {
		rules[i].Weight = rules[i].Weight / total
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Field < rules[j].Field })

	keys := make([]BlockingKey, len(s.BlockingKeys))
	copy(keys, s.BlockingKeys)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Field < keys[j].Field })

	return MatchingSpec{FieldRules: rules, BlockingKeys: keys, RelationshipType: s.RelationshipType}, nil
}

// Hash returns a stable SHA-256 hash (hex-encoded) of the canonicalized
// spec, letting two job submissions confirm they ran under an identical
// contract (re-run equivalence) even if the JSON happened to be formatted
// or ordered differently on the wire.
func (s MatchingSpec) Hash() (string, error) {
	canon, err := s.Canonicalize()
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
