// Package matching implements the Matching Engine: it orchestrates the
// Blocking Index and Field Comparator to classify every record of source
// B against source A.
package matching

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/blocking"
	"github.com/Ramsey-B/reconcile/pkg/comparator"
	"github.com/Ramsey-B/reconcile/pkg/core"
)

// RelationshipHint is the optional capability the engine consults to
// widen a record's candidate set with graph-adjacent IDs beyond its
// blocking-key buckets, when a MatchingSpec declares a RelationshipType.
// pkg/graphlink.Hint implements this; a nil hint disables the feature.
type RelationshipHint interface {
	RelatedIDs(ctx context.Context, projectID, recordID, relType string) ([]string, error)
}

// Engine classifies source-B records against a prebuilt blocking index
// over source A.
type Engine struct {
	logger     ectologger.Logger
	comparator *comparator.Comparator
	band       float64 // adjudication_band_fraction, default 0.75
	hint       RelationshipHint
}

// WithRelationshipHint attaches an optional graph relationship hint to
// the engine, returning it for chaining. Passing nil is a no-op.
func (e *Engine) WithRelationshipHint(hint RelationshipHint) *Engine {
	e.hint = hint
	return e
}

// Config tunes the engine.
type Config struct {
	// AdjudicationBandFraction sets the adjudication floor as a fraction
	// of τ: a best score at or above τ·fraction but below τ is routed to
	// adjudication, and a score below τ·fraction is unmatched. Default
	// 0.75.
	AdjudicationBandFraction float64
}

// DefaultConfig returns the engine's default configuration.
func DefaultConfig() Config {
	return Config{AdjudicationBandFraction: 0.75}
}

// NewEngine creates a Matching Engine.
func NewEngine(logger ectologger.Logger, cfg Config) *Engine {
	band := cfg.AdjudicationBandFraction
	if band <= 0 || band > 1 {
		band = 0.75
	}
	return &Engine{
		logger:     logger,
		comparator: comparator.New(),
		band:       band,
	}
}

// ClassifyBatch scores one batch of source-B records against idx and
// returns results in ascending record-B-ID order, regardless of the
// concurrency used internally, so determinism holds under parallel
// execution.
func (e *Engine) ClassifyBatch(ctx context.Context, idx *blocking.Index, spec core.MatchingSpec, threshold float64, batch []core.Record) []core.MatchingResult {
	return e.ClassifyBatchForProject(ctx, "", idx, spec, threshold, batch)
}

// ClassifyBatchForProject is ClassifyBatch with projectID threaded
// through to the RelationshipHint, when spec.RelationshipType is set.
func (e *Engine) ClassifyBatchForProject(ctx context.Context, projectID string, idx *blocking.Index, spec core.MatchingSpec, threshold float64, batch []core.Record) []core.MatchingResult {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.ClassifyBatch")
	defer span.End()

	results := make([]core.MatchingResult, len(batch))

	var wg sync.WaitGroup
	for i, rec := range batch {
		wg.Add(1)
		go func(i int, rec core.Record) {
			defer wg.Done()
			results[i] = e.classifyOne(ctx, projectID, idx, spec, threshold, rec)
		}(i, rec)
	}
	wg.Wait()

	slices.SortFunc(results, func(a, b core.MatchingResult) int {
		return cmp.Compare(a.RecordBID, b.RecordBID)
	})
	return results
}

// classifyOne implements steps 1-5 of §4.4 for a single B record: obtain
// candidates, score each, pick the best (ties by smallest record A ID),
// and classify against threshold and the adjudication band.
func (e *Engine) classifyOne(ctx context.Context, projectID string, idx *blocking.Index, spec core.MatchingSpec, threshold float64, rec core.Record) core.MatchingResult {
	candidates := idx.Candidates(rec)

	if e.hint != nil && spec.RelationshipType != "" {
		if extraIDs, err := e.hint.RelatedIDs(ctx, projectID, rec.ID, spec.RelationshipType); err == nil && len(extraIDs) > 0 {
			candidates = idx.WithHints(candidates, extraIDs)
		}
	}

	var (
		bestScore     float64
		bestCandidate core.Record
		bestBreakdown []core.FieldBreakdown
		haveBest      bool
	)

	for _, candidate := range candidates {
		score, breakdown := e.comparator.Compare(candidate, rec, spec)
		if !haveBest || score > bestScore || (score == bestScore && candidate.ID < bestCandidate.ID) {
			bestScore = score
			bestCandidate = candidate
			bestBreakdown = breakdown
			haveBest = true
		}
	}

	result := core.MatchingResult{
		RecordBID: rec.ID,
	}

	if !haveBest {
		result.Classification = core.ClassificationUnmatched
		return result
	}

	result.Confidence = bestScore
	result.Breakdown = bestBreakdown

	adjudicationFloor := threshold * e.band

	switch {
	case bestScore >= threshold:
		result.Classification = core.ClassificationMatched
		id := bestCandidate.ID
		result.RecordAID = &id
	case bestScore >= adjudicationFloor:
		result.Classification = core.ClassificationNeedsAdjudication
		id := bestCandidate.ID
		result.RecordAID = &id
	default:
		result.Classification = core.ClassificationUnmatched
	}

	return result
}

// Run classifies all of source B, in batches, calling onBatch after each
// batch with results already in ascending B-record-ID order. onBatch
// returning an error stops processing (used by the job processor to
// apply the cancellation flag between batches).
func (e *Engine) Run(ctx context.Context, idx *blocking.Index, spec core.MatchingSpec, threshold float64, sourceB iter.Seq2[core.Record, error], batchSize int, onBatch func(ctx context.Context, batch []core.MatchingResult) error) error {
	return e.RunForProject(ctx, "", idx, spec, threshold, sourceB, batchSize, onBatch)
}

// RunForProject is Run with projectID threaded through to the
// RelationshipHint, when spec.RelationshipType is set.
func (e *Engine) RunForProject(ctx context.Context, projectID string, idx *blocking.Index, spec core.MatchingSpec, threshold float64, sourceB iter.Seq2[core.Record, error], batchSize int, onBatch func(ctx context.Context, batch []core.MatchingResult) error) error {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Run")
	defer span.End()

	if batchSize <= 0 {
		batchSize = 100
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{"threshold": threshold, "batch_size": batchSize})
	log.Debug("starting matching run")

	batch := make([]core.Record, 0, batchSize)
	for rec, err := range sourceB {
		if err != nil {
			return fmt.Errorf("matching: reading source B: %w", err)
		}
		batch = append(batch, rec)
		if len(batch) < batchSize {
			continue
		}
		results := e.ClassifyBatchForProject(ctx, projectID, idx, spec, threshold, batch)
		if err := onBatch(ctx, results); err != nil {
			return err
		}
		batch = batch[:0]
	}
	if len(batch) > 0 {
		results := e.ClassifyBatchForProject(ctx, projectID, idx, spec, threshold, batch)
		if err := onBatch(ctx, results); err != nil {
			return err
		}
	}
	return nil
}
