// Package blocking builds the transient in-memory equality index over
// source A that the matching engine uses to prune candidate pairs before
// expensive similarity scoring.
package blocking

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/core"
)

// Index is a mapping, per declared BlockingKey, from a key value to the
// set of source-A record IDs sharing it. It is built once at job start
// and is read-only for the job's remaining lifetime.
//
// Invariant: every record in source A appears in exactly one bucket per
// blocking key (a record missing the key field falls into the "" bucket
// for that key, which is still exactly one bucket).
type Index struct {
	keys      []core.BlockingKey
	buckets   []map[string][]string // one bucket map per key, parallel to keys
	byID      map[string]core.Record
	sourceLen int
}

// Build streams source A once and populates every declared blocking key's
// bucket map. If no BlockingKeys are declared, the returned Index has no
// buckets and Candidates always returns the full record set — callers
// should treat this as the quadratic-cost case flagged at job admission.
func Build(ctx context.Context, records iter.Seq2[core.Record, error], keys []core.BlockingKey) (*Index, error) {
	ctx, span := tracing.StartSpan(ctx, "blocking.Build")
	defer span.End()
	_ = ctx

	idx := &Index{
		keys:    keys,
		buckets: make([]map[string][]string, len(keys)),
		byID:    make(map[string]core.Record),
	}
	for i := range idx.buckets {
		idx.buckets[i] = make(map[string][]string)
	}

	for rec, err := range records {
		if err != nil {
			return nil, fmt.Errorf("blocking: reading source A: %w", err)
		}
		idx.byID[rec.ID] = rec
		idx.sourceLen++

		for i, key := range keys {
			val, _ := rec.Get(key.Field)
			idx.buckets[i][val] = append(idx.buckets[i][val], rec.ID)
		}
	}

	for i := range idx.buckets {
		for k := range idx.buckets[i] {
			sort.Strings(idx.buckets[i][k])
		}
	}

	return idx, nil
}

// Len returns the number of source-A records indexed.
func (idx *Index) Len() int { return idx.sourceLen }

// Quadratic reports whether this Index has no blocking keys declared,
// meaning candidate generation degenerates to the full cross-product.
func (idx *Index) Quadratic() bool { return len(idx.keys) == 0 }

// Candidates returns the candidate set for record r: the intersection,
// across all declared BlockingKeys, of the bucket each key's value maps
// to (AND semantics). With no BlockingKeys declared, it is every record
// of source A. Iteration order is deterministic, by record ID.
func (idx *Index) Candidates(r core.Record) []core.Record {
	if idx.Quadratic() {
		return idx.all()
	}

	var ids []string
	for i, key := range idx.keys {
		val, _ := r.Get(key.Field)
		bucket := idx.buckets[i][val]
		if i == 0 {
			ids = append(ids, bucket...)
			continue
		}
		ids = intersect(ids, bucket)
	}

	sort.Strings(ids)
	out := make([]core.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.byID[id])
	}
	return out
}

// WithHints extends a base candidate set with extra source-A record IDs
// supplied by an out-of-band signal (e.g. a graph relationship hint),
// de-duplicating against the base set and against each other. IDs not
// present in source A are silently skipped: a hint naming an ID the
// index never saw is a stale or cross-source reference, not an error.
func (idx *Index) WithHints(base []core.Record, extraIDs []string) []core.Record {
	if len(extraIDs) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base))
	for _, r := range base {
		seen[r.ID] = struct{}{}
	}
	out := base
	for _, id := range extraIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		rec, ok := idx.byID[id]
		if !ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func (idx *Index) all() []core.Record {
	ids := make([]string, 0, len(idx.byID))
	for id := range idx.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]core.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.byID[id])
	}
	return out
}

// intersect returns the sorted intersection of two already-sorted ID
// lists; a and b are each bucket contents, which Build keeps sorted.
func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var out []string
	for _, id := range a {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
