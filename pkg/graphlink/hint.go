package graphlink

import "context"

// RelationshipHint is the capability the Matching Engine consults, when
// present, to widen a record's candidate set with graph-adjacent IDs
// after blocking has intersected on declared keys. A nil RelationshipHint
// (the common case — most jobs have no RelationshipType in their
// MatchingSpec) must be tolerated everywhere; callers check for nil
// before using it.
type RelationshipHint interface {
	RelatedIDs(ctx context.Context, projectID, recordID, relType string) ([]string, error)
}

// Hint adapts a *Client to RelationshipHint, degrading a lookup failure
// to "no hint" rather than failing the job: a graph outage must never
// block reconciliation that would otherwise succeed on blocking keys
// alone.
type Hint struct {
	client *Client
}

// NewHint wraps client. A nil client yields a Hint whose RelatedIDs
// always returns no IDs, so callers can unconditionally construct a
// Hint and only skip it when GraphEnabled is false.
func NewHint(client *Client) *Hint {
	return &Hint{client: client}
}

// RelatedIDs delegates to the underlying client, swallowing errors into
// an empty result: the caller's blocking index is the source of truth,
// this is strictly additive.
func (h *Hint) RelatedIDs(ctx context.Context, projectID, recordID, relType string) ([]string, error) {
	if h == nil || h.client == nil {
		return nil, nil
	}
	ids, err := h.client.RelatedIDs(ctx, projectID, recordID, relType)
	if err != nil {
		return nil, nil
	}
	return ids, nil
}
