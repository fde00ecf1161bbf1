package graphlink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHint_NilClientYieldsNoIDsNeverError(t *testing.T) {
	h := NewHint(nil)
	ids, err := h.RelatedIDs(context.Background(), "proj-1", "rec-1", "household")
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestHint_NilHintReceiverYieldsNoIDs(t *testing.T) {
	var h *Hint
	ids, err := h.RelatedIDs(context.Background(), "proj-1", "rec-1", "household")
	require.NoError(t, err)
	assert.Nil(t, ids)
}
