package graphlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLabel_AllowsAlphanumericAndUnderscore(t *testing.T) {
	assert.Equal(t, "SAME_MERGED_ORG", sanitizeLabel("SAME_MERGED_ORG"))
	assert.Equal(t, "household123", sanitizeLabel("household123"))
}

func TestSanitizeLabel_StripsCypherInjectionAttempt(t *testing.T) {
	assert.Equal(t, "RELTYPEnDELETEnEntityDETACHDELETEn", sanitizeLabel("RELTYPE}]-(n)-[:DELETE]-(n:Entity) DETACH DELETE n"))
}

func TestSanitizeLabel_FallsBackToDefaultWhenFullyStripped(t *testing.T) {
	assert.Equal(t, "RELATED_TO", sanitizeLabel("}])(;--"))
	assert.Equal(t, "RELATED_TO", sanitizeLabel(""))
}
