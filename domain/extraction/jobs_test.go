package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendOrphanMarker(t *testing.T) {
	assert.Equal(t, orphanMarker, appendOrphanMarker(""))

	withPrior := appendOrphanMarker("llm call timed out")
	assert.Equal(t, "llm call timed out "+orphanMarker, withPrior)

	// Applying recovery again never duplicates the marker.
	assert.Equal(t, withPrior, appendOrphanMarker(withPrior))
	assert.Equal(t, orphanMarker, appendOrphanMarker(orphanMarker))
}
