package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeway/reconcile/internal/external"
	"github.com/threeway/reconcile/internal/pipeline"
)

func TestBind_FindsContainingChunk(t *testing.T) {
	chunks := []external.Chunk{
		{Text: "Vendor: Acme Corp", Citation: pipeline.Citation{Page: 0}},
		{Text: "Grand Total: 500.00", Citation: pipeline.Citation{Page: 1}},
	}

	c, ok := Bind("500.00", chunks)
	require.True(t, ok)
	assert.Equal(t, 1, c.Page)
	assert.False(t, c.Unresolved)
}

func TestBind_NoMatch_ReturnsUnresolved(t *testing.T) {
	chunks := []external.Chunk{{Text: "Vendor: Acme Corp"}}
	c, ok := Bind("999.99", chunks)
	assert.False(t, ok)
	assert.True(t, c.Unresolved)
}

func TestBind_EmptyLiteral_Unresolved(t *testing.T) {
	c, ok := Bind("  ", nil)
	assert.False(t, ok)
	assert.True(t, c.Unresolved)
}

func TestBindAll_CollectsWarnings(t *testing.T) {
	chunks := []external.Chunk{{Text: "500.00", Citation: pipeline.Citation{Page: 2}}}
	citations, warnings := BindAll([]string{"500.00", "999.99"}, chunks)
	require.Len(t, citations, 2)
	assert.False(t, citations[0].Unresolved)
	assert.True(t, citations[1].Unresolved)
	assert.Len(t, warnings, 1)
}
