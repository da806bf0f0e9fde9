package llm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashEmbedDeterministic(t *testing.T) {
	a := HashEmbed("same prompt", 64)
	b := HashEmbed("same prompt", 64)
	assert.Equal(t, a, b)
}

func TestHashEmbedDimensionAndNorm(t *testing.T) {
	for _, dim := range []int{8, 64, 768} {
		v := HashEmbed("some prompt text", dim)
		assert.Len(t, v, dim)
		var norm float64
		for _, x := range v {
			norm += x * x
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
	}
}

func TestHashEmbedDifferentTextsDiffer(t *testing.T) {
	a := HashEmbed("prompt one", 64)
	b := HashEmbed("prompt two", 64)
	assert.NotEqual(t, a, b)
}
