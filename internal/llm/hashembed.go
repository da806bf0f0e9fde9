package llm

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashEmbed deterministically derives a dim-dimensional unit vector from
// text. Providers that have no embeddings endpoint of their own (the
// Anthropic provider, the deterministic terminal provider) use this so that
// the Divergence Guard's cosine-similarity comparison still has a stable,
// reproducible reasoning vector to work with. The construction expands
// a SHA-256 digest with a counter-mode stream so dim is not bounded by the
// digest size, then L2-normalizes.
func HashEmbed(text string, dim int) []float64 {
	vec := make([]float64, dim)
	seed := sha256.Sum256([]byte(text))

	block := seed
	produced := 0
	counter := uint32(0)
	for produced < dim {
		if produced > 0 && produced%len(block) == 0 {
			var ctrBytes [4]byte
			binary.BigEndian.PutUint32(ctrBytes[:], counter)
			counter++
			mixed := append(append([]byte{}, seed[:]...), ctrBytes[:]...)
			block = sha256.Sum256(mixed)
		}
		b := block[produced%len(block)]
		// map byte to [-1, 1]
		vec[produced] = (float64(b)/127.5 - 1)
		produced++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
