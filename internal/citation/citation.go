// Package citation locates the chunk a literal extracted value came from
// and binds the chunk's spatial citation to it, or marks the value
// UNRESOLVED when no chunk contains it.
package citation

import (
	"strings"

	"github.com/threeway/reconcile/internal/external"
	"github.com/threeway/reconcile/internal/pipeline"
)

// Bind searches chunks in order for one containing literal verbatim and
// returns its citation. If none contains it, it returns an Unresolved
// citation and ok=false so the caller can record an unresolved-citation
// warning.
func Bind(literal string, chunks []external.Chunk) (pipeline.Citation, bool) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return pipeline.Unresolved(), false
	}
	for _, c := range chunks {
		if strings.Contains(c.Text, literal) {
			return c.Citation, true
		}
	}
	return pipeline.Unresolved(), false
}

// BindAll is a convenience wrapper for binding a batch of literals (e.g.
// every numeric field of an extracted document), returning the citations
// in order and the warnings for every literal that failed to resolve.
func BindAll(literals []string, chunks []external.Chunk) ([]pipeline.Citation, []string) {
	citations := make([]pipeline.Citation, len(literals))
	var warnings []string
	for i, lit := range literals {
		c, ok := Bind(lit, chunks)
		citations[i] = c
		if !ok {
			warnings = append(warnings, "unresolved citation for value: "+lit)
		}
	}
	return citations, warnings
}
