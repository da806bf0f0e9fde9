// Package deterministic implements the terminal, always-succeeds provider
// in the Router's failover chain. It never calls out to a
// network, so it cannot fail the way a cloud or local model can; this is
// what guarantees the pipeline always completes during an upstream outage.
package deterministic

import (
	"context"
	"strings"

	"github.com/threeway/reconcile/internal/llm"
)

// Provider is the terminal fallback: a rule-based neutral completion for
// Complete, and a hash-derived vector for ReasoningVector.
type Provider struct {
	dim int
}

// New constructs a Provider returning vectors of dimension dim (must match
// the Router's configured VectorDim).
func New(dim int) *Provider {
	return &Provider{dim: dim}
}

func (p *Provider) Name() string { return "deterministic" }

// Complete never errors. In JSON mode it synthesizes a neutral response
// shaped like the schema the caller hinted at, so downstream strict
// parsing (notably the extraction agent's decimal parsing) still succeeds
// with empty-but-valid values during an outage; outside JSON mode it
// returns a short neutral sentence so the drafting agent's narrative
// section still reads as prose rather than an empty string.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	if !req.JSONMode {
		return "Narrative generation unavailable; see structured findings for details.", nil
	}
	hint := strings.ToLower(req.SchemaHint)
	switch {
	case strings.Contains(hint, "grandtotal"):
		return `{"vendorName":"","documentNumber":"","documentDate":"","currency":"","lineItems":[],"subtotal":"0.00","tax":"0.00","grandTotal":"0.00"}`, nil
	case strings.Contains(hint, "riskscore"):
		return `{"riskScore":0,"flags":[],"policyViolations":[]}`, nil
	default:
		return "{}", nil
	}
}

// ReasoningVector never errors: it derives a stable vector from prompt
// alone, so identical prompts always reduce to identical vectors.
func (p *Provider) ReasoningVector(_ context.Context, prompt string) ([]float64, error) {
	return llm.HashEmbed(prompt, p.dim), nil
}
