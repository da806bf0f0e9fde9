package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/threeway/reconcile/internal/llm"
	"github.com/threeway/reconcile/internal/pipeline"
)

// Compliance is the Compliance Agent.
type Compliance struct {
	Router *llm.Router
}

// complianceSchema decodes riskScore/flags leniently: a model in JSON
// mode occasionally still renders a number as a quoted string, or a flag
// list entry as something other than a bare string. cast coerces these at
// the boundary instead of failing the whole completion over a type
// mismatch the model itself introduced.
type complianceSchema struct {
	RiskScore        any   `json:"riskScore"`
	Flags            []any `json:"flags"`
	PolicyViolations []any `json:"policyViolations"`
}

// complianceJSONSchema is the JSON Schema of complianceSchema, derived
// once by reflection so the hint cannot drift out of sync with the
// struct the completion is decoded into.
var complianceJSONSchema = llm.MustSchemaOf(complianceSchema{})

// arithmeticKeywords flags a compliance claim as an arithmetic assertion
// that must be corroborated by the Quantitative Agent before being kept.
var arithmeticKeywords = []string{"arithmetic", "total", "tax", "sum"}

// Run builds a rule-evaluation prompt from the three extracted documents
// and the prior quantitative findings, asks the LLM for a risk
// assessment, and drops every arithmetic claim unless the Quantitative
// Agent recorded at least one flag of its own.
func (c *Compliance) Run(ctx context.Context, st *pipeline.State) error {
	finish := trace(st, pipeline.StageCompliance)

	prompt := buildCompliancePrompt(st)
	completion, outcome, err := c.Router.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Temperature: 0,
		JSONMode:    true,
		SchemaHint:  complianceJSONSchema,
	})
	if err != nil {
		st.AppendError(pipeline.StageError{
			Stage:   pipeline.StageCompliance,
			Kind:    pipeline.ErrorUpstreamUnavail,
			Message: err.Error(),
		})
		finish(pipeline.OutcomeFailed)
		return nil
	}
	if outcome.Degraded {
		st.AppendError(pipeline.StageError{
			Stage:   pipeline.StageCompliance,
			Kind:    pipeline.ErrorUpstreamUnavail,
			Message: fmt.Sprintf("compliance answered by degraded provider %s", outcome.ProviderName),
		})
	}

	var parsed complianceSchema
	if err := llm.ExtractJSON(completion, &parsed); err != nil {
		st.AppendError(pipeline.StageError{
			Stage:   pipeline.StageCompliance,
			Kind:    pipeline.ErrorParseError,
			Message: err.Error(),
		})
		finish(pipeline.OutcomeFailed)
		return nil
	}

	riskScore, err := cast.ToFloat64E(parsed.RiskScore)
	if err != nil {
		st.AppendError(pipeline.StageError{
			Stage:   pipeline.StageCompliance,
			Kind:    pipeline.ErrorParseError,
			Message: fmt.Sprintf("riskScore not numeric: %v", err),
		})
		finish(pipeline.OutcomeFailed)
		return nil
	}
	if riskScore < 0 {
		riskScore = 0
	}
	if riskScore > 10 {
		riskScore = 10
	}

	mathVerified := st.Quantitative != nil && len(st.Quantitative.Flags) > 0
	st.Compliance = &pipeline.ComplianceReport{
		RiskScore:        riskScore,
		Flags:            filterArithmeticClaims(toStrings(parsed.Flags), mathVerified),
		PolicyViolations: filterArithmeticClaims(toStrings(parsed.PolicyViolations), mathVerified),
	}
	finish(pipeline.OutcomeSuccess)
	return nil
}

// toStrings coerces a loosely-typed JSON array into strings, dropping any
// entry cast cannot represent as one (e.g. a nested object).
func toStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

func filterArithmeticClaims(claims []string, corroborated bool) []string {
	kept := make([]string, 0, len(claims))
	for _, c := range claims {
		if isArithmeticClaim(c) && !corroborated {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func isArithmeticClaim(claim string) bool {
	lower := strings.ToLower(claim)
	for _, kw := range arithmeticKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func buildCompliancePrompt(st *pipeline.State) string {
	var b strings.Builder
	b.WriteString("Evaluate this three-way match for compliance risk: duplicate invoice, ")
	b.WriteString("vendor legitimacy, tax sanity, payment-terms consistency, line-count parity. ")
	b.WriteString("riskScore ranges 0-10. Provide an RFC8259 compliant JSON response ")
	b.WriteString("adhering to this JSON Schema: " + complianceJSONSchema + "\n\n")
	for _, ed := range []*pipeline.ExtractedDocument{st.ExtractedPO, st.ExtractedGRN, st.ExtractedInvoice} {
		if ed == nil {
			continue
		}
		fmt.Fprintf(&b, "%s: vendor=%s number=%s date=%s lines=%d grandTotal=%s\n",
			ed.SourceKind, ed.Document.VendorName, ed.Document.DocumentNumber, ed.Document.DocumentDate,
			len(ed.Document.LineItems), ed.Document.Totals.GrandTotal)
	}
	return b.String()
}
