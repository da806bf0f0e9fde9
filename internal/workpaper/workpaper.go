// Package workpaper composes the final structured artifact a
// reconciliation session produces: five labeled prose
// sections, the line-item reconciliation table, a compliance panel, and a
// divergence panel, plus one flat list of the citations of every extracted
// value; individual findings are not linked to specific citations.
// Composition is a pure function of the prior stages' slots; only the
// prose itself is LLM-generated.
package workpaper

import (
	"context"
	"fmt"
	"strings"

	"github.com/threeway/reconcile/internal/llm"
	"github.com/threeway/reconcile/internal/pipeline"
)

// sectionOrder fixes the five section names in the order they are
// composed.
var sectionOrder = []string{"objective", "procedure", "findings", "materiality", "conclusion"}

// Compose builds the Workpaper slot from st's prior-stage outputs. The
// numbers and citations it carries are always copied verbatim from
// st.Quantitative / st.Compliance / st.Divergence / st.Verdict; router is
// used only to narrate the findings section in prose, never to
// originate a number.
func Compose(ctx context.Context, router *llm.Router, st *pipeline.State) (*pipeline.Workpaper, error) {
	wp := &pipeline.Workpaper{
		LineItemTable: verdictMatches(st),
		Citations:     collectCitations(st),
	}

	narrative, outcome, err := router.Complete(ctx, llm.CompletionRequest{
		Prompt:      narrativePrompt(st),
		Temperature: 0.2,
		JSONMode:    false,
	})
	degraded := err != nil || outcome.Degraded
	if err != nil {
		narrative = fallbackNarrative(st)
	}

	for _, name := range sectionOrder {
		wp.Sections = append(wp.Sections, pipeline.WorkpaperSection{
			Name: name,
			Text: sectionText(name, st, narrative, degraded),
		})
	}

	wp.ComplianceNarrative = complianceNarrative(st)
	wp.DivergenceNarrative = divergenceNarrative(st)
	return wp, nil
}

func verdictMatches(st *pipeline.State) []pipeline.LineItemMatch {
	if st.Verdict == nil {
		return nil
	}
	return st.Verdict.LineItemMatches
}

// collectCitations gathers every citation attached to an extracted value
// that participates in the verdict.
func collectCitations(st *pipeline.State) []pipeline.Citation {
	var out []pipeline.Citation
	add := func(c pipeline.Citation) {
		out = append(out, c)
	}
	for _, ed := range []*pipeline.ExtractedDocument{st.ExtractedPO, st.ExtractedGRN, st.ExtractedInvoice} {
		if ed == nil {
			continue
		}
		add(ed.Document.Totals.SubtotalCitation)
		add(ed.Document.Totals.TaxCitation)
		add(ed.Document.Totals.GrandCitation)
		for _, li := range ed.Document.LineItems {
			add(li.Citation)
		}
	}
	return out
}

func narrativePrompt(st *pipeline.State) string {
	var b strings.Builder
	b.WriteString("Write a brief auditor's narrative for this three-way reconciliation. ")
	b.WriteString("Summarize the findings and recommendation in plain prose.\n\n")
	if st.Verdict != nil {
		fmt.Fprintf(&b, "Status: %s, recommendation: %s, confidence: %.2f\n",
			st.Verdict.OverallStatus, st.Verdict.Recommendation, st.Verdict.Confidence)
		for _, d := range st.Verdict.DiscrepancySummary {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	return b.String()
}

// fallbackNarrative is used when the router itself errors outright (every
// provider, including the terminal one, failed — a misconfiguration, not
// an expected outage path); the section text still carries real findings
// instead of leaving the workpaper incomplete.
func fallbackNarrative(st *pipeline.State) string {
	if st.Verdict == nil {
		return "No verdict was produced for this session."
	}
	return fmt.Sprintf("Automated summary unavailable; recommendation is %s with confidence %.2f.",
		st.Verdict.Recommendation, st.Verdict.Confidence)
}

func sectionText(name string, st *pipeline.State, narrative string, degraded bool) string {
	switch name {
	case "objective":
		return "Verify that the purchase order, goods receipt, and supplier invoice agree on quantity, price, and description before authorizing payment."
	case "procedure":
		return "Extracted each document's canonical fields with spatial citations, recomputed all arithmetic independently, cross-matched line items by description and part number, and ran a dual-stream divergence check on the extracted reasoning."
	case "findings":
		text := narrative
		if degraded {
			text += "\n\n(Narrative generated in degraded mode; verify against the structured findings below.)"
		}
		return text
	case "materiality":
		return materialityText(st)
	case "conclusion":
		if st.Verdict == nil {
			return "No conclusion reached: the session did not produce a verdict."
		}
		return fmt.Sprintf("Overall status: %s. Recommendation: %s.", st.Verdict.OverallStatus, st.Verdict.Recommendation)
	default:
		return ""
	}
}

func materialityText(st *pipeline.State) string {
	if st.Quantitative == nil || len(st.Quantitative.Flags) == 0 {
		return "No arithmetic discrepancies were found between the documents."
	}
	return fmt.Sprintf("%d arithmetic discrepancy finding(s) were recorded; see the line-item table for detail.", len(st.Quantitative.Flags))
}

func complianceNarrative(st *pipeline.State) string {
	if st.Compliance == nil {
		return "Compliance review did not complete for this session."
	}
	if len(st.Compliance.Flags) == 0 && len(st.Compliance.PolicyViolations) == 0 {
		return fmt.Sprintf("No compliance concerns identified (risk score %.1f/10).", st.Compliance.RiskScore)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Risk score %.1f/10.", st.Compliance.RiskScore)
	for _, f := range st.Compliance.Flags {
		fmt.Fprintf(&b, " Flag: %s.", f)
	}
	for _, v := range st.Compliance.PolicyViolations {
		fmt.Fprintf(&b, " Violation: %s.", v)
	}
	return b.String()
}

func divergenceNarrative(st *pipeline.State) string {
	if st.Divergence == nil {
		return "Divergence guard did not complete for this session."
	}
	if st.Divergence.AlertTriggered {
		reason := st.Divergence.DegenerateReason
		if reason == "" {
			reason = "similarity below tenant threshold"
		}
		return fmt.Sprintf("Divergence alert triggered (%s): similarity %.4f vs threshold %.4f.",
			reason, st.Divergence.Similarity, st.Divergence.Threshold)
	}
	return fmt.Sprintf("No divergence detected: similarity %.4f vs threshold %.4f.",
		st.Divergence.Similarity, st.Divergence.Threshold)
}
