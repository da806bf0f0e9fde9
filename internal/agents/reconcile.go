package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/threeway/reconcile/internal/decimal"
	"github.com/threeway/reconcile/internal/fuzzy"
	"github.com/threeway/reconcile/internal/pipeline"
)

// mismatchFlags are the flags that force an overall MISMATCH verdict
// regardless of the reconciliation table.
var mismatchFlags = map[pipeline.QuantitativeFlag]bool{
	pipeline.FlagShortDelivery:  true,
	pipeline.FlagOverbilling:    true,
	pipeline.FlagPriceDeviation: true,
	pipeline.FlagDocTotalArith:  true,
}

// Reconciler is the Reconciliation Agent.
type Reconciler struct{}

func (r *Reconciler) Run(ctx context.Context, st *pipeline.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	finish := trace(st, pipeline.StageReconciliation)

	matches := buildMatchTable(st)

	verdict := &pipeline.Verdict{LineItemMatches: matches}
	deriveVerdict(st, matches, verdict)

	st.Verdict = verdict
	finish(pipeline.OutcomeSuccess)
	return nil
}

// buildMatchTable pairs every PO line item with its best GRN and best
// Invoice counterpart: for each PO index i, the best GRN j* and best
// Invoice k* with score >= 70, or unmatched on that side.
func buildMatchTable(st *pipeline.State) []pipeline.LineItemMatch {
	var poDoc, grnDoc, invDoc *pipeline.Document
	if st.ExtractedPO != nil {
		poDoc = &st.ExtractedPO.Document
	}
	if st.ExtractedGRN != nil {
		grnDoc = &st.ExtractedGRN.Document
	}
	if st.ExtractedInvoice != nil {
		invDoc = &st.ExtractedInvoice.Document
	}
	if poDoc == nil || len(poDoc.LineItems) == 0 {
		return nil
	}

	grnItems := toItems(grnDoc)
	invItems := toItems(invDoc)

	matches := make([]pipeline.LineItemMatch, 0, len(poDoc.LineItems))
	for i, poLine := range poDoc.LineItems {
		target := fuzzy.Item{Description: poLine.Description, PartNumber: poLine.PartNumber}

		grnIdx, grnScore, grnOK := fuzzy.BestMatch(target, grnItems, fuzzy.AcceptanceThreshold)
		invIdx, invScore, invOK := fuzzy.BestMatch(target, invItems, fuzzy.AcceptanceThreshold)

		m := pipeline.LineItemMatch{POIndex: i, GRNIndex: -1, InvoiceIndex: -1}

		descScore := 0.0
		switch {
		case grnOK && invOK:
			descScore = math.Min(grnScore, invScore)
		case grnOK:
			descScore = grnScore
		case invOK:
			descScore = invScore
		}
		m.DescriptionScore = descScore

		outOfTolerance := 0
		if grnOK {
			m.GRNIndex = grnIdx
			delta := decimal.Sub(grnDoc.LineItems[grnIdx].Quantity, poLine.Quantity)
			m.QuantityDelta = delta
			if !decimal.EqualsWithin(grnDoc.LineItems[grnIdx].Quantity, poLine.Quantity, decimal.QuantityAbsTolerance) {
				outOfTolerance++
			}
		}
		if invOK {
			m.InvoiceIndex = invIdx
			priceDelta := decimal.Sub(invDoc.LineItems[invIdx].UnitPrice, poLine.UnitPrice)
			m.PriceDelta = priceDelta
			if decimal.RelativeDelta(poLine.UnitPrice, invDoc.LineItems[invIdx].UnitPrice).GreaterThan(decimal.PriceRelTolerance) {
				outOfTolerance++
			}
		}

		m.Status = classify(descScore, outOfTolerance)
		matches = append(matches, m)
	}
	return matches
}

func toItems(doc *pipeline.Document) []fuzzy.Item {
	if doc == nil {
		return nil
	}
	items := make([]fuzzy.Item, len(doc.LineItems))
	for i, li := range doc.LineItems {
		items[i] = fuzzy.Item{Description: li.Description, PartNumber: li.PartNumber}
	}
	return items
}

// classify derives the per-triple status. A description score in [70,85)
// with zero deltas out of tolerance is treated as partial_match: it is
// neither a full 85+ match nor a two-or-more-delta mismatch.
func classify(descScore float64, outOfTolerance int) pipeline.MatchStatus {
	switch {
	case descScore < fuzzy.AcceptanceThreshold || outOfTolerance >= 2:
		return pipeline.MatchMismatch
	case descScore >= fuzzy.FullDescriptionThreshold && outOfTolerance == 0:
		return pipeline.MatchFull
	default:
		return pipeline.MatchPartial
	}
}

// deriveVerdict derives the overall verdict:
// deterministic status/recommendation/confidence, in priority order.
func deriveVerdict(st *pipeline.State, matches []pipeline.LineItemMatch, v *pipeline.Verdict) {
	if st.Divergence != nil && st.Divergence.AlertTriggered {
		v.OverallStatus = pipeline.OverallDivergenceAlert
		v.Recommendation = pipeline.RecommendEscalate
		v.Confidence = confidence(matches, st)
		v.DiscrepancySummary = summarize(st, matches)
		return
	}

	hasMismatchTriple := false
	for _, m := range matches {
		if m.Status == pipeline.MatchMismatch {
			hasMismatchTriple = true
			break
		}
	}
	hasMismatchFlag := false
	lineArithOrTaxOnly := len(matches) > 0
	if st.Quantitative != nil {
		for _, f := range st.Quantitative.Flags {
			if mismatchFlags[f.Flag] {
				hasMismatchFlag = true
			}
			if f.Flag != pipeline.FlagLineArithmetic && f.Flag != pipeline.FlagTaxComposition {
				lineArithOrTaxOnly = false
			}
		}
	}
	hasAnyFlag := st.Quantitative != nil && len(st.Quantitative.Flags) > 0

	switch {
	case len(matches) == 0:
		v.OverallStatus = pipeline.OverallMismatch
		v.Recommendation = pipeline.RecommendHold
	case hasMismatchTriple || hasMismatchFlag:
		v.OverallStatus = pipeline.OverallMismatch
		v.Recommendation = pipeline.RecommendHold
		if st.Compliance != nil && st.Compliance.RiskScore >= 7 {
			v.Recommendation = pipeline.RecommendReject
		}
	case hasAnyFlag && lineArithOrTaxOnly:
		v.OverallStatus = pipeline.OverallPartialMatch
		v.Recommendation = pipeline.RecommendHold
	default:
		v.OverallStatus = pipeline.OverallFullMatch
		v.Recommendation = pipeline.RecommendApprove
	}

	v.Confidence = confidence(matches, st)
	v.DiscrepancySummary = summarize(st, matches)
}

func confidence(matches []pipeline.LineItemMatch, st *pipeline.State) float64 {
	avgDesc := 0.0
	if len(matches) > 0 {
		sum := 0.0
		for _, m := range matches {
			sum += m.DescriptionScore
		}
		avgDesc = sum / float64(len(matches)) / 100
	}
	similarity := 1.0
	if st.Divergence != nil {
		similarity = st.Divergence.Similarity
	}
	riskComponent := 1.0
	if st.Compliance != nil {
		riskComponent = 1 - st.Compliance.RiskScore/10
	}
	c := avgDesc*0.5 + similarity*0.3 + riskComponent*0.2
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

// summarize builds up to 5 short human-readable findings.
func summarize(st *pipeline.State, matches []pipeline.LineItemMatch) []string {
	var out []string
	add := func(s string) {
		if len(out) < 5 {
			out = append(out, s)
		}
	}
	if st.Quantitative != nil {
		for _, f := range st.Quantitative.Flags {
			add(fmt.Sprintf("%s: %s", f.Flag, f.Description))
		}
	}
	for _, m := range matches {
		if m.Status == pipeline.MatchMismatch {
			add(fmt.Sprintf("PO line %d: no reliable cross-document match (score %.0f)", m.POIndex, m.DescriptionScore))
		}
	}
	if st.Compliance != nil {
		for _, f := range st.Compliance.Flags {
			add("compliance: " + f)
		}
	}
	return out
}
