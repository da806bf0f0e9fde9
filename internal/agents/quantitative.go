package agents

import (
	"context"
	"fmt"

	"github.com/threeway/reconcile/internal/decimal"
	"github.com/threeway/reconcile/internal/fuzzy"
	"github.com/threeway/reconcile/internal/pipeline"
)

// Quantitative is the Quantitative Agent: pure
// deterministic arithmetic and cross-document comparison, no LLM calls.
type Quantitative struct{}

// Run recomputes every document's arithmetic and cross-checks matched
// line items across the three documents, writing quantitativeReport. ctx
// carries only cancellation: this agent never suspends.
func (q *Quantitative) Run(ctx context.Context, st *pipeline.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	finish := trace(st, pipeline.StageQuantitative)

	report := &pipeline.QuantitativeReport{MathVerified: true}

	for _, ed := range []*pipeline.ExtractedDocument{st.ExtractedPO, st.ExtractedGRN, st.ExtractedInvoice} {
		if ed == nil {
			continue
		}
		within(&ed.Document, report)
	}

	if st.ExtractedPO != nil && st.ExtractedGRN != nil {
		crossCheck(&st.ExtractedPO.Document, &st.ExtractedGRN.Document, report)
	}
	if st.ExtractedPO != nil && st.ExtractedInvoice != nil {
		crossCheck(&st.ExtractedPO.Document, &st.ExtractedInvoice.Document, report)
	}
	if st.ExtractedGRN != nil && st.ExtractedInvoice != nil {
		crossCheckDeliveryAndBilling(&st.ExtractedGRN.Document, &st.ExtractedInvoice.Document, report)
	}

	report.MathVerified = len(report.Flags) == 0
	st.Quantitative = report
	finish(pipeline.OutcomeSuccess)
	return nil
}

// within recomputes a single document's internal arithmetic.
func within(doc *pipeline.Document, report *pipeline.QuantitativeReport) {
	lineSum := decimal.Zero
	for i, li := range doc.LineItems {
		recomputed := decimal.Mul(li.Quantity, li.UnitPrice)
		if !decimal.EqualsWithin(recomputed, li.ClaimedTotal, decimal.MoneyAbsTolerance) {
			report.Flags = append(report.Flags, pipeline.QuantitativeFinding{
				Flag:        pipeline.FlagLineArithmetic,
				Description: fmt.Sprintf("%s line %d: qty*price=%s but claimed total=%s", doc.Kind, i, recomputed, li.ClaimedTotal),
				DocKind:     doc.Kind,
				LineIndex:   i,
			})
		}
		lineSum = decimal.Add(lineSum, li.ClaimedTotal)
	}

	if !decimal.EqualsWithin(lineSum, doc.Totals.GrandTotal, decimal.MoneyAbsTolerance) {
		report.Flags = append(report.Flags, pipeline.QuantitativeFinding{
			Flag:        pipeline.FlagDocTotalArith,
			Description: fmt.Sprintf("%s: line items sum to %s but grandTotal=%s", doc.Kind, lineSum, doc.Totals.GrandTotal),
			DocKind:     doc.Kind,
			LineIndex:   -1,
		})
	}

	composed := decimal.Add(doc.Totals.Subtotal, doc.Totals.Tax)
	if !decimal.EqualsWithin(composed, doc.Totals.GrandTotal, decimal.MoneyAbsTolerance) {
		report.Flags = append(report.Flags, pipeline.QuantitativeFinding{
			Flag:        pipeline.FlagTaxComposition,
			Description: fmt.Sprintf("%s: subtotal+tax=%s but grandTotal=%s", doc.Kind, composed, doc.Totals.GrandTotal),
			DocKind:     doc.Kind,
			LineIndex:   -1,
		})
	}
}

// matchLines pairs a's line items to b's by fuzzy description/part-number
// match, above the acceptance threshold.
func matchLines(a, b *pipeline.Document) map[int]int {
	bItems := make([]fuzzy.Item, len(b.LineItems))
	for i, li := range b.LineItems {
		bItems[i] = fuzzy.Item{Description: li.Description, PartNumber: li.PartNumber}
	}
	matches := make(map[int]int)
	for i, li := range a.LineItems {
		target := fuzzy.Item{Description: li.Description, PartNumber: li.PartNumber}
		j, _, ok := fuzzy.BestMatch(target, bItems, fuzzy.AcceptanceThreshold)
		if ok {
			matches[i] = j
		}
	}
	return matches
}

// crossCheck applies the PO vs {GRN,Invoice} cross-document checks: PO
// is always the "a" side, so GRN/Invoice-specific flags are chosen by kind.
func crossCheck(po, other *pipeline.Document, report *pipeline.QuantitativeReport) {
	matches := matchLines(po, other)
	for i, j := range matches {
		poLine := po.LineItems[i]
		otherLine := other.LineItems[j]

		switch other.Kind {
		case pipeline.KindGRN:
			if otherLine.Quantity.LessThan(poLine.Quantity) {
				report.Flags = append(report.Flags, pipeline.QuantitativeFinding{
					Flag:        pipeline.FlagShortDelivery,
					Description: fmt.Sprintf("PO line %d qty=%s but GRN line %d qty=%s", i, poLine.Quantity, j, otherLine.Quantity),
					DocKind:     pipeline.KindGRN,
					LineIndex:   j,
				})
			}
		case pipeline.KindInvoice:
			if decimal.RelativeDelta(poLine.UnitPrice, otherLine.UnitPrice).GreaterThan(decimal.PriceRelTolerance) {
				report.Flags = append(report.Flags, pipeline.QuantitativeFinding{
					Flag:        pipeline.FlagPriceDeviation,
					Description: fmt.Sprintf("PO line %d unitPrice=%s but Invoice line %d unitPrice=%s", i, poLine.UnitPrice, j, otherLine.UnitPrice),
					DocKind:     pipeline.KindInvoice,
					LineIndex:   j,
				})
			}
		}
	}
}

// crossCheckDeliveryAndBilling applies the GRN vs Invoice OVERBILLING
// check.
func crossCheckDeliveryAndBilling(grn, invoice *pipeline.Document, report *pipeline.QuantitativeReport) {
	matches := matchLines(grn, invoice)
	for i, j := range matches {
		grnLine := grn.LineItems[i]
		invLine := invoice.LineItems[j]
		if invLine.Quantity.GreaterThan(grnLine.Quantity) {
			report.Flags = append(report.Flags, pipeline.QuantitativeFinding{
				Flag:        pipeline.FlagOverbilling,
				Description: fmt.Sprintf("GRN line %d qty=%s but Invoice line %d qty=%s", i, grnLine.Quantity, j, invLine.Quantity),
				DocKind:     pipeline.KindInvoice,
				LineIndex:   j,
			})
		}
	}
}
