package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeway/reconcile/internal/decimal"
	"github.com/threeway/reconcile/internal/pipeline"
)

func lineItem(desc string, qty, price, total string) pipeline.LineItem {
	return pipeline.LineItem{
		Description:  desc,
		Quantity:     decimal.MustParse(qty),
		UnitPrice:    decimal.MustParse(price),
		ClaimedTotal: decimal.MustParse(total),
	}
}

func cleanDoc(kind pipeline.Kind, qty string) pipeline.Document {
	return pipeline.Document{
		Kind:      kind,
		LineItems: []pipeline.LineItem{lineItem("Widget A", qty, "50.00", mulStr(qty, "50.00"))},
		Totals: pipeline.Totals{
			Subtotal:   decimal.MustParse(mulStr(qty, "50.00")),
			Tax:        decimal.Zero,
			GrandTotal: decimal.MustParse(mulStr(qty, "50.00")),
		},
	}
}

func mulStr(qty, price string) string {
	return decimal.Mul(decimal.MustParse(qty), decimal.MustParse(price)).String()
}

func newQuantState(po, grn, invoice pipeline.Document) *pipeline.State {
	st := pipeline.New("s1", "tenant-a", po, grn, invoice)
	st.ExtractedPO = &pipeline.ExtractedDocument{SourceKind: pipeline.KindPO, Document: po}
	st.ExtractedGRN = &pipeline.ExtractedDocument{SourceKind: pipeline.KindGRN, Document: grn}
	st.ExtractedInvoice = &pipeline.ExtractedDocument{SourceKind: pipeline.KindInvoice, Document: invoice}
	return st
}

func TestQuantitativeRunCleanDocumentsVerified(t *testing.T) {
	po := cleanDoc(pipeline.KindPO, "10")
	grn := cleanDoc(pipeline.KindGRN, "10")
	invoice := cleanDoc(pipeline.KindInvoice, "10")
	st := newQuantState(po, grn, invoice)

	q := &Quantitative{}
	require.NoError(t, q.Run(context.Background(), st))

	require.NotNil(t, st.Quantitative)
	assert.True(t, st.Quantitative.MathVerified)
	assert.Empty(t, st.Quantitative.Flags)
}

func TestQuantitativeRunFlagsShortDeliveryAndOverbilling(t *testing.T) {
	po := cleanDoc(pipeline.KindPO, "10")
	grn := cleanDoc(pipeline.KindGRN, "8") // delivered less than ordered
	invoice := cleanDoc(pipeline.KindInvoice, "10")
	st := newQuantState(po, grn, invoice)

	q := &Quantitative{}
	require.NoError(t, q.Run(context.Background(), st))

	var sawShortDelivery, sawOverbilling bool
	for _, f := range st.Quantitative.Flags {
		switch f.Flag {
		case pipeline.FlagShortDelivery:
			sawShortDelivery = true
		case pipeline.FlagOverbilling:
			sawOverbilling = true
		}
	}
	assert.True(t, sawShortDelivery, "expected SHORT_DELIVERY flag")
	assert.True(t, sawOverbilling, "expected OVERBILLING flag: invoice bills more than GRN delivered")
	assert.False(t, st.Quantitative.MathVerified)
}

func TestQuantitativeRunFlagsLineArithmeticMismatch(t *testing.T) {
	po := pipeline.Document{
		Kind: pipeline.KindPO,
		LineItems: []pipeline.LineItem{
			lineItem("Widget A", "10", "50.00", "999.00"), // wrong claimed total
		},
		Totals: pipeline.Totals{
			Subtotal:   decimal.MustParse("999.00"),
			Tax:        decimal.Zero,
			GrandTotal: decimal.MustParse("999.00"),
		},
	}
	st := newQuantState(po, po, po)

	q := &Quantitative{}
	require.NoError(t, q.Run(context.Background(), st))

	var sawLineArith bool
	for _, f := range st.Quantitative.Flags {
		if f.Flag == pipeline.FlagLineArithmetic {
			sawLineArith = true
		}
	}
	assert.True(t, sawLineArith)
}

func TestQuantitativeRunRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := newQuantState(cleanDoc(pipeline.KindPO, "1"), cleanDoc(pipeline.KindGRN, "1"), cleanDoc(pipeline.KindInvoice, "1"))
	q := &Quantitative{}
	err := q.Run(ctx, st)

	assert.Error(t, err)
	assert.Nil(t, st.Quantitative)
}
