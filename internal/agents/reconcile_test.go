package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeway/reconcile/internal/pipeline"
)

func TestReconcilerRunFullMatch(t *testing.T) {
	po := cleanDoc(pipeline.KindPO, "10")
	grn := cleanDoc(pipeline.KindGRN, "10")
	invoice := cleanDoc(pipeline.KindInvoice, "10")
	st := newQuantState(po, grn, invoice)
	st.Divergence = &pipeline.DivergenceMetrics{Similarity: 0.99, Threshold: 0.85}

	r := &Reconciler{}
	require.NoError(t, r.Run(context.Background(), st))

	require.NotNil(t, st.Verdict)
	assert.Equal(t, pipeline.OverallFullMatch, st.Verdict.OverallStatus)
	assert.Equal(t, pipeline.RecommendApprove, st.Verdict.Recommendation)
	assert.Len(t, st.Verdict.LineItemMatches, 1)
}

func TestReconcilerRunDivergenceAlertOverridesEverything(t *testing.T) {
	po := cleanDoc(pipeline.KindPO, "10")
	st := newQuantState(po, po, po)
	st.Divergence = &pipeline.DivergenceMetrics{Similarity: 0.2, Threshold: 0.85, AlertTriggered: true}

	r := &Reconciler{}
	require.NoError(t, r.Run(context.Background(), st))

	assert.Equal(t, pipeline.OverallDivergenceAlert, st.Verdict.OverallStatus)
	assert.Equal(t, pipeline.RecommendEscalate, st.Verdict.Recommendation)
}

func TestReconcilerRunMismatchEscalatesToRejectOnHighRisk(t *testing.T) {
	po := cleanDoc(pipeline.KindPO, "10")
	grn := cleanDoc(pipeline.KindGRN, "2") // severe short delivery -> mismatch flag
	invoice := cleanDoc(pipeline.KindInvoice, "10")
	st := newQuantState(po, grn, invoice)
	st.Divergence = &pipeline.DivergenceMetrics{Similarity: 0.95, Threshold: 0.85}
	st.Compliance = &pipeline.ComplianceReport{RiskScore: 8}

	q := &Quantitative{}
	require.NoError(t, q.Run(context.Background(), st))

	r := &Reconciler{}
	require.NoError(t, r.Run(context.Background(), st))

	assert.Equal(t, pipeline.OverallMismatch, st.Verdict.OverallStatus)
	assert.Equal(t, pipeline.RecommendReject, st.Verdict.Recommendation)
}

func TestReconcilerRunMismatchHoldsOnLowRisk(t *testing.T) {
	po := cleanDoc(pipeline.KindPO, "10")
	grn := cleanDoc(pipeline.KindGRN, "2")
	invoice := cleanDoc(pipeline.KindInvoice, "10")
	st := newQuantState(po, grn, invoice)
	st.Divergence = &pipeline.DivergenceMetrics{Similarity: 0.95, Threshold: 0.85}
	st.Compliance = &pipeline.ComplianceReport{RiskScore: 2}

	q := &Quantitative{}
	require.NoError(t, q.Run(context.Background(), st))

	r := &Reconciler{}
	require.NoError(t, r.Run(context.Background(), st))

	assert.Equal(t, pipeline.OverallMismatch, st.Verdict.OverallStatus)
	assert.Equal(t, pipeline.RecommendHold, st.Verdict.Recommendation)
}

func TestReconcilerRunNoPOLineItemsIsMismatch(t *testing.T) {
	po := pipeline.Document{Kind: pipeline.KindPO}
	st := newQuantState(po, po, po)
	st.Divergence = &pipeline.DivergenceMetrics{Similarity: 0.99, Threshold: 0.85}

	r := &Reconciler{}
	require.NoError(t, r.Run(context.Background(), st))

	assert.Equal(t, pipeline.OverallMismatch, st.Verdict.OverallStatus)
	assert.Equal(t, pipeline.RecommendHold, st.Verdict.Recommendation)
	assert.Empty(t, st.Verdict.LineItemMatches)
}
