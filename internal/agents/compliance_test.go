package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeway/reconcile/internal/llm"
	"github.com/threeway/reconcile/internal/pipeline"
)

func complianceState() *pipeline.State {
	po := cleanDoc(pipeline.KindPO, "10")
	st := newQuantState(po, po, po)
	st.Quantitative = &pipeline.QuantitativeReport{MathVerified: true}
	return st
}

func TestComplianceParsesLenientTypes(t *testing.T) {
	// A model in JSON mode still occasionally quotes a number or mixes
	// types inside an array; the agent coerces rather than failing.
	provider := &stubProvider{completeFn: func(llm.CompletionRequest) (string, error) {
		return `{"riskScore": "7", "flags": ["vendor unknown", {"nested": true}], "policyViolations": []}`, nil
	}}
	st := complianceState()

	c := &Compliance{Router: newStubRouter(t, 8, provider)}
	require.NoError(t, c.Run(context.Background(), st))

	require.NotNil(t, st.Compliance)
	assert.Equal(t, 7.0, st.Compliance.RiskScore)
	assert.Equal(t, []string{"vendor unknown"}, st.Compliance.Flags)
}

func TestComplianceClampsRiskScore(t *testing.T) {
	provider := &stubProvider{completeFn: func(llm.CompletionRequest) (string, error) {
		return `{"riskScore": 99, "flags": [], "policyViolations": []}`, nil
	}}
	st := complianceState()

	c := &Compliance{Router: newStubRouter(t, 8, provider)}
	require.NoError(t, c.Run(context.Background(), st))

	assert.Equal(t, 10.0, st.Compliance.RiskScore)
}

func TestComplianceDropsUncorroboratedArithmeticClaims(t *testing.T) {
	provider := &stubProvider{completeFn: func(llm.CompletionRequest) (string, error) {
		return `{"riskScore": 3, "flags": ["tax total looks wrong", "vendor unknown"], "policyViolations": []}`, nil
	}}
	st := complianceState() // quantitative found nothing

	c := &Compliance{Router: newStubRouter(t, 8, provider)}
	require.NoError(t, c.Run(context.Background(), st))

	// The arithmetic claim is gone; the non-numeric claim survives.
	assert.Equal(t, []string{"vendor unknown"}, st.Compliance.Flags)
}

func TestComplianceKeepsArithmeticClaimsWhenQuantitativeAgrees(t *testing.T) {
	provider := &stubProvider{completeFn: func(llm.CompletionRequest) (string, error) {
		return `{"riskScore": 3, "flags": ["tax total looks wrong"], "policyViolations": []}`, nil
	}}
	st := complianceState()
	st.Quantitative.Flags = []pipeline.QuantitativeFinding{{Flag: pipeline.FlagTaxComposition, LineIndex: -1}}

	c := &Compliance{Router: newStubRouter(t, 8, provider)}
	require.NoError(t, c.Run(context.Background(), st))

	assert.Equal(t, []string{"tax total looks wrong"}, st.Compliance.Flags)
}

func TestComplianceDegradedProviderRecordsUpstreamUnavailable(t *testing.T) {
	failing := &stubProvider{name: "primary", completeFn: func(llm.CompletionRequest) (string, error) {
		return "", errors.New("simulated outage")
	}}
	fallback := &stubProvider{name: "fallback", completeFn: func(llm.CompletionRequest) (string, error) {
		return `{"riskScore": 0, "flags": [], "policyViolations": []}`, nil
	}}
	st := complianceState()

	c := &Compliance{Router: newStubRouter(t, 8, failing, fallback)}
	require.NoError(t, c.Run(context.Background(), st))

	require.NotNil(t, st.Compliance)
	var sawUpstream bool
	for _, e := range st.Errors {
		if e.Kind == pipeline.ErrorUpstreamUnavail {
			sawUpstream = true
		}
	}
	assert.True(t, sawUpstream)
}

func TestComplianceMalformedPayloadIsNonFatal(t *testing.T) {
	provider := &stubProvider{completeFn: func(llm.CompletionRequest) (string, error) {
		return "no json here at all", nil
	}}
	st := complianceState()

	c := &Compliance{Router: newStubRouter(t, 8, provider)}
	require.NoError(t, c.Run(context.Background(), st))

	assert.Nil(t, st.Compliance)
	var sawParse bool
	for _, e := range st.Errors {
		if e.Kind == pipeline.ErrorParseError && e.Stage == pipeline.StageCompliance {
			sawParse = true
		}
	}
	assert.True(t, sawParse)
}
