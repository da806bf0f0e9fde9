package agents

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeway/reconcile/internal/llm"
	"github.com/threeway/reconcile/internal/pipeline"
)

// stubProvider is an in-package llm.Provider fake shared by the agent
// tests, following the same hand-written-fake convention as
// internal/external's in-memory stores.
type stubProvider struct {
	name       string
	completeFn func(req llm.CompletionRequest) (string, error)
	vectorFn   func(prompt string) ([]float64, error)
}

func (s *stubProvider) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubProvider) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	if s.completeFn == nil {
		return "", fmt.Errorf("stub has no completeFn")
	}
	return s.completeFn(req)
}

func (s *stubProvider) ReasoningVector(_ context.Context, prompt string) ([]float64, error) {
	if s.vectorFn == nil {
		return nil, fmt.Errorf("stub has no vectorFn")
	}
	return s.vectorFn(prompt)
}

func newStubRouter(t *testing.T, dim int, providers ...llm.Provider) *llm.Router {
	t.Helper()
	r, err := llm.NewRouter(llm.Config{
		Providers:   providers,
		MaxRetries:  1,
		BaseBackoff: time.Millisecond,
		VectorDim:   dim,
	})
	require.NoError(t, err)
	return r
}

func basis(dim, axis int) []float64 {
	v := make([]float64, dim)
	v[axis] = 1
	return v
}

func TestDivergenceIdenticalContextsNoAlert(t *testing.T) {
	// No extracted documents: the primary context is empty, so the shadow
	// stream is byte-identical and both reasoning-vector prompts hash to
	// the same vector.
	const dim = 8
	provider := &stubProvider{vectorFn: func(prompt string) ([]float64, error) {
		return llm.HashEmbed(prompt, dim), nil
	}}
	st := pipeline.New("sess-ident", "tenant-a", pipeline.Document{}, pipeline.Document{}, pipeline.Document{})

	d := &Divergence{Router: newStubRouter(t, dim, provider)}
	require.NoError(t, d.Run(context.Background(), st))

	require.NotNil(t, st.Divergence)
	assert.InDelta(t, 1.0, st.Divergence.Similarity, 1e-9)
	assert.False(t, st.Divergence.AlertTriggered)
	assert.Zero(t, st.Divergence.PerturbationCount)
	assert.Equal(t, 0.85, st.Divergence.Threshold)
}

func TestDivergenceOrthogonalVectorsTriggerAlert(t *testing.T) {
	const dim = 8
	calls := 0
	provider := &stubProvider{vectorFn: func(string) ([]float64, error) {
		calls++
		return basis(dim, calls-1), nil
	}}
	st := pipeline.New("sess-diverge", "tenant-a", pipeline.Document{}, pipeline.Document{}, pipeline.Document{})

	d := &Divergence{Router: newStubRouter(t, dim, provider)}
	require.NoError(t, d.Run(context.Background(), st))

	require.NotNil(t, st.Divergence)
	assert.InDelta(t, 0.0, st.Divergence.Similarity, 1e-9)
	assert.True(t, st.Divergence.AlertTriggered)
	assert.Empty(t, st.Divergence.DegenerateReason)
}

func TestDivergenceZeroNormVectorIsDegenerate(t *testing.T) {
	const dim = 8
	provider := &stubProvider{vectorFn: func(string) ([]float64, error) {
		return make([]float64, dim), nil
	}}
	st := pipeline.New("sess-degen", "tenant-a", pipeline.Document{}, pipeline.Document{}, pipeline.Document{})

	d := &Divergence{Router: newStubRouter(t, dim, provider)}
	require.NoError(t, d.Run(context.Background(), st))

	require.NotNil(t, st.Divergence)
	assert.True(t, st.Divergence.AlertTriggered)
	assert.Equal(t, "VECTOR_DEGENERATE", st.Divergence.DegenerateReason)

	var sawDegenerate bool
	for _, e := range st.Errors {
		if e.Kind == pipeline.ErrorVectorDegenerate {
			sawDegenerate = true
		}
	}
	assert.True(t, sawDegenerate)
}

type fixedThreshold float64

func (f fixedThreshold) Threshold(context.Context, string) (float64, error) {
	return float64(f), nil
}

func TestDivergenceUsesTenantThreshold(t *testing.T) {
	const dim = 8
	calls := 0
	// cosine([1,0,...], [1,1,0,...]) = 1/sqrt(2) ~ 0.707: below the
	// default 0.85 but above a lenient tenant cutoff of 0.5.
	provider := &stubProvider{vectorFn: func(string) ([]float64, error) {
		calls++
		v := basis(dim, 0)
		if calls > 1 {
			v[1] = 1
		}
		return v, nil
	}}
	st := pipeline.New("sess-tenant", "tenant-lenient", pipeline.Document{}, pipeline.Document{}, pipeline.Document{})

	d := &Divergence{Router: newStubRouter(t, dim, provider), Thresholds: fixedThreshold(0.5)}
	require.NoError(t, d.Run(context.Background(), st))

	require.NotNil(t, st.Divergence)
	assert.Equal(t, 0.5, st.Divergence.Threshold)
	assert.False(t, st.Divergence.AlertTriggered)
}

func TestPerturbIsReproduciblePerSession(t *testing.T) {
	var text string
	for i := 0; i < 40; i++ {
		text += fmt.Sprintf("line %d amount 150.25 tax 12.40\n", i)
	}

	first, firstCount := perturb(text, "sess-fixed")
	second, secondCount := perturb(text, "sess-fixed")

	assert.Equal(t, first, second)
	assert.Equal(t, firstCount, secondCount)

	// Every literal in the output is still a well-formed two-decimal
	// amount, perturbed or not.
	money := regexp.MustCompile(`\b\d+\.\d{2}\b`)
	assert.Equal(t, len(money.FindAllString(text, -1)), len(money.FindAllString(first, -1)))
}
