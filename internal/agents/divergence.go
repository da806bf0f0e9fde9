package agents

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/threeway/reconcile/internal/llm"
	"github.com/threeway/reconcile/internal/pipeline"
)

// numericLiteral matches the two-decimal money literals the shadow
// stream perturbs.
var numericLiteral = regexp.MustCompile(`\b\d+\.\d{2}\b`)

// perturbFactors are the uniformly-chosen multipliers applied to a
// perturbed literal.
var perturbFactors = []float64{0.95, 1.05, 0.90, 1.10}

// perturbProbability is the independent per-literal perturbation chance.
const perturbProbability = 0.15

// ThresholdSource looks up the per-tenant divergence cutoff,
// satisfied by *threshold.Store.
type ThresholdSource interface {
	Threshold(ctx context.Context, tenantID string) (float64, error)
}

// Divergence is the Divergence Guard, the pipeline's
// hallucination detector.
type Divergence struct {
	Router     *llm.Router
	Thresholds ThresholdSource
}

func (d *Divergence) Run(ctx context.Context, st *pipeline.State) error {
	finish := trace(st, pipeline.StageDivergenceGuard)

	primaryContext := buildPrimaryContext(st)
	shadowContext, perturbCount := perturb(primaryContext, st.SessionID)

	primaryVec, primaryOutcome, err := d.Router.ReasoningVector(ctx, analysisPrompt(primaryContext))
	if err != nil {
		st.AppendError(pipeline.StageError{Stage: pipeline.StageDivergenceGuard, Kind: pipeline.ErrorUpstreamUnavail, Message: err.Error()})
		finish(pipeline.OutcomeFailed)
		return nil
	}
	shadowVec, shadowOutcome, err := d.Router.ReasoningVector(ctx, analysisPrompt(shadowContext))
	if err != nil {
		st.AppendError(pipeline.StageError{Stage: pipeline.StageDivergenceGuard, Kind: pipeline.ErrorUpstreamUnavail, Message: err.Error()})
		finish(pipeline.OutcomeFailed)
		return nil
	}

	tenantThreshold := 0.85
	if d.Thresholds != nil {
		if t, err := d.Thresholds.Threshold(ctx, st.TenantID); err == nil {
			tenantThreshold = t
		}
	}

	similarity := cosine(primaryVec, shadowVec)
	metrics := &pipeline.DivergenceMetrics{
		Threshold:         tenantThreshold,
		Degraded:          primaryOutcome.Degraded || shadowOutcome.Degraded,
		PerturbationCount: perturbCount,
	}

	if math.IsNaN(similarity) || math.IsInf(similarity, 0) {
		metrics.AlertTriggered = true
		metrics.DegenerateReason = "VECTOR_DEGENERATE"
		metrics.Similarity = 0
		st.AppendError(pipeline.StageError{Stage: pipeline.StageDivergenceGuard, Kind: pipeline.ErrorVectorDegenerate, Message: "reasoning vector is non-finite"})
	} else {
		metrics.Similarity = similarity
		metrics.AlertTriggered = similarity < tenantThreshold
	}

	st.Divergence = metrics
	finish(pipeline.OutcomeSuccess)
	return nil
}

// buildPrimaryContext canonically concatenates every extracted field into
// text for the reasoning-vector prompt.
func buildPrimaryContext(st *pipeline.State) string {
	var b strings.Builder
	for _, ed := range []*pipeline.ExtractedDocument{st.ExtractedPO, st.ExtractedGRN, st.ExtractedInvoice} {
		if ed == nil {
			continue
		}
		doc := ed.Document
		fmt.Fprintf(&b, "%s %s %s %s %s\n", ed.SourceKind, doc.VendorName, doc.DocumentNumber, doc.DocumentDate, doc.Currency)
		for _, li := range doc.LineItems {
			fmt.Fprintf(&b, "%s %s %s %s\n", li.Description, li.Quantity, li.UnitPrice, li.ClaimedTotal)
		}
		fmt.Fprintf(&b, "%s %s %s\n", doc.Totals.Subtotal, doc.Totals.Tax, doc.Totals.GrandTotal)
	}
	return b.String()
}

func analysisPrompt(context string) string {
	return "Summarize the key financial facts in this document set:\n" + context
}

// perturb derives a shadow stream from primary by independently
// perturbing each two-decimal numeric literal with probability
// perturbProbability, seeded from sessionID so the result is reproducible.
func perturb(primary, sessionID string) (string, int) {
	rng := seededRand(sessionID)
	count := 0
	out := numericLiteral.ReplaceAllStringFunc(primary, func(lit string) string {
		if rng.Float64() >= perturbProbability {
			return lit
		}
		count++
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return lit
		}
		factor := perturbFactors[rng.IntN(len(perturbFactors))]
		return strconv.FormatFloat(math.Round(v*factor*100)/100, 'f', 2, 64)
	})
	return out, count
}

// seededRand derives a reproducible generator from sessionID.
func seededRand(sessionID string) *rand.Rand {
	h := sha256.Sum256([]byte(sessionID))
	s1 := binary.BigEndian.Uint64(h[0:8])
	s2 := binary.BigEndian.Uint64(h[8:16])
	return rand.New(rand.NewPCG(s1, s2))
}

// cosine computes cosine similarity between two equal-length vectors,
// returning NaN for a zero-norm vector so the degenerate-vector path in
// Run can detect it.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
