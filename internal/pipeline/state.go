package pipeline

import (
	"time"

	"github.com/threeway/reconcile/internal/decimal"
)

// Stage is a tagged variant of the supervisor's finite stage list:
// dispatch is driven by this explicit enumeration, never by dynamic
// agent lookup.
type Stage string

const (
	StageExtraction      Stage = "extraction"
	StageQuantitative    Stage = "quantitative"
	StageCompliance      Stage = "compliance"
	StageDivergenceGuard Stage = "divergence_guard"
	StageReconciliation  Stage = "reconciliation"
	StageDrafting        Stage = "drafting"
	StageEnd             Stage = "end"
)

// Outcome is the terminal disposition of one stage's execution, recorded
// in the agent trace.
type Outcome string

const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomePartial   Outcome = "PARTIAL"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeTimeout   Outcome = "TIMEOUT"
	OutcomeCancelled Outcome = "CANCELLED"
	OutcomeSkipped   Outcome = "SKIPPED"
)

// TraceEntry is one append-only record of a stage's execution.
type TraceEntry struct {
	Stage      Stage
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	DurationMs int64
}

// ErrorKind classifies a recorded stage error.
type ErrorKind string

const (
	ErrorParseError         ErrorKind = "PARSE_ERROR"
	ErrorUpstreamUnavail    ErrorKind = "UPSTREAM_UNAVAILABLE"
	ErrorTimeout            ErrorKind = "TIMEOUT"
	ErrorContractViolation  ErrorKind = "CONTRACT_VIOLATION"
	ErrorCancelled          ErrorKind = "CANCELLED"
	ErrorVectorDegenerate   ErrorKind = "VECTOR_DEGENERATE"
	ErrorUnresolvedCitation ErrorKind = "UNRESOLVED_CITATION"
	ErrorUnavailableInput   ErrorKind = "UNAVAILABLE_INPUT"
)

// StageError is one entry of the state's append-only error list.
type StageError struct {
	Stage   Stage
	Kind    ErrorKind
	Message string
	Fatal   bool
}

// SessionStatus is the terminal, user-visible status of a session.
type SessionStatus string

const (
	StatusPending          SessionStatus = "PENDING"
	StatusProcessing       SessionStatus = "PROCESSING"
	StatusMatched          SessionStatus = "MATCHED"
	StatusDiscrepancyFound SessionStatus = "DISCREPANCY_FOUND"
	StatusDivergenceAlert  SessionStatus = "DIVERGENCE_ALERT"
	StatusException        SessionStatus = "EXCEPTION"
	StatusFailed           SessionStatus = "FAILED"
	StatusCancelled        SessionStatus = "CANCELLED"
)

// ExtractedDocument is the canonical structured form produced by the
// Extraction Agent for one input document.
type ExtractedDocument struct {
	SourceKind Kind
	Document   Document
	Warnings   []string
}

// QuantitativeFlag enumerates the deterministic arithmetic findings.
type QuantitativeFlag string

const (
	FlagLineArithmetic QuantitativeFlag = "LINE_ARITHMETIC"
	FlagDocTotalArith  QuantitativeFlag = "DOC_TOTAL_ARITHMETIC"
	FlagTaxComposition QuantitativeFlag = "TAX_COMPOSITION"
	FlagShortDelivery  QuantitativeFlag = "SHORT_DELIVERY"
	FlagOverbilling    QuantitativeFlag = "OVERBILLING"
	FlagPriceDeviation QuantitativeFlag = "PRICE_DEVIATION"
)

// QuantitativeFinding pairs a flag with the context needed to cite it.
type QuantitativeFinding struct {
	Flag        QuantitativeFlag
	Description string
	DocKind     Kind // which document the finding is about, when single-doc
	LineIndex   int  // -1 when the finding is document-level, not line-level
}

// QuantitativeReport is the Quantitative Agent's output slot.
type QuantitativeReport struct {
	Flags        []QuantitativeFinding
	MathVerified bool
}

// ComplianceReport is the Compliance Agent's output slot.
type ComplianceReport struct {
	RiskScore        float64 // [0,10]
	Flags            []string
	PolicyViolations []string
}

// DivergenceMetrics is the Divergence Guard's output slot.
type DivergenceMetrics struct {
	Similarity        float64
	Threshold         float64
	AlertTriggered    bool
	DegenerateReason  string // set when similarity is non-finite
	Degraded          bool   // true when the deterministic provider answered either reasoningVector call
	PerturbationCount int
}

// LineItemMatch is one row of the cross-document match table.
type LineItemMatch struct {
	POIndex          int // -1 if unmatched
	GRNIndex         int // -1 if unmatched
	InvoiceIndex     int // -1 if unmatched
	DescriptionScore float64
	QuantityDelta    decimal.D
	PriceDelta       decimal.D
	Status           MatchStatus
}

// MatchStatus classifies one cross-document match triple.
type MatchStatus string

const (
	MatchFull     MatchStatus = "full_match"
	MatchPartial  MatchStatus = "partial_match"
	MatchMismatch MatchStatus = "mismatch"
)

// OverallStatus is the verdict's headline classification.
type OverallStatus string

const (
	OverallFullMatch       OverallStatus = "FULL_MATCH"
	OverallPartialMatch    OverallStatus = "PARTIAL_MATCH"
	OverallMismatch        OverallStatus = "MISMATCH"
	OverallException       OverallStatus = "EXCEPTION"
	OverallDivergenceAlert OverallStatus = "DIVERGENCE_ALERT"
)

// Recommendation is the verdict's action recommendation.
type Recommendation string

const (
	RecommendApprove  Recommendation = "APPROVE"
	RecommendHold     Recommendation = "HOLD"
	RecommendReject   Recommendation = "REJECT"
	RecommendEscalate Recommendation = "ESCALATE"
)

// Verdict is the pipeline's final numerical conclusion.
type Verdict struct {
	OverallStatus      OverallStatus
	Confidence         float64
	LineItemMatches    []LineItemMatch
	DiscrepancySummary []string // up to 5 entries
	Recommendation     Recommendation
}

// Workpaper is the Drafting Agent's output slot. Its shape is defined here
// and internal/workpaper composes it (workpaper depends on pipeline's
// types, not vice versa).
type Workpaper struct {
	Sections            []WorkpaperSection
	LineItemTable       []LineItemMatch
	ComplianceNarrative string
	DivergenceNarrative string
	Citations           []Citation
}

// WorkpaperSection is one labeled section of the composed workpaper.
type WorkpaperSection struct {
	Name string // objective | procedure | findings | materiality | conclusion
	Text string
}

// State is the single mutable record one reconciliation session owns.
// It is single-writer per stage: the
// supervisor enforces that only the currently active stage mutates it,
// so no internal locking is required.
type State struct {
	SessionID string
	TenantID  string

	PO      Document
	GRN     Document
	Invoice Document

	ExtractedPO      *ExtractedDocument
	ExtractedGRN     *ExtractedDocument
	ExtractedInvoice *ExtractedDocument

	Quantitative *QuantitativeReport
	Compliance   *ComplianceReport
	Divergence   *DivergenceMetrics
	Verdict      *Verdict
	Workpaper    *Workpaper

	AgentTrace []TraceEntry
	Errors     []StageError

	CurrentStage Stage
	NextAction   Stage

	Status SessionStatus
}

// New creates a PipelineState transitioning a session from PENDING to
// PROCESSING.
func New(sessionID, tenantID string, po, grn, invoice Document) *State {
	return &State{
		SessionID:    sessionID,
		TenantID:     tenantID,
		PO:           po,
		GRN:          grn,
		Invoice:      invoice,
		CurrentStage: StageExtraction,
		Status:       StatusProcessing,
	}
}

// AppendTrace appends a trace entry. The caller is responsible for
// maintaining monotonic StartedAt ordering; the callers are the agents'
// trace helper and the supervisor, which runs stages strictly in sequence.
func (s *State) AppendTrace(entry TraceEntry) {
	s.AgentTrace = append(s.AgentTrace, entry)
}

// AppendError appends a non-fatal or fatal error record.
func (s *State) AppendError(e StageError) {
	s.Errors = append(s.Errors, e)
}

// HasFatalError reports whether any recorded error is fatal.
func (s *State) HasFatalError() bool {
	for _, e := range s.Errors {
		if e.Fatal {
			return true
		}
	}
	return false
}

// ExtractedCount reports how many of the three documents were extracted
// successfully, used by the supervisor's partial-success routing.
func (s *State) ExtractedCount() int {
	n := 0
	if s.ExtractedPO != nil {
		n++
	}
	if s.ExtractedGRN != nil {
		n++
	}
	if s.ExtractedInvoice != nil {
		n++
	}
	return n
}
