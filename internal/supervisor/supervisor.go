// Package supervisor implements the pipeline orchestrator: a finite
// state machine over the fixed stage list
// [extraction, quantitative, compliance, divergence_guard, reconciliation,
// drafting, end], driving each agent in order through a tagged Stage
// enumeration and a fixed dispatch table rather than dynamic dispatch
// among agents. Transitions are fixed, not user-composed, so there is no
// generic graph builder here.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/threeway/reconcile/internal/logctx"
	"github.com/threeway/reconcile/internal/pipeline"
	"github.com/threeway/reconcile/internal/progress"
	"github.com/threeway/reconcile/internal/safeguard"
)

// Stage is anything the supervisor can run as a pipeline stage: every
// agent in internal/agents satisfies this by construction.
type Stage interface {
	Run(ctx context.Context, st *pipeline.State) error
}

// Config wires one instance of every agent plus the shared collaborators
// (progress bus, per-stage deadlines, logger).
type Config struct {
	Extraction      Stage
	Quantitative    Stage
	Compliance      Stage
	DivergenceGuard Stage
	Reconciliation  Stage
	Drafting        Stage

	Bus *progress.Bus

	// StageTimeout is the soft deadline for every stage except
	// DivergenceTimeout.
	StageTimeout time.Duration
	// DivergenceTimeout is the divergence guard's deadline, longer than
	// the default because it makes two LLM calls.
	DivergenceTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Extraction == nil || c.Quantitative == nil || c.Compliance == nil ||
		c.DivergenceGuard == nil || c.Reconciliation == nil || c.Drafting == nil {
		return errors.New("supervisor: config requires all six stage agents")
	}
	if c.Bus == nil {
		return errors.New("supervisor: config requires a progress bus")
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 60 * time.Second
	}
	if c.DivergenceTimeout <= 0 {
		c.DivergenceTimeout = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// orderedStages is the fixed stage list, excluding "end"
// which is represented by simply finishing Run.
var orderedStages = []pipeline.Stage{
	pipeline.StageExtraction,
	pipeline.StageQuantitative,
	pipeline.StageCompliance,
	pipeline.StageDivergenceGuard,
	pipeline.StageReconciliation,
	pipeline.StageDrafting,
}

// Supervisor drives a PipelineState through every stage in order,
// publishing progress events and applying the stage error policy.
type Supervisor struct {
	cfg Config
}

// New constructs a Supervisor, applying Config defaults.
func New(cfg Config) (*Supervisor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Supervisor{cfg: cfg}, nil
}

// Run drives st through every stage, respecting ctx's cancellation and
// deadlines, and returns once the session has reached a terminal status.
// Run never returns an error: every outcome, including FAILED and
// CANCELLED, is recorded on st itself.
func (s *Supervisor) Run(ctx context.Context, st *pipeline.State) {
	logger := logctx.Session(s.cfg.Logger, st.SessionID, st.TenantID)
	s.cfg.Bus.Publish(st.SessionID, progress.Event{
		Type:    progress.EventWorkflowStarted,
		Payload: map[string]any{"totalStages": len(orderedStages)},
	})

	if s.cancelled(ctx, st) {
		return
	}
	if !s.runExtraction(ctx, st, logger) {
		return
	}
	if s.cancelled(ctx, st) {
		return
	}

	quantOK := s.runStage(ctx, st, pipeline.StageQuantitative, s.cfg.StageTimeout, s.cfg.Quantitative, logger)
	if s.cancelled(ctx, st) {
		return
	}

	if quantOK {
		s.runStage(ctx, st, pipeline.StageCompliance, s.cfg.StageTimeout, s.cfg.Compliance, logger)
	} else {
		st.AppendTrace(pipeline.TraceEntry{
			Stage: pipeline.StageCompliance, StartedAt: time.Now(), FinishedAt: time.Now(),
			Outcome: pipeline.OutcomeSkipped,
		})
		s.cfg.Bus.Publish(st.SessionID, progress.Event{
			Type: progress.EventAgentProgress, Stage: string(pipeline.StageCompliance),
			Payload: "skipped: quantitative stage did not complete",
		})
	}
	if s.cancelled(ctx, st) {
		return
	}

	// Divergence guard always runs, even with a failed quantitative stage,
	// with its own longer deadline.
	s.runStage(ctx, st, pipeline.StageDivergenceGuard, s.cfg.DivergenceTimeout, s.cfg.DivergenceGuard, logger)
	if s.cancelled(ctx, st) {
		return
	}
	s.publishDivergenceEvent(st)

	// Reconciliation and drafting always run too, even after a divergence
	// alert.
	s.runStage(ctx, st, pipeline.StageReconciliation, s.cfg.StageTimeout, s.cfg.Reconciliation, logger)
	if s.cancelled(ctx, st) {
		return
	}
	s.runStage(ctx, st, pipeline.StageDrafting, s.cfg.StageTimeout, s.cfg.Drafting, logger)

	s.finalize(st, logger)
}

// runStage executes one stage under a soft per-stage deadline, recovering
// panics into an error. It returns true iff the stage completed without
// error (i.e. neither cancelled, timed out, nor contract-violated).
func (s *Supervisor) runStage(ctx context.Context, st *pipeline.State, stage pipeline.Stage, deadline time.Duration, agent Stage, logger *slog.Logger) bool {
	logctx.StageStart(logger, string(stage))
	s.cfg.Bus.Publish(st.SessionID, progress.Event{Type: progress.EventAgentStarted, Stage: string(stage)})

	stageCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	err := safeguard.Call(func() error { return agent.Run(stageCtx, st) })
	ok := err == nil

	if err != nil {
		ok = s.recordStageFailure(ctx, st, stage, start, err, logger)
	} else {
		durationMs := time.Since(start).Milliseconds()
		logctx.StageDone(logger, string(stage), string(pipeline.OutcomeSuccess), durationMs)
		s.cfg.Bus.Publish(st.SessionID, progress.Event{
			Type: progress.EventAgentCompleted, Stage: string(stage),
			Payload: durationMs,
		})
	}
	return ok
}

// recordStageFailure classifies a stage error (cancellation, timeout, or
// a genuine contract violation), appends the trace entry the agent itself
// never got to append (the agents that return errors, Quantitative and
// Reconciler, do so from an early-abort check before calling their own
// trace helper; the other agents record failures themselves and return
// nil), and records the matching
// StageError. It returns false in every case: a stage that errored never
// counts as "ok" for downstream routing decisions.
func (s *Supervisor) recordStageFailure(ctx context.Context, st *pipeline.State, stage pipeline.Stage, start time.Time, err error, logger *slog.Logger) bool {
	now := time.Now()
	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		st.AppendTrace(pipeline.TraceEntry{Stage: stage, StartedAt: start, FinishedAt: now, Outcome: pipeline.OutcomeCancelled, DurationMs: now.Sub(start).Milliseconds()})
		st.AppendError(pipeline.StageError{Stage: stage, Kind: pipeline.ErrorCancelled, Message: "session cancelled", Fatal: false})
		logctx.NonFatal(logger, string(stage), string(pipeline.ErrorCancelled), "session cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		st.AppendTrace(pipeline.TraceEntry{Stage: stage, StartedAt: start, FinishedAt: now, Outcome: pipeline.OutcomeTimeout, DurationMs: now.Sub(start).Milliseconds()})
		st.AppendError(pipeline.StageError{Stage: stage, Kind: pipeline.ErrorTimeout, Message: fmt.Sprintf("stage exceeded deadline: %v", err), Fatal: false})
		logctx.NonFatal(logger, string(stage), string(pipeline.ErrorTimeout), err.Error())
	default:
		st.AppendTrace(pipeline.TraceEntry{Stage: stage, StartedAt: start, FinishedAt: now, Outcome: pipeline.OutcomeFailed, DurationMs: now.Sub(start).Milliseconds()})
		st.AppendError(pipeline.StageError{Stage: stage, Kind: pipeline.ErrorContractViolation, Message: err.Error(), Fatal: true})
		logctx.Fatal(logger, string(stage), string(pipeline.ErrorContractViolation), err.Error())
	}
	s.cfg.Bus.Publish(st.SessionID, progress.Event{Type: progress.EventWorkflowError, Stage: string(stage), Payload: err.Error()})
	return false
}

// runExtraction runs the extraction stage and applies the
// partial-success / fatal-failure routing.
func (s *Supervisor) runExtraction(ctx context.Context, st *pipeline.State, logger *slog.Logger) bool {
	ok := s.runStage(ctx, st, pipeline.StageExtraction, s.cfg.StageTimeout, s.cfg.Extraction, logger)
	if s.cancelled(ctx, st) {
		return false
	}
	if !ok && st.HasFatalError() {
		s.fail(st, pipeline.StageExtraction, "extraction stage aborted")
		return false
	}
	switch st.ExtractedCount() {
	case 0:
		st.AppendError(pipeline.StageError{Stage: pipeline.StageExtraction, Kind: pipeline.ErrorParseError, Message: "no document could be extracted", Fatal: true})
		s.fail(st, pipeline.StageExtraction, "extraction failed for all three documents")
		return false
	case 1, 2:
		st.AppendError(pipeline.StageError{Stage: pipeline.StageExtraction, Kind: pipeline.ErrorUnavailableInput, Message: "extraction succeeded for fewer than 3 documents", Fatal: false})
	}
	return true
}

// cancelled reports whether ctx has been externally cancelled and, if so,
// finalizes st as CANCELLED.
func (s *Supervisor) cancelled(ctx context.Context, st *pipeline.State) bool {
	if ctx.Err() == nil {
		return false
	}
	st.Status = pipeline.StatusCancelled
	st.CurrentStage = pipeline.StageEnd
	s.cfg.Bus.Publish(st.SessionID, progress.Event{Type: progress.EventWorkflowError, Payload: "session cancelled"})
	s.cfg.Bus.Close(st.SessionID)
	return true
}

// fail terminates the session fatally.
func (s *Supervisor) fail(st *pipeline.State, stage pipeline.Stage, message string) {
	st.Status = pipeline.StatusFailed
	st.CurrentStage = pipeline.StageEnd
	s.cfg.Bus.Publish(st.SessionID, progress.Event{Type: progress.EventWorkflowError, Stage: string(stage), Payload: message})
	s.cfg.Bus.Publish(st.SessionID, progress.Event{Type: progress.EventWorkflowComplete, Payload: map[string]any{"status": st.Status}})
	s.cfg.Bus.Close(st.SessionID)
}

func (s *Supervisor) publishDivergenceEvent(st *pipeline.State) {
	if st.Divergence == nil {
		return
	}
	if st.Divergence.AlertTriggered {
		s.cfg.Bus.Publish(st.SessionID, progress.Event{
			Type: progress.EventDivergenceAlert,
			Payload: map[string]any{
				"similarity":          st.Divergence.Similarity,
				"threshold":           st.Divergence.Threshold,
				"perturbationSummary": st.Divergence.PerturbationCount,
			},
		})
	} else {
		s.cfg.Bus.Publish(st.SessionID, progress.Event{
			Type:    progress.EventDivergenceClear,
			Payload: map[string]any{"similarity": st.Divergence.Similarity},
		})
	}
}

// finalize maps the verdict produced by reconciliation onto the
// user-visible terminal session status and publishes the
// terminal workflow_complete event.
func (s *Supervisor) finalize(st *pipeline.State, logger *slog.Logger) {
	st.CurrentStage = pipeline.StageEnd
	st.Status = terminalStatus(st)

	// Invariant: a DIVERGENCE_ALERT verdict forces ESCALATE and
	// a DIVERGENCE_ALERT session status; a CONTRACT_VIOLATION here would
	// mean the reconciliation agent produced an inconsistent verdict.
	if st.Verdict != nil && st.Verdict.OverallStatus == pipeline.OverallDivergenceAlert {
		if st.Verdict.Recommendation != pipeline.RecommendEscalate || st.Status != pipeline.StatusDivergenceAlert {
			logctx.Fatal(logger, string(pipeline.StageEnd), string(pipeline.ErrorContractViolation), "divergence alert verdict without escalate/status invariant")
			st.Verdict.Recommendation = pipeline.RecommendEscalate
			st.Status = pipeline.StatusDivergenceAlert
		}
	}

	var summary any
	if st.Verdict != nil {
		summary = map[string]any{
			"status":         st.Verdict.OverallStatus,
			"recommendation": st.Verdict.Recommendation,
			"confidence":     st.Verdict.Confidence,
		}
	}
	s.cfg.Bus.Publish(st.SessionID, progress.Event{
		Type:    progress.EventWorkflowComplete,
		Payload: map[string]any{"status": st.Status, "verdictSummary": summary},
	})
	s.cfg.Bus.Close(st.SessionID)
}

// terminalStatus derives the session's user-visible terminal status from
// the verdict: MATCHED, DISCREPANCY_FOUND, DIVERGENCE_ALERT,
// or EXCEPTION when the run completed in a degraded state (a stage was
// skipped or extraction was only partially successful) without an
// outright failure.
func terminalStatus(st *pipeline.State) pipeline.SessionStatus {
	if st.Verdict == nil {
		return pipeline.StatusException
	}
	if st.Verdict.OverallStatus == pipeline.OverallDivergenceAlert {
		return pipeline.StatusDivergenceAlert
	}
	if degraded(st) {
		return pipeline.StatusException
	}
	switch st.Verdict.OverallStatus {
	case pipeline.OverallFullMatch:
		return pipeline.StatusMatched
	case pipeline.OverallPartialMatch, pipeline.OverallMismatch:
		return pipeline.StatusDiscrepancyFound
	default:
		return pipeline.StatusException
	}
}

// degraded reports whether the run skipped a stage or ran extraction
// partially — conditions under which the verdict is a best-effort
// approximation rather than a fully corroborated conclusion.
func degraded(st *pipeline.State) bool {
	for _, t := range st.AgentTrace {
		if t.Outcome == pipeline.OutcomeSkipped {
			return true
		}
	}
	return st.ExtractedCount() < 3
}
