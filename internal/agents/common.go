// Package agents implements the six stage workers that cooperate over a
// pipeline.State: Extraction, Quantitative, Compliance, Divergence Guard,
// Reconciliation, and Drafting. Every agent follows the same contract:
// it mutates the state slot it owns, appends
// to the agent trace, and records non-fatal errors rather than aborting
// the session, deferring to the supervisor (internal/supervisor) for
// stage-to-stage routing.
package agents

import (
	"time"

	"github.com/threeway/reconcile/internal/pipeline"
)

// trace starts a TraceEntry, returning a finish func that records the
// outcome and duration once the stage completes.
func trace(st *pipeline.State, stage pipeline.Stage) func(pipeline.Outcome) {
	start := time.Now()
	return func(outcome pipeline.Outcome) {
		now := time.Now()
		st.AppendTrace(pipeline.TraceEntry{
			Stage:      stage,
			StartedAt:  start,
			FinishedAt: now,
			Outcome:    outcome,
			DurationMs: now.Sub(start).Milliseconds(),
		})
	}
}
