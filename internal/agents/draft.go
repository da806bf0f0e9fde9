package agents

import (
	"context"

	"github.com/threeway/reconcile/internal/llm"
	"github.com/threeway/reconcile/internal/pipeline"
	"github.com/threeway/reconcile/internal/workpaper"
)

// Drafter is the Drafting Agent. It delegates the actual
// composition to internal/workpaper and only owns the stage contract:
// trace recording and non-fatal error handling.
type Drafter struct {
	Router *llm.Router
}

func (d *Drafter) Run(ctx context.Context, st *pipeline.State) error {
	finish := trace(st, pipeline.StageDrafting)

	wp, err := workpaper.Compose(ctx, d.Router, st)
	if err != nil {
		st.AppendError(pipeline.StageError{
			Stage:   pipeline.StageDrafting,
			Kind:    pipeline.ErrorUpstreamUnavail,
			Message: err.Error(),
		})
		finish(pipeline.OutcomeFailed)
		return nil
	}

	st.Workpaper = wp
	finish(pipeline.OutcomeSuccess)
	return nil
}
