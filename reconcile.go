// Package reconcile is the composition root of the three-way
// reconciliation pipeline: it wires the LLM Router, Progress
// Bus, Adaptive Threshold Store, and the six agents into a Supervisor, and
// exposes the two operations the REST/WS transport layer consumes —
// Run and Subscribe — without exposing any internal stage machinery.
// A Pipeline is a thin composition struct built from an explicit Config
// value, never a package-level singleton.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/threeway/reconcile/internal/agents"
	"github.com/threeway/reconcile/internal/external"
	"github.com/threeway/reconcile/internal/llm"
	"github.com/threeway/reconcile/internal/pipeline"
	"github.com/threeway/reconcile/internal/progress"
	"github.com/threeway/reconcile/internal/supervisor"
	"github.com/threeway/reconcile/internal/threshold"
)

// Config wires every collaborator the pipeline needs to run a session.
// Exactly one Config value is built at process start; nothing here is a
// package-level global.
type Config struct {
	Router    *llm.Router
	Bus       *progress.Bus
	Documents external.DocumentStore
	Vectors   external.VectorStore
	// Feedback backs the Adaptive Threshold Store. If nil,
	// an empty in-memory store is used, so every tenant falls back to the
	// global prior threshold until feedback is recorded.
	Feedback external.FeedbackStore

	StageTimeout      time.Duration
	DivergenceTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Router == nil {
		return errors.New("reconcile: config requires a Router")
	}
	if c.Bus == nil {
		c.Bus = progress.NewBus()
	}
	if c.Documents == nil {
		return errors.New("reconcile: config requires a DocumentStore")
	}
	if c.Vectors == nil {
		return errors.New("reconcile: config requires a VectorStore")
	}
	if c.Feedback == nil {
		c.Feedback = external.NewInMemoryFeedbackStore()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// VerdictRecord is the session's persisted, authoritative record,
// returned by Run once the pipeline
// reaches a terminal status.
type VerdictRecord struct {
	SessionID              string
	TenantID               string
	POID, GRNID, InvoiceID string

	Status     pipeline.SessionStatus
	Verdict    *pipeline.Verdict
	Workpaper  *pipeline.Workpaper
	Divergence *pipeline.DivergenceMetrics

	AgentTrace []pipeline.TraceEntry
	Errors     []pipeline.StageError

	StartedAt   time.Time
	CompletedAt time.Time
}

// Pipeline is the constructed composition of every collaborator; Run may
// be called concurrently for distinct sessions.
type Pipeline struct {
	cfg        Config
	supervisor *supervisor.Supervisor
}

// New constructs a Pipeline from cfg, applying defaults and wiring the six
// agents into a Supervisor.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	thresholds := threshold.NewStore(cfg.Feedback)

	sup, err := supervisor.New(supervisor.Config{
		Extraction:        &agents.Extractor{Router: cfg.Router, Vectors: cfg.Vectors},
		Quantitative:      &agents.Quantitative{},
		Compliance:        &agents.Compliance{Router: cfg.Router},
		DivergenceGuard:   &agents.Divergence{Router: cfg.Router, Thresholds: thresholds},
		Reconciliation:    &agents.Reconciler{},
		Drafting:          &agents.Drafter{Router: cfg.Router},
		Bus:               cfg.Bus,
		StageTimeout:      cfg.StageTimeout,
		DivergenceTimeout: cfg.DivergenceTimeout,
		Logger:            cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{cfg: cfg, supervisor: sup}, nil
}

// Run fetches the three named documents, drives them through every stage
// of the reconciliation pipeline, and returns the resulting VerdictRecord.
// ctx is the session's cancellation token: cancelling it
// aborts the currently running stage at the next boundary and the returned
// record's Status is CANCELLED.
func (p *Pipeline) Run(ctx context.Context, sessionID, tenantID, poID, grnID, invoiceID string) (*VerdictRecord, error) {
	startedAt := time.Now()

	po, grn, invoice, err := p.fetchDocuments(ctx, poID, grnID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: fetch documents: %w", err)
	}

	st := pipeline.New(sessionID, tenantID, po, grn, invoice)
	p.supervisor.Run(ctx, st)

	return &VerdictRecord{
		SessionID:   sessionID,
		TenantID:    tenantID,
		POID:        poID,
		GRNID:       grnID,
		InvoiceID:   invoiceID,
		Status:      st.Status,
		Verdict:     st.Verdict,
		Workpaper:   st.Workpaper,
		Divergence:  st.Divergence,
		AgentTrace:  st.AgentTrace,
		Errors:      st.Errors,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}, nil
}

// fetchDocuments retrieves the three input documents; document storage is
// an external collaborator, so this is the only place
// the pipeline talks to it directly.
func (p *Pipeline) fetchDocuments(ctx context.Context, poID, grnID, invoiceID string) (po, grn, invoice pipeline.Document, err error) {
	po, err = p.cfg.Documents.FetchParsed(ctx, poID)
	if err != nil {
		return po, grn, invoice, fmt.Errorf("PO %s: %w", poID, err)
	}
	grn, err = p.cfg.Documents.FetchParsed(ctx, grnID)
	if err != nil {
		return po, grn, invoice, fmt.Errorf("GRN %s: %w", grnID, err)
	}
	invoice, err = p.cfg.Documents.FetchParsed(ctx, invoiceID)
	if err != nil {
		return po, grn, invoice, fmt.Errorf("invoice %s: %w", invoiceID, err)
	}
	return po, grn, invoice, nil
}

// Subscribe registers a new listener for sessionID's progress events.
// The caller must invoke the returned unsubscribe func once
// done reading, typically via defer.
func (p *Pipeline) Subscribe(sessionID string) (<-chan progress.Event, func()) {
	return p.cfg.Bus.Subscribe(sessionID)
}
