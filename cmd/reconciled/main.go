// Command reconciled is the pipeline's composition-root binary: it wires
// a Config from environment variables, constructs a Pipeline, seeds the
// in-memory document and vector stores with one sample three-document
// session, runs it to completion, and prints the resulting VerdictRecord
// as JSON while streaming progress events to stderr. A thin binary over
// library packages, no business logic of its own.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	reconcile "github.com/threeway/reconcile"
	"github.com/threeway/reconcile/internal/decimal"
	"github.com/threeway/reconcile/internal/external"
	"github.com/threeway/reconcile/internal/llm"
	anthropicprovider "github.com/threeway/reconcile/internal/llm/providers/anthropic"
	"github.com/threeway/reconcile/internal/llm/providers/deterministic"
	openaiprovider "github.com/threeway/reconcile/internal/llm/providers/openai"
	"github.com/threeway/reconcile/internal/pipeline"
	"github.com/threeway/reconcile/internal/progress"
)

const vectorDim = 64

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	router, err := buildRouter(logger)
	if err != nil {
		logger.Error("router construction failed", slog.Any("error", err))
		os.Exit(1)
	}

	docs, vectors := seedSampleSession()
	bus := progress.NewBus()

	pipelineAPI, err := reconcile.New(reconcile.Config{
		Router:    router,
		Bus:       bus,
		Documents: docs,
		Vectors:   vectors,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("pipeline construction failed", slog.Any("error", err))
		os.Exit(1)
	}

	sessionID := uuid.NewString()
	events, unsubscribe := pipelineAPI.Subscribe(sessionID)
	defer unsubscribe()
	go streamEvents(logger, events)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	record, err := pipelineAPI.Run(ctx, sessionID, "tenant-demo", "po-1", "grn-1", "invoice-1")
	if err != nil {
		logger.Error("pipeline run failed", slog.Any("error", err))
		os.Exit(1)
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		logger.Error("marshal verdict record failed", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// buildRouter assembles the provider failover chain from environment
// variables: cloud providers are only added when their API key is set,
// and the deterministic provider is always last, guaranteeing the chain
// always completes.
func buildRouter(logger *slog.Logger) (*llm.Router, error) {
	var providers []llm.Provider

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			model = "gpt-4o"
		}
		embedModel := os.Getenv("OPENAI_EMBED_MODEL")
		if embedModel == "" {
			embedModel = "text-embedding-3-small"
		}
		providers = append(providers, openaiprovider.New(key, model, embedModel, vectorDim))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model := os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-3-5-sonnet-latest"
		}
		providers = append(providers, anthropicprovider.New(key, anthropic.Model(model), 1024, vectorDim))
	}
	providers = append(providers, deterministic.New(vectorDim))

	return llm.NewRouter(llm.Config{
		Providers: providers,
		VectorDim: vectorDim,
		Logger:    logger,
	})
}

// seedSampleSession populates in-memory DocumentStore and VectorStore
// fakes with one perfect-match three-way scenario,
// since the real upstream document/vector services are out of scope.
func seedSampleSession() (*external.InMemoryDocumentStore, *external.InMemoryVectorStore) {
	docs := external.NewInMemoryDocumentStore()
	vectors := external.NewInMemoryVectorStore()

	line := pipeline.LineItem{
		Description:  "Widget A",
		Quantity:     decimal.MustParse("10"),
		UnitPrice:    decimal.MustParse("50.00"),
		ClaimedTotal: decimal.MustParse("500.00"),
		Citation:     pipeline.Citation{Page: 0, Box: pipeline.BBox{X0: 0.1, Y0: 0.2, X1: 0.5, Y1: 0.25}},
	}
	totals := pipeline.Totals{
		Subtotal:         decimal.MustParse("500.00"),
		SubtotalCitation: pipeline.Citation{Page: 0},
		Tax:              decimal.MustParse("0.00"),
		TaxCitation:      pipeline.Citation{Page: 0},
		GrandTotal:       decimal.MustParse("500.00"),
		GrandCitation:    pipeline.Citation{Page: 0},
	}

	for id, kind := range map[string]pipeline.Kind{"po-1": pipeline.KindPO, "grn-1": pipeline.KindGRN, "invoice-1": pipeline.KindInvoice} {
		docs.Put(id, pipeline.Document{
			DocumentID: id, Kind: kind, Currency: "USD", VendorName: "Acme Supply",
			DocumentNumber: id, DocumentDate: "2026-01-15",
			LineItems: []pipeline.LineItem{line}, Totals: totals,
		})
		vectors.Seed(id, []external.Chunk{{
			Text:     "Acme Supply " + id + " 2026-01-15 Widget A 10 50.00 500.00 500.00 0.00 500.00",
			Citation: pipeline.Citation{Page: 0, Box: pipeline.BBox{X0: 0, Y0: 0, X1: 1, Y1: 1}},
			Score:    1,
		}})
	}

	return docs, vectors
}

func streamEvents(logger *slog.Logger, events <-chan progress.Event) {
	for evt := range events {
		logger.Info("progress event", slog.String("type", string(evt.Type)), slog.String("stage", evt.Stage))
	}
}
