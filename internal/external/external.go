// Package external declares the contracts of every upstream collaborator
// the pipeline consumes but does not own: document storage,
// vector retrieval, and feedback history. These are out of scope to
// implement for real; this package carries only
// the interfaces plus in-memory fakes, each a hand-written stand-in
// struct, not a generated mock.
package external

import (
	"context"

	"github.com/threeway/reconcile/internal/pipeline"
)

// DocumentStore fetches an already-parsed document by id.
type DocumentStore interface {
	FetchParsed(ctx context.Context, documentID string) (pipeline.Document, error)
}

// Chunk is one retrieved passage of a document's already-indexed content,
// scored against a retrieval probe.
type Chunk struct {
	Text     string
	Citation pipeline.Citation
	Score    float64
}

// VectorStore retrieves the topK chunks of documentID most relevant to
// probe. The Extraction Agent re-ranks and keeps the top 5.
type VectorStore interface {
	RetrieveChunks(ctx context.Context, documentID, probe string, topK int) ([]Chunk, error)
}

// FeedbackOutcome is one historical divergence-alert disposition, used by
// the Adaptive Threshold Store. Similarity carries the cosine similarity
// recorded at the time of the original decision: minimizing
// false_positive + 2*false_negative across candidate thresholds requires
// knowing where each historical sample actually fell, not just how it was
// labeled after the fact.
type FeedbackOutcome struct {
	WasAlert   bool
	Outcome    FeedbackLabel
	Similarity float64
}

// FeedbackLabel classifies a past alert's eventual human-reviewed outcome.
type FeedbackLabel string

const (
	FeedbackCorrect       FeedbackLabel = "correct"
	FeedbackFalsePositive FeedbackLabel = "false_positive"
	FeedbackFalseNegative FeedbackLabel = "false_negative"
)

// FeedbackStore returns the most recent windowSize feedback samples for a
// tenant.
type FeedbackStore interface {
	Recent(ctx context.Context, tenantID string, windowSize int) ([]FeedbackOutcome, error)
}
