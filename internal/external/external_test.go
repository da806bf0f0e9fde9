package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeway/reconcile/internal/pipeline"
)

func TestInMemoryDocumentStore_PutFetch(t *testing.T) {
	store := NewInMemoryDocumentStore()
	doc := pipeline.Document{DocumentID: "po-1", Kind: pipeline.KindPO}
	store.Put("po-1", doc)

	got, err := store.FetchParsed(context.Background(), "po-1")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = store.FetchParsed(context.Background(), "missing")
	assert.Error(t, err)
}

func TestInMemoryVectorStore_SeedAndTruncate(t *testing.T) {
	store := NewInMemoryVectorStore()
	store.Seed("po-1", []Chunk{
		{Text: "a", Score: 0.9},
		{Text: "b", Score: 0.8},
		{Text: "c", Score: 0.7},
	})

	got, err := store.RetrieveChunks(context.Background(), "po-1", "probe", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)

	_, err = store.RetrieveChunks(context.Background(), "unknown", "probe", 2)
	assert.Error(t, err)
}

func TestInMemoryFeedbackStore_RecentWindow(t *testing.T) {
	store := NewInMemoryFeedbackStore()
	for i := 0; i < 5; i++ {
		store.Record("tenant-a", FeedbackOutcome{WasAlert: true, Outcome: FeedbackCorrect})
	}

	got, err := store.Recent(context.Background(), "tenant-a", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = store.Recent(context.Background(), "tenant-a", 100)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = store.Recent(context.Background(), "tenant-unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
