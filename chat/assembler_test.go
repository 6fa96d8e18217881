package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/studyflow/memory"
	"github.com/BaSui01/studyflow/testutil/mocks"
	"github.com/BaSui01/studyflow/types"
)

func boolPtr(b bool) *bool { return &b }

func seedSession(t *testing.T, store memory.Store, convID string, contents ...string) {
	t.Helper()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, content := range contents {
		rec := &types.MemoryRecord{
			UserID:         "u1",
			Scope:          types.MemoryScopeSession,
			ConversationID: convID,
			Content:        content,
			Retention:      types.MemoryRetentionShort,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.Append(context.Background(), rec))
	}
}

func seedUniversal(t *testing.T, store memory.Store, content string, vec []float64) {
	t.Helper()
	rec := &types.MemoryRecord{
		UserID:    "u1",
		Scope:     types.MemoryScopeUniversal,
		Content:   content,
		Retention: types.MemoryRetentionPermanent,
	}
	require.NoError(t, store.Append(context.Background(), rec))
	require.NoError(t, store.AttachEmbedding(context.Background(), rec.ID, vec))
}

func TestAssembler_BothLayers(t *testing.T) {
	store := memory.NewInMemoryStore(memory.DefaultRetentionPolicy(), zap.NewNop())
	seedSession(t, store, "c1", "turn one", "turn two")
	seedUniversal(t, store, "prefers visual examples", []float64{1, 0})

	embedder := mocks.NewMockEmbedder(2).WithVector("show me a diagram", []float64{1, 0})
	retriever := memory.NewRetriever(store, embedder, nil, zap.NewNop())
	a := NewAssembler(store, retriever, RetrievalDefaults{}, zap.NewNop())

	tc := a.Assemble(context.Background(), &types.TurnRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Message:        "show me a diagram",
	})

	assert.Equal(t, 3, tc.Found())
	require.Len(t, tc.SessionEntries, 2)
	require.Len(t, tc.UniversalMatches, 1)

	refs := tc.References()
	require.Len(t, refs, 1)
	assert.Equal(t, "prefers visual examples", refs[0].Content)
	assert.InDelta(t, 1.0, refs[0].Similarity, 1e-9)
}

func TestAssembler_PromptBlockOrdering(t *testing.T) {
	store := memory.NewInMemoryStore(memory.DefaultRetentionPolicy(), zap.NewNop())
	seedSession(t, store, "c1", "oldest turn", "newest turn")
	seedUniversal(t, store, "studies CS", []float64{1, 0})

	embedder := mocks.NewMockEmbedder(2).WithVector("question", []float64{1, 0})
	retriever := memory.NewRetriever(store, embedder, nil, zap.NewNop())
	a := NewAssembler(store, retriever, RetrievalDefaults{}, zap.NewNop())

	tc := a.Assemble(context.Background(), &types.TurnRequest{
		UserID: "u1", ConversationID: "c1", Message: "question",
	})

	block := tc.PromptBlock()
	assert.True(t, strings.HasPrefix(block, "Recent conversation context:"))
	assert.Contains(t, block, "Known about this student:")
	assert.Less(t, strings.Index(block, "oldest turn"), strings.Index(block, "newest turn"),
		"session entries render oldest first so the newest sits nearest the message")
	assert.Less(t, strings.Index(block, "newest turn"), strings.Index(block, "studies CS"),
		"universal entries follow the session block")
}

func TestAssembler_EmptyContext(t *testing.T) {
	store := memory.NewInMemoryStore(memory.DefaultRetentionPolicy(), zap.NewNop())
	a := NewAssembler(store, nil, RetrievalDefaults{}, zap.NewNop())

	tc := a.Assemble(context.Background(), &types.TurnRequest{UserID: "u1", Message: "hi"})
	assert.Equal(t, 0, tc.Found())
	assert.Empty(t, tc.PromptBlock())
	assert.Nil(t, tc.References())
}

func TestAssembler_MemoryOptionsDisableLayers(t *testing.T) {
	store := memory.NewInMemoryStore(memory.DefaultRetentionPolicy(), zap.NewNop())
	seedSession(t, store, "c1", "session entry")
	seedUniversal(t, store, "universal fact", []float64{1, 0})

	embedder := mocks.NewMockEmbedder(2).WithVector("question", []float64{1, 0})
	retriever := memory.NewRetriever(store, embedder, nil, zap.NewNop())
	a := NewAssembler(store, retriever, RetrievalDefaults{}, zap.NewNop())

	t.Run("session disabled", func(t *testing.T) {
		tc := a.Assemble(context.Background(), &types.TurnRequest{
			UserID: "u1", ConversationID: "c1", Message: "question",
			Memory: &types.MemoryOptions{IncludeSession: boolPtr(false)},
		})
		assert.Empty(t, tc.SessionEntries)
		assert.Len(t, tc.UniversalMatches, 1)
	})

	t.Run("universal disabled", func(t *testing.T) {
		tc := a.Assemble(context.Background(), &types.TurnRequest{
			UserID: "u1", ConversationID: "c1", Message: "question",
			Memory: &types.MemoryOptions{IncludeUniversal: boolPtr(false)},
		})
		assert.Len(t, tc.SessionEntries, 1)
		assert.Empty(t, tc.UniversalMatches)
	})

	t.Run("nil options enable both", func(t *testing.T) {
		tc := a.Assemble(context.Background(), &types.TurnRequest{
			UserID: "u1", ConversationID: "c1", Message: "question",
		})
		assert.Equal(t, 2, tc.Found())
	})
}

func TestAssembler_NoConversationIDSkipsSession(t *testing.T) {
	store := memory.NewInMemoryStore(memory.DefaultRetentionPolicy(), zap.NewNop())
	seedSession(t, store, "c1", "session entry")

	a := NewAssembler(store, nil, RetrievalDefaults{}, zap.NewNop())
	tc := a.Assemble(context.Background(), &types.TurnRequest{UserID: "u1", Message: "hi"})
	assert.Empty(t, tc.SessionEntries)
}

func TestAssembler_DegradesWhenRetrieverFails(t *testing.T) {
	store := memory.NewInMemoryStore(memory.DefaultRetentionPolicy(), zap.NewNop())
	seedSession(t, store, "c1", "session entry")

	embedder := mocks.NewMockEmbedder(2).WithError(errors.New("embeddings down"))
	retriever := memory.NewRetriever(store, embedder, nil, zap.NewNop())
	a := NewAssembler(store, retriever, RetrievalDefaults{}, zap.NewNop())

	tc := a.Assemble(context.Background(), &types.TurnRequest{
		UserID: "u1", ConversationID: "c1", Message: "question",
	})

	// The session layer still contributes when retrieval is down.
	assert.Len(t, tc.SessionEntries, 1)
	assert.Empty(t, tc.UniversalMatches)
}

func TestAssembler_PerRequestLimit(t *testing.T) {
	store := memory.NewInMemoryStore(memory.DefaultRetentionPolicy(), zap.NewNop())
	seedSession(t, store, "c1", "one", "two", "three", "four")

	a := NewAssembler(store, nil, RetrievalDefaults{}, zap.NewNop())
	tc := a.Assemble(context.Background(), &types.TurnRequest{
		UserID: "u1", ConversationID: "c1", Message: "hi",
		Memory: &types.MemoryOptions{Limit: 2},
	})
	assert.Len(t, tc.SessionEntries, 2)
}
