package memory

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/studyflow/llm/embedding"
	"github.com/BaSui01/studyflow/memcache"
	"github.com/BaSui01/studyflow/types"
)

// Match is one semantically retrieved record with its score.
type Match struct {
	Record     types.MemoryRecord
	Similarity float64
}

// Retriever ranks stored universal memories by cosine similarity to a
// query embedding. Query embeddings are cached keyed by provider+text,
// so repeated queries never re-embed.
type Retriever struct {
	store    Store
	embedder embedding.Provider
	cache    *memcache.Cache[[]float64]
	logger   *zap.Logger
}

// NewRetriever creates a retriever. cache may be nil to disable caching.
func NewRetriever(store Store, embedder embedding.Provider, cache *memcache.Cache[[]float64], logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		cache:    cache,
		logger:   logger.With(zap.String("component", "semantic_retriever")),
	}
}

// Search returns the user's top matches above minSimilarity, most
// similar first; ties broken by more recent CreatedAt. Any embedding or
// store failure degrades to an empty result; semantic context is
// best-effort and must never fail the chat turn.
func (r *Retriever) Search(ctx context.Context, userID, query string, limit int, minSimilarity float64) []Match {
	if query == "" || limit <= 0 {
		return nil
	}

	queryVec, err := r.queryEmbedding(ctx, query)
	if err != nil {
		r.logger.Warn("semantic search degraded: embedding failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}

	candidates, err := r.store.QueryUniversalCandidates(ctx, userID)
	if err != nil {
		r.logger.Warn("semantic search degraded: candidate query failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		sim := CosineSimilarity(queryVec, c.Embedding)
		if sim < minSimilarity {
			continue
		}
		matches = append(matches, Match{Record: c, Similarity: sim})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.CreatedAt.After(matches[j].Record.CreatedAt)
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// EmbedForRecord computes the embedding for a new universal record.
// Unlike Search, failures are returned so the caller can decide to
// leave the record unembedded (invisible to semantic search).
func (r *Retriever) EmbedForRecord(ctx context.Context, content string) ([]float64, error) {
	return r.queryEmbedding(ctx, content)
}

func (r *Retriever) queryEmbedding(ctx context.Context, text string) ([]float64, error) {
	key := memcache.HashKey(r.embedder.Name(), text)

	if r.cache != nil {
		if vec, ok := r.cache.Get(key); ok {
			return vec, nil
		}
	}

	vec, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		// 8 bytes per float64; sizeHint is informational for the
		// count-budgeted embedding cache.
		r.cache.Set(key, vec, int64(len(vec)*8))
	}
	return vec, nil
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Mismatched or zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
