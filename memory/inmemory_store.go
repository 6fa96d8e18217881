package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/studyflow/types"
)

// InMemoryStore is a Store implementation used for local development
// and tests. It applies the same validation and retention rules as the
// GORM-backed store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]types.MemoryRecord

	policy RetentionPolicy
	logger *zap.Logger
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(policy RetentionPolicy, logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryStore{
		records: make(map[string]types.MemoryRecord),
		policy:  policy,
		logger:  logger.With(zap.String("component", "memory_store_inmemory")),
	}
}

// Append implements Store.Append.
func (s *InMemoryStore) Append(ctx context.Context, record *types.MemoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateRecord(record); err != nil {
		return err
	}
	prepareRecord(record, s.policy)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = *record
	return nil
}

// QueryBySession implements Store.QueryBySession.
func (s *InMemoryStore) QueryBySession(ctx context.Context, conversationID string, limit int) ([]types.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if conversationID == "" {
		return nil, types.NewError(types.ErrMemoryInvalidRecord, "conversation id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.MemoryRecord
	for _, r := range s.records {
		if r.Scope == types.MemoryScopeSession && r.ConversationID == conversationID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// QueryUniversalCandidates implements Store.QueryUniversalCandidates.
func (s *InMemoryStore) QueryUniversalCandidates(ctx context.Context, userID string) ([]types.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.MemoryRecord
	for _, r := range s.records {
		if r.Scope == types.MemoryScopeUniversal && r.UserID == userID && len(r.Embedding) > 0 {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// AttachEmbedding implements Store.AttachEmbedding.
func (s *InMemoryStore) AttachEmbedding(ctx context.Context, id string, embedding []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(embedding) == 0 {
		return types.NewError(types.ErrMemoryInvalidRecord, "embedding is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return types.NewError(types.ErrMemoryInvalidRecord, "record not found")
	}
	r.Embedding = embedding
	s.records[id] = r
	return nil
}

// DeleteExpired implements Store.DeleteExpired.
func (s *InMemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, r := range s.records {
		if r.Expired(now) {
			delete(s.records, id)
			deleted++
		}
	}
	if deleted > 0 {
		s.logger.Info("memory expiry sweep", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
