package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/studyflow/types"
)

// RetentionPolicy maps retention classes to expiry horizons.
type RetentionPolicy struct {
	// SessionDays is the horizon for short retention.
	SessionDays int

	// LongTermDays is the horizon for long_term retention.
	LongTermDays int

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// DefaultRetentionPolicy returns the default horizons.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{SessionDays: 7, LongTermDays: 90}
}

func (p RetentionPolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// expiresAt computes the expiry for a retention class; nil for permanent.
func (p RetentionPolicy) expiresAt(retention types.MemoryRetention, created time.Time) *time.Time {
	var days int
	switch retention {
	case types.MemoryRetentionPermanent:
		return nil
	case types.MemoryRetentionLongTerm:
		days = p.LongTermDays
	default:
		days = p.SessionDays
	}
	if days <= 0 {
		days = 7
	}
	t := created.AddDate(0, 0, days)
	return &t
}

// Store is the persistence boundary for memory records.
type Store interface {
	// Append persists a new record. It fills ID, CreatedAt, and
	// ExpiresAt, and validates the scope invariants. A universal record
	// may be appended without an embedding; it stays invisible to
	// semantic search until AttachEmbedding backfills it.
	Append(ctx context.Context, record *types.MemoryRecord) error

	// QueryBySession returns records for one conversation, newest first.
	QueryBySession(ctx context.Context, conversationID string, limit int) ([]types.MemoryRecord, error)

	// QueryUniversalCandidates returns the user's universal records that
	// carry an embedding.
	QueryUniversalCandidates(ctx context.Context, userID string) ([]types.MemoryRecord, error)

	// AttachEmbedding backfills the embedding of an existing record.
	AttachEmbedding(ctx context.Context, id string, embedding []float64) error

	// DeleteExpired removes records whose expiry has passed. Permanent
	// records are never deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// validateRecord enforces the scope invariants shared by all stores.
func validateRecord(r *types.MemoryRecord) error {
	if r.UserID == "" {
		return types.NewError(types.ErrMemoryInvalidRecord, "user id is required")
	}
	if r.Content == "" {
		return types.NewError(types.ErrMemoryInvalidRecord, "content is required")
	}
	switch r.Scope {
	case types.MemoryScopeSession:
		if r.ConversationID == "" {
			return types.NewError(types.ErrMemoryInvalidRecord, "session record requires a conversation id")
		}
	case types.MemoryScopeUniversal:
		// Universal records are never tied to one conversation.
		r.ConversationID = ""
	default:
		return types.NewError(types.ErrMemoryInvalidRecord, fmt.Sprintf("unknown scope %q", r.Scope))
	}
	return nil
}

// prepareRecord fills server-side fields before insert.
func prepareRecord(r *types.MemoryRecord, policy RetentionPolicy) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = policy.now()
	}
	if r.ExpiresAt == nil {
		r.ExpiresAt = policy.expiresAt(r.Retention, r.CreatedAt)
	}
}

// GormStore persists memory records through GORM.
type GormStore struct {
	db     *gorm.DB
	policy RetentionPolicy
	logger *zap.Logger
}

// NewGormStore creates a store backed by the given GORM handle.
func NewGormStore(db *gorm.DB, policy RetentionPolicy, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&types.MemoryRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate memory records: %w", err)
	}
	return &GormStore{
		db:     db,
		policy: policy,
		logger: logger.With(zap.String("component", "memory_store")),
	}, nil
}

// Append implements Store.Append.
func (s *GormStore) Append(ctx context.Context, record *types.MemoryRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	prepareRecord(record, s.policy)

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return types.NewError(types.ErrMemoryPersistenceFailed, "failed to append memory record").WithCause(err)
	}
	return nil
}

// QueryBySession implements Store.QueryBySession.
func (s *GormStore) QueryBySession(ctx context.Context, conversationID string, limit int) ([]types.MemoryRecord, error) {
	if conversationID == "" {
		return nil, types.NewError(types.ErrMemoryInvalidRecord, "conversation id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	var records []types.MemoryRecord
	err := s.db.WithContext(ctx).
		Where("scope = ? AND conversation_id = ?", types.MemoryScopeSession, conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, types.NewError(types.ErrMemoryRetrievalDegraded, "session query failed").WithCause(err)
	}
	return records, nil
}

// QueryUniversalCandidates implements Store.QueryUniversalCandidates.
func (s *GormStore) QueryUniversalCandidates(ctx context.Context, userID string) ([]types.MemoryRecord, error) {
	var records []types.MemoryRecord
	err := s.db.WithContext(ctx).
		Where("scope = ? AND user_id = ? AND embedding IS NOT NULL", types.MemoryScopeUniversal, userID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, types.NewError(types.ErrMemoryRetrievalDegraded, "universal query failed").WithCause(err)
	}

	// Serialized embeddings may decode to empty; filter them out so the
	// retriever only sees usable vectors.
	out := records[:0]
	for _, r := range records {
		if len(r.Embedding) > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// AttachEmbedding implements Store.AttachEmbedding.
func (s *GormStore) AttachEmbedding(ctx context.Context, id string, embedding []float64) error {
	if len(embedding) == 0 {
		return types.NewError(types.ErrMemoryInvalidRecord, "embedding is required")
	}
	// Update through the model so the json serializer on the embedding
	// column applies; a raw column update would render the slice as a
	// SQL row value.
	res := s.db.WithContext(ctx).
		Model(&types.MemoryRecord{}).
		Where("id = ?", id).
		Select("embedding").
		Updates(&types.MemoryRecord{Embedding: embedding})
	if res.Error != nil {
		return types.NewError(types.ErrMemoryPersistenceFailed, "failed to attach embedding").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrMemoryInvalidRecord, fmt.Sprintf("record %q not found", id))
	}
	return nil
}

// DeleteExpired implements Store.DeleteExpired.
func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("retention <> ? AND expires_at IS NOT NULL AND expires_at <= ?",
			types.MemoryRetentionPermanent, now).
		Delete(&types.MemoryRecord{})
	if res.Error != nil {
		return 0, types.NewError(types.ErrMemoryPersistenceFailed, "expiry sweep failed").WithCause(res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("memory expiry sweep",
			zap.Int64("deleted", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
