package types

import "time"

// MemoryScope defines which layer of the memory subsystem a record
// belongs to.
type MemoryScope string

const (
	// MemoryScopeSession is memory tied to a single conversation and
	// expired on a short horizon.
	MemoryScopeSession MemoryScope = "session"

	// MemoryScopeUniversal is memory tied to the user across all
	// conversations, retained long-term or permanently.
	MemoryScopeUniversal MemoryScope = "universal"
)

// MemoryPriority ranks how valuable a memory record is.
type MemoryPriority string

const (
	MemoryPriorityLow      MemoryPriority = "low"
	MemoryPriorityMedium   MemoryPriority = "medium"
	MemoryPriorityHigh     MemoryPriority = "high"
	MemoryPriorityCritical MemoryPriority = "critical"
)

// MemoryRetention controls how long a record survives.
type MemoryRetention string

const (
	MemoryRetentionShort     MemoryRetention = "short"
	MemoryRetentionLongTerm  MemoryRetention = "long_term"
	MemoryRetentionPermanent MemoryRetention = "permanent"
)

// MemoryRecord is a single stored memory.
//
// Invariants: session records always carry a ConversationID; universal
// records never belong to one conversation. Records are append-only;
// they are superseded by newer records, never mutated, except for the
// one-shot embedding backfill. Permanent records are excluded from the
// expiry sweep.
type MemoryRecord struct {
	ID             string          `json:"id" gorm:"primaryKey;size:36"`
	UserID         string          `json:"user_id" gorm:"size:64;index:idx_memory_user_scope,priority:1"`
	Scope          MemoryScope     `json:"scope" gorm:"size:16;index:idx_memory_user_scope,priority:2"`
	ConversationID string          `json:"conversation_id,omitempty" gorm:"size:64;index"`
	Content        string          `json:"content" gorm:"type:text"`
	Embedding      []float64       `json:"embedding,omitempty" gorm:"serializer:json"`
	Priority       MemoryPriority  `json:"priority" gorm:"size:16"`
	Retention      MemoryRetention `json:"retention" gorm:"size:16"`
	Tags           []string        `json:"tags,omitempty" gorm:"serializer:json"`
	CreatedAt      time.Time       `json:"created_at" gorm:"index"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty" gorm:"index"`
}

// TableName implements the GORM table-name convention.
func (MemoryRecord) TableName() string { return "memory_records" }

// Expired reports whether the record should be removed at the given time.
func (r *MemoryRecord) Expired(now time.Time) bool {
	if r.Retention == MemoryRetentionPermanent || r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}

// MemoryStats provides statistics about stored memory.
type MemoryStats struct {
	TotalRecords int            `json:"total_records"`
	ByScope      map[string]int `json:"by_scope"`
	OldestRecord time.Time      `json:"oldest_record,omitempty"`
	NewestRecord time.Time      `json:"newest_record,omitempty"`
}
