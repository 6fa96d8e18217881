package types

import "time"

// MemoryOptions controls which memory layers feed the turn context and
// how the universal layer is searched.
type MemoryOptions struct {
	// IncludeSession enables the session-scoped memory slice.
	// Nil means enabled.
	IncludeSession *bool `json:"include_session,omitempty"`

	// IncludeUniversal enables semantic retrieval over universal memory.
	// Nil means enabled.
	IncludeUniversal *bool `json:"include_universal,omitempty"`

	// Limit caps how many records each layer contributes. <=0 uses the
	// configured default.
	Limit int `json:"limit,omitempty"`

	// MinSimilarity is the cosine-similarity floor for universal
	// retrieval. 0 uses the configured default.
	MinSimilarity float64 `json:"min_similarity,omitempty"`

	// ContextLevel hints how much context to assemble: minimal/standard/full.
	ContextLevel string `json:"context_level,omitempty"`
}

// SessionEnabled resolves the IncludeSession tri-state.
func (o *MemoryOptions) SessionEnabled() bool {
	return o == nil || o.IncludeSession == nil || *o.IncludeSession
}

// UniversalEnabled resolves the IncludeUniversal tri-state.
func (o *MemoryOptions) UniversalEnabled() bool {
	return o == nil || o.IncludeUniversal == nil || *o.IncludeUniversal
}

// TurnRequest is one chat turn submitted by the surrounding application.
type TurnRequest struct {
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Message        string         `json:"message"`
	Memory         *MemoryOptions `json:"memory,omitempty"`

	// Attachments are URLs of study materials whose text content should
	// be fetched and included in the turn context.
	Attachments []string `json:"attachments,omitempty"`

	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// TokenUsage reports input/output token consumption for one turn.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// MemoryReference describes one universal memory that informed a turn.
type MemoryReference struct {
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// TurnResponse is the successful result of one chat turn.
type TurnResponse struct {
	Content          string            `json:"content"`
	ProviderUsed     string            `json:"provider_used"`
	ModelUsed        string            `json:"model_used"`
	TokensUsed       TokenUsage        `json:"tokens_used"`
	LatencyMs        int64             `json:"latency_ms"`
	FallbackUsed     bool              `json:"fallback_used"`
	Cached           bool              `json:"cached"`
	MemoriesFound    int               `json:"memories_found"`
	MemoryReferences []MemoryReference `json:"memory_references,omitempty"`
}
