package chat

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/studyflow/memory"
	"github.com/BaSui01/studyflow/types"
)

// RetrievalDefaults are used when a request leaves memory options unset.
type RetrievalDefaults struct {
	Limit         int
	MinSimilarity float64
}

// TurnContext is the assembled memory context for one turn.
type TurnContext struct {
	SessionEntries   []types.MemoryRecord
	UniversalMatches []memory.Match
}

// Found returns the total number of memories feeding the turn.
func (c *TurnContext) Found() int {
	return len(c.SessionEntries) + len(c.UniversalMatches)
}

// References converts the universal matches to response references.
func (c *TurnContext) References() []types.MemoryReference {
	if len(c.UniversalMatches) == 0 {
		return nil
	}
	refs := make([]types.MemoryReference, 0, len(c.UniversalMatches))
	for _, m := range c.UniversalMatches {
		refs = append(refs, types.MemoryReference{
			Content:    m.Record.Content,
			Similarity: m.Similarity,
			CreatedAt:  m.Record.CreatedAt,
		})
	}
	return refs
}

// PromptBlock renders the merged context: session entries first, most
// recent last, then universal entries, most similar first.
func (c *TurnContext) PromptBlock() string {
	if c.Found() == 0 {
		return ""
	}

	var b strings.Builder
	if len(c.SessionEntries) > 0 {
		b.WriteString("Recent conversation context:\n")
		// Session entries arrive newest-first; render oldest-first so
		// the most recent line sits closest to the new message.
		for i := len(c.SessionEntries) - 1; i >= 0; i-- {
			b.WriteString("- ")
			b.WriteString(c.SessionEntries[i].Content)
			b.WriteString("\n")
		}
	}
	if len(c.UniversalMatches) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Known about this student:\n")
		for _, m := range c.UniversalMatches {
			b.WriteString("- ")
			b.WriteString(m.Record.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Assembler builds the memory context for a turn from both layers.
type Assembler struct {
	store     memory.Store
	retriever *memory.Retriever
	defaults  RetrievalDefaults
	logger    *zap.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(store memory.Store, retriever *memory.Retriever, defaults RetrievalDefaults, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.Limit <= 0 {
		defaults.Limit = 5
	}
	if defaults.MinSimilarity <= 0 {
		defaults.MinSimilarity = 0.7
	}
	return &Assembler{
		store:     store,
		retriever: retriever,
		defaults:  defaults,
		logger:    logger.With(zap.String("component", "context_assembler")),
	}
}

// Assemble fetches both memory slices concurrently. Each branch is
// best-effort: a failed lookup logs a degradation and contributes
// nothing. Assemble itself never fails.
func (a *Assembler) Assemble(ctx context.Context, req *types.TurnRequest) *TurnContext {
	limit := a.defaults.Limit
	minSim := a.defaults.MinSimilarity
	if req.Memory != nil {
		if req.Memory.Limit > 0 {
			limit = req.Memory.Limit
		}
		if req.Memory.MinSimilarity > 0 {
			minSim = req.Memory.MinSimilarity
		}
	}

	tc := &TurnContext{}
	g, gctx := errgroup.WithContext(ctx)

	if req.Memory.SessionEnabled() && req.ConversationID != "" {
		g.Go(func() error {
			entries, err := a.store.QueryBySession(gctx, req.ConversationID, limit)
			if err != nil {
				a.logger.Warn("session memory degraded",
					zap.String("conversation_id", req.ConversationID),
					zap.Error(err))
				return nil
			}
			tc.SessionEntries = entries
			return nil
		})
	}

	if req.Memory.UniversalEnabled() && a.retriever != nil {
		g.Go(func() error {
			// Search degrades internally; it never returns an error.
			tc.UniversalMatches = a.retriever.Search(gctx, req.UserID, req.Message, limit, minSim)
			return nil
		})
	}

	// Branches only return nil; Wait is for synchronization.
	_ = g.Wait()
	return tc
}
