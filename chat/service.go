package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/studyflow/internal/metrics"
	"github.com/BaSui01/studyflow/llm"
	"github.com/BaSui01/studyflow/llm/fallback"
	"github.com/BaSui01/studyflow/memory"
	"github.com/BaSui01/studyflow/types"
)

const defaultSystemPrompt = "You are a patient study assistant. Use the provided " +
	"context about the student when it is relevant, and say so when you are unsure."

// ServiceConfig tunes the turn pipeline.
type ServiceConfig struct {
	// SystemPrompt overrides the default assistant instructions.
	SystemPrompt string

	// PersistTimeout bounds the background memory write after a turn.
	// Zero means 15 seconds.
	PersistTimeout time.Duration
}

// Service runs the full chat turn pipeline: assemble memory context,
// orchestrate the upstream completion, then classify and persist the
// exchange as a new memory record.
type Service struct {
	assembler    *Assembler
	orchestrator *fallback.Orchestrator
	store        memory.Store
	retriever    *memory.Retriever
	materials    *MaterialLoader
	tokens       *TokenCounter
	collector    *metrics.Collector
	logger       *zap.Logger

	systemPrompt   string
	persistTimeout time.Duration

	persisting sync.WaitGroup
}

// NewService wires the turn pipeline. retriever, materials and
// collector may be nil; the corresponding steps are skipped or
// degraded.
func NewService(
	assembler *Assembler,
	orchestrator *fallback.Orchestrator,
	store memory.Store,
	retriever *memory.Retriever,
	materials *MaterialLoader,
	collector *metrics.Collector,
	cfg ServiceConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 15 * time.Second
	}
	return &Service{
		assembler:      assembler,
		orchestrator:   orchestrator,
		store:          store,
		retriever:      retriever,
		materials:      materials,
		tokens:         NewTokenCounter(logger),
		collector:      collector,
		logger:         logger.With(zap.String("component", "chat_service")),
		systemPrompt:   cfg.SystemPrompt,
		persistTimeout: cfg.PersistTimeout,
	}
}

// Turn executes one chat turn. Memory assembly and persistence degrade
// on failure; only validation and provider exhaustion surface as
// errors.
func (s *Service) Turn(ctx context.Context, req *types.TurnRequest) (*types.TurnResponse, error) {
	if req == nil || strings.TrimSpace(req.UserID) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "user_id is required").WithHTTPStatus(400)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "message is required").WithHTTPStatus(400)
	}

	start := time.Now()
	traceID := uuid.NewString()
	log := s.logger.With(
		zap.String("trace_id", traceID),
		zap.String("user_id", req.UserID),
	)

	turnCtx := s.assembler.Assemble(ctx, req)

	var materials []string
	if s.materials != nil && len(req.Attachments) > 0 {
		materials = s.materials.LoadAll(ctx, req.Attachments)
	}

	result, err := s.orchestrator.Execute(ctx, &fallback.Request{
		TraceID:  traceID,
		UserID:   req.UserID,
		Messages: s.buildMessages(req, turnCtx, materials),
		Provider: req.Provider,
		Model:    req.Model,
	})
	if err != nil {
		s.observeTurn("error", start)
		return nil, err
	}
	s.observeTurn("ok", start)
	if s.collector != nil {
		s.collector.ObserveFallbackDepth(len(result.Attempts))
	}

	s.persisting.Add(1)
	go s.persistTurn(log, req, result.Content)

	resp := &types.TurnResponse{
		Content:          result.Content,
		ProviderUsed:     result.ProviderUsed,
		ModelUsed:        result.ModelUsed,
		TokensUsed:       s.tokensUsed(req, turnCtx, result),
		LatencyMs:        time.Since(start).Milliseconds(),
		FallbackUsed:     result.FallbackUsed,
		Cached:           false,
		MemoriesFound:    turnCtx.Found(),
		MemoryReferences: turnCtx.References(),
	}

	log.Info("turn completed",
		zap.String("provider", result.ProviderUsed),
		zap.String("model", result.ModelUsed),
		zap.Bool("fallback_used", result.FallbackUsed),
		zap.Int("memories_found", resp.MemoriesFound),
		zap.Int64("latency_ms", resp.LatencyMs),
	)
	return resp, nil
}

// FlushPersistence blocks until all in-flight background memory writes
// finish. Intended for tests and graceful shutdown.
func (s *Service) FlushPersistence() {
	s.persisting.Wait()
}

func (s *Service) buildMessages(req *types.TurnRequest, turnCtx *TurnContext, materials []string) []llm.Message {
	var system strings.Builder
	system.WriteString(s.systemPrompt)

	if block := turnCtx.PromptBlock(); block != "" {
		system.WriteString("\n\n")
		system.WriteString(block)
	}
	if len(materials) > 0 {
		system.WriteString("\n\nReferenced materials:")
		for i, m := range materials {
			system.WriteString(fmt.Sprintf("\n--- material %d ---\n", i+1))
			system.WriteString(m)
		}
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system.String()},
		{Role: llm.RoleUser, Content: req.Message},
	}
}

func (s *Service) tokensUsed(req *types.TurnRequest, turnCtx *TurnContext, result *fallback.Result) types.TokenUsage {
	if result.Usage.TotalTokens > 0 {
		return types.TokenUsage{
			Input:  result.Usage.PromptTokens,
			Output: result.Usage.CompletionTokens,
		}
	}
	// Upstream omitted usage. Estimate from the texts involved.
	input := s.tokens.Count(s.systemPrompt) + s.tokens.Count(turnCtx.PromptBlock()) + s.tokens.Count(req.Message)
	return types.TokenUsage{
		Input:  input,
		Output: s.tokens.Count(result.Content),
	}
}

// persistTurn classifies the exchange and writes it as a memory
// record. Runs detached from the request context so a client
// disconnect cannot lose the memory.
func (s *Service) persistTurn(log *zap.Logger, req *types.TurnRequest, aiResponse string) {
	defer s.persisting.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	cls := memory.Classify(req.Message, aiResponse, req.ConversationID != "")
	record := &types.MemoryRecord{
		UserID:         req.UserID,
		Scope:          cls.Scope,
		ConversationID: req.ConversationID,
		Content:        fmt.Sprintf("Student: %s\nAssistant: %s", req.Message, aiResponse),
		Priority:       cls.Priority,
		Retention:      cls.Retention,
	}

	if err := s.store.Append(ctx, record); err != nil {
		s.observeMemoryOp("persist", false)
		log.Warn("memory persistence failed",
			zap.String("code", string(types.ErrMemoryPersistenceFailed)),
			zap.Error(err),
		)
		return
	}

	if cls.Scope == types.MemoryScopeUniversal && s.retriever != nil {
		vec, err := s.retriever.EmbedForRecord(ctx, record.Content)
		if err == nil {
			err = s.store.AttachEmbedding(ctx, record.ID, vec)
		}
		if err != nil {
			// Record survives without an embedding; it simply stays
			// out of semantic retrieval until re-embedded.
			s.observeMemoryOp("embed", false)
			log.Warn("memory embedding backfill failed",
				zap.String("code", string(types.ErrMemoryPersistenceFailed)),
				zap.String("record_id", record.ID),
				zap.Error(err),
			)
			return
		}
		s.observeMemoryOp("embed", true)
	}

	s.observeMemoryOp("persist", true)
	log.Debug("memory persisted",
		zap.String("record_id", record.ID),
		zap.String("scope", string(cls.Scope)),
		zap.String("retention", string(cls.Retention)),
	)
}

func (s *Service) observeTurn(status string, start time.Time) {
	if s.collector != nil {
		s.collector.ObserveTurn(status, time.Since(start).Seconds())
	}
}

func (s *Service) observeMemoryOp(operation string, ok bool) {
	if s.collector != nil {
		s.collector.ObserveMemoryOp(operation, ok)
	}
}
