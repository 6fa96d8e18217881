package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/studyflow/chat"
	"github.com/BaSui01/studyflow/config"
	"github.com/BaSui01/studyflow/internal/metrics"
	"github.com/BaSui01/studyflow/internal/scheduler"
	"github.com/BaSui01/studyflow/llm"
	"github.com/BaSui01/studyflow/llm/embedding"
	"github.com/BaSui01/studyflow/llm/fallback"
	"github.com/BaSui01/studyflow/llm/health"
	"github.com/BaSui01/studyflow/llm/providers/anthropic"
	"github.com/BaSui01/studyflow/llm/providers/openaicompat"
	"github.com/BaSui01/studyflow/memcache"
	"github.com/BaSui01/studyflow/memory"
	"github.com/BaSui01/studyflow/types"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 StudyFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *gorm.DB
	redisClient *redis.Client

	embedCache   *memcache.Cache[[]float64]
	contentLocal *memcache.Cache[string]

	registry  *llm.Registry
	tracker   *health.Tracker
	collector *metrics.Collector
	promReg   *prometheus.Registry

	store     memory.Store
	retriever *memory.Retriever
	service   *chat.Service

	sched      *scheduler.Scheduler
	httpServer *http.Server
}

// NewServer 组装全部组件
func NewServer(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	// 指标
	s.promReg = prometheus.NewRegistry()
	s.collector = metrics.NewCollector("studyflow", s.promReg, logger)

	// Redis（可选，仅内容缓存二级）
	if cfg.Redis.Enabled {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		logger.Info("Redis content cache tier enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// 进程内缓存
	s.embedCache = memcache.New[[]float64](cacheConfig(cfg.Cache.Embedding, memcache.EmbeddingDefaults()), logger)
	s.contentLocal = memcache.New[string](cacheConfig(cfg.Cache.Content, memcache.ContentDefaults()), logger)
	contentCache := memcache.NewTiered(s.contentLocal, s.redisClient, "studyflow:content:", cfg.Cache.Content.TTL, logger)

	// Provider 注册表 + 健康跟踪 + 回退候选
	s.registry = llm.NewRegistry()
	s.tracker = health.NewTracker(health.Config{
		DegradedThreshold: cfg.Orchestrator.DegradedThreshold,
		BreakerThreshold:  cfg.Orchestrator.BreakerThreshold,
		BreakerCooldown:   cfg.Orchestrator.BreakerCooldown,
	}, logger)

	candidates := make([]fallback.Candidate, 0, len(cfg.Providers))
	for i := range cfg.Providers {
		pc := &cfg.Providers[i]
		provider, err := buildProvider(pc, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if err := s.registry.Register(provider); err != nil {
			return nil, err
		}
		if err := s.tracker.Register(pc.Name, health.Budget{
			PerMinute: pc.RequestsPerMinute,
			PerDay:    pc.RequestsPerDay,
			PerMonth:  pc.RequestsPerMonth,
		}); err != nil {
			return nil, err
		}
		candidates = append(candidates, fallback.Candidate{
			Name:    pc.Name,
			Tier:    pc.Tier,
			Weight:  pc.Weight,
			Models:  pc.Models,
			Timeout: pc.Timeout,
		})
	}

	orchestrator := fallback.New(candidates, s.registry, s.tracker, s.collector, fallback.Config{
		OverallDeadline: cfg.Orchestrator.OverallDeadline,
	}, logger)

	// 记忆子系统
	policy := memory.RetentionPolicy{
		SessionDays:  cfg.Memory.SessionRetentionDays,
		LongTermDays: cfg.Memory.LongTermRetentionDays,
	}
	store, err := memory.NewGormStore(db, policy, logger)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	s.store = store

	if cfg.Embedding.APIKey != "" || cfg.Embedding.BaseURL != "" {
		embedder := embedding.NewOpenAICompat(embedding.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		})
		s.retriever = memory.NewRetriever(s.store, embedder, s.embedCache, logger)
	} else {
		logger.Warn("Embedding provider not configured, semantic retrieval disabled")
	}

	assembler := chat.NewAssembler(s.store, s.retriever, chat.RetrievalDefaults{
		Limit:         cfg.Memory.RetrievalLimit,
		MinSimilarity: cfg.Memory.MinSimilarity,
	}, logger)
	materials := chat.NewMaterialLoader(contentCache, nil, logger)

	s.service = chat.NewService(assembler, orchestrator, s.store, s.retriever, materials,
		s.collector, chat.ServiceConfig{}, logger)

	// 周期任务
	s.sched = scheduler.New(logger)
	s.sched.Every("embedding_cache_sweep", cfg.Cache.Embedding.SweepInterval, func(ctx context.Context) {
		s.embedCache.Sweep()
	})
	s.sched.Every("content_cache_sweep", cfg.Cache.Content.SweepInterval, func(ctx context.Context) {
		s.contentLocal.Sweep()
	})
	s.sched.Every("memory_expiry", cfg.Memory.ExpirySweepInterval, func(ctx context.Context) {
		if _, err := s.store.DeleteExpired(ctx, time.Now()); err != nil {
			logger.Warn("memory expiry sweep failed", zap.Error(err))
		}
	})

	return s, nil
}

// buildProvider 按类型实例化上游 Provider
func buildProvider(pc *config.ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	switch pc.Type {
	case "openai_compat":
		return openaicompat.New(openaicompat.Config{
			Name:    pc.Name,
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Model:   pc.DefaultModel(),
			Timeout: pc.Timeout,
		}, logger), nil
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Model:   pc.DefaultModel(),
			Timeout: pc.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", pc.Type)
	}
}

func cacheConfig(budget config.CacheBudget, fallbackCfg memcache.Config) memcache.Config {
	cfg := memcache.Config{
		MaxEntries: budget.MaxEntries,
		MaxBytes:   budget.MaxBytes,
		TTL:        budget.TTL,
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = fallbackCfg.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = fallbackCfg.TTL
	}
	return cfg
}

// =============================================================================
// 🚀 启动与关闭
// =============================================================================

// Start 启动 HTTP 服务（非阻塞）
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/turn", s.handleTurn)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// WaitForShutdown 等待信号并优雅关闭
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	s.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

	s.Shutdown()
}

// Shutdown 优雅关闭所有组件
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	// 1. 停止周期任务
	s.sched.Stop()

	// 2. 关闭 HTTP 服务器
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 3. 等待后台记忆写入落盘
	s.service.FlushPersistence()

	// 4. 关闭 Redis 连接
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Redis shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

// =============================================================================
// 🌐 HTTP Handlers
// =============================================================================

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, string(types.ErrInvalidRequest), "method not allowed")
		return
	}

	var req types.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(types.ErrInvalidRequest), "invalid request body")
		return
	}

	resp, err := s.service.Turn(r.Context(), &req)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	statuses := s.tracker.Statuses()

	available := false
	for _, st := range statuses {
		if st.Status != health.StatusUnavailable {
			available = true
			break
		}
	}

	code := http.StatusOK
	if !available {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    map[bool]string{true: "ok", false: "unavailable"}[available],
		"providers": statuses,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

// writeTurnError 将编排错误映射为 HTTP 响应
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	// 全部候选耗尽：返回完整尝试轨迹与重试提示，和校验错误可区分
	var exhausted *fallback.ExhaustedError
	if errors.As(err, &exhausted) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": map[string]any{
				"code":      string(types.ErrAllProvidersExhausted),
				"message":   "all providers are temporarily unavailable, please retry shortly",
				"retryable": true,
				"attempts":  exhausted.Attempts,
			},
		})
		return
	}

	var typed *types.Error
	if errors.As(err, &typed) {
		status := typed.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeError(w, status, string(typed.Code), typed.Message)
		return
	}

	s.logger.Error("turn failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, string(types.ErrUpstreamError), "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
