package fallback

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/studyflow/internal/metrics"
	"github.com/BaSui01/studyflow/llm"
	"github.com/BaSui01/studyflow/llm/health"
	"github.com/BaSui01/studyflow/types"
)

// Candidate 一个可参与回退的 Provider 描述。配置加载后不可变。
type Candidate struct {
	// Name Provider 唯一标识
	Name string
	// Tier 层级，1 为最优先
	Tier int
	// Weight 同 tier 内的优先级权重，越大越靠前
	Weight int
	// Models 支持的模型，首个为默认模型
	Models []string
	// Timeout 单次调用超时
	Timeout time.Duration
}

func (c *Candidate) defaultModel() string {
	if len(c.Models) > 0 {
		return c.Models[0]
	}
	return ""
}

func (c *Candidate) supportsModel(model string) bool {
	for _, m := range c.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Request 一次编排请求
type Request struct {
	TraceID     string
	UserID      string
	Messages    []llm.Message
	Provider    string // 优先 Provider（可选）
	Model       string // 指定模型（可选，仅在支持该模型的候选中选择）
	MaxTokens   int
	Temperature float32
}

// Result 编排成功结果
type Result struct {
	Content      string        `json:"content"`
	ProviderUsed string        `json:"provider_used"`
	ModelUsed    string        `json:"model_used"`
	Usage        llm.ChatUsage `json:"usage"`
	LatencyMs    int64         `json:"latency_ms"`
	FallbackUsed bool          `json:"fallback_used"`
	TierReached  int           `json:"tier_reached"`
	Attempts     []Attempt     `json:"attempts"`
}

// Config 编排器配置
type Config struct {
	// OverallDeadline 整体请求截止时间，到达后放弃剩余候选
	OverallDeadline time.Duration

	// Now 用于测试的时钟注入
	Now func() time.Time
}

// Orchestrator 分层回退编排器
type Orchestrator struct {
	candidates []Candidate
	registry   *llm.Registry
	tracker    *health.Tracker
	collector  *metrics.Collector // 可为 nil
	tracer     trace.Tracer

	overallDeadline time.Duration
	now             func() time.Time
	logger          *zap.Logger
}

// New 创建编排器。candidates 来自配置，顺序无要求。
func New(candidates []Candidate, registry *llm.Registry, tracker *health.Tracker, collector *metrics.Collector, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OverallDeadline <= 0 {
		cfg.OverallDeadline = 90 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		candidates:      candidates,
		registry:        registry,
		tracker:         tracker,
		collector:       collector,
		tracer:          otel.Tracer("studyflow/llm/fallback"),
		overallDeadline: cfg.OverallDeadline,
		now:             now,
		logger:          logger.With(zap.String("component", "fallback_orchestrator")),
	}
}

// Execute 按 tier 顺序尝试候选，返回首个成功结果或聚合失败。
func (o *Orchestrator) Execute(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "fallback.execute")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.overallDeadline)
	defer cancel()

	// 一次编排开始时快照资格与顺序，过程中不重排
	ordered := o.snapshotCandidates(req)
	if len(ordered) == 0 {
		// 没有合格候选：不发起任何网络调用，直接失败
		o.logger.Warn("no eligible provider candidates",
			zap.String("trace_id", req.TraceID))
		return nil, &ExhaustedError{}
	}

	attempts := make([]Attempt, 0, len(ordered))

	for i, cand := range ordered {
		// 整体截止：放弃剩余候选
		if ctx.Err() != nil {
			o.logger.Warn("overall deadline reached, abandoning remaining candidates",
				zap.String("trace_id", req.TraceID),
				zap.Int("remaining", len(ordered)-i))
			break
		}

		// 分钟预算：消费令牌失败时按限流跳过，不发起调用
		if !o.tracker.TryAcquire(cand.Name) {
			attempts = append(attempts, Attempt{
				Tier:      cand.Tier,
				Provider:  cand.Name,
				StartedAt: o.now(),
				Outcome:   OutcomeRateLimited,
				Error:     "per-minute budget exhausted",
			})
			o.observeAttempt(cand.Name, OutcomeRateLimited, 0)
			continue
		}

		attempt, resp := o.attempt(ctx, &cand, req)
		attempts = append(attempts, attempt)
		o.observeAttempt(cand.Name, attempt.Outcome, attempt.LatencyMs)

		if attempt.Outcome == OutcomeSuccess {
			o.tracker.RecordSuccess(cand.Name, time.Duration(attempt.LatencyMs)*time.Millisecond)
			return &Result{
				Content:      resp.Content,
				ProviderUsed: cand.Name,
				ModelUsed:    resp.Model,
				Usage:        resp.Usage,
				LatencyMs:    attempt.LatencyMs,
				FallbackUsed: i > 0 || cand.Tier > 1,
				TierReached:  cand.Tier,
				Attempts:     attempts,
			}, nil
		}

		o.tracker.RecordFailure(cand.Name, time.Duration(attempt.LatencyMs)*time.Millisecond)
		o.logger.Warn("provider attempt failed, advancing",
			zap.String("trace_id", req.TraceID),
			zap.String("provider", cand.Name),
			zap.Int("tier", cand.Tier),
			zap.String("outcome", string(attempt.Outcome)),
			zap.String("error", attempt.Error))
	}

	return nil, &ExhaustedError{Attempts: attempts}
}

// snapshotCandidates 构建本次编排的候选顺序：
// tier 升序；同 tier 内按连续失败数升序、权重降序；
// 过滤掉日/月预算用尽或熔断中的 Provider；
// 指定模型时只保留支持该模型的候选；
// 指定优先 Provider 时将其提前（仍需合格）。
func (o *Orchestrator) snapshotCandidates(req *Request) []Candidate {
	eligible := make([]Candidate, 0, len(o.candidates))
	for _, c := range o.candidates {
		if req.Model != "" && !c.supportsModel(req.Model) {
			continue
		}
		if !o.tracker.Eligible(c.Name) {
			continue
		}
		eligible = append(eligible, c)
	}

	failures := make(map[string]int, len(eligible))
	for _, c := range eligible {
		failures[c.Name] = o.tracker.ConsecutiveFailures(c.Name)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if req.Provider != "" && (a.Name == req.Provider) != (b.Name == req.Provider) {
			return a.Name == req.Provider
		}
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if failures[a.Name] != failures[b.Name] {
			return failures[a.Name] < failures[b.Name]
		}
		return a.Weight > b.Weight
	})

	return eligible
}

// attempt 对单个候选发起一次带超时的调用。
// 超时是硬截止：迟到的结果被丢弃，不等待。
func (o *Orchestrator) attempt(ctx context.Context, cand *Candidate, req *Request) (Attempt, *llm.ChatResponse) {
	started := o.now()
	att := Attempt{
		Tier:      cand.Tier,
		Provider:  cand.Name,
		StartedAt: started,
	}

	provider, ok := o.registry.Get(cand.Name)
	if !ok {
		att.Outcome = OutcomeError
		att.Error = "provider not registered"
		return att, nil
	}

	model := req.Model
	if model == "" {
		model = cand.defaultModel()
	}

	attemptCtx, span := o.tracer.Start(ctx, "fallback.attempt",
		trace.WithAttributes(
			attribute.String("provider", cand.Name),
			attribute.Int("tier", cand.Tier),
			attribute.String("model", model),
		))
	defer span.End()

	timeout := cand.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(attemptCtx, timeout)
	defer cancel()

	type callResult struct {
		resp *llm.ChatResponse
		err  error
	}
	resultCh := make(chan callResult, 1)
	go func() {
		resp, err := provider.Completion(callCtx, &llm.ChatRequest{
			TraceID:     req.TraceID,
			UserID:      req.UserID,
			Model:       model,
			Messages:    req.Messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		})
		resultCh <- callResult{resp: resp, err: err}
	}()

	select {
	case <-callCtx.Done():
		att.LatencyMs = o.now().Sub(started).Milliseconds()
		att.Outcome = OutcomeTimeout
		att.Error = callCtx.Err().Error()
		return att, nil

	case res := <-resultCh:
		att.LatencyMs = o.now().Sub(started).Milliseconds()
		if res.err != nil {
			att.Outcome = classifyError(res.err)
			att.Error = res.err.Error()
			return att, nil
		}
		if res.resp == nil || res.resp.Content == "" {
			att.Outcome = OutcomeInvalidResponse
			att.Error = "empty completion"
			return att, nil
		}
		att.Outcome = OutcomeSuccess
		return att, res.resp
	}
}

// classifyError 将 Provider 错误映射为尝试结局
func classifyError(err error) Outcome {
	var terr *types.Error
	if errors.As(err, &terr) {
		switch terr.Code {
		case types.ErrProviderRateLimited:
			return OutcomeRateLimited
		case types.ErrProviderTimeout:
			return OutcomeTimeout
		case types.ErrProviderInvalidResponse:
			return OutcomeInvalidResponse
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	return OutcomeError
}

func (o *Orchestrator) observeAttempt(provider string, outcome Outcome, latencyMs int64) {
	if o.collector == nil {
		return
	}
	o.collector.ObserveProviderAttempt(provider, string(outcome), float64(latencyMs)/1000.0)
}
