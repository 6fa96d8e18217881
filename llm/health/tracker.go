package health

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Status Provider 健康状态
type Status string

const (
	// StatusHealthy 正常
	StatusHealthy Status = "healthy"
	// StatusDegraded 连续失败达到降级阈值
	StatusDegraded Status = "degraded"
	// StatusUnavailable 熔断中，冷却窗口内不参与候选
	StatusUnavailable Status = "unavailable"
)

// Budget 单个 Provider 的请求预算，0 表示对应窗口不限
type Budget struct {
	PerMinute int
	PerDay    int
	PerMonth  int
}

// Config 跟踪器配置
type Config struct {
	// DegradedThreshold 连续失败多少次标记 degraded
	DegradedThreshold int

	// BreakerThreshold 连续失败多少次熔断
	BreakerThreshold int

	// BreakerCooldown 熔断冷却窗口，窗口过后放行试探
	BreakerCooldown time.Duration

	// Now 用于测试的时钟注入
	Now func() time.Time
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DegradedThreshold: 3,
		BreakerThreshold:  5,
		BreakerCooldown:   60 * time.Second,
	}
}

// Snapshot 某一时刻的健康记录快照
type Snapshot struct {
	Provider            string `json:"provider"`
	Status              Status `json:"status"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastLatencyMs       int64  `json:"last_latency_ms"`
	RequestsToday       int64  `json:"requests_today"`
	RequestsThisMonth   int64  `json:"requests_this_month"`
}

// providerHealth 单个 Provider 的健康记录。
// 所有字段由自身的互斥锁保护，跨 Provider 的更新互不阻塞。
type providerHealth struct {
	mu sync.Mutex

	name    string
	budget  Budget
	limiter *rate.Limiter // 分钟预算，nil 表示不限

	dayAnchor   string // "2006-01-02"
	dayCount    int64
	monthAnchor string // "2006-01"
	monthCount  int64

	consecutiveFailures int
	lastLatencyMs       int64
	lastFailureAt       time.Time
}

// Tracker 按 Provider 的用量/健康跟踪器
type Tracker struct {
	mu        sync.RWMutex
	providers map[string]*providerHealth

	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewTracker 创建跟踪器
func NewTracker(cfg Config, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = 3
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 60 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		providers: make(map[string]*providerHealth),
		cfg:       cfg,
		now:       now,
		logger:    logger.With(zap.String("component", "health_tracker")),
	}
}

// Register 注册一个 Provider 及其预算，重复注册返回错误。
func (t *Tracker) Register(name string, budget Budget) error {
	if name == "" {
		return fmt.Errorf("provider name is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}

	var limiter *rate.Limiter
	if budget.PerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(budget.PerMinute)/60.0), budget.PerMinute)
	}

	t.providers[name] = &providerHealth{
		name:    name,
		budget:  budget,
		limiter: limiter,
	}
	return nil
}

func (t *Tracker) get(name string) (*providerHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.providers[name]
	return h, ok
}

// Eligible 判断 Provider 是否可进入候选：日/月预算未用尽且未处于
// 熔断冷却窗口内。无副作用，供编排器在一次编排开始时快照。
func (t *Tracker) Eligible(name string) bool {
	h, ok := t.get(name)
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := t.now()
	h.rollover(now)

	if h.budget.PerDay > 0 && h.dayCount >= int64(h.budget.PerDay) {
		return false
	}
	if h.budget.PerMonth > 0 && h.monthCount >= int64(h.budget.PerMonth) {
		return false
	}

	// 熔断检查：冷却窗口过后放行试探调用
	if h.consecutiveFailures >= t.cfg.BreakerThreshold &&
		now.Sub(h.lastFailureAt) < t.cfg.BreakerCooldown {
		return false
	}

	return true
}

// TryAcquire 在实际发起调用前消费一个分钟预算令牌。
// 返回 false 表示本分钟预算已尽，调用方应按限流跳过。
func (t *Tracker) TryAcquire(name string) bool {
	h, ok := t.get(name)
	if !ok {
		return false
	}
	if h.limiter == nil {
		return true
	}
	return h.limiter.Allow()
}

// RecordSuccess 记录一次成功调用：清零连续失败、记录延迟并累加用量。
func (t *Tracker) RecordSuccess(name string, latency time.Duration) {
	h, ok := t.get(name)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := t.now()
	h.rollover(now)

	if h.consecutiveFailures >= t.cfg.BreakerThreshold {
		t.logger.Info("provider recovered",
			zap.String("provider", name),
			zap.Int("consecutive_failures", h.consecutiveFailures))
	}

	h.consecutiveFailures = 0
	h.lastLatencyMs = latency.Milliseconds()
	h.dayCount++
	h.monthCount++
}

// RecordFailure 记录一次失败调用：累加连续失败，越过阈值时熔断。
// 失败同样消耗日/月用量（请求已发出）。
func (t *Tracker) RecordFailure(name string, latency time.Duration) {
	h, ok := t.get(name)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := t.now()
	h.rollover(now)

	h.consecutiveFailures++
	h.lastFailureAt = now
	h.lastLatencyMs = latency.Milliseconds()
	h.dayCount++
	h.monthCount++

	if h.consecutiveFailures == t.cfg.BreakerThreshold {
		t.logger.Warn("provider circuit opened",
			zap.String("provider", name),
			zap.Int("consecutive_failures", h.consecutiveFailures),
			zap.Duration("cooldown", t.cfg.BreakerCooldown))
	}
}

// ConsecutiveFailures 返回当前连续失败数（候选排序用）。
func (t *Tracker) ConsecutiveFailures(name string) int {
	h, ok := t.get(name)
	if !ok {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveFailures
}

// Snapshot 返回单个 Provider 的健康快照。
func (t *Tracker) Snapshot(name string) (Snapshot, bool) {
	h, ok := t.get(name)
	if !ok {
		return Snapshot{}, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := t.now()
	h.rollover(now)

	return Snapshot{
		Provider:            name,
		Status:              t.statusLocked(h, now),
		ConsecutiveFailures: h.consecutiveFailures,
		LastLatencyMs:       h.lastLatencyMs,
		RequestsToday:       h.dayCount,
		RequestsThisMonth:   h.monthCount,
	}, true
}

// Statuses 返回全部 Provider 的健康快照（/healthz 用）。
func (t *Tracker) Statuses() []Snapshot {
	t.mu.RLock()
	names := make([]string, 0, len(t.providers))
	for name := range t.providers {
		names = append(names, name)
	}
	t.mu.RUnlock()

	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		if s, ok := t.Snapshot(name); ok {
			out = append(out, s)
		}
	}
	return out
}

func (t *Tracker) statusLocked(h *providerHealth, now time.Time) Status {
	if h.consecutiveFailures >= t.cfg.BreakerThreshold &&
		now.Sub(h.lastFailureAt) < t.cfg.BreakerCooldown {
		return StatusUnavailable
	}
	if h.consecutiveFailures >= t.cfg.DegradedThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

// rollover 日历周期回卷：跨日/跨月时清零对应计数。
// 调用方必须持有 h.mu。
func (h *providerHealth) rollover(now time.Time) {
	day := now.Format("2006-01-02")
	if h.dayAnchor != day {
		h.dayAnchor = day
		h.dayCount = 0
	}
	month := now.Format("2006-01")
	if h.monthAnchor != month {
		h.monthAnchor = month
		h.monthCount = 0
	}
}
