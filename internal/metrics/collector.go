// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 聊天轮次指标
	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	// 回退编排指标
	providerAttempts *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	fallbackDepth    prometheus.Histogram

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 记忆子系统指标
	memoryOps *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到给定 Registerer。
// reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Total number of chat turns by status",
		},
		[]string{"status"},
	)

	c.turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_turn_duration_seconds",
			Help:      "Chat turn duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	c.providerAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Total provider attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	c.attemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Provider attempt duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "outcome"},
	)

	c.fallbackDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fallback_depth",
			Help:      "Number of attempts per orchestration pass",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
	)

	c.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits by cache name",
		},
		[]string{"cache"},
	)

	c.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses by cache name",
		},
		[]string{"cache"},
	)

	c.memoryOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Total memory operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	factory.MustRegister(
		c.turnsTotal,
		c.turnDuration,
		c.providerAttempts,
		c.attemptDuration,
		c.fallbackDepth,
		c.cacheHits,
		c.cacheMisses,
		c.memoryOps,
	)

	return c
}

// ObserveTurn 记录一次聊天轮次
func (c *Collector) ObserveTurn(status string, seconds float64) {
	c.turnsTotal.WithLabelValues(status).Inc()
	c.turnDuration.WithLabelValues(status).Observe(seconds)
}

// ObserveProviderAttempt 记录一次 Provider 尝试
func (c *Collector) ObserveProviderAttempt(provider, outcome string, seconds float64) {
	c.providerAttempts.WithLabelValues(provider, outcome).Inc()
	c.attemptDuration.WithLabelValues(provider, outcome).Observe(seconds)
}

// ObserveFallbackDepth 记录一次编排的尝试次数
func (c *Collector) ObserveFallbackDepth(attempts int) {
	c.fallbackDepth.Observe(float64(attempts))
}

// CacheHit 记录缓存命中
func (c *Collector) CacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// CacheMiss 记录缓存未命中
func (c *Collector) CacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// ObserveMemoryOp 记录记忆操作
func (c *Collector) ObserveMemoryOp(operation string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.memoryOps.WithLabelValues(operation, result).Inc()
}
