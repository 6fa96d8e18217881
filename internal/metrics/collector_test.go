package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("studyflow", reg, zap.NewNop())

	c.ObserveTurn("ok", 0.5)
	c.ObserveTurn("ok", 1.2)
	c.ObserveTurn("error", 0.1)
	c.ObserveProviderAttempt("deepseek", "success", 0.3)
	c.ObserveProviderAttempt("deepseek", "failure", 0.2)
	c.CacheHit("embedding")
	c.CacheHit("embedding")
	c.CacheMiss("content")
	c.ObserveMemoryOp("persist", true)
	c.ObserveMemoryOp("persist", false)
	c.ObserveFallbackDepth(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerAttempts.WithLabelValues("deepseek", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerAttempts.WithLabelValues("deepseek", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("embedding")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("content")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.memoryOps.WithLabelValues("persist", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.memoryOps.WithLabelValues("persist", "error")))
}

func TestCollector_RegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("studyflow", reg, nil)

	c.ObserveTurn("ok", 0.1)
	c.ObserveProviderAttempt("glm", "success", 0.1)
	c.ObserveFallbackDepth(1)
	c.CacheHit("content")
	c.CacheMiss("content")
	c.ObserveMemoryOp("embed", true)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"studyflow_chat_turns_total",
		"studyflow_chat_turn_duration_seconds",
		"studyflow_provider_attempts_total",
		"studyflow_provider_attempt_duration_seconds",
		"studyflow_fallback_depth",
		"studyflow_cache_hits_total",
		"studyflow_cache_misses_total",
		"studyflow_memory_operations_total",
	} {
		assert.True(t, names[want], "missing metric family %s", want)
	}
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector("studyflow", reg, zap.NewNop())

	assert.Panics(t, func() {
		NewCollector("studyflow", reg, zap.NewNop())
	})
}
