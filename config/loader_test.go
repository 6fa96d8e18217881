package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5000, cfg.Cache.Embedding.MaxEntries)
	assert.Equal(t, int64(0), cfg.Cache.Embedding.MaxBytes, "embedding cache has no byte ceiling")
	assert.Greater(t, cfg.Cache.Content.MaxBytes, int64(0), "content cache is byte budgeted")
	assert.Equal(t, 7, cfg.Memory.SessionRetentionDays)
	assert.Equal(t, 90, cfg.Memory.LongTermRetentionDays)
	assert.InDelta(t, 0.7, cfg.Memory.MinSimilarity, 1e-9)
}

func TestLoader_FromYAML(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_port: 9090
log:
  level: debug
providers:
  - name: primary
    type: openai_compat
    tier: 1
    models: [gpt-4o-mini]
    api_key: sk-test
    timeout: 20s
    requests_per_minute: 30
  - name: backup
    type: anthropic
    tier: 2
    models: [claude-sonnet]
    api_key: sk-backup
    timeout: 40s
memory:
  retrieval_limit: 3
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Memory.RetrievalLimit)

	require.Len(t, cfg.Providers, 2)
	primary := cfg.Providers[0]
	assert.Equal(t, "primary", primary.Name)
	assert.Equal(t, 1, primary.Tier)
	assert.Equal(t, 20*time.Second, primary.Timeout)
	assert.Equal(t, 30, primary.RequestsPerMinute)
	assert.Equal(t, "gpt-4o-mini", primary.DefaultModel())
	assert.True(t, primary.SupportsModel("gpt-4o-mini"))
	assert.False(t, primary.SupportsModel("other"))
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("STUDYFLOW_SERVER_HTTP_PORT", "7070")
	t.Setenv("STUDYFLOW_LOG_LEVEL", "warn")
	t.Setenv("STUDYFLOW_ORCHESTRATOR_OVERALL_DEADLINE", "45s")
	t.Setenv("STUDYFLOW_MEMORY_MIN_SIMILARITY", "0.85")
	t.Setenv("STUDYFLOW_REDIS_ENABLED", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 45*time.Second, cfg.Orchestrator.OverallDeadline)
	assert.InDelta(t, 0.85, cfg.Memory.MinSimilarity, 1e-9)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoader_EnvPrefix(t *testing.T) {
	t.Setenv("CUSTOM_SERVER_HTTP_PORT", "6060")

	cfg, err := NewLoader().WithEnvPrefix("CUSTOM").Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.HTTPPort)
}

func TestLoader_ValidatorRuns(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		return fmt.Errorf("rejected")
	}).Load()
	assert.ErrorContains(t, err, "rejected")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Providers = []ProviderConfig{{
			Name: "p1", Type: "openai_compat", Tier: 1,
			Models: []string{"m1"}, Timeout: 30 * time.Second,
		}}
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.HTTPPort = 0
		assert.ErrorContains(t, cfg.Validate(), "HTTP port")
	})

	t.Run("duplicate provider name", func(t *testing.T) {
		cfg := valid()
		cfg.Providers = append(cfg.Providers, cfg.Providers[0])
		assert.ErrorContains(t, cfg.Validate(), "duplicate name")
	})

	t.Run("tier zero", func(t *testing.T) {
		cfg := valid()
		cfg.Providers[0].Tier = 0
		assert.ErrorContains(t, cfg.Validate(), "tier")
	})

	t.Run("no models", func(t *testing.T) {
		cfg := valid()
		cfg.Providers[0].Models = nil
		assert.ErrorContains(t, cfg.Validate(), "model")
	})

	t.Run("similarity out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Memory.MinSimilarity = 1.5
		assert.ErrorContains(t, cfg.Validate(), "min_similarity")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5433,
		User: "u", Password: "p", Name: "studyflow", SSLMode: "disable",
	}
	dsn := pg.DSN()
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "port=5433")
	assert.Contains(t, dsn, "dbname=studyflow")

	sq := DatabaseConfig{Driver: "sqlite", Name: "/tmp/studyflow.db"}
	assert.Equal(t, "/tmp/studyflow.db", sq.DSN())
}
