// =============================================================================
// 📦 StudyFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Log:          DefaultLogConfig(),
		Database:     DefaultDatabaseConfig(),
		Redis:        DefaultRedisConfig(),
		Embedding:    DefaultEmbeddingConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Cache:        DefaultCacheConfig(),
		Memory:       DefaultMemoryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:  "postgres",
		Host:    "localhost",
		Port:    5432,
		User:    "studyflow",
		Name:    "studyflow",
		SSLMode: "disable",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled: false,
		Addr:    "localhost:6379",
		DB:      0,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:    "https://api.openai.com",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// DefaultOrchestratorConfig 返回默认编排配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		OverallDeadline:   90 * time.Second,
		DegradedThreshold: 3,
		BreakerThreshold:  5,
		BreakerCooldown:   60 * time.Second,
	}
}

// DefaultCacheConfig 返回默认缓存预算
// 嵌入缓存偏向条目数（向量小且定长，不设字节上限）；
// 内容缓存偏向字节上限（内容大小差异大，条目数较低）。
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Embedding: CacheBudget{
			MaxEntries:    5000,
			MaxBytes:      0,
			TTL:           6 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Content: CacheBudget{
			MaxEntries:    500,
			MaxBytes:      64 << 20, // 64 MiB
			TTL:           30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
	}
}

// DefaultMemoryConfig 返回默认记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		SessionRetentionDays:  7,
		LongTermRetentionDays: 90,
		RetrievalLimit:        5,
		MinSimilarity:         0.7,
		ExpirySweepInterval:   time.Hour,
	}
}
