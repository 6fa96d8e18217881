// =============================================================================
// 📦 StudyFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("STUDYFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 StudyFlow 编排核心的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Database 数据库配置（记忆持久化）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 缓存配置（内容缓存可选二级）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Providers 上游 Provider 配置（按 tier 分层回退）
	Providers []ProviderConfig `yaml:"providers" env:"-"`

	// Embedding 嵌入 Provider 配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Orchestrator 回退编排配置
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// Cache 进程内缓存预算
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Memory 记忆子系统配置
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用（仅内容缓存二级）
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
}

// ProviderConfig 单个上游 Provider 配置。配置加载后不可变。
type ProviderConfig struct {
	// 名称（唯一标识）
	Name string `yaml:"name"`
	// 类型: openai_compat, anthropic
	Type string `yaml:"type"`
	// Tier 层级，1 为最优先
	Tier int `yaml:"tier"`
	// 支持的模型，首个为默认模型
	Models []string `yaml:"models"`
	// API 密钥
	APIKey string `yaml:"api_key"`
	// 基础 URL
	BaseURL string `yaml:"base_url"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout"`
	// 优先级权重（同 tier 内排序）
	Weight int `yaml:"weight"`
	// 每分钟请求预算，0 表示不限
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// 每日请求预算，0 表示不限
	RequestsPerDay int `yaml:"requests_per_day"`
	// 每月请求预算（日历月），0 表示不限
	RequestsPerMonth int `yaml:"requests_per_month"`
}

// DefaultModel 返回 Provider 的默认模型
func (p *ProviderConfig) DefaultModel() string {
	if len(p.Models) > 0 {
		return p.Models[0]
	}
	return ""
}

// SupportsModel 检查 Provider 是否支持指定模型
func (p *ProviderConfig) SupportsModel(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}

// EmbeddingConfig 嵌入 Provider 配置
type EmbeddingConfig struct {
	// 基础 URL（OpenAI 兼容 /v1/embeddings）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API 密钥
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型
	Model string `yaml:"model" env:"MODEL"`
	// 维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// OrchestratorConfig 回退编排配置
type OrchestratorConfig struct {
	// 整体请求截止时间，超过后放弃剩余候选
	OverallDeadline time.Duration `yaml:"overall_deadline" env:"OVERALL_DEADLINE"`
	// 连续失败多少次进入 degraded
	DegradedThreshold int `yaml:"degraded_threshold" env:"DEGRADED_THRESHOLD"`
	// 连续失败多少次熔断为 unavailable
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	// 熔断冷却窗口
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" env:"BREAKER_COOLDOWN"`
}

// CacheBudget 单个缓存实例的预算
type CacheBudget struct {
	// 最大条目数
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
	// 最大字节数，0 表示不设字节上限
	MaxBytes int64 `yaml:"max_bytes" env:"MAX_BYTES"`
	// 条目 TTL
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 周期清扫间隔
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// CacheConfig 两个进程内缓存的预算配置
type CacheConfig struct {
	// Embedding 嵌入向量缓存：条目数优先，不设字节上限
	Embedding CacheBudget `yaml:"embedding" env:"EMBEDDING"`
	// Content 远程内容缓存：字节上限优先，条目数较低
	Content CacheBudget `yaml:"content" env:"CONTENT"`
}

// MemoryConfig 记忆子系统配置
type MemoryConfig struct {
	// 会话记忆保留天数（short 档）
	SessionRetentionDays int `yaml:"session_retention_days" env:"SESSION_RETENTION_DAYS"`
	// 长期记忆保留天数（long_term 档）
	LongTermRetentionDays int `yaml:"long_term_retention_days" env:"LONG_TERM_RETENTION_DAYS"`
	// 语义检索默认返回条数
	RetrievalLimit int `yaml:"retrieval_limit" env:"RETRIEVAL_LIMIT"`
	// 语义检索默认相似度阈值
	MinSimilarity float64 `yaml:"min_similarity" env:"MIN_SIMILARITY"`
	// 过期清扫间隔
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval" env:"EXPIRY_SWEEP_INTERVAL"`
}

// =============================================================================
// 🚚 加载器
// =============================================================================

// Loader 配置加载器
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: "STUDYFLOW"}
}

// WithConfigPath 指定配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 指定环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("provider[%d]: name is required", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("provider %q: duplicate name", p.Name))
		}
		seen[p.Name] = true
		if p.Tier <= 0 {
			errs = append(errs, fmt.Sprintf("provider %q: tier must be >= 1", p.Name))
		}
		if len(p.Models) == 0 {
			errs = append(errs, fmt.Sprintf("provider %q: at least one model is required", p.Name))
		}
		if p.Timeout <= 0 {
			errs = append(errs, fmt.Sprintf("provider %q: timeout must be positive", p.Name))
		}
	}

	if c.Memory.MinSimilarity < 0 || c.Memory.MinSimilarity > 1 {
		errs = append(errs, "memory.min_similarity must be between 0 and 1")
	}
	if c.Cache.Content.MaxBytes < 0 {
		errs = append(errs, "cache.content.max_bytes must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
