// Package openaicompat 适配 OpenAI 兼容的 chat completions 端点。
// OpenAI、DeepSeek、GLM 等服务共用本实现，仅 BaseURL/APIKey 不同。
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/studyflow/llm"
	"github.com/BaSui01/studyflow/llm/providers"
	"github.com/BaSui01/studyflow/types"
)

// Config Provider 配置
type Config struct {
	// Name 注册名（openai/deepseek/glm 等）
	Name string `json:"name" yaml:"name"`
	// APIKey API 密钥
	APIKey string `json:"api_key" yaml:"api_key"`
	// BaseURL 基础 URL
	BaseURL string `json:"base_url" yaml:"base_url"`
	// Model 默认模型
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// Timeout HTTP 客户端超时
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Provider OpenAI 兼容 Provider
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New 创建 Provider
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("provider", cfg.Name)),
	}
}

func (p *Provider) Name() string { return p.cfg.Name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Completion 实现 llm.Provider.Completion
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	body := chatRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &types.Error{
			Code:       types.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.cfg.Name,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := string(respBody)
		var eresp errorResponse
		if json.Unmarshal(respBody, &eresp) == nil && eresp.Error.Message != "" {
			msg = eresp.Error.Message
		}
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.cfg.Name)
	}

	var cresp chatResponse
	if err := json.Unmarshal(respBody, &cresp); err != nil {
		return nil, types.NewError(types.ErrProviderInvalidResponse, "failed to decode completion").
			WithCause(err).WithProvider(p.cfg.Name)
	}

	if len(cresp.Choices) == 0 {
		return nil, types.NewError(types.ErrProviderInvalidResponse, "no choices in completion").
			WithProvider(p.cfg.Name)
	}

	return &llm.ChatResponse{
		ID:       cresp.ID,
		Provider: p.cfg.Name,
		Model:    cresp.Model,
		Content:  cresp.Choices[0].Message.Content,
		Usage: llm.ChatUsage{
			PromptTokens:     cresp.Usage.PromptTokens,
			CompletionTokens: cresp.Usage.CompletionTokens,
			TotalTokens:      cresp.Usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}

// HealthCheck 实现 llm.Provider.HealthCheck
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d", p.cfg.Name, resp.StatusCode)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}
