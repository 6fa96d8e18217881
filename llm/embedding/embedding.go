// Package embedding 提供统一的嵌入提供者接口和 OpenAI 兼容实现.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/studyflow/llm/providers"
	"github.com/BaSui01/studyflow/types"
)

// Provider 定义统一的嵌入提供者接口.
type Provider interface {
	// EmbedQuery 嵌入单个查询字符串.
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments 嵌入多个文档.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	// Name 返回提供者名称.
	Name() string

	// Dimensions 返回默认嵌入维度.
	Dimensions() int
}

// Config OpenAI 兼容嵌入提供者配置.
type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OpenAICompatProvider 通过 OpenAI 兼容的 /v1/embeddings 端点生成嵌入.
type OpenAICompatProvider struct {
	cfg    Config
	client *http.Client
}

// NewOpenAICompat 创建 OpenAI 兼容嵌入提供者.
func NewOpenAICompat(cfg Config) *OpenAICompatProvider {
	if cfg.Name == "" {
		cfg.Name = "openai-embedding"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 1536
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OpenAICompatProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *OpenAICompatProvider) Name() string    { return p.cfg.Name }
func (p *OpenAICompatProvider) Dimensions() int { return p.cfg.Dimensions }

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

func (p *OpenAICompatProvider) embed(ctx context.Context, input []string) ([][]float64, error) {
	data, err := json.Marshal(embedRequest{Input: input, Model: p.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(data))
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
		return nil, providers.MapHTTPError(resp.StatusCode, string(respBody), p.cfg.Name)
	}

	var eresp embedResponse
	if err := json.Unmarshal(respBody, &eresp); err != nil {
		return nil, types.NewError(types.ErrProviderInvalidResponse, "failed to decode embeddings").
			WithCause(err).WithProvider(p.cfg.Name)
	}
	if len(eresp.Data) != len(input) {
		return nil, types.NewError(types.ErrProviderInvalidResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(input), len(eresp.Data))).
			WithProvider(p.cfg.Name)
	}

	out := make([][]float64, len(eresp.Data))
	for _, d := range eresp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, types.NewError(types.ErrProviderInvalidResponse, "embedding index out of range").
				WithProvider(p.cfg.Name)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// EmbedQuery 实现 Provider.EmbedQuery
func (p *OpenAICompatProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vecs, err := p.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vecs[0], nil
}

// EmbedDocuments 实现 Provider.EmbedDocuments
func (p *OpenAICompatProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	return p.embed(ctx, documents)
}
