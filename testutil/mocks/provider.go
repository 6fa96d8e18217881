// MockProvider 是 LLM Provider 的测试模拟实现。
//
// 支持固定响应、错误序列与调用记录，用于编排器和聊天服务测试。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/studyflow/llm"
)

// MockProvider 实现 llm.Provider
type MockProvider struct {
	mu sync.Mutex

	name     string
	response string
	usage    llm.ChatUsage

	// errs 按调用顺序注入错误；nil 元素表示该次调用成功。
	// 耗尽后回落到 err。
	errs []error
	err  error

	delay          time.Duration
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	calls []llm.ChatRequest
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:     name,
		response: "mock response",
		usage:    llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(content string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = content
	return m
}

// WithUsage 设置响应的 token 用量
func (m *MockProvider) WithUsage(usage llm.ChatUsage) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = usage
	return m
}

// WithError 设置每次调用都返回的错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithErrorSequence 按调用顺序注入错误，nil 表示成功
func (m *MockProvider) WithErrorSequence(errs ...error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = errs
	return m
}

// WithDelay 设置每次调用的模拟延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithCompletionFunc 完全接管 Completion 行为
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// Completion 实现 llm.Provider
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, *req)
	callIndex := len(m.calls) - 1
	fn := m.completionFunc
	delay := m.delay
	err := m.err
	if callIndex < len(m.errs) {
		err = m.errs[callIndex]
	}
	content := m.response
	usage := m.usage
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	return &llm.ChatResponse{
		ID:        "mock-response",
		Provider:  m.name,
		Model:     req.Model,
		Content:   content,
		Usage:     usage,
		CreatedAt: time.Now(),
	}, nil
}

// HealthCheck 实现 llm.Provider
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.Lock()
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Message: err.Error()}, nil
	}
	return &llm.HealthStatus{Healthy: true}, nil
}

// Name 实现 llm.Provider
func (m *MockProvider) Name() string { return m.name }

// Calls 返回已记录的请求副本
func (m *MockProvider) Calls() []llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.ChatRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
