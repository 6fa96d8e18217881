// MockEmbedder 是嵌入 Provider 的测试模拟实现。
//
// 默认从文本内容派生确定性向量，保证相同文本产生相同嵌入。
package mocks

import (
	"context"
	"crypto/sha256"
	"math"
	"sync"
)

// MockEmbedder 实现 embedding.Provider
type MockEmbedder struct {
	mu sync.Mutex

	name       string
	dimensions int
	err        error

	// vectors 为指定文本固定返回向量，优先于派生向量。
	vectors map[string][]float64

	calls []string
}

// NewMockEmbedder 创建维度为 dims 的 MockEmbedder
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &MockEmbedder{
		name:       "mock-embedder",
		dimensions: dims,
		vectors:    map[string][]float64{},
	}
}

// WithError 设置每次调用都返回的错误
func (m *MockEmbedder) WithError(err error) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithVector 为指定文本固定返回向量
func (m *MockEmbedder) WithVector(text string, vec []float64) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vec
	return m
}

// EmbedQuery 实现 embedding.Provider
func (m *MockEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, query)
	err := m.err
	fixed, ok := m.vectors[query]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ok {
		return fixed, nil
	}
	return deriveVector(query, m.dimensions), nil
}

// EmbedDocuments 实现 embedding.Provider
func (m *MockEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	out := make([][]float64, 0, len(documents))
	for _, doc := range documents {
		vec, err := m.EmbedQuery(ctx, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// Name 实现 embedding.Provider
func (m *MockEmbedder) Name() string { return m.name }

// Dimensions 实现 embedding.Provider
func (m *MockEmbedder) Dimensions() int { return m.dimensions }

// Calls 返回已嵌入过的文本
func (m *MockEmbedder) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// deriveVector 从文本哈希派生单位向量
func deriveVector(text string, dims int) []float64 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, dims)
	var norm float64
	for i := 0; i < dims; i++ {
		v := float64(sum[i%len(sum)]) + 1
		vec[i] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
