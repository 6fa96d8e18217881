package chat

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter estimates token usage for responses whose upstream
// omitted usage data. It lazily loads a tiktoken encoding and falls
// back to a character estimate when the encoding is unavailable
// (offline environments, unknown models).
type TokenCounter struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
	logger   *zap.Logger
}

// NewTokenCounter creates a counter.
func NewTokenCounter(logger *zap.Logger) *TokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCounter{logger: logger.With(zap.String("component", "token_counter"))}
}

// Count returns the token count of text, falling back to len/4.
func (c *TokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.logger.Warn("tiktoken encoding unavailable, using character estimate",
				zap.Error(err))
			return
		}
		c.encoding = enc
	})

	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	return len(text) / 4
}
