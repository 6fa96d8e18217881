package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/studyflow/memcache"
	"github.com/BaSui01/studyflow/types"
)

// maxMaterialBytes caps a single fetched document. Larger bodies are
// truncated; the cache additionally refuses entries above half its
// byte budget.
const maxMaterialBytes = 1 << 20

// MaterialLoader fetches referenced study materials over HTTP and
// serves repeats from the content cache. Concurrent misses for the
// same URL collapse into a single upstream fetch.
type MaterialLoader struct {
	fetcher *memcache.Fetcher[string]
	logger  *zap.Logger
}

// NewMaterialLoader creates a loader over the given content cache.
// httpClient may be nil, in which case a client with a 10s timeout is
// used.
func NewMaterialLoader(cache *memcache.Tiered[string], httpClient *http.Client, logger *zap.Logger) *MaterialLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	log := logger.With(zap.String("component", "material_loader"))

	fetch := func(ctx context.Context, url string) (string, int64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", 0, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("invalid material url %q", url)).WithCause(err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return "", 0, types.NewError(types.ErrUpstreamError,
				"material fetch failed").WithCause(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", 0, types.NewError(types.ErrUpstreamError,
				fmt.Sprintf("material fetch returned status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxMaterialBytes))
		if err != nil {
			return "", 0, types.NewError(types.ErrUpstreamError,
				"material body read failed").WithCause(err)
		}
		return string(body), int64(len(body)), nil
	}

	return &MaterialLoader{
		fetcher: memcache.NewFetcher(cache, fetch),
		logger:  log,
	}
}

// Load returns the text content behind url, from cache when possible.
func (l *MaterialLoader) Load(ctx context.Context, url string) (string, error) {
	return l.fetcher.Get(ctx, url)
}

// LoadAll fetches every URL, skipping failures with a warning. The
// returned slice preserves request order for the URLs that succeeded.
func (l *MaterialLoader) LoadAll(ctx context.Context, urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		content, err := l.Load(ctx, u)
		if err != nil {
			l.logger.Warn("material unavailable, continuing without it",
				zap.String("url", u), zap.Error(err))
			continue
		}
		out = append(out, content)
	}
	return out
}
