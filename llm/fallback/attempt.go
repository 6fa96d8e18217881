package fallback

import (
	"fmt"
	"strings"
	"time"
)

// Outcome 单次尝试的结局
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeInvalidResponse Outcome = "invalid_response"
	OutcomeError           Outcome = "error"
)

// Attempt 一次候选尝试的记录，仅在单次请求内存续，
// 用于构建最终的聚合失败或成功轨迹，并回写健康记录。
type Attempt struct {
	Tier      int       `json:"tier"`
	Provider  string    `json:"provider"`
	StartedAt time.Time `json:"started_at"`
	Outcome   Outcome   `json:"outcome"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
}

// ExhaustedError 聚合失败：所有合格候选都已失败（或没有合格候选）。
// 携带每一次尝试的记录，调用方能看到尝试了哪些 tier 以及各自为何失败。
type ExhaustedError struct {
	Attempts []Attempt
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers exhausted: no eligible candidates"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("tier%d/%s=%s", a.Tier, a.Provider, a.Outcome))
	}
	return "all providers exhausted: " + strings.Join(parts, ", ")
}
