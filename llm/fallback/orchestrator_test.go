package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/studyflow/llm"
	"github.com/BaSui01/studyflow/llm/health"
	"github.com/BaSui01/studyflow/testutil/mocks"
	"github.com/BaSui01/studyflow/types"
)

type orchestratorFixture struct {
	registry *llm.Registry
	tracker  *health.Tracker
}

func newFixture(t *testing.T, providers ...*mocks.MockProvider) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		registry: llm.NewRegistry(),
		tracker:  health.NewTracker(health.DefaultConfig(), zap.NewNop()),
	}
	for _, p := range providers {
		require.NoError(t, f.registry.Register(p))
		require.NoError(t, f.tracker.Register(p.Name(), health.Budget{}))
	}
	return f
}

func (f *orchestratorFixture) orchestrator(candidates []Candidate) *Orchestrator {
	return New(candidates, f.registry, f.tracker, nil, Config{}, zap.NewNop())
}

func chatRequest() *Request {
	return &Request{
		TraceID:  "trace-1",
		UserID:   "user-1",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "explain recursion"}},
	}
}

func TestOrchestrator_FirstCandidateSucceeds(t *testing.T) {
	a := mocks.NewMockProvider("alpha").WithResponse("from alpha")
	b := mocks.NewMockProvider("beta").WithResponse("from beta")
	f := newFixture(t, a, b)

	o := f.orchestrator([]Candidate{
		{Name: "alpha", Tier: 1, Models: []string{"m1"}},
		{Name: "beta", Tier: 2, Models: []string{"m1"}},
	})

	result, err := o.Execute(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "from alpha", result.Content)
	assert.Equal(t, "alpha", result.ProviderUsed)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, 1, result.TierReached)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, 0, b.CallCount(), "lower tiers are not touched on success")
}

func TestOrchestrator_SameTierFallbackSetsFlag(t *testing.T) {
	boom := types.NewError(types.ErrUpstreamError, "boom").WithProvider("alpha")
	a := mocks.NewMockProvider("alpha").WithError(boom)
	b := mocks.NewMockProvider("beta").WithResponse("from beta")
	c := mocks.NewMockProvider("gamma").WithResponse("from gamma")
	f := newFixture(t, a, b, c)

	o := f.orchestrator([]Candidate{
		{Name: "alpha", Tier: 1, Weight: 10, Models: []string{"m1"}},
		{Name: "beta", Tier: 1, Weight: 5, Models: []string{"m1"}},
		{Name: "gamma", Tier: 2, Models: []string{"m1"}},
	})

	result, err := o.Execute(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "beta", result.ProviderUsed)
	assert.True(t, result.FallbackUsed, "any non-first attempt counts as fallback")
	assert.Equal(t, 1, result.TierReached)
	assert.Len(t, result.Attempts, 2)
	assert.Equal(t, OutcomeError, result.Attempts[0].Outcome)
	assert.Equal(t, OutcomeSuccess, result.Attempts[1].Outcome)
	assert.Equal(t, 0, c.CallCount(), "remaining candidates stay untried")
}

func TestOrchestrator_TierOrderAndExhaustion(t *testing.T) {
	fail := types.NewError(types.ErrProviderUnavailable, "down")
	a := mocks.NewMockProvider("alpha").WithError(fail)
	b := mocks.NewMockProvider("beta").WithError(fail)
	c := mocks.NewMockProvider("gamma").WithError(fail)
	f := newFixture(t, a, b, c)

	o := f.orchestrator([]Candidate{
		{Name: "gamma", Tier: 3, Models: []string{"m1"}},
		{Name: "alpha", Tier: 1, Models: []string{"m1"}},
		{Name: "beta", Tier: 2, Models: []string{"m1"}},
	})

	_, err := o.Execute(context.Background(), chatRequest())
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 3)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, []string{
		exhausted.Attempts[0].Provider,
		exhausted.Attempts[1].Provider,
		exhausted.Attempts[2].Provider,
	}, "attempts must follow tier order regardless of config order")
}

func TestOrchestrator_NoEligibleCandidatesFailsFast(t *testing.T) {
	a := mocks.NewMockProvider("alpha").WithResponse("never called")
	f := newFixture(t, a)

	// Open the breaker so alpha is ineligible.
	for i := 0; i < 5; i++ {
		f.tracker.RecordFailure("alpha", time.Millisecond)
	}

	o := f.orchestrator([]Candidate{{Name: "alpha", Tier: 1, Models: []string{"m1"}}})

	_, err := o.Execute(context.Background(), chatRequest())
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Empty(t, exhausted.Attempts)
	assert.Equal(t, 0, a.CallCount(), "no network call when no candidate is eligible")
}

func TestOrchestrator_ModelFilter(t *testing.T) {
	a := mocks.NewMockProvider("alpha").WithResponse("from alpha")
	b := mocks.NewMockProvider("beta").WithResponse("from beta")
	f := newFixture(t, a, b)

	o := f.orchestrator([]Candidate{
		{Name: "alpha", Tier: 1, Models: []string{"m1"}},
		{Name: "beta", Tier: 2, Models: []string{"m1", "special"}},
	})

	req := chatRequest()
	req.Model = "special"
	result, err := o.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "beta", result.ProviderUsed)
	assert.Equal(t, "special", result.ModelUsed)
	assert.Equal(t, 0, a.CallCount())
}

func TestOrchestrator_PreferredProviderFirst(t *testing.T) {
	a := mocks.NewMockProvider("alpha").WithResponse("from alpha")
	b := mocks.NewMockProvider("beta").WithResponse("from beta")
	f := newFixture(t, a, b)

	o := f.orchestrator([]Candidate{
		{Name: "alpha", Tier: 1, Models: []string{"m1"}},
		{Name: "beta", Tier: 2, Models: []string{"m1"}},
	})

	req := chatRequest()
	req.Provider = "beta"
	result, err := o.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "beta", result.ProviderUsed)
	assert.True(t, result.FallbackUsed, "tier-2 success is reported as fallback")
}

func TestOrchestrator_RateLimitedCandidateSkippedWithoutCall(t *testing.T) {
	a := mocks.NewMockProvider("alpha").WithResponse("never called")
	b := mocks.NewMockProvider("beta").WithResponse("from beta")

	f := &orchestratorFixture{
		registry: llm.NewRegistry(),
		tracker:  health.NewTracker(health.DefaultConfig(), zap.NewNop()),
	}
	require.NoError(t, f.registry.Register(a))
	require.NoError(t, f.registry.Register(b))
	require.NoError(t, f.tracker.Register("alpha", health.Budget{PerMinute: 1}))
	require.NoError(t, f.tracker.Register("beta", health.Budget{}))

	// Drain alpha's minute budget.
	require.True(t, f.tracker.TryAcquire("alpha"))

	o := f.orchestrator([]Candidate{
		{Name: "alpha", Tier: 1, Models: []string{"m1"}},
		{Name: "beta", Tier: 2, Models: []string{"m1"}},
	})

	result, err := o.Execute(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "beta", result.ProviderUsed)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, OutcomeRateLimited, result.Attempts[0].Outcome)
	assert.Equal(t, 0, a.CallCount(), "rate limited candidates are skipped without a network call")
}

func TestOrchestrator_PerAttemptTimeout(t *testing.T) {
	slow := mocks.NewMockProvider("slow").WithDelay(500 * time.Millisecond)
	fast := mocks.NewMockProvider("fast").WithResponse("from fast")
	f := newFixture(t, slow, fast)

	o := f.orchestrator([]Candidate{
		{Name: "slow", Tier: 1, Models: []string{"m1"}, Timeout: 50 * time.Millisecond},
		{Name: "fast", Tier: 2, Models: []string{"m1"}},
	})

	result, err := o.Execute(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "fast", result.ProviderUsed)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, OutcomeTimeout, result.Attempts[0].Outcome)
}

func TestOrchestrator_OverallDeadlineAbandonsRemaining(t *testing.T) {
	slow := mocks.NewMockProvider("slow").WithDelay(200 * time.Millisecond)
	next := mocks.NewMockProvider("next").WithResponse("never reached")
	f := newFixture(t, slow, next)

	o := New([]Candidate{
		{Name: "slow", Tier: 1, Models: []string{"m1"}, Timeout: time.Second},
		{Name: "next", Tier: 2, Models: []string{"m1"}},
	}, f.registry, f.tracker, nil, Config{OverallDeadline: 100 * time.Millisecond}, zap.NewNop())

	_, err := o.Execute(context.Background(), chatRequest())
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 0, next.CallCount(), "deadline expiry must abandon remaining candidates")
}

func TestOrchestrator_EmptyContentIsInvalidResponse(t *testing.T) {
	empty := mocks.NewMockProvider("empty").WithResponse("")
	backup := mocks.NewMockProvider("backup").WithResponse("real answer")
	f := newFixture(t, empty, backup)

	o := f.orchestrator([]Candidate{
		{Name: "empty", Tier: 1, Models: []string{"m1"}},
		{Name: "backup", Tier: 2, Models: []string{"m1"}},
	})

	result, err := o.Execute(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "backup", result.ProviderUsed)
	assert.Equal(t, OutcomeInvalidResponse, result.Attempts[0].Outcome)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Outcome
	}{
		{"rate limited", types.NewError(types.ErrProviderRateLimited, "429"), OutcomeRateLimited},
		{"timeout code", types.NewError(types.ErrProviderTimeout, "slow"), OutcomeTimeout},
		{"invalid response", types.NewError(types.ErrProviderInvalidResponse, "empty"), OutcomeInvalidResponse},
		{"deadline", context.DeadlineExceeded, OutcomeTimeout},
		{"wrapped deadline", errors.Join(errors.New("call failed"), context.DeadlineExceeded), OutcomeTimeout},
		{"generic", errors.New("boom"), OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyError(tt.err))
		})
	}
}

func TestExhaustedError_Message(t *testing.T) {
	err := &ExhaustedError{Attempts: []Attempt{
		{Tier: 1, Provider: "alpha", Outcome: OutcomeTimeout},
		{Tier: 2, Provider: "beta", Outcome: OutcomeRateLimited},
	}}
	msg := err.Error()
	assert.Contains(t, msg, "all providers exhausted")
	assert.Contains(t, msg, "tier1/alpha=timeout")
	assert.Contains(t, msg, "tier2/beta=rate_limited")
}
