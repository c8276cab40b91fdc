package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-io/groundwork/internal/ir"
)

func fastRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestRetryWithBackoffRecovers(t *testing.T) {
	calls := 0
	fn := func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	err := RetryWithBackoff(context.Background(), fastRetryPolicy(), fn, IsTransientError)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffPermanentError(t *testing.T) {
	calls := 0
	fn := func() error {
		calls++
		return errors.New("invalid credentials")
	}

	err := RetryWithBackoff(context.Background(), fastRetryPolicy(), fn, IsTransientError)
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a non-transient error must not be retried")
}

func TestRetryWithBackoffExhausted(t *testing.T) {
	calls := 0
	fn := func() error {
		calls++
		return errors.New("request timed out")
	}

	err := RetryWithBackoff(context.Background(), fastRetryPolicy(), fn, IsTransientError)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, 4, calls) // initial attempt plus MaxRetries
}

func TestRetryWithBackoffContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	fn := func() error {
		calls++
		cancel()
		return errors.New("connection reset")
	}

	policy := &RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	err := RetryWithBackoff(ctx, policy, fn, IsTransientError)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoffCapped(t *testing.T) {
	policy := &RetryPolicy{BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		delay := calculateBackoff(policy, attempt)
		assert.Positive(t, delay)
		assert.LessOrEqual(t, delay, policy.MaxDelay)
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err       error
		transient bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("request timed out"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("ThrottlingException: rate exceeded"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("resource not found"), false},
		{errors.New("403 Forbidden"), false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransientError(tt.err))
		})
	}
}

func TestApplyRetriesTransientProviderFailures(t *testing.T) {
	fake := &fakeProvider{
		failTimes: map[string]int{"webApp.appA": 2},
	}
	eng := newApplyFixture(fake)
	eng.Retry = fastRetryPolicy()
	ctx := context.Background()

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Type: "webApp", Name: "appA", Attributes: map[string]any{"plan": "basic"}},
		},
	}

	plan, err := eng.CreatePlan(ctx, cfg, nil)
	require.NoError(t, err)

	state, err := eng.ApplyPlan(ctx, plan, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, state.Resource("webApp.appA"))
	assert.Equal(t, 3, fake.calls["webApp.appA"])
}
