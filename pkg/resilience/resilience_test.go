package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/errors"
)

var errBoom = errors.New("boom")

func TestBreakerLifecycle(t *testing.T) {
	b := NewBreaker("redis", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	fail := func() error { return errBoom }
	ok := func() error { return nil }

	assert.ErrorIs(t, b.Execute(fail), errBoom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, b.Execute(fail), errBoom, "probe runs after cooldown")
	assert.Equal(t, StateOpen, b.State(), "failed probe reopens")

	now = now.Add(time.Minute)
	require.NoError(t, b.Execute(ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker("x", BreakerConfig{FailureThreshold: 2})
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errBoom })
	assert.Equal(t, StateClosed, b.State())
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()

	err := WithTimeout(ctx, time.Second, "fast", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	block := make(chan struct{})
	defer close(block)
	err = WithTimeout(ctx, 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-block
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)

	err = WithTimeout(ctx, 0, "unbounded", func(ctx context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = WithTimeout(cancelled, time.Second, "cancelled", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
