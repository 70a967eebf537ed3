package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewind/internal/traderr"
)

func fastPolicy(slept *[]time.Duration) Policy {
	p := Default()
	p.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p
}

func TestDoSucceedsAfterRetryableFailures(t *testing.T) {
	var slept []time.Duration
	p := fastPolicy(&slept)

	calls := 0
	err := p.Do(context.Background(), "test.op", func(context.Context) error {
		calls++
		if calls < 3 {
			return traderr.New(traderr.UpstreamUnavailable, "test.op", "down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, slept, 2)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	var slept []time.Duration
	p := fastPolicy(&slept)

	calls := 0
	err := p.Do(context.Background(), "test.op", func(context.Context) error {
		calls++
		return traderr.New(traderr.InvalidOrder, "test.op", "bad qty")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "invalid orders are never retried")
	assert.Empty(t, slept)
	assert.Equal(t, traderr.InvalidOrder, traderr.KindOf(err))
}

func TestDoUnclassifiedErrorsNotRetried(t *testing.T) {
	var slept []time.Duration
	p := fastPolicy(&slept)

	calls := 0
	err := p.Do(context.Background(), "test.op", func(context.Context) error {
		calls++
		return errors.New("plain failure")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	var slept []time.Duration
	p := fastPolicy(&slept)

	calls := 0
	err := p.Do(context.Background(), "test.op", func(context.Context) error {
		calls++
		return traderr.New(traderr.RateLimited, "test.op", "429")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, traderr.RateLimited, traderr.KindOf(err), "last error kind survives")
}

func TestDoReturnsWhenContextCancelledDuringBackoff(t *testing.T) {
	p := Default()
	p.sleep = sleepCtx
	p.BaseDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, "test.op", func(context.Context) error {
		return traderr.New(traderr.UpstreamUnavailable, "test.op", "down")
	})
	require.Error(t, err)
	assert.Equal(t, traderr.UpstreamUnavailable, traderr.KindOf(err))
}

func TestDelayBackoffAndCap(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, p.delayFor(1))
	assert.Equal(t, 2*time.Second, p.delayFor(2))
	assert.Equal(t, 3*time.Second, p.delayFor(3), "delay is capped")

	jittered := Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, Jitter: 0.5}
	d := jittered.delayFor(2)
	assert.GreaterOrEqual(t, d, 2*time.Second)
	assert.LessOrEqual(t, d, 3*time.Second)
}
