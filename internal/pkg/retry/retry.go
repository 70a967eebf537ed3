// Package retry centralizes the backoff policy applied at every outbound
// call boundary. Call sites pass the operation; the policy decides, based
// on the error kind, whether another attempt is worthwhile.
package retry

import (
	"context"
	"math/rand"
	"time"

	"tradewind/internal/logger"
	"tradewind/internal/traderr"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter scales the random component added to each delay, 0..1.
	Jitter float64

	sleep func(context.Context, time.Duration) error
}

// Default matches the contract for upstream failures: 3 attempts,
// exponential backoff, capped at 5 minutes.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    5 * time.Minute,
		Jitter:      0.2,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts
// are exhausted. The last error is returned as-is so callers can still
// inspect its kind.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.sleep == nil {
		p.sleep = sleepCtx
	}
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !traderr.Retryable(err) || attempt == p.MaxAttempts {
			return err
		}
		delay := p.delayFor(attempt)
		logger.Warnf("%s: attempt %d/%d failed (%s), retrying in %s",
			op, attempt, p.MaxAttempts, traderr.KindOf(err), delay.Truncate(time.Millisecond))
		if serr := p.sleep(ctx, delay); serr != nil {
			return err
		}
	}
	return err
}

func (p Policy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
