package traderr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWalksWrappedChain(t *testing.T) {
	base := New(RateLimited, "broker.PlaceOrder", "429")
	wrapped := fmt.Errorf("tick failed: %w", base)

	assert.Equal(t, RateLimited, KindOf(wrapped))
	assert.True(t, Retryable(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.False(t, Retryable(errors.New("plain")))
}

func TestRetryableKinds(t *testing.T) {
	retryable := []Kind{RateLimited, MarketClosed, UpstreamUnavailable}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), k.String())
	}
	terminal := []Kind{Unknown, InsufficientFunds, SettlementBlocked, InvalidOrder}
	for _, k := range terminal {
		assert.False(t, k.Retryable(), k.String())
	}
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(UpstreamUnavailable, "op", nil))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(UpstreamUnavailable, "news.SentimentForSymbols", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "upstream_unavailable")
	assert.Contains(t, err.Error(), "news.SentimentForSymbols")
}
