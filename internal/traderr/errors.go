// Package traderr classifies failures at the broker/news/classifier
// boundary so retry policy and user messaging can key off the kind instead
// of string matching.
package traderr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	InsufficientFunds
	RateLimited
	SettlementBlocked
	MarketClosed
	InvalidOrder
	UpstreamUnavailable
)

func (k Kind) String() string {
	switch k {
	case InsufficientFunds:
		return "insufficient_funds"
	case RateLimited:
		return "rate_limited"
	case SettlementBlocked:
		return "settlement_blocked"
	case MarketClosed:
		return "market_closed"
	case InvalidOrder:
		return "invalid_order"
	case UpstreamUnavailable:
		return "upstream_unavailable"
	default:
		return "unknown"
	}
}

// Retryable reports whether the kind is worth retrying with backoff.
// InvalidOrder and InsufficientFunds need user action; SettlementBlocked
// clears only with time, not retries.
func (k Kind) Retryable() bool {
	switch k {
	case RateLimited, MarketClosed, UpstreamUnavailable:
		return true
	default:
		return false
	}
}

// Error carries the kind alongside the wrapped cause and the operation that
// failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error without an underlying cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. A nil cause yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from anywhere in the chain, Unknown otherwise.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return Unknown
}

// Retryable reports whether err should be retried with backoff.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}
