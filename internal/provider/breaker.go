package provider

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ppiankov/clausewise/internal/model"
)

// BreakerProvider stops calling a failing provider for a cool-down period.
// Rejected calls fail with gobreaker.ErrOpenState or ErrTooManyRequests,
// which classify as unavailable.
type BreakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps next with a circuit breaker. Malformed output and
// caller cancellation do not count as failures; the backend answered.
func NewBreakerProvider(next Provider, cfg model.BreakerConfig, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only trip if we have enough requests to make a decision
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMalformed) || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerProvider{next: next, cb: cb}
}

// Name returns the wrapped provider's name
func (p *BreakerProvider) Name() string {
	return p.next.Name()
}

// Fingerprint returns the wrapped provider's fingerprint
func (p *BreakerProvider) Fingerprint() string {
	return fingerprint(p.next)
}

// State reports the breaker state
func (p *BreakerProvider) State() gobreaker.State {
	return p.cb.State()
}

// Simplify calls through the breaker
func (p *BreakerProvider) Simplify(ctx context.Context, text string) (string, error) {
	return breakerCall(p.cb, func() (string, error) {
		return p.next.Simplify(ctx, text)
	})
}

// RecognizeEntities calls through the breaker
func (p *BreakerProvider) RecognizeEntities(ctx context.Context, text string) ([]model.Entity, error) {
	return breakerCall(p.cb, func() ([]model.Entity, error) {
		return p.next.RecognizeEntities(ctx, text)
	})
}

// Classify calls through the breaker
func (p *BreakerProvider) Classify(ctx context.Context, text string, scope model.Scope) (string, error) {
	return breakerCall(p.cb, func() (string, error) {
		return p.next.Classify(ctx, text, scope)
	})
}

func breakerCall[T any](cb *gobreaker.CircuitBreaker, call func() (T, error)) (T, error) {
	var zero T
	out, err := cb.Execute(func() (any, error) {
		return call()
	})
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}
