package provider

import (
	"context"

	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/worker"
)

// RateLimitedProvider waits for a limiter token keyed by provider name
// before each call
type RateLimitedProvider struct {
	next    Provider
	limiter *worker.Limiter
}

// NewRateLimitedProvider wraps next with limiter. A nil limiter returns next.
func NewRateLimitedProvider(next Provider, limiter *worker.Limiter) Provider {
	if limiter == nil {
		return next
	}
	return &RateLimitedProvider{next: next, limiter: limiter}
}

// Name returns the wrapped provider's name
func (p *RateLimitedProvider) Name() string {
	return p.next.Name()
}

// Fingerprint returns the wrapped provider's fingerprint
func (p *RateLimitedProvider) Fingerprint() string {
	return fingerprint(p.next)
}

// Simplify waits for a token, then calls through
func (p *RateLimitedProvider) Simplify(ctx context.Context, text string) (string, error) {
	if err := p.limiter.Wait(ctx, p.next.Name()); err != nil {
		return "", err
	}
	return p.next.Simplify(ctx, text)
}

// RecognizeEntities waits for a token, then calls through
func (p *RateLimitedProvider) RecognizeEntities(ctx context.Context, text string) ([]model.Entity, error) {
	if err := p.limiter.Wait(ctx, p.next.Name()); err != nil {
		return nil, err
	}
	return p.next.RecognizeEntities(ctx, text)
}

// Classify waits for a token, then calls through
func (p *RateLimitedProvider) Classify(ctx context.Context, text string, scope model.Scope) (string, error) {
	if err := p.limiter.Wait(ctx, p.next.Name()); err != nil {
		return "", err
	}
	return p.next.Classify(ctx, text, scope)
}
