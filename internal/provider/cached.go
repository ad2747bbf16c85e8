package provider

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ppiankov/clausewise/internal/cache"
	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/observability"
)

// CachedProvider memoizes successful provider responses keyed by the
// provider fingerprint, capability, scope, and input text. Failures are
// never cached.
type CachedProvider struct {
	next      Provider
	keyPrefix string
	cache     cache.Cache
	collector *observability.Collector
	logger    *zap.Logger
}

// NewCachedProvider wraps next with c. A nil cache returns next unchanged.
func NewCachedProvider(next Provider, c cache.Cache, collector *observability.Collector, logger *zap.Logger) Provider {
	if c == nil {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{next: next, keyPrefix: fingerprint(next), cache: c, collector: collector, logger: logger}
}

// Name returns the wrapped provider's name
func (p *CachedProvider) Name() string {
	return p.next.Name()
}

// Simplify returns a cached simplification or computes one
func (p *CachedProvider) Simplify(ctx context.Context, text string) (string, error) {
	return cachedCall(p, model.CapabilitySimplify, "", text, func() (string, error) {
		return p.next.Simplify(ctx, text)
	})
}

// RecognizeEntities returns cached entities or computes them
func (p *CachedProvider) RecognizeEntities(ctx context.Context, text string) ([]model.Entity, error) {
	return cachedCall(p, model.CapabilityEntities, "", text, func() ([]model.Entity, error) {
		return p.next.RecognizeEntities(ctx, text)
	})
}

// Classify returns a cached label or computes one
func (p *CachedProvider) Classify(ctx context.Context, text string, scope model.Scope) (string, error) {
	return cachedCall(p, model.CapabilityClassify, scope, text, func() (string, error) {
		return p.next.Classify(ctx, text, scope)
	})
}

func cachedCall[T any](p *CachedProvider, capability model.Capability, scope model.Scope, text string, call func() (T, error)) (T, error) {
	key := cache.CacheKey(p.keyPrefix, string(capability), string(scope), text)

	if data, ok := p.cache.Get(key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			p.collector.RecordCache(true)
			return v, nil
		}
		// Unreadable entry, recompute and overwrite
		_ = p.cache.Delete(key)
	}
	p.collector.RecordCache(false)

	v, err := call()
	if err != nil {
		return v, err
	}

	data, err := json.Marshal(v)
	if err == nil {
		err = p.cache.Set(key, data, 0)
	}
	if err != nil {
		p.logger.Warn("cache write failed", zap.String("provider", p.next.Name()), zap.Error(err))
	}
	return v, nil
}
