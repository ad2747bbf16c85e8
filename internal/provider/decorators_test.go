package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/clausewise/internal/cache"
	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/observability"
	"github.com/ppiankov/clausewise/internal/worker"
)

// countingProvider counts calls and fails while err is set
type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Simplify(context.Context, string) (string, error) {
	p.calls.Add(1)
	if p.err != nil {
		return "", p.err
	}
	return "plain", nil
}

func (p *countingProvider) RecognizeEntities(context.Context, string) ([]model.Entity, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return []model.Entity{{Text: "$500", Category: model.EntityMonetaryAmount, Span: model.Span{Start: 2, End: 6}, Confidence: 0.95}}, nil
}

func (p *countingProvider) Classify(_ context.Context, _ string, scope model.Scope) (string, error) {
	p.calls.Add(1)
	if p.err != nil {
		return "", p.err
	}
	if scope == model.ScopeDocument {
		return LabelSalesContract, nil
	}
	return LabelPayment, nil
}

func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{}
	collector := observability.NewCollector("test")
	p := NewCachedProvider(inner, cache.NewMemoryCache(time.Minute, time.Minute), collector, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := p.Simplify(ctx, "text")
		require.NoError(t, err)
		assert.Equal(t, "plain", out)

		entities, err := p.RecognizeEntities(ctx, "text")
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, model.Span{Start: 2, End: 6}, entities[0].Span)
	}
	assert.Equal(t, int32(2), inner.calls.Load())

	// Scope is part of the key
	doc, err := p.Classify(ctx, "text", model.ScopeDocument)
	require.NoError(t, err)
	clause, err := p.Classify(ctx, "text", model.ScopeClause)
	require.NoError(t, err)
	assert.Equal(t, LabelSalesContract, doc)
	assert.Equal(t, LabelPayment, clause)
	assert.Equal(t, int32(4), inner.calls.Load())

	assert.Equal(t, 4.0, testutil.ToFloat64(collector.CacheHits))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.CacheMisses))
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	inner := &countingProvider{err: errors.New("boom")}
	p := NewCachedProvider(inner, cache.NewMemoryCache(time.Minute, time.Minute), nil, nil)

	_, err := p.Simplify(context.Background(), "text")
	require.Error(t, err)

	inner.err = nil
	out, err := p.Simplify(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedProvider_NilCache(t *testing.T) {
	inner := &countingProvider{}
	assert.Same(t, Provider(inner), NewCachedProvider(inner, nil, nil, nil))
}

func testBreakerConfig() model.BreakerConfig {
	return model.BreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      3,
	}
}

func TestBreakerProvider_Trips(t *testing.T) {
	inner := &countingProvider{err: &StatusError{StatusCode: 503}}
	p := NewBreakerProvider(inner, testBreakerConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Simplify(ctx, "text")
		assert.Equal(t, model.ProviderUnavailable, Classify(err))
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	_, err := p.Classify(ctx, "text", model.ScopeClause)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, model.ProviderUnavailable, Classify(err))
	assert.Equal(t, int32(3), inner.calls.Load(), "open breaker short-circuits")
}

func TestBreakerProvider_MalformedDoesNotTrip(t *testing.T) {
	inner := &countingProvider{err: malformedf("bad json")}
	p := NewBreakerProvider(inner, testBreakerConfig(), nil)

	for i := 0; i < 5; i++ {
		_, err := p.RecognizeEntities(context.Background(), "text")
		assert.ErrorIs(t, err, ErrMalformed)
	}
	assert.Equal(t, gobreaker.StateClosed, p.State())

	inner.err = nil
	entities, err := p.RecognizeEntities(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, entities, 1)
}

func TestRateLimitedProvider(t *testing.T) {
	inner := &countingProvider{}
	limiter := worker.NewLimiter(1, 1)
	p := NewRateLimitedProvider(inner, limiter)

	_, err := p.Simplify(context.Background(), "text")
	require.NoError(t, err)

	// The bucket is empty; a short deadline expires while waiting
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Classify(ctx, "text", model.ScopeClause)
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())

	assert.Same(t, Provider(inner), NewRateLimitedProvider(inner, nil))
}

func TestNewSet_Rules(t *testing.T) {
	cfg := model.DefaultConfig()

	set, err := NewSet(cfg, Deps{Cache: cache.NewMemoryCache(time.Minute, time.Minute)})
	require.NoError(t, err)

	assert.Equal(t, RulesName, set.Simplifier.Name())
	assert.Equal(t, RulesName, set.EntityRecognizer.Name())
	assert.Equal(t, RulesName, set.Classifier.Name())
	assert.Same(t, set.Simplifier.(Provider), set.Classifier.(Provider), "built once")

	label, err := set.Classifier.Classify(context.Background(), "The Buyer shall pay the Seller.", model.ScopeDocument)
	require.NoError(t, err)
	assert.Equal(t, LabelSalesContract, label)
}

func TestNewSet_Mixed(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Providers.Classifier = OpenAIName
	cfg.Providers.OpenAI.APIKey = "test-key"

	set, err := NewSet(cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, RulesName, set.Simplifier.Name())
	assert.Equal(t, OpenAIName, set.Classifier.Name())
	assert.IsType(t, &BreakerProvider{}, set.Classifier)
}

func TestNewSet_ProviderRateOverrides(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.RateLimit.RequestsPerSecond = 0.01
	cfg.RateLimit.Burst = 1
	cfg.RateLimit.Providers = map[string]model.ProviderRate{"Ollama": {RequestsPerSecond: 0}}

	limiter := worker.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	_, err := NewSet(cfg, Deps{Limiter: limiter})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Wait(ctx, OllamaName), "ollama is unlimited")
	}
	require.NoError(t, limiter.Wait(ctx, OpenAIName))
	assert.Error(t, limiter.Wait(ctx, OpenAIName), "openai keeps the slow default")
}

func TestNewSet_Errors(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Providers.Simplifier = AnthropicName
	_, err := NewSet(cfg, Deps{})
	assert.ErrorContains(t, err, "API key is required")

	cfg = model.DefaultConfig()
	cfg.Providers.Classifier = "gemini"
	_, err = NewSet(cfg, Deps{})
	assert.ErrorContains(t, err, "unknown provider")

	cfg = model.DefaultConfig()
	cfg.Providers.Rules.TaxonomyFile = "/nonexistent/taxonomy.yaml"
	_, err = NewSet(cfg, Deps{})
	assert.ErrorContains(t, err, "read taxonomy")
}

func writeTaxonomy(t *testing.T, dir, label string) *Taxonomy {
	t.Helper()
	path := filepath.Join(dir, label+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
clauses:
  - label: `+label+`
    keywords: [pay]
document_fallback: other
clause_fallback: general
`), 0o600))
	tax, err := LoadTaxonomy(path)
	require.NoError(t, err)
	return tax
}

func TestCachedProvider_TaxonomyChangeInvalidates(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	ctx := context.Background()

	first := NewCachedProvider(NewRulesProvider(writeTaxonomy(t, dir, "alpha")),
		cache.NewDiskCache(cacheDir, time.Hour), nil, nil)
	label, err := first.Classify(ctx, "The Buyer shall pay.", model.ScopeClause)
	require.NoError(t, err)
	assert.Equal(t, "alpha", label)

	beta := writeTaxonomy(t, dir, "beta")
	second := NewCachedProvider(NewRulesProvider(beta), cache.NewDiskCache(cacheDir, time.Hour), nil, nil)
	label, err = second.Classify(ctx, "The Buyer shall pay.", model.ScopeClause)
	require.NoError(t, err)
	assert.Equal(t, "beta", label)
	assert.True(t, beta.Contains(model.ScopeClause, label))
}

func TestFingerprint(t *testing.T) {
	rules := NewRulesProvider(nil)
	assert.Equal(t, rules.Fingerprint(), NewRulesProvider(DefaultTaxonomy()).Fingerprint())
	assert.NotEqual(t, rules.Fingerprint(), NewRulesProvider(writeTaxonomy(t, t.TempDir(), "alpha")).Fingerprint())

	llm := func(modelName string) *LLMProvider {
		return NewLLMProvider(&fakeCompleter{}, model.LLMConfig{Model: modelName, MaxTokens: 200}, nil)
	}
	assert.Equal(t, llm("gpt-4o").Fingerprint(), llm("gpt-4o").Fingerprint())
	assert.NotEqual(t, llm("gpt-4o").Fingerprint(), llm("gpt-4o-mini").Fingerprint())

	// Decorators pass the fingerprint through
	wrapped := NewBreakerProvider(NewRateLimitedProvider(llm("gpt-4o"), worker.NewLimiter(10, 1)), testBreakerConfig(), nil)
	assert.Equal(t, llm("gpt-4o").Fingerprint(), wrapped.Fingerprint())

	// Providers without one fall back to their name
	assert.Equal(t, "counting", fingerprint(&countingProvider{}))
}
