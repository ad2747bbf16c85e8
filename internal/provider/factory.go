package provider

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/clausewise/internal/cache"
	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/observability"
	"github.com/ppiankov/clausewise/internal/worker"
)

// Deps are the shared services the provider decorators use
type Deps struct {
	Logger    *zap.Logger
	Collector *observability.Collector
	Cache     cache.Cache
	Limiter   *worker.Limiter
}

// NewSet builds the provider for each capability from configuration.
// Each named provider is built once and shared between the capabilities
// that select it. Remote providers are rate limited and, when enabled,
// guarded by a circuit breaker; every provider is cached when a cache is set.
func NewSet(cfg *model.Config, deps Deps) (Set, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Limiter == nil && (cfg.RateLimit.RequestsPerSecond > 0 || len(cfg.RateLimit.Providers) > 0) {
		deps.Limiter = worker.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	if deps.Limiter != nil {
		for name, r := range cfg.RateLimit.Providers {
			deps.Limiter.SetRate(strings.ToLower(name), r.RequestsPerSecond, r.Burst)
		}
	}

	var taxonomy *Taxonomy
	if path := cfg.Providers.Rules.TaxonomyFile; path != "" {
		t, err := LoadTaxonomy(path)
		if err != nil {
			return Set{}, err
		}
		taxonomy = t
	}

	built := make(map[string]Provider)
	get := func(name string) (Provider, error) {
		name = strings.ToLower(name)
		if p, ok := built[name]; ok {
			return p, nil
		}
		p, err := buildProvider(name, cfg, taxonomy, deps)
		if err != nil {
			return nil, err
		}
		built[name] = p
		return p, nil
	}

	simplifier, err := get(cfg.Providers.Simplifier)
	if err != nil {
		return Set{}, fmt.Errorf("simplifier: %w", err)
	}
	recognizer, err := get(cfg.Providers.EntityRecognizer)
	if err != nil {
		return Set{}, fmt.Errorf("entity recognizer: %w", err)
	}
	classifier, err := get(cfg.Providers.Classifier)
	if err != nil {
		return Set{}, fmt.Errorf("classifier: %w", err)
	}

	return Set{Simplifier: simplifier, EntityRecognizer: recognizer, Classifier: classifier}, nil
}

func buildProvider(name string, cfg *model.Config, taxonomy *Taxonomy, deps Deps) (Provider, error) {
	var p Provider
	switch name {
	case RulesName, "":
		p = NewRulesProvider(taxonomy)
	default:
		llmCfg, ok := llmConfig(name, cfg.Providers)
		if !ok {
			return nil, fmt.Errorf("unknown provider: %s (supported: rules, openai, anthropic, ollama)", name)
		}
		completer, err := NewCompleter(name, llmCfg, cfg.Load.HTTP)
		if err != nil {
			return nil, err
		}
		p = NewRateLimitedProvider(NewLLMProvider(completer, llmCfg, taxonomy), deps.Limiter)
		if cfg.Breaker.Enabled {
			p = NewBreakerProvider(p, cfg.Breaker, deps.Logger)
		}
	}

	deps.Logger.Debug("provider ready", zap.String("provider", p.Name()))
	return NewCachedProvider(p, deps.Cache, deps.Collector, deps.Logger), nil
}

func llmConfig(name string, providers model.ProvidersConfig) (model.LLMConfig, bool) {
	switch name {
	case OpenAIName:
		return providers.OpenAI, true
	case AnthropicName, "claude":
		return providers.Anthropic, true
	case OllamaName:
		return providers.Ollama, true
	}
	return model.LLMConfig{}, false
}
