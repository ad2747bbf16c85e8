package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/util"
)

// Completer sends one prompt to a language model and returns its text
type Completer interface {
	// Name returns the backend name
	Name() string

	// Complete returns the model's reply to the request
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// IsAvailable checks if the backend is configured and reachable
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is one prompt for a Completer
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
	JSON        bool // Ask the backend for a JSON object where supported
}

// NewCompleter creates the completer for a named LLM backend
func NewCompleter(name string, cfg model.LLMConfig, httpCfg model.HTTPConfig) (Completer, error) {
	switch strings.ToLower(name) {
	case OpenAIName:
		return NewOpenAICompleter(cfg)
	case AnthropicName, "claude":
		return NewAnthropicCompleter(cfg, httpCfg)
	case OllamaName:
		return NewOllamaCompleter(cfg, httpCfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", name)
	}
}

func requestTimeout(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func newLLMHTTPClient(timeout time.Duration, httpCfg model.HTTPConfig) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
		},
	}
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
