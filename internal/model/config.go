package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the complete clausewise configuration
type Config struct {
	Load      LoadConfig      `yaml:"load" mapstructure:"load"`
	Segment   SegmentConfig   `yaml:"segment" mapstructure:"segment"`
	Dispatch  DispatchConfig  `yaml:"dispatch" mapstructure:"dispatch"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
}

// LoadConfig controls document loading
type LoadConfig struct {
	MaxBytes int64      `yaml:"max_bytes" mapstructure:"max_bytes" validate:"gt=0"`
	HTTP     HTTPConfig `yaml:"http" mapstructure:"http"`
}

// HTTPConfig controls fetching documents from URLs
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	MaxRedirects  int           `yaml:"max_redirects" mapstructure:"max_redirects" validate:"gte=0"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// SegmentConfig controls clause segmentation
type SegmentConfig struct {
	SplitSemicolons bool `yaml:"split_semicolons" mapstructure:"split_semicolons"` // Cut after ";" at line ends and before enumerators
	Verify          bool `yaml:"verify" mapstructure:"verify"`                     // Check totality after every segmentation
}

// DispatchConfig controls how capability calls are fanned out
type DispatchConfig struct {
	Workers          int           `yaml:"workers" mapstructure:"workers" validate:"gte=1,lte=256"`
	CallTimeout      time.Duration `yaml:"call_timeout" mapstructure:"call_timeout" validate:"gt=0"`
	Simplify         bool          `yaml:"simplify" mapstructure:"simplify"`
	Entities         bool          `yaml:"entities" mapstructure:"entities"`
	ClassifyClauses  bool          `yaml:"classify_clauses" mapstructure:"classify_clauses"`
	ClassifyDocument bool          `yaml:"classify_document" mapstructure:"classify_document"`
	SimplifyDocument bool          `yaml:"simplify_document" mapstructure:"simplify_document"`
}

// ProvidersConfig selects the provider backing each capability
type ProvidersConfig struct {
	Simplifier       string      `yaml:"simplifier" mapstructure:"simplifier" validate:"oneof=rules openai anthropic ollama"`
	EntityRecognizer string      `yaml:"entity_recognizer" mapstructure:"entity_recognizer" validate:"oneof=rules openai anthropic ollama"`
	Classifier       string      `yaml:"classifier" mapstructure:"classifier" validate:"oneof=rules openai anthropic ollama"`
	Rules            RulesConfig `yaml:"rules" mapstructure:"rules"`
	OpenAI           LLMConfig   `yaml:"openai" mapstructure:"openai"`
	Anthropic        LLMConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama           LLMConfig   `yaml:"ollama" mapstructure:"ollama"`
}

// Uses reports whether any capability is served by the named provider
func (p ProvidersConfig) Uses(name string) bool {
	return p.Simplifier == name || p.EntityRecognizer == name || p.Classifier == name
}

// RulesConfig configures the offline rules provider
type RulesConfig struct {
	TaxonomyFile string `yaml:"taxonomy_file,omitempty" mapstructure:"taxonomy_file"`
}

// LLMConfig configures one hosted or local model provider
type LLMConfig struct {
	Model           string  `yaml:"model" mapstructure:"model"`
	APIKey          string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL         string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout         int     `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"` // seconds
	MaxTokens       int     `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`
	Temperature     float32 `yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	StrictGrounding bool    `yaml:"strict_grounding" mapstructure:"strict_grounding"` // Reject entities not present in the input
}

// CacheConfig controls caching of provider responses
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl" validate:"gte=0"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl" validate:"gte=0"`
	Dir       string        `yaml:"dir,omitempty" mapstructure:"dir"` // Empty disables the disk layer
}

// RateLimitConfig limits calls to remote providers
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"` // 0 disables limiting
	Burst             int     `yaml:"burst" mapstructure:"burst" validate:"gte=0"`

	// Providers overrides the default rate per provider name
	Providers map[string]ProviderRate `yaml:"providers,omitempty" mapstructure:"providers" validate:"dive"`
}

// ProviderRate is the rate for one provider; 0 requests per second disables limiting
type ProviderRate struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
}

// BreakerConfig configures the circuit breaker around remote providers
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests" mapstructure:"max_requests"`
	Interval         time.Duration `yaml:"interval" mapstructure:"interval"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests" mapstructure:"min_requests"`
}

// StoreConfig configures the result store
type StoreConfig struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"` // SQLite file; empty disables persistence
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string   `yaml:"addr" mapstructure:"addr" validate:"required"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes" validate:"gt=0"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// DefaultConfig returns sensible defaults. Every capability runs on the
// offline rules provider, so no API key is needed out of the box.
func DefaultConfig() *Config {
	return &Config{
		Load: LoadConfig{
			MaxBytes: 20_000_000,
			HTTP: HTTPConfig{
				Timeout:       30 * time.Second,
				UserAgent:     "ClauseWise/0.1 (+https://github.com/ppiankov/clausewise)",
				MaxRedirects:  3,
				RespectRobots: true,
			},
		},
		Segment: SegmentConfig{
			SplitSemicolons: true,
		},
		Dispatch: DispatchConfig{
			Workers:          8,
			CallTimeout:      30 * time.Second,
			Simplify:         true,
			Entities:         true,
			ClassifyClauses:  true,
			ClassifyDocument: true,
		},
		Providers: ProvidersConfig{
			Simplifier:       "rules",
			EntityRecognizer: "rules",
			Classifier:       "rules",
			OpenAI: LLMConfig{
				Model:           "gpt-4o-mini",
				Timeout:         30,
				MaxTokens:       1000,
				Temperature:     0.2,
				StrictGrounding: true,
			},
			Anthropic: LLMConfig{
				Model:           "claude-3-5-haiku-20241022",
				Timeout:         30,
				MaxTokens:       1000,
				Temperature:     0.2,
				StrictGrounding: true,
			},
			Ollama: LLMConfig{
				Model:           "llama3.1:8b",
				BaseURL:         "http://localhost:11434",
				Timeout:         60,
				MaxTokens:       1000,
				Temperature:     0.2,
				StrictGrounding: true,
			},
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             5,
			Providers: map[string]ProviderRate{
				// Local model server, no quota to protect
				"ollama": {RequestsPerSecond: 0},
			},
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 20 << 20,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}

var validate = validator.New()

// Validate checks the configuration and reports every invalid field
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s=%s, got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
