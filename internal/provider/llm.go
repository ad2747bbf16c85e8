package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/clausewise/internal/model"
)

const (
	defaultLLMTimeout = 30 * time.Second
	defaultMaxTokens  = 1000

	defaultEntityConfidence = 0.8
)

// LLMProvider serves every capability by prompting a language model.
// Output is parsed strictly: anything that does not fit the expected shape
// is reported as malformed instead of being guessed at.
type LLMProvider struct {
	completer Completer
	config    model.LLMConfig
	taxonomy  *Taxonomy
}

// NewLLMProvider wraps a completer. The taxonomy supplies the label sets
// offered to the model; nil uses the default.
func NewLLMProvider(completer Completer, config model.LLMConfig, taxonomy *Taxonomy) *LLMProvider {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &LLMProvider{completer: completer, config: config, taxonomy: taxonomy}
}

// Name returns the backend name
func (p *LLMProvider) Name() string {
	return p.completer.Name()
}

// Fingerprint identifies everything that shapes an answer besides the input:
// backend, model, sampling, grounding, prompts, and label sets.
func (p *LLMProvider) Fingerprint() string {
	return fmt.Sprintf("%s/%s/t=%g/max=%d/strict=%t/%s/%s",
		p.completer.Name(), p.config.Model, p.config.Temperature, p.config.MaxTokens,
		p.config.StrictGrounding, promptVersion, p.taxonomy.Fingerprint())
}

// IsAvailable checks the backend
func (p *LLMProvider) IsAvailable(ctx context.Context) bool {
	return p.completer.IsAvailable(ctx)
}

func (p *LLMProvider) complete(ctx context.Context, prompt string, jsonOut bool) (string, error) {
	return p.completer.Complete(ctx, CompletionRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		JSON:        jsonOut,
	})
}

// Simplify asks the model for a plain-language rewrite
func (p *LLMProvider) Simplify(ctx context.Context, text string) (string, error) {
	out, err := p.complete(ctx, buildSimplifyPrompt(text), false)
	if err != nil {
		return "", err
	}

	out = strings.TrimSpace(stripCodeFence(out))
	if out == "" {
		return "", malformedf("empty simplification")
	}
	return out, nil
}

type entitiesReply struct {
	Entities []struct {
		Text       string   `json:"text"`
		Category   string   `json:"category"`
		Confidence *float64 `json:"confidence"`
	} `json:"entities"`
}

// RecognizeEntities asks the model for entities and locates each one in text.
// With strict grounding an entity that does not occur in text fails the call;
// otherwise it is dropped.
func (p *LLMProvider) RecognizeEntities(ctx context.Context, text string) ([]model.Entity, error) {
	out, err := p.complete(ctx, buildEntitiesPrompt(text), true)
	if err != nil {
		return nil, err
	}

	var reply entitiesReply
	if err := decodeJSONObject(out, &reply); err != nil {
		return nil, err
	}

	entities := make([]model.Entity, 0, len(reply.Entities))
	cursor := 0
	for _, e := range reply.Entities {
		category := model.EntityCategory(strings.ToUpper(strings.TrimSpace(e.Category)))
		if !model.IsKnownEntityCategory(category) {
			continue
		}
		value := strings.TrimSpace(e.Text)
		if value == "" {
			continue
		}

		start := locate(text, value, cursor)
		if start < 0 {
			if p.config.StrictGrounding {
				return nil, malformedf("entity %q does not occur in the input", value)
			}
			continue
		}
		end := start + len(value)
		if start >= cursor {
			cursor = end
		}

		confidence := defaultEntityConfidence
		if e.Confidence != nil {
			confidence = clamp(*e.Confidence, 0, 1)
		}

		entities = append(entities, model.Entity{
			Text:       value,
			Category:   category,
			Span:       model.Span{Start: start, End: end},
			Confidence: confidence,
		})
	}
	return entities, nil
}

// locate finds value at or after cursor, falling back to the first occurrence
func locate(text, value string, cursor int) int {
	if i := strings.Index(text[cursor:], value); i >= 0 {
		return cursor + i
	}
	return strings.Index(text, value)
}

type classifyReply struct {
	Label string `json:"label"`
}

// Classify asks the model for one label from the scope's label set
func (p *LLMProvider) Classify(ctx context.Context, text string, scope model.Scope) (string, error) {
	out, err := p.complete(ctx, buildClassifyPrompt(text, scope, p.taxonomy.Labels(scope)), true)
	if err != nil {
		return "", err
	}

	var reply classifyReply
	if err := decodeJSONObject(out, &reply); err != nil {
		return "", err
	}

	label := strings.ToLower(strings.TrimSpace(reply.Label))
	if !p.taxonomy.Contains(scope, label) {
		return "", malformedf("label %q is not a %s label", reply.Label, scope)
	}
	return label, nil
}

// decodeJSONObject decodes the outermost JSON object in a model reply
func decodeJSONObject(out string, v any) error {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end < start {
		return malformedf("no JSON object in reply")
	}
	if err := json.Unmarshal([]byte(out[start:end+1]), v); err != nil {
		return malformedf("decode reply: %v", err)
	}
	return nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
