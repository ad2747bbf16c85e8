package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/clausewise/internal/model"
)

// fakeCompleter replies with a fixed string and records requests
type fakeCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []CompletionRequest
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) IsAvailable(context.Context) bool { return f.err == nil }

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func newFakeLLM(reply string, strict bool) (*LLMProvider, *fakeCompleter) {
	fc := &fakeCompleter{reply: reply}
	return NewLLMProvider(fc, model.LLMConfig{MaxTokens: 200, Temperature: 0.1, StrictGrounding: strict}, nil), fc
}

func TestLLMSimplify(t *testing.T) {
	p, fc := newFakeLLM("```text\nThe buyer must pay $500.\n```", true)

	got, err := p.Simplify(context.Background(), "The Buyer shall pay $500.")
	require.NoError(t, err)
	assert.Equal(t, "The buyer must pay $500.", got)

	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.False(t, req.JSON)
	assert.Equal(t, systemPrompt, req.System)
	assert.Contains(t, req.Prompt, "The Buyer shall pay $500.")
	assert.Equal(t, 200, req.MaxTokens)
	assert.Equal(t, float32(0.1), req.Temperature)
}

func TestLLMSimplify_Empty(t *testing.T) {
	p, _ := newFakeLLM("   ", true)
	_, err := p.Simplify(context.Background(), "text")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLLMRecognizeEntities(t *testing.T) {
	text := "The Buyer shall pay $500 to the Seller. The Buyer accepts."
	reply := `Here you go: {"entities": [
		{"text": "Buyer", "category": "party", "confidence": 0.9},
		{"text": "$500", "category": "MONETARY_AMOUNT", "confidence": 1.7},
		{"text": "Seller", "category": "PARTY"},
		{"text": "Buyer", "category": "PARTY", "confidence": -1},
		{"text": "Tuesday", "category": "WEEKDAY"}
	]}`
	p, fc := newFakeLLM(reply, true)

	entities, err := p.RecognizeEntities(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, entities, 4, "unknown category dropped")
	assert.True(t, fc.requests[0].JSON)

	for _, e := range entities {
		assert.Equal(t, e.Text, text[e.Span.Start:e.Span.End])
	}
	assert.Equal(t, model.EntityParty, entities[0].Category)
	assert.Equal(t, 4, entities[0].Span.Start)
	assert.Equal(t, 1.0, entities[1].Confidence, "clamped")
	assert.Equal(t, defaultEntityConfidence, entities[2].Confidence)
	assert.Equal(t, 0.0, entities[3].Confidence)
	assert.Equal(t, strings.LastIndex(text, "Buyer"), entities[3].Span.Start, "repeat located after the cursor")
}

func TestLLMRecognizeEntities_Grounding(t *testing.T) {
	reply := `{"entities": [{"text": "Acme Corp", "category": "ORGANIZATION"}, {"text": "$500", "category": "MONETARY_AMOUNT"}]}`

	strict, _ := newFakeLLM(reply, true)
	_, err := strict.RecognizeEntities(context.Background(), "The Buyer shall pay $500.")
	require.Error(t, err)
	assert.Equal(t, model.ProviderMalformed, Classify(err))

	lenient, _ := newFakeLLM(reply, false)
	entities, err := lenient.RecognizeEntities(context.Background(), "The Buyer shall pay $500.")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "$500", entities[0].Text)
}

func TestLLMRecognizeEntities_Malformed(t *testing.T) {
	for _, reply := range []string{"no json here", `{"entities": "nope"}`, `{"entities": [`} {
		p, _ := newFakeLLM(reply, true)
		_, err := p.RecognizeEntities(context.Background(), "text")
		assert.ErrorIs(t, err, ErrMalformed, reply)
	}
}

func TestLLMClassify(t *testing.T) {
	p, fc := newFakeLLM(`{"label": " Sales_Contract "}`, true)

	label, err := p.Classify(context.Background(), "The Buyer shall pay.", model.ScopeDocument)
	require.NoError(t, err)
	assert.Equal(t, LabelSalesContract, label)
	assert.Contains(t, fc.requests[0].Prompt, "legal document")
	assert.Contains(t, fc.requests[0].Prompt, `choose "other"`)

	// A document label is not valid for a clause
	_, err = p.Classify(context.Background(), "The Buyer shall pay.", model.ScopeClause)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLLM_CompleterError(t *testing.T) {
	p, fc := newFakeLLM("", true)
	fc.err = &StatusError{StatusCode: 503, Message: "overloaded"}

	_, err := p.Classify(context.Background(), "text", model.ScopeClause)
	require.Error(t, err)
	assert.Equal(t, model.ProviderUnavailable, Classify(err))
	assert.False(t, p.IsAvailable(context.Background()))
	assert.Equal(t, "fake", p.Name())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want model.ProviderErrorKind
	}{
		{context.DeadlineExceeded, model.ProviderTimeout},
		{&StatusError{StatusCode: 429}, model.ProviderQuota},
		{&StatusError{StatusCode: 504}, model.ProviderTimeout},
		{&StatusError{StatusCode: 502}, model.ProviderUnavailable},
		{&StatusError{StatusCode: 401}, model.ProviderFailed},
		{malformedf("bad"), model.ProviderMalformed},
		{errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), model.ProviderUnavailable},
		{errors.New("boom"), model.ProviderFailed},
		{&model.ProviderError{Kind: model.ProviderQuota, Err: errors.New("x")}, model.ProviderQuota},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), tt.err.Error())
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("rules", model.CapabilitySimplify, nil))

	err := Wrap("openai", model.CapabilityClassify, &StatusError{StatusCode: 429})
	var pe *model.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "openai", pe.Provider)
	assert.Equal(t, model.CapabilityClassify, pe.Capability)
	assert.Equal(t, model.ProviderQuota, pe.Kind)

	assert.Same(t, err, Wrap("other", model.CapabilitySimplify, err), "already wrapped")
}
