package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/clausewise/internal/model"
)

func TestOpenAICompleter_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
			t.Errorf("Expected JSON response format, got %+v", req.ResponseFormat)
		}

		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: ` {"label": "payment"} `,
					},
					FinishReason: "stop",
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	completer, err := NewOpenAICompleter(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o-mini", Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	out, err := completer.Complete(context.Background(), CompletionRequest{Prompt: "classify", JSON: true})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != `{"label": "payment"}` {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestOpenAICompleter_Complete_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	completer, err := NewOpenAICompleter(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	_, err = completer.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if kind := Classify(err); kind != model.ProviderQuota {
		t.Errorf("Expected quota, got %s (%v)", kind, err)
	}
}

func TestOpenAICompleter_Complete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "Internal Server Error", "type": "server_error"}}`))
	}))
	defer server.Close()

	completer, err := NewOpenAICompleter(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	_, err = completer.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if kind := Classify(err); kind != model.ProviderUnavailable {
		t.Errorf("Expected unavailable, got %s (%v)", kind, err)
	}
}

func TestOpenAICompleter_Complete_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	completer, err := NewOpenAICompleter(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	// The caller's deadline is shorter than the configured timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = completer.Complete(ctx, CompletionRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	if kind := Classify(err); kind != model.ProviderTimeout {
		t.Errorf("Expected timeout, got %s (%v)", kind, err)
	}
}

func TestOpenAICompleter_MissingKey(t *testing.T) {
	if _, err := NewOpenAICompleter(model.LLMConfig{}); err == nil {
		t.Fatal("Expected error for missing API key")
	}
}

func TestOpenAICompleter_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"data": [{"id": "gpt-4o-mini"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	completer, err := NewOpenAICompleter(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	if !completer.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if completer.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}

func TestAnthropicCompleter_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Expected anthropic-version header 2023-06-01, got %s", r.Header.Get("anthropic-version"))
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.System != "system" {
			t.Errorf("Expected system prompt, got %q", req.System)
		}

		_, _ = w.Write([]byte(`{"id": "msg_123", "type": "message", "content": [{"type": "text", "text": "The buyer pays $500."}], "model": "claude-3-5-haiku-20241022"}`))
	}))
	defer server.Close()

	completer, err := NewAnthropicCompleter(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5}, model.HTTPConfig{})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	out, err := completer.Complete(context.Background(), CompletionRequest{System: "system", Prompt: "simplify"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "The buyer pays $500." {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestAnthropicCompleter_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "api_error", "message": "Internal Server Error"}}`))
	}))
	defer server.Close()

	completer, err := NewAnthropicCompleter(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5}, model.HTTPConfig{})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	_, err = completer.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Internal Server Error") {
		t.Errorf("Expected error message to contain 'Internal Server Error', got %v", err)
	}
	if kind := Classify(err); kind != model.ProviderUnavailable {
		t.Errorf("Expected unavailable, got %s", kind)
	}
}

func TestAnthropicCompleter_Complete_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "Rate limit exceeded"}}`))
	}))
	defer server.Close()

	completer, err := NewAnthropicCompleter(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5}, model.HTTPConfig{})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	_, err = completer.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if kind := Classify(err); kind != model.ProviderQuota {
		t.Errorf("Expected quota, got %s (%v)", kind, err)
	}
}

func TestAnthropicCompleter_Complete_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{malformed json`))
	}))
	defer server.Close()

	completer, err := NewAnthropicCompleter(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5}, model.HTTPConfig{})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	_, err = completer.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if kind := Classify(err); kind != model.ProviderMalformed {
		t.Errorf("Expected malformed, got %s (%v)", kind, err)
	}
}

func TestAnthropicCompleter_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "Hi"}]}`))
	}))
	defer server.Close()

	completer, err := NewAnthropicCompleter(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL}, model.HTTPConfig{})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	if !completer.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}
}

func TestOllamaCompleter_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Format != "json" {
			t.Errorf("Expected json format, got %q", req.Format)
		}
		if req.Stream {
			t.Error("Expected non-streaming request")
		}

		resp := ollamaResponse{
			Model:    "llama3.1",
			Response: `{"label": "delivery"}`,
			Done:     true,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	completer, err := NewOllamaCompleter(model.LLMConfig{BaseURL: server.URL, Model: "llama3.1", Timeout: 5}, model.HTTPConfig{})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	out, err := completer.Complete(context.Background(), CompletionRequest{Prompt: "classify", JSON: true})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != `{"label": "delivery"}` {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestOllamaCompleter_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model 'llama3.1' not found"}`))
	}))
	defer server.Close()

	completer, err := NewOllamaCompleter(model.LLMConfig{BaseURL: server.URL, Model: "llama3.1", Timeout: 5}, model.HTTPConfig{})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	_, err = completer.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected error message to contain 'not found', got %v", err)
	}
	if kind := Classify(err); kind != model.ProviderFailed {
		t.Errorf("Expected failed, got %s", kind)
	}
}

func TestOllamaCompleter_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	completer, err := NewOllamaCompleter(model.LLMConfig{BaseURL: server.URL, Model: "llama3.1"}, model.HTTPConfig{})
	if err != nil {
		t.Fatalf("Failed to create completer: %v", err)
	}

	if !completer.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if completer.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}

func TestOllamaCompleter_NoModel(t *testing.T) {
	_, err := NewOllamaCompleter(model.LLMConfig{BaseURL: "http://localhost:11434"}, model.HTTPConfig{})
	if err == nil {
		t.Fatal("Expected error when no model provided, got nil")
	}
	if !strings.Contains(err.Error(), "must be specified") {
		t.Errorf("Expected error about missing model, got %v", err)
	}
}

func TestNewCompleter_Unknown(t *testing.T) {
	_, err := NewCompleter("gemini", model.LLMConfig{}, model.HTTPConfig{})
	if err == nil || !strings.Contains(err.Error(), "unknown LLM provider") {
		t.Errorf("Expected unknown provider error, got %v", err)
	}
}
