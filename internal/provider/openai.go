package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/clausewise/internal/model"
)

// OpenAIName is the name of the OpenAI backend
const OpenAIName = "openai"

// OpenAICompleter sends prompts to OpenAI's Chat Completions API
type OpenAICompleter struct {
	client *openai.Client
	config model.LLMConfig
}

// NewOpenAICompleter creates a new OpenAI completer
func NewOpenAICompleter(config model.LLMConfig) (*OpenAICompleter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAICompleter{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the backend name
func (c *OpenAICompleter) Name() string {
	return OpenAIName
}

// IsAvailable checks if the API key is accepted
func (c *OpenAICompleter) IsAvailable(ctx context.Context) bool {
	_, err := c.client.ListModels(ctx)
	return err == nil
}

// Complete sends one chat completion request
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	modelName := c.config.Model
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout(c.config.Timeout, defaultLLMTimeout))
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   orDefault(req.MaxTokens, orDefault(c.config.MaxTokens, defaultMaxTokens)),
		Temperature: req.Temperature,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", malformedf("no choices in OpenAI response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
