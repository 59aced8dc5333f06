package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the text-generation backend used by the story service.
// Complete sends one system instruction and one user prompt and returns the
// assistant's reply.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Options configures an OpenAIClient. BaseURL may point at any
// OpenAI-compatible endpoint (for example Groq); empty means api.openai.com.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OpenAIClient calls an OpenAI-compatible chat completion API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient constructs an OpenAI-backed LLM client, falling back to
// sensible defaults for unset options.
func NewOpenAIClient(opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	temp := opts.Temperature
	if temp == 0 {
		temp = 0.3
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temp,
		maxTokens:   maxTokens,
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete sends the system instruction and prompt to the chat completion API
// and returns the first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
