package groq

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"ragmix/src/core/rag"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
)

// Client generates chat completions through Groq's OpenAI-compatible API.
type Client struct {
	llm *openai.LLM
}

// NewClient creates a new Groq completion client. The model passed here
// is the default; callers can override it per request.
func NewClient(apiKey, baseURL, model string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating groq client: %w", err)
	}

	return &Client{llm: llm}, nil
}

// Complete sends the ordered message list and returns the model's reply.
func (c *Client) Complete(ctx context.Context, messages []rag.Message, opts rag.CompletionOptions) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(roleOf(m.Role), m.Content))
	}

	var callOpts []llms.CallOption
	if opts.Model != "" {
		callOpts = append(callOpts, llms.WithModel(opts.Model))
	}
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", fmt.Errorf("error generating completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	return resp.Choices[0].Content, nil
}

func roleOf(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
