package inference

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/amadeus-ai/nexuskit/errors"
)

// OpenAIClient adapts an OpenAI-compatible chat completion endpoint to the
// Client interface.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	model   string
	baseURL string
	logger  *slog.Logger
}

// WithModel sets the model name (default gpt-4o-mini).
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) {
		c.model = model
	}
}

// WithBaseURL points the adapter at a compatible non-OpenAI endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// WithOpenAILogger sets the structured logger.
func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(c *openAIConfig) {
		c.logger = logger
	}
}

// NewOpenAIClient creates an adapter authenticated with apiKey.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	cfg := &openAIConfig{
		model:  openai.GPT4oMini,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.model,
		logger: cfg.logger,
	}
}

// Infer runs one synchronous chat completion.
func (c *OpenAIClient) Infer(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", errors.WrapTransient(err, "OpenAIClient", "Infer", "create completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.WrapTransient(errors.ErrEmptyCompletion, "OpenAIClient", "Infer", "read completion")
	}

	c.logger.Debug("completion finished",
		"model", c.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

// InferStream runs one chat completion, delivering content deltas to fn as
// they arrive.
func (c *OpenAIClient) InferStream(ctx context.Context, prompt string, fn StreamFunc) error {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:  c.model,
		Stream: true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return errors.WrapTransient(err, "OpenAIClient", "InferStream", "open stream")
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.WrapTransient(err, "OpenAIClient", "InferStream", "receive chunk")
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if err := fn(resp.Choices[0].Delta.Content); err != nil {
			return errors.Wrap(err, "OpenAIClient", "InferStream", "deliver chunk")
		}
	}
}
