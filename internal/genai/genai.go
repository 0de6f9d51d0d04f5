// Package genai wraps the OpenAI API as the completion service for the
// conversation core.
//
// The core treats the completion service as opaque: a system prompt plus an
// ordered message list (optionally carrying one image) in, plain text out.
// Every call is bounded by a client-side timeout; callers are expected to
// recover from failures with their own fallback text.
package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultTimeout is the hard client-side bound on one completion call.
const DefaultTimeout = 15 * time.Second

// ClientInterface defines the completion operations used by flows. It exists
// so tests can substitute a fake client.
type ClientInterface interface {
	// GenerateWithMessages produces a completion for an ordered message list.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)

	// GenerateWithImage produces a completion where the final user message
	// carries an inline image.
	GenerateWithImage(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, userText string, imageData []byte, mediaType string) (string, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout sets the per-call client-side timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// Ensure Client satisfies ClientInterface.
var _ ClientInterface = (*Client)(nil)

// NewClient initializes a GenAI client. The API key comes from options or the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		slog.Error("GenAI NewClient: API key not set")
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	slog.Debug("GenAI NewClient: client initialized", "model", model, "timeout", timeout)
	return &Client{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
	}, nil
}

// GenerateWithMessages produces a completion for the given messages. The call
// is aborted after the configured timeout; the in-flight request is canceled
// and the error returned to the caller, never retried here.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	slog.Debug("GenAI GenerateWithMessages: sending completion request", "model", c.model, "messageCount", len(messages))
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		slog.Error("GenAI GenerateWithMessages: completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		slog.Error("GenAI GenerateWithMessages: no choices returned", "model", c.model)
		return "", fmt.Errorf("no choices returned")
	}

	content := completion.Choices[0].Message.Content
	slog.Debug("GenAI GenerateWithMessages: completion succeeded", "responseLength", len(content))
	return content, nil
}

// GenerateWithImage produces a completion where the final user message
// carries userText plus an inline base64 image part.
func (c *Client) GenerateWithImage(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, userText string, imageData []byte, mediaType string) (string, error) {
	if len(imageData) == 0 {
		slog.Debug("GenAI GenerateWithImage: no image data, falling back to text-only")
		return c.GenerateWithMessages(ctx, append(messages, openai.UserMessage(userText)))
	}
	if mediaType == "" {
		mediaType = "image/jpeg"
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(imageData))
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(userText),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	}
	messages = append(messages, openai.UserMessage(parts))

	slog.Debug("GenAI GenerateWithImage: sending completion request with image", "model", c.model, "imageBytes", len(imageData), "mediaType", mediaType)
	return c.GenerateWithMessages(ctx, messages)
}
