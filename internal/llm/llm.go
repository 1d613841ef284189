// Package llm provides the language oracle used for question paraphrasing
// and concept extraction. The oracle is an untrusted text generator: callers
// validate every structured payload and never ask it for a score.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrUnavailable covers timeouts, transport failures, 5xx and quota errors.
	ErrUnavailable = errors.New("language oracle unavailable")
	// ErrInvalidPayload marks output that is not valid JSON for the requested schema.
	ErrInvalidPayload = errors.New("language oracle returned an invalid payload")
)

// Options tune a single generation request.
type Options struct {
	Temperature float32
	MaxTokens   int
	JSONSchema  string // when set, the response must validate against it
}

// Oracle is a text-in, text-out generator.
type Oracle interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Provider selects the oracle backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderNone   Provider = "none"
)

// Config holds oracle endpoint, credentials and retry policy.
type Config struct {
	Provider       Provider
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	MaxLogLength   int
}

// DefaultConfig targets a local Ollama endpoint.
func DefaultConfig() Config {
	return Config{
		Provider:       ProviderOpenAI,
		BaseURL:        "http://localhost:11434/v1",
		APIKey:         "ollama",
		Model:          "llama3.2",
		Timeout:        45 * time.Second,
		MaxRetries:     1,
		RetryBaseDelay: time.Second,
		MaxLogLength:   200,
	}
}

// New builds the configured provider wrapped with timeout and retry handling.
func New(ctx context.Context, cfg Config) (*Reliable, error) {
	var inner Oracle
	switch cfg.Provider {
	case ProviderGemini:
		g, err := NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		inner = g
	case ProviderOpenAI, "":
		inner = NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderNone:
		inner = Offline{}
		cfg.MaxRetries = 0
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
	return NewReliable(inner, cfg), nil
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// NewOpenAI creates a client for any OpenAI-compatible endpoint.
func NewOpenAI(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Generate sends prompt as a single user message.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONSchema != "" {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrUnavailable)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "length", len(raw))
	return raw, nil
}

// Ping checks that the endpoint answers a model listing.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Offline is an oracle that always fails, forcing every caller onto its
// template fallback.
type Offline struct{}

// Generate always returns ErrUnavailable.
func (Offline) Generate(context.Context, string, Options) (string, error) {
	return "", fmt.Errorf("%w: offline mode", ErrUnavailable)
}

// TruncateForLog shortens s to limit runes, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
