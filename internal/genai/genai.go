// Package genai provides the AI fallback reply for returning members using an
// OpenAI-compatible chat completion API (Mistral by default).
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL      = "https://api.mistral.ai/v1"
	DefaultModel        = "mistral-small-latest"
	DefaultTemperature  = 0.4
	DefaultMaxTokens    = 400
	DefaultTimeout      = 30 * time.Second
	DefaultSystemPrompt = "You are assistant for Dr. Ruchita Mehta Clinic & Academy. Reply briefly, helpful, and professional."
	// emptyTextPrompt stands in for messages without text.
	emptyTextPrompt = "Hi"
)

var (
	// ErrNoChoicesReturned is returned when the API answers without choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrDisabled is returned by a nil Client.
	ErrDisabled = errors.New("genai client disabled")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completions adapts the SDK service to chatService.
type completions struct {
	svc *openai.ChatCompletionService
}

func (c completions) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float64
	MaxTokens    int64
	SystemPrompt string
	Timeout      time.Duration
	DebugMode    bool
	StateDir     string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

func WithAPIKey(key string) Option { return func(o *Opts) { o.APIKey = key } }

func WithBaseURL(url string) Option { return func(o *Opts) { o.BaseURL = url } }

func WithModel(model string) Option { return func(o *Opts) { o.Model = model } }

func WithTemperature(t float64) Option { return func(o *Opts) { o.Temperature = t } }

func WithMaxTokens(n int64) Option { return func(o *Opts) { o.MaxTokens = n } }

func WithSystemPrompt(p string) Option { return func(o *Opts) { o.SystemPrompt = p } }

func WithTimeout(d time.Duration) Option { return func(o *Opts) { o.Timeout = d } }

// WithDebug writes every request and response as JSON under stateDir/debug.
func WithDebug(stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = true
		o.StateDir = stateDir
	}
}

// Client wraps the chat completion service.
type Client struct {
	chat         chatService
	model        string
	temperature  float64
	maxTokens    int64
	systemPrompt string
	debugMode    bool
	stateDir     string
}

// NewClient initializes a new GenAI client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		BaseURL:      DefaultBaseURL,
		Model:        DefaultModel,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
		SystemPrompt: DefaultSystemPrompt,
		Timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not set")
	}

	cli := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(1),
	)
	slog.Debug("GenAI client created", "base_url", cfg.BaseURL, "model", cfg.Model, "debug", cfg.DebugMode)
	return &Client{
		chat:         completions{svc: &cli.Chat.Completions},
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
		debugMode:    cfg.DebugMode,
		stateDir:     cfg.StateDir,
	}, nil
}

// GenerateReply answers a member's free-text message with the configured
// system prompt. Empty text is sent as "Hi".
func (c *Client) GenerateReply(ctx context.Context, text string) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}
	if strings.TrimSpace(text) == "" {
		text = emptyTextPrompt
	}
	return c.complete(ctx, "GenerateReply", text)
}

func (c *Client) complete(ctx context.Context, method, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxTokens)
	}

	resp, err := c.chat.Create(ctx, params)
	c.logDebug(method, params, resp, err)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// logDebug writes one JSON file per call. Failures are logged only.
func (c *Client) logDebug(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("GenAI debug dir create failed", "error", err, "dir", dir)
		return
	}
	now := time.Now()
	entry := map[string]interface{}{
		"timestamp": now.Format(time.RFC3339Nano),
		"method":    method,
		"model":     c.model,
		"params":    params,
		"response":  resp,
	}
	if callErr != nil {
		entry["error"] = callErr.Error()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("GenAI debug marshal failed", "error", err)
		return
	}
	name := filepath.Join(dir, fmt.Sprintf("genai_%s_%d.json", strings.ToLower(method), now.UnixNano()))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		slog.Warn("GenAI debug write failed", "error", err, "file", name)
	}
}
