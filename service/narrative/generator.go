// Package narrative asks a chat completions API for a short risk write-up
// of a scored wallet. The reply is expected to be a single JSON document.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/solcredit/service/metrics"
	openai "github.com/sashabaranov/go-openai"
)

// Defaults for the completion request.
const (
	DefaultModel       = "gpt-4.1-nano-2025-04-14"
	DefaultMaxTokens   = 800
	DefaultTemperature = 0.5
)

// Options configures a Generator.
type Options struct {
	APIKey      string
	BaseURL     string // e.g. https://api.openai.com/v1
	Model       string
	MaxTokens   int
	Temperature float32
}

// InvalidReplyError is returned when the model answers with something that
// is not a JSON document.
type InvalidReplyError struct {
	Reply string
	Err   error
}

func (e *InvalidReplyError) Error() string {
	return fmt.Sprintf("model returned invalid JSON: %v", e.Err)
}

func (e *InvalidReplyError) Unwrap() error {
	return e.Err
}

// Generator produces narratives with the OpenAI chat completions API.
type Generator struct {
	client *openai.Client
	opts   Options
	logger *slog.Logger
}

// NewGenerator creates a new Generator. If httpClient is nil a client with a
// 30 second timeout is used. Requests are instrumented with m when non-nil.
func NewGenerator(opts Options, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Generator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}

	instrumented := *httpClient
	instrumented.Transport = metrics.InstrumentedTransport(m, "openai")(httpClient.Transport)

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.HTTPClient = &instrumented

	return &Generator{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
		logger: logger,
	}
}

// GenerateNarrative returns the model's analysis as compact JSON.
func (g *Generator) GenerateNarrative(ctx context.Context, in Input) (string, error) {
	prompt, err := BuildPrompt(in)
	if err != nil {
		return "", err
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: g.opts.MaxTokens,
		Temperature:         g.opts.Temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			g.logger.WarnContext(ctx, "chat completion rejected",
				"status", apiErr.HTTPStatusCode,
				"type", apiErr.Type,
				"error", apiErr.Message,
			)
		}
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	reply := resp.Choices[0].Message.Content
	narrative, err := normalizeReply(reply)
	if err != nil {
		g.logger.WarnContext(ctx, "discarding narrative reply",
			"address", in.Address,
			"reply", reply,
			"error", err,
		)
		return "", err
	}

	g.logger.DebugContext(ctx, "generated narrative",
		"address", in.Address,
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return narrative, nil
}

// normalizeReply strips Markdown code fences and compacts the JSON body.
func normalizeReply(reply string) (string, error) {
	body := strings.TrimSpace(reply)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimPrefix(body, "json")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
		body = strings.TrimSpace(body)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		return "", &InvalidReplyError{Reply: reply, Err: err}
	}
	if buf.Len() == 0 {
		return "", &InvalidReplyError{Reply: reply, Err: errors.New("empty reply")}
	}
	return buf.String(), nil
}
