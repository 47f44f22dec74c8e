// Package llm adapts a langchaingo chat model to domain.Completer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/metrics"
)

const kind = "llm"

// Config holds the completion provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Completer issues single-turn chat completions.
type Completer struct {
	model  llms.Model
	name   string
	logger *zap.Logger
}

// NewCompleter creates a Completer backed by an OpenAI-compatible chat API.
func NewCompleter(cfg *Config) (*Completer, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return NewWithModel(model, cfg.Model, cfg.Logger), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, name string, log *zap.Logger) *Completer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Completer{model: model, name: name, logger: log}
}

// Complete implements domain.Completer.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.SystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(req.UserContent)},
		},
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	op := req.Operation
	if op == "" {
		op = "complete"
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, content, opts...)
	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(kind, c.name, op, "error").Inc()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			metrics.ProviderErrorsTotal.WithLabelValues(kind, c.name, "canceled").Inc()
			return domain.CompletionResult{}, fmt.Errorf("%s completion: %w", op, errors.Join(err, ctx.Err()))
		}
		metrics.ProviderErrorsTotal.WithLabelValues(kind, c.name, "api_error").Inc()
		c.logger.Warn("completion failed", zap.String("operation", op), zap.Error(err))
		return domain.CompletionResult{}, fmt.Errorf("%s completion: %v: %w", op, err, domain.ErrLLMProviderError)
	}
	if resp == nil || len(resp.Choices) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues(kind, c.name, op, "error").Inc()
		metrics.ProviderErrorsTotal.WithLabelValues(kind, c.name, "empty_response").Inc()
		return domain.CompletionResult{}, fmt.Errorf("%s completion: no choices: %w", op, domain.ErrLLMProviderError)
	}

	choice := resp.Choices[0]
	out := domain.CompletionResult{
		Text:             choice.Content,
		PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
		TotalTokens:      intInfo(choice.GenerationInfo, "TotalTokens"),
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}

	metrics.ProviderRequestsTotal.WithLabelValues(kind, c.name, op, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(kind, c.name, op).Observe(duration.Seconds())
	if out.TotalTokens > 0 {
		metrics.ProviderTokensTotal.WithLabelValues(kind, c.name, "prompt").Add(float64(out.PromptTokens))
		metrics.ProviderTokensTotal.WithLabelValues(kind, c.name, "completion").Add(float64(out.CompletionTokens))
		metrics.ProviderTokensTotal.WithLabelValues(kind, c.name, "total").Add(float64(out.TotalTokens))
	}
	return out, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
