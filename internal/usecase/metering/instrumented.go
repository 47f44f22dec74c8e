package metering

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/logger"
	"github.com/kailas-cloud/netscout/internal/metrics"
)

// MaxAPIBatchSize bounds texts per embedding API request.
const MaxAPIBatchSize = 256

// BudgetChecker is the budget enforcement surface used by the decorators.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

func recordBudget(b BudgetChecker, kind string, tokens int) {
	if b == nil || tokens <= 0 {
		return
	}
	b.Record(int64(tokens))
	metrics.BudgetTokensRemaining.WithLabelValues(kind, "daily").Set(float64(b.RemainingDaily()))
	metrics.BudgetTokensRemaining.WithLabelValues(kind, "monthly").Set(float64(b.RemainingMonthly()))
}

// InstrumentedEmbedder adds budget enforcement and per-search usage to an embedder.
// Transport metrics are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner  domain.Embedder
	model  string
	budget BudgetChecker
}

// NewInstrumentedEmbedder wraps inner. budget may be nil.
func NewInstrumentedEmbedder(inner domain.Embedder, model string, budget BudgetChecker) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{inner: inner, model: model, budget: budget}
}

// Embed checks the budget, delegates and records usage.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.check(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	if err != nil {
		logger.FromContext(ctx).Warn("embedding request failed",
			zap.String("model", p.model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	recordBudget(p.budget, "embedding", result.TotalTokens)
	domain.TokenUsageFromContext(ctx).AddEmbedding(result.TotalTokens)
	return result, nil
}

// BatchEmbed splits texts into API-sized chunks, re-checking the budget between chunks.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	var out domain.BatchEmbeddingResult
	for offset := 0; offset < len(texts); offset += MaxAPIBatchSize {
		if err := p.check(ctx); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		chunk := texts[offset:min(offset+MaxAPIBatchSize, len(texts))]

		res, err := p.embedInner(ctx, chunk)
		if err != nil {
			logger.FromContext(ctx).Warn("batch embedding request failed",
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		recordBudget(p.budget, "embedding", res.TotalTokens)
		domain.TokenUsageFromContext(ctx).AddEmbedding(res.TotalTokens)

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// HealthCheck delegates to the inner embedder when it supports it.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	return domain.CheckHealth(ctx, p.inner)
}

func (p *InstrumentedEmbedder) check(ctx context.Context) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func (p *InstrumentedEmbedder) embedInner(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.EmbedAll(ctx, p.inner, texts)
}

// InstrumentedCompleter adds budget enforcement and per-search usage to a completer.
type InstrumentedCompleter struct {
	inner  domain.Completer
	model  string
	budget BudgetChecker
}

// NewInstrumentedCompleter wraps inner. budget may be nil.
func NewInstrumentedCompleter(inner domain.Completer, model string, budget BudgetChecker) *InstrumentedCompleter {
	return &InstrumentedCompleter{inner: inner, model: model, budget: budget}
}

// Complete checks the budget, delegates and records usage.
func (c *InstrumentedCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	if c.budget != nil {
		if err := c.budget.Check(ctx); err != nil {
			return domain.CompletionResult{}, fmt.Errorf("budget check: %w", err)
		}
	}

	res, err := c.inner.Complete(ctx, req)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("%s: %w", req.Operation, err)
	}
	recordBudget(c.budget, "llm", res.TotalTokens)
	domain.TokenUsageFromContext(ctx).AddCompletion(res.TotalTokens)

	logger.FromContext(ctx).Debug("completion finished",
		zap.String("operation", req.Operation),
		zap.String("model", c.model),
		zap.Int("prompt_tokens", res.PromptTokens),
		zap.Int("completion_tokens", res.CompletionTokens),
	)
	return res, nil
}
