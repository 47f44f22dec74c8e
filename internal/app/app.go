// Package app is the composition root shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/config"
	dbRedis "github.com/kailas-cloud/netscout/internal/db/redis"
	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/domain/score"
	"github.com/kailas-cloud/netscout/internal/metrics"
	budgetrepo "github.com/kailas-cloud/netscout/internal/repository/budget"
	"github.com/kailas-cloud/netscout/internal/repository/embcache"
	"github.com/kailas-cloud/netscout/internal/repository/plancache"
	"github.com/kailas-cloud/netscout/internal/repository/profile"
	"github.com/kailas-cloud/netscout/internal/repository/vectorindex"
	"github.com/kailas-cloud/netscout/internal/transport/llm"
	openaiEmb "github.com/kailas-cloud/netscout/internal/transport/openai"
	healthuc "github.com/kailas-cloud/netscout/internal/usecase/health"
	"github.com/kailas-cloud/netscout/internal/usecase/metering"
	"github.com/kailas-cloud/netscout/internal/usecase/reindex"
	"github.com/kailas-cloud/netscout/internal/usecase/retrieval"
	"github.com/kailas-cloud/netscout/internal/usecase/scoring"
	searchuc "github.com/kailas-cloud/netscout/internal/usecase/search"
	"github.com/kailas-cloud/netscout/internal/usecase/synthesis"
	"github.com/kailas-cloud/netscout/internal/usecase/understanding"
	usageuc "github.com/kailas-cloud/netscout/internal/usecase/usage"
)

// Deps holds the connected stores and metered providers.
type Deps struct {
	Config   config.Config
	Redis    *dbRedis.Store
	Profiles *profile.Store
	Vectors  *vectorindex.Index

	LLMBudget       *metering.BudgetTracker
	EmbeddingBudget *metering.BudgetTracker

	// DocEmbedder embeds profile text; QueryEmbedder adds the query instruction.
	DocEmbedder   domain.Embedder
	QueryEmbedder domain.Embedder
	Completer     domain.Completer

	embeddingProvider *openaiEmb.Embedder
	logger            *zap.Logger
}

// Connect opens Redis and PostgreSQL and assembles the provider decorator chains.
func Connect(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Deps, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}

	profiles, err := profile.Open(profile.Config{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetimeSec) * time.Second,
		Dimensions:      cfg.Embedding.Dimensions,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	d := &Deps{
		Config:   cfg,
		Redis:    store,
		Profiles: profiles,
		Vectors:  vectorindex.New(store, cfg.Storage.KeyPrefix, cfg.Embedding.Dimensions),
		logger:   logger,
	}

	counters := budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour)
	d.LLMBudget = newBudget(ctx, "llm", cfg.Storage.KeyPrefix, cfg.LLM.Budget, counters, logger)
	d.EmbeddingBudget = newBudget(ctx, "embedding", cfg.Storage.KeyPrefix, cfg.Embedding.Budget, counters, logger)

	d.embeddingProvider = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:     logger,
	})
	d.DocEmbedder = d.buildEmbedder("")
	d.QueryEmbedder = d.buildEmbedder(cfg.Embedding.QueryInstruction)

	completer, err := llm.NewCompleter(&llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		Logger:  logger,
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Completer = metering.NewInstrumentedCompleter(completer, cfg.LLM.Model, d.LLMBudget)

	return d, nil
}

// Close releases the store connections.
func (d *Deps) Close() {
	if err := d.Profiles.Close(); err != nil {
		d.logger.Warn("close postgres", zap.Error(err))
	}
	d.Redis.Close()
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction.
// The instruction is outermost so the cache key includes it.
func (d *Deps) buildEmbedder(instruction string) domain.Embedder {
	cfg := d.Config
	var embedder domain.Embedder = embcache.New(d.embeddingProvider, d.Redis, embcache.Options{
		KeyPrefix: cfg.Storage.KeyPrefix,
		Model:     cfg.Embedding.Model,
		TTL:       time.Duration(cfg.Embedding.CacheTTLHours) * time.Hour,
	}, metrics.EmbeddingCacheTotal, d.logger)

	embedder = metering.NewInstrumentedEmbedder(embedder, cfg.Embedding.Model, d.EmbeddingBudget)

	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

func newBudget(
	ctx context.Context, kind, prefix string, cfg config.BudgetConfig,
	store metering.BudgetStore, logger *zap.Logger,
) *metering.BudgetTracker {
	action := metering.BudgetActionWarn
	if cfg.Action == string(metering.BudgetActionReject) {
		action = metering.BudgetActionReject
	}
	return metering.NewBudgetTracker(kind, prefix, cfg.DailyTokenLimit, cfg.MonthlyTokenLimit, action, logger).
		WithStore(ctx, store)
}

// Pipeline is the assembled search service and the resources it owns.
type Pipeline struct {
	Search *searchuc.Service
	Usage  *usageuc.Service
	Health *healthuc.Service
	scorer *scoring.Scorer
}

// Release stops the scoring worker pool.
func (p *Pipeline) Release() {
	p.scorer.Release()
}

// BuildPipeline wires every search stage.
func (d *Deps) BuildPipeline() (*Pipeline, error) {
	cfg := d.Config
	sc := cfg.Search

	understand := understanding.Options{
		MaxAttempts: cfg.LLM.MaxAttempts,
		Temperature: cfg.LLM.Temperature,
		MaxTraits:   sc.MaxTraits,
	}

	plans := plancache.New(d.Redis, cfg.Storage.KeyPrefix, time.Duration(sc.PlanCacheTTLHours)*time.Hour, d.logger)
	synth := synthesis.New(d.Completer, plans, synthesis.Options{
		MaxAttempts: cfg.LLM.MaxAttempts,
		Temperature: cfg.LLM.Temperature,
		Limit:       sc.ResultLimit,
		MaxClauses:  sc.MaxClauses,
		CallTimeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	retriever := retrieval.New(d.Profiles, d.vectorSearcher(), d.QueryEmbedder, d.Completer, retrieval.Options{
		Limit:       sc.ResultLimit,
		Threshold:   sc.SimilarityThreshold,
		HyDE:        sc.HyDE,
		PathTimeout: time.Duration(sc.StoreTimeoutSec) * time.Second,
		Temperature: cfg.LLM.Temperature,
	})

	scorer, err := scoring.New(d.Completer, scoring.Options{
		BatchSize:    sc.ScoringBatchSize,
		MaxInFlight:  sc.ScoringConcurrency,
		BatchTimeout: time.Duration(sc.ScoringTimeoutSec) * time.Second,
		MaxAttempts:  cfg.LLM.MaxAttempts,
		Temperature:  cfg.LLM.Temperature,
		Weights: score.Weights{
			Yes:    sc.Weights.Yes,
			KindOf: sc.Weights.KindOf,
			No:     sc.Weights.No,
		},
	})
	if err != nil {
		return nil, err
	}

	usage := usageuc.New(
		budgetrepo.New(d.Redis, 48*time.Hour, 62*24*time.Hour),
		cfg.Storage.KeyPrefix, cfg.Usage.DailySearchLimit,
		d.LLMBudget, d.EmbeddingBudget,
	)

	search := searchuc.New(searchuc.Stages{
		Classifier:  understanding.NewClassifier(d.Completer, understand),
		Extractor:   understanding.NewTraitExtractor(d.Completer, understand),
		Expander:    understanding.NewKeyPhraseExpander(d.Completer, understand),
		Synthesizer: synth,
		Retriever:   retriever,
		Scorer:      scorer,
	}, usage, searchuc.Options{
		MaxQueryLength: sc.MaxQueryLength,
		Timeout:        time.Duration(sc.TimeoutSec) * time.Second,
		StageTimeout:   time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	health := healthuc.New(
		d.Profiles, d.Redis,
		openaiEmb.NewModelsChecker(cfg.LLM.APIKey, cfg.LLM.BaseURL),
		d.embeddingProvider,
		3*time.Second,
	)

	return &Pipeline{Search: search, Usage: usage, Health: health, scorer: scorer}, nil
}

type vectorSearcher interface {
	NearestNeighbors(ctx context.Context, ownerID string, vec []float32, threshold float64, limit int) ([]candidate.Hit, error)
}

func (d *Deps) vectorSearcher() vectorSearcher {
	if d.Config.Search.VectorBackend == "redis" {
		return d.Vectors
	}
	return d.Profiles
}

// Reindexer builds a backfill service writing to the configured vector backend.
func (d *Deps) Reindexer(opts reindex.Options) *reindex.Service {
	var writer reindex.VectorWriter = reindex.NewPostgresWriter(d.Profiles)
	if d.Config.Search.VectorBackend == "redis" {
		writer = reindex.NewIndexWriter(d.Vectors)
	}
	return reindex.New(d.Profiles, d.DocEmbedder, writer, opts)
}
