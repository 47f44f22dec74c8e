// Package search orchestrates the search pipeline and streams its progress.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/domain/keyphrase"
	"github.com/kailas-cloud/netscout/internal/domain/predicate"
	"github.com/kailas-cloud/netscout/internal/domain/section"
	"github.com/kailas-cloud/netscout/internal/domain/step"
	"github.com/kailas-cloud/netscout/internal/domain/trait"
	"github.com/kailas-cloud/netscout/internal/logger"
	"github.com/kailas-cloud/netscout/internal/metrics"
	"github.com/kailas-cloud/netscout/internal/usecase/retrieval"
	"github.com/kailas-cloud/netscout/internal/usecase/scoring"
	"github.com/kailas-cloud/netscout/internal/usecase/synthesis"
	"github.com/kailas-cloud/netscout/internal/usecase/understanding"
)

// Terminal statuses reported in the done event.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusError     = "error"
	statusCanceled  = "canceled"
)

// Options tunes the orchestrator.
type Options struct {
	MaxQueryLength int
	// Timeout bounds the whole query.
	Timeout time.Duration
	// StageTimeout bounds each understanding call. The synthesizer carries
	// its own call timeout so that expiry ends in its fallback compiler.
	StageTimeout time.Duration
	EventBuffer  int
}

// Request is one search.
type Request struct {
	UserID string
	Query  string
}

// Service validates searches and runs each one as a stream of events.
type Service struct {
	stages Stages
	quota  QuotaConsumer
	opts   Options
}

// New creates the orchestrator. quota may be nil.
func New(stages Stages, quota QuotaConsumer, opts Options) *Service {
	if opts.MaxQueryLength <= 0 {
		opts.MaxQueryLength = 500
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 30 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 16
	}
	return &Service{stages: stages, quota: quota, opts: opts}
}

// Validate normalizes a request or rejects it.
func (s *Service) Validate(req Request) (Request, error) {
	if req.UserID == "" {
		return req, domain.ErrUnauthorized
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, domain.NewQueryError("query must not be empty")
	}
	if n := utf8.RuneCountInString(req.Query); n > s.opts.MaxQueryLength {
		return req, domain.NewQueryError(fmt.Sprintf("query is %d characters, limit is %d", n, s.opts.MaxQueryLength))
	}
	return req, nil
}

// Start validates req, charges the quota and launches the pipeline. Errors are
// returned before any event is produced. The channel closes after done, or
// without terminal events once ctx is canceled.
func (s *Service) Start(ctx context.Context, req Request) (<-chan step.Event, error) {
	req, err := s.Validate(req)
	if err != nil {
		return nil, err
	}
	if s.quota != nil {
		if _, err := s.quota.Consume(ctx, req.UserID); err != nil {
			return nil, fmt.Errorf("consume quota: %w", err)
		}
	}

	events := make(chan step.Event, s.opts.EventBuffer)
	id := uuid.NewString()
	r := &run{
		stages:  s.stages,
		opts:    s.opts,
		id:      id,
		client:  ctx,
		events:  events,
		machine: step.NewMachine(),
		begun:   make(map[step.Stage]time.Time),
		started: time.Now(),
	}
	go r.run(req)
	return events, nil
}

var errStreamClosed = errors.New("event stream closed")

var stageFailures = map[step.Stage]string{
	step.StageSections:       "could not classify relevant sections, searching all sections",
	step.StageTraits:         "could not extract traits, falling back to similarity search",
	step.StageKeyPhrases:     "could not expand key phrases",
	step.StageQuerySynthesis: "could not synthesize a structured query, using similarity search",
	step.StageRetrieval:      "candidate retrieval failed",
	step.StageScoring:        "some candidates could not be scored",
}

type fatalError struct {
	target  error
	code    string
	message string
}

var fatalErrors = []fatalError{
	{domain.ErrSearchTimeout, "timeout", "The search took too long and was stopped."},
	{domain.ErrRetrievalExhausted, "retrieval_failed", "No candidates could be retrieved. Please try again later."},
	{domain.ErrTokenBudgetExceeded, "budget_exceeded", "The search service is over its usage budget. Please try again later."},
}

func describe(err error) (string, string) {
	for _, f := range fatalErrors {
		if errors.Is(err, f.target) {
			return f.code, f.message
		}
	}
	return "internal", "The search failed unexpectedly."
}

// run is the state of one query. Only its own goroutine writes to it.
type run struct {
	stages  Stages
	opts    Options
	id      string
	client  context.Context
	events  chan<- step.Event
	machine *step.Machine
	seq     int
	current step.Stage
	begun   map[step.Stage]time.Time
	started time.Time
	log     *zap.Logger
}

func (r *run) run(req Request) {
	defer close(r.events)

	ctx, usage := domain.NewContextWithTokenUsage(r.client)
	ctx, r.log = logger.With(ctx, zap.String("query_id", r.id), zap.String("user_id", req.UserID))
	ctx, cancel := context.WithTimeoutCause(ctx, r.opts.Timeout, domain.ErrSearchTimeout)
	defer cancel()

	report, err := r.execute(ctx, req)
	switch {
	case r.client.Err() != nil || errors.Is(err, errStreamClosed):
		metrics.SearchesTotal.WithLabelValues(statusCanceled).Inc()
		r.log.Info("search canceled", zap.Stringer("state", r.machine.State()))
	case err != nil:
		if ctx.Err() != nil && errors.Is(context.Cause(ctx), domain.ErrSearchTimeout) {
			err = domain.ErrSearchTimeout
		}
		r.fail(err, usage)
	default:
		r.succeed(report, usage)
	}
}

func (r *run) execute(ctx context.Context, req Request) (scoring.Report, error) {
	sections, traits, err := r.understand(ctx, req.Query)
	if err != nil {
		return scoring.Report{}, err
	}
	phrases, err := r.expand(ctx, req.Query, traits, sections)
	if err != nil {
		return scoring.Report{}, err
	}
	plan, err := r.synthesize(ctx, traits, phrases, sections)
	if err != nil {
		return scoring.Report{}, err
	}
	cands, err := r.retrieve(ctx, retrieval.Request{
		OwnerID:   req.UserID,
		Query:     req.Query,
		Traits:    traits,
		Predicate: plan,
	})
	if err != nil {
		return scoring.Report{}, err
	}
	return r.score(ctx, cands, traits)
}

// understand runs the classifier and the extractor concurrently. Their
// events are emitted in a fixed order regardless of which finishes first.
func (r *run) understand(ctx context.Context, query string) ([]section.ID, []trait.Trait, error) {
	if err := r.begin(step.StageSections); err != nil {
		return nil, nil, err
	}
	if err := r.begin(step.StageTraits); err != nil {
		return nil, nil, err
	}

	var (
		wg       sync.WaitGroup
		sections understanding.SectionsOutput
		secErr   error
		traits   understanding.TraitsOutput
		traitErr error
	)
	wg.Go(func() {
		sctx, cancel := context.WithTimeout(ctx, r.opts.StageTimeout)
		defer cancel()
		sections, secErr = r.stages.Classifier.Classify(sctx, query)
	})
	wg.Go(func() {
		sctx, cancel := context.WithTimeout(ctx, r.opts.StageTimeout)
		defer cancel()
		traits, traitErr = r.stages.Extractor.Extract(sctx, query)
	})
	wg.Wait()

	if err := r.settle(step.StageSections, sections, secErr); err != nil {
		return nil, nil, err
	}
	if err := r.settle(step.StageTraits, traits, traitErr); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if secErr != nil {
		sections.Sections = nil
	}
	if traitErr != nil {
		traits.Traits = nil
	}
	return sections.Sections, traits.Traits, nil
}

func (r *run) expand(
	ctx context.Context, query string, traits []trait.Trait, sections []section.ID,
) ([]keyphrase.KeyPhrase, error) {
	if err := r.begin(step.StageKeyPhrases); err != nil {
		return nil, err
	}
	sctx, cancel := context.WithTimeout(ctx, r.opts.StageTimeout)
	defer cancel()
	out, err := r.stages.Expander.Expand(sctx, query, traits, sections)
	if err := r.settle(step.StageKeyPhrases, out, err); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, nil
	}
	return out.KeyPhrases, nil
}

type synthesisData struct {
	synthesis.Output
	Expression string `json:"expression,omitempty"`
}

func (r *run) synthesize(
	ctx context.Context, traits []trait.Trait, phrases []keyphrase.KeyPhrase, sections []section.ID,
) (*predicate.Predicate, error) {
	if err := r.begin(step.StageQuerySynthesis); err != nil {
		return nil, err
	}
	out, err := r.stages.Synthesizer.Synthesize(ctx, traits, phrases, sections)
	data := synthesisData{Output: out}
	if err == nil && out.Predicate != nil {
		data.Expression = out.Predicate.String()
	}
	if err := r.settle(step.StageQuerySynthesis, data, err); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, nil
	}
	return out.Predicate, nil
}

// retrieve is the only stage whose failure ends the query.
func (r *run) retrieve(ctx context.Context, req retrieval.Request) ([]candidate.Candidate, error) {
	if err := r.begin(step.StageRetrieval); err != nil {
		return nil, err
	}
	out, err := r.stages.Retriever.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := r.finish(step.StageRetrieval, step.StatusCompleted, out, ""); err != nil {
		return nil, err
	}
	return out.Candidates, nil
}

func (r *run) score(ctx context.Context, cands []candidate.Candidate, traits []trait.Trait) (scoring.Report, error) {
	if err := r.begin(step.StageScoring); err != nil {
		return scoring.Report{}, err
	}
	report, err := r.stages.Scorer.Score(ctx, cands, traits)
	if err != nil {
		return scoring.Report{}, err
	}
	if report.Partial() {
		r.log.Warn("scoring incomplete",
			zap.Int("failed_batches", report.FailedBatches),
			zap.Int("failed_candidates", report.FailedCandidates),
		)
		err = r.finish(step.StageScoring, step.StatusError, report, stageFailures[step.StageScoring])
	} else {
		err = r.finish(step.StageScoring, step.StatusCompleted, report, "")
	}
	return report, err
}

// settle finishes a non-fatal stage as completed with data, or as error.
func (r *run) settle(stage step.Stage, data any, stageErr error) error {
	if stageErr != nil {
		r.log.Warn("stage failed", zap.String("stage", string(stage)), zap.Error(stageErr))
		return r.finish(stage, step.StatusError, nil, stageFailures[stage])
	}
	return r.finish(stage, step.StatusCompleted, data, "")
}

func (r *run) begin(stage step.Stage) error {
	if err := r.machine.Begin(stage); err != nil {
		return fmt.Errorf("begin %s: %w", stage, err)
	}
	r.current = stage
	r.begun[stage] = time.Now()
	return r.emit(step.EventStep, step.ThinkingStep{Name: stage, Status: step.StatusStarted})
}

func (r *run) finish(stage step.Stage, status step.Status, data any, message string) error {
	if err := r.machine.Finish(stage, status); err != nil {
		return fmt.Errorf("finish %s: %w", stage, err)
	}
	metrics.StageDuration.WithLabelValues(string(stage), string(status)).
		Observe(time.Since(r.begun[stage]).Seconds())
	return r.emit(step.EventStep, step.ThinkingStep{Name: stage, Status: status, Data: data, Message: message})
}

// emit delivers one event unless the client went away.
func (r *run) emit(name step.EventName, data any) error {
	r.seq++
	select {
	case r.events <- step.Event{Seq: r.seq, Name: name, Data: data}:
		return nil
	case <-r.client.Done():
		return errStreamClosed
	}
}

func (r *run) succeed(report scoring.Report, usage *domain.TokenUsage) {
	status := StatusCompleted
	if report.Partial() {
		status = StatusPartial
	}
	results := step.ResultsData{QueryID: r.id, Results: report.Results, Partial: report.Partial()}
	if err := r.emit(step.EventResults, results); err != nil {
		metrics.SearchesTotal.WithLabelValues(statusCanceled).Inc()
		return
	}
	if err := r.machine.Complete(); err != nil {
		r.log.Error("complete search", zap.Error(err))
	}
	r.done(status, usage)
	r.log.Info("search finished",
		zap.String("status", status),
		zap.Int("results", len(report.Results)),
		zap.Duration("duration", time.Since(r.started)),
	)
}

// fail closes every open stage, then emits the error and done events.
func (r *run) fail(err error, usage *domain.TokenUsage) {
	r.log.Error("search failed", zap.String("stage", string(r.current)), zap.Error(err))
	for _, stage := range step.Stages() {
		if r.machine.Status(stage) != step.StatusStarted {
			continue
		}
		if r.finish(stage, step.StatusError, nil, stageFailures[stage]) != nil {
			metrics.SearchesTotal.WithLabelValues(statusCanceled).Inc()
			return
		}
	}
	if ferr := r.machine.Fail(); ferr != nil {
		r.log.Error("fail search", zap.Error(ferr))
	}
	code, message := describe(err)
	if r.emit(step.EventError, step.ErrorData{Code: code, Message: message, Stage: r.current}) != nil {
		metrics.SearchesTotal.WithLabelValues(statusCanceled).Inc()
		return
	}
	r.done(StatusError, usage)
}

func (r *run) done(status string, usage *domain.TokenUsage) {
	metrics.SearchesTotal.WithLabelValues(status).Inc()
	_ = r.emit(step.EventDone, step.DoneData{
		QueryID:    r.id,
		Status:     status,
		DurationMS: time.Since(r.started).Milliseconds(),
		Usage:      usage.Snapshot(),
	})
}
