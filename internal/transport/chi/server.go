// Package chi exposes the search pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/step"
	domusage "github.com/kailas-cloud/netscout/internal/domain/usage"
	"github.com/kailas-cloud/netscout/internal/logger"
	healthuc "github.com/kailas-cloud/netscout/internal/usecase/health"
	searchuc "github.com/kailas-cloud/netscout/internal/usecase/search"
)

const maxBodyBytes = 64 << 10

// Searcher starts a streamed search.
type Searcher interface {
	Start(ctx context.Context, req searchuc.Request) (<-chan step.Event, error)
}

// UsageReporter reports a user's quota and the provider budgets.
type UsageReporter interface {
	GetReport(ctx context.Context, userID string, period domusage.Period) (domusage.Report, error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	search        Searcher
	usage         UsageReporter
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, usage UsageReporter, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		search: search,
		usage:  usage,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		queryErrorHandler,
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, ErrorCodeUnauthorized),
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusTooManyRequests, ErrorCodeQuotaExceeded),
		sentinelHandler(domain.ErrTokenBudgetExceeded, http.StatusServiceUnavailable, ErrorCodeBudgetExceeded),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrLLMProviderError, http.StatusBadGateway, ErrorCodeProviderError),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, ErrorCodeProviderError),
	}
	return s
}

// Mount registers the routes on r.
func (s *Server) Mount(r gochi.Router) {
	r.Post("/api/v1/search", s.Search)
	r.Get("/api/v1/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Search handles POST /api/v1/search. Rejections are plain JSON errors;
// once the pipeline starts the response is an event stream.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	events, err := s.search.Start(r.Context(), searchuc.Request{
		UserID: UserIDFromContext(r.Context()),
		Query:  req.Query,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	// The stream outlives the server write timeout; the pipeline has its own deadline.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	sse := newEventWriter(w)
	sse.open()
	broken := false
	for ev := range events {
		if broken {
			continue
		}
		if err := sse.write(ev); err != nil {
			logger.FromContext(r.Context()).Debug("search stream write failed", zap.Error(err))
			broken = true
		}
	}
}

// GetUsage handles GET /api/v1/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	var raw *string
	if err := runtime.BindQueryParameter("form", true, false, "period", r.URL.Query(), &raw); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter period")
		return
	}
	var periodParam string
	if raw != nil {
		periodParam = *raw
	}
	period, ok := domusage.ParsePeriod(periodParam)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "period must be day or month")
		return
	}

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		s.handleDomainError(w, domain.ErrUnauthorized)
		return
	}

	report, err := s.usage.GetReport(r.Context(), userID, period)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usageToResponse(report))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func usageToResponse(report domusage.Report) UsageResponse {
	q := report.Quota()
	resp := UsageResponse{
		Period: string(report.Period()),
		Searches: QuotaStatus{
			Limit:     q.Limit(),
			Used:      q.Used(),
			Remaining: q.Remaining(),
			ResetsAt:  millisToTime(q.ResetsAt()),
		},
		Budgets: make([]BudgetStatus, 0, len(report.Budgets())),
	}
	for _, b := range report.Budgets() {
		resp.Budgets = append(resp.Budgets, BudgetStatus{
			Provider:        b.Provider(),
			TokensLimit:     b.TokensLimit(),
			TokensRemaining: b.TokensRemaining(),
			IsExhausted:     b.IsExhausted(),
			ResetsAt:        millisToTime(b.ResetsAt()),
		})
	}
	return resp
}

func millisToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrUnauthorized,
		domain.ErrQuotaExceeded,
		domain.ErrTokenBudgetExceeded,
		domain.ErrNotFound,
		domain.ErrLLMProviderError,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// queryErrorHandler returns the validation reason of an invalid query.
func queryErrorHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrInvalidQuery) {
		return false
	}
	msg := domain.ErrInvalidQuery.Error()
	var qe *domain.QueryError
	if errors.As(err, &qe) {
		msg = qe.Reason
	}
	writeError(w, http.StatusBadRequest, ErrorCodeInvalidQuery, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
