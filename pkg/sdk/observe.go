package netscout

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "netscout"

type sdkMetrics struct {
	calls        *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	streamEvents *prometheus.CounterVec
	firstResults prometheus.Histogram
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "Client calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of client calls, including the whole search stream.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"operation"}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sdk",
			Name:      "stream_events_total",
			Help:      "Search stream events received by event name.",
		}, []string{"event"}),
		firstResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "sdk",
			Name:      "time_to_results_seconds",
			Help:      "Time from sending a search to receiving its results event.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
	}
	if err := registerOrReuse(reg, &m.calls); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.latency); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.streamEvents); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.firstResults); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers c, or points c at the collector already
// registered under the same descriptor.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("netscout: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("netscout: metric already registered as %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// outcomeOf buckets an error into a low-cardinality label.
func outcomeOf(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr):
		return "rejected"
	case errors.Is(err, ErrSearchFailed):
		return "search_error"
	case errors.Is(err, ErrIncomplete):
		return "incomplete"
	default:
		return "error"
	}
}

// observer logs and measures client calls. A nil observer is a no-op.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

// event counts one stream event; results events also record time since start.
func (o *observer) event(name EventName, start time.Time) {
	if o == nil || o.metrics == nil {
		return
	}
	label := string(name)
	switch name {
	case EventStep, EventResults, EventError, EventDone:
	default:
		label = "other"
	}
	o.metrics.streamEvents.WithLabelValues(label).Inc()
	if name == EventResults {
		o.metrics.firstResults.Observe(time.Since(start).Seconds())
	}
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	elapsed := time.Since(start)
	outcome := outcomeOf(err)

	if o.metrics != nil {
		o.metrics.calls.WithLabelValues(op, outcome).Inc()
		o.metrics.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	}
	if o.logger == nil {
		return
	}
	if err != nil {
		o.logger.Warn("netscout call failed", "op", op, "outcome", outcome, "elapsed", elapsed, "error", err)
		return
	}
	o.logger.Debug("netscout call done", "op", op, "elapsed", elapsed)
}
