// Package health aggregates dependency checks for the /health endpoint.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates a required component is failing.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type component struct {
	name     string
	check    func(ctx context.Context) error
	required bool
}

// Service coordinates health checks.
type Service struct {
	components []component
	timeout    time.Duration
}

// New creates a Service. Postgres is required: without it no search can run.
// Redis and the providers degrade the service when down.
// redis, llm and embedding may be nil.
func New(postgres Pinger, redis Pinger, llm, embedding ProviderChecker, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	s := &Service{timeout: timeout}
	s.components = append(s.components, component{name: "postgres", check: postgres.Ping, required: true})
	if redis != nil {
		s.components = append(s.components, component{name: "redis", check: redis.Ping})
	}
	if llm != nil {
		s.components = append(s.components, component{name: "llm", check: llm.HealthCheck})
	}
	if embedding != nil {
		s.components = append(s.components, component{name: "embedding", check: embedding.HealthCheck})
	}
	return s
}

// Check runs every component check concurrently.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		g      errgroup.Group
		checks = make(map[string]CheckResult, len(s.components))
		status = Healthy
	)
	for _, c := range s.components {
		g.Go(func() error {
			result := CheckOK
			if err := c.check(ctx); err != nil {
				result = CheckError
			}
			mu.Lock()
			defer mu.Unlock()
			checks[c.name] = result
			if result == CheckError {
				if c.required {
					status = Unhealthy
				} else if status == Healthy {
					status = Degraded
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return Report{Status: status, Checks: checks}
}
