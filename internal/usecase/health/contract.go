package health

import "context"

// Pinger checks store availability (PostgreSQL, Redis).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks model provider availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
