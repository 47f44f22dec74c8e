package usage

import (
	"context"

	domusage "github.com/kailas-cloud/netscout/internal/domain/usage"
)

// CounterStore persists per-user search counters.
type CounterStore interface {
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetReader exposes a provider token budget for a period.
type BudgetReader interface {
	Snapshot(period domusage.Period) domusage.Budget
}
