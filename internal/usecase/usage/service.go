// Package usage enforces the per-user daily search quota and builds usage reports.
package usage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/domain"
	domusage "github.com/kailas-cloud/netscout/internal/domain/usage"
	"github.com/kailas-cloud/netscout/internal/logger"
)

// Service handles search quotas and usage reporting.
type Service struct {
	store      CounterStore
	keyPrefix  string
	dailyLimit int
	budgets    []BudgetReader
	now        func() time.Time
}

// New creates a Service. A zero dailyLimit disables the quota.
func New(store CounterStore, keyPrefix string, dailyLimit int, budgets ...BudgetReader) *Service {
	return &Service{
		store:      store,
		keyPrefix:  keyPrefix,
		dailyLimit: dailyLimit,
		budgets:    budgets,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) quotaKey(userID string, t time.Time) string {
	return fmt.Sprintf("%squota:%s:daily:%s", s.keyPrefix, userID, t.Format("2006-01-02"))
}

func (s *Service) dayEnd(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1).UnixMilli()
}

// Consume counts one search for userID. Over the limit the increment is
// refunded and ErrQuotaExceeded returned. Store failures do not block searches.
func (s *Service) Consume(ctx context.Context, userID string) (domusage.Quota, error) {
	now := s.now()
	key := s.quotaKey(userID, now)

	n, err := s.store.IncrBy(ctx, key, 1)
	if err != nil {
		logger.FromContext(ctx).Warn("search quota unavailable", zap.String("user_id", userID), zap.Error(err))
		return domusage.NewQuota(s.dailyLimit, 0, s.dayEnd(now)), nil
	}
	if s.dailyLimit > 0 && n > int64(s.dailyLimit) {
		if _, err := s.store.IncrBy(ctx, key, -1); err != nil {
			logger.FromContext(ctx).Warn("search quota refund failed", zap.String("user_id", userID), zap.Error(err))
		}
		return domusage.NewQuota(s.dailyLimit, s.dailyLimit, s.dayEnd(now)), domain.ErrQuotaExceeded
	}
	return domusage.NewQuota(s.dailyLimit, int(n), s.dayEnd(now)), nil
}

// GetReport builds the caller's quota and the provider budgets for period.
func (s *Service) GetReport(ctx context.Context, userID string, period domusage.Period) (domusage.Report, error) {
	now := s.now()
	used, err := s.store.Get(ctx, s.quotaKey(userID, now))
	if err != nil {
		return domusage.Report{}, fmt.Errorf("read quota: %w", err)
	}

	budgets := make([]domusage.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		budgets = append(budgets, b.Snapshot(period))
	}
	return domusage.NewReport(period, domusage.NewQuota(s.dailyLimit, int(used), s.dayEnd(now)), budgets), nil
}
