// Package usage models per-user search quotas and provider token budgets.
package usage

// Period is the aggregation granularity.
type Period string

// Aggregation periods.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod returns the period for s, defaulting to day.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, true
	case PeriodMonth:
		return PeriodMonth, true
	default:
		return "", false
	}
}

// Quota is a user's search allowance for the current day.
type Quota struct {
	limit    int
	used     int
	resetsAt int64 // unix millis
}

// NewQuota creates a quota snapshot. A zero limit means unlimited.
func NewQuota(limit, used int, resetsAt int64) Quota {
	return Quota{limit: limit, used: used, resetsAt: resetsAt}
}

// Limit returns the daily cap, or 0 when unlimited.
func (q Quota) Limit() int { return q.limit }

// Used returns searches started today.
func (q Quota) Used() int { return q.used }

// Remaining returns searches left, or -1 when unlimited.
func (q Quota) Remaining() int {
	if q.limit <= 0 {
		return -1
	}
	return max(0, q.limit-q.used)
}

// IsExhausted reports whether no searches remain.
func (q Quota) IsExhausted() bool { return q.limit > 0 && q.used >= q.limit }

// ResetsAt returns the reset timestamp (unix millis).
func (q Quota) ResetsAt() int64 { return q.resetsAt }

// Budget is a provider's token budget state.
type Budget struct {
	provider        string
	tokensLimit     int64
	tokensRemaining int64
	isExhausted     bool
	resetsAt        int64
}

// NewBudget creates a budget snapshot.
func NewBudget(provider string, limit, remaining int64, isExhausted bool, resetsAt int64) Budget {
	return Budget{
		provider:        provider,
		tokensLimit:     limit,
		tokensRemaining: remaining,
		isExhausted:     isExhausted,
		resetsAt:        resetsAt,
	}
}

// Provider returns the provider name.
func (b Budget) Provider() string { return b.provider }

// TokensLimit returns the token cap, or 0 when unlimited.
func (b Budget) TokensLimit() int64 { return b.tokensLimit }

// TokensRemaining returns tokens left.
func (b Budget) TokensRemaining() int64 { return b.tokensRemaining }

// IsExhausted reports whether the budget is spent.
func (b Budget) IsExhausted() bool { return b.isExhausted }

// ResetsAt returns the reset timestamp (unix millis).
func (b Budget) ResetsAt() int64 { return b.resetsAt }

// Report is the usage view for one user and period.
type Report struct {
	period  Period
	quota   Quota
	budgets []Budget
}

// NewReport creates a usage report.
func NewReport(period Period, quota Quota, budgets []Budget) Report {
	return Report{period: period, quota: quota, budgets: budgets}
}

// Period returns the aggregation granularity.
func (r Report) Period() Period { return r.period }

// Quota returns the user's search quota.
func (r Report) Quota() Quota { return r.quota }

// Budgets returns provider budgets.
func (r Report) Budgets() []Budget { return r.budgets }
