package chi

import "time"

// ErrorCode is the machine-readable error code returned to clients.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest     ErrorCode = "bad_request"
	ErrorCodeUnauthorized   ErrorCode = "unauthorized"
	ErrorCodeInvalidQuery   ErrorCode = "invalid_query"
	ErrorCodeQuotaExceeded  ErrorCode = "quota_exceeded"
	ErrorCodeBudgetExceeded ErrorCode = "budget_exceeded"
	ErrorCodeNotFound       ErrorCode = "not_found"
	ErrorCodeProviderError  ErrorCode = "provider_error"
	ErrorCodeInternalError  ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-stream error.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
}

// QuotaStatus is the caller's daily search allowance. Remaining is -1 when unlimited.
type QuotaStatus struct {
	Limit     int        `json:"limit"`
	Used      int        `json:"used"`
	Remaining int        `json:"remaining"`
	ResetsAt  *time.Time `json:"resets_at,omitempty"`
}

// BudgetStatus is one provider token budget.
type BudgetStatus struct {
	Provider        string     `json:"provider"`
	TokensLimit     int64      `json:"tokens_limit"`
	TokensRemaining int64      `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

// UsageResponse is the body of GET /api/v1/usage.
type UsageResponse struct {
	Period   string         `json:"period"`
	Searches QuotaStatus    `json:"searches"`
	Budgets  []BudgetStatus `json:"budgets"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
