package netscout

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventName is the stream event type.
type EventName string

// Stream event names.
const (
	EventStep    EventName = "step"
	EventResults EventName = "results"
	EventError   EventName = "error"
	EventDone    EventName = "done"
)

// Event is one decoded stream block. Data is the raw JSON payload.
type Event struct {
	Name EventName
	Data json.RawMessage
}

// Step decodes a step event.
func (e Event) Step() (Step, error) {
	var s Step
	return s, e.decode(EventStep, &s)
}

// Results decodes a results event.
func (e Event) Results() (Results, error) {
	var r Results
	return r, e.decode(EventResults, &r)
}

// Error decodes an error event.
func (e Event) Error() (ErrorPayload, error) {
	var p ErrorPayload
	return p, e.decode(EventError, &p)
}

// Done decodes a done event.
func (e Event) Done() (Done, error) {
	var d Done
	return d, e.decode(EventDone, &d)
}

func (e Event) decode(want EventName, v any) error {
	if e.Name != want {
		return fmt.Errorf("netscout: event is %q, not %q", e.Name, want)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("netscout: decode %s event: %w", e.Name, err)
	}
	return nil
}

// Step is one stage progress update. Data is the stage-specific payload.
type Step struct {
	Name    string          `json:"name"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Provenance explains why a candidate was retrieved.
type Provenance struct {
	Source     string  `json:"source"`
	Branch     int     `json:"branch"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Candidate is the public part of a matched profile.
type Candidate struct {
	ID         string     `json:"id"`
	FullName   string     `json:"full_name"`
	Headline   string     `json:"headline,omitempty"`
	Location   string     `json:"location,omitempty"`
	ProfileURL string     `json:"profile_url,omitempty"`
	PictureURL string     `json:"picture_url,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// TraitScore is the verdict for one trait: "Yes", "Kind Of" or "No".
type TraitScore struct {
	TraitIndex int    `json:"trait_index"`
	Trait      string `json:"trait"`
	Score      string `json:"score"`
	Evidence   string `json:"evidence"`
}

// Result is a scored candidate.
type Result struct {
	Candidate      Candidate    `json:"candidate"`
	TraitScores    []TraitScore `json:"trait_scores"`
	AggregateScore float64      `json:"aggregate_score"`
	MatchPercent   int          `json:"match_percent"`
	Partial        bool         `json:"partial,omitempty"`
}

// Results is the payload of the results event.
type Results struct {
	QueryID string   `json:"query_id"`
	Results []Result `json:"results"`
	Partial bool     `json:"partial"`
}

// ErrorPayload is the payload of the error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// TokenUsage is the provider usage of one search.
type TokenUsage struct {
	LLMCalls         int `json:"llm_calls"`
	CompletionTokens int `json:"completion_tokens"`
	EmbeddingCalls   int `json:"embedding_calls"`
	EmbeddingTokens  int `json:"embedding_tokens"`
}

// Done is the payload of the done event. Status is completed, partial or error.
type Done struct {
	QueryID    string     `json:"query_id"`
	Status     string     `json:"status"`
	DurationMS int64      `json:"duration_ms"`
	Usage      TokenUsage `json:"usage"`
}

// UsagePeriod is the aggregation granularity for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
)

// Quota is the daily search allowance. Remaining is -1 when unlimited.
type Quota struct {
	Limit     int        `json:"limit"`
	Used      int        `json:"used"`
	Remaining int        `json:"remaining"`
	ResetsAt  *time.Time `json:"resets_at,omitempty"`
}

// BudgetStatus tracks a provider token budget.
type BudgetStatus struct {
	Provider        string     `json:"provider"`
	TokensLimit     int64      `json:"tokens_limit"`
	TokensRemaining int64      `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

// UsageReport is the caller's quota and the provider budgets.
type UsageReport struct {
	Period   UsagePeriod    `json:"period"`
	Searches Quota          `json:"searches"`
	Budgets  []BudgetStatus `json:"budgets"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"
}
