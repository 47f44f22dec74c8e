// Package step defines the observable progress model of a search:
// stage steps, stream events and the per-query state machine.
package step

import (
	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/score"
)

// Stage identifies one pipeline stage.
type Stage string

// Pipeline stages in dependency order.
const (
	StageSections       Stage = "sections"
	StageTraits         Stage = "traits"
	StageKeyPhrases     Stage = "key_phrases"
	StageQuerySynthesis Stage = "query_synthesis"
	StageRetrieval      Stage = "retrieval"
	StageScoring        Stage = "scoring"
)

// Stages returns every stage in dependency order.
func Stages() []Stage {
	return []Stage{StageSections, StageTraits, StageKeyPhrases, StageQuerySynthesis, StageRetrieval, StageScoring}
}

// Status is a stage's progress.
type Status string

// Stage statuses.
const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// ThinkingStep is one progress update for a stage.
type ThinkingStep struct {
	Name    Stage  `json:"name"`
	Status  Status `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// EventName is the SSE event type.
type EventName string

// Stream event names.
const (
	EventStep    EventName = "step"
	EventResults EventName = "results"
	EventError   EventName = "error"
	EventDone    EventName = "done"
)

// Event is one frame of the search stream. Seq increases by one per event.
type Event struct {
	Seq  int
	Name EventName
	Data any
}

// ResultsData is the payload of the results event.
type ResultsData struct {
	QueryID string         `json:"query_id"`
	Results []score.Result `json:"results"`
	Partial bool           `json:"partial"`
}

// ErrorData is the payload of the error event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   Stage  `json:"stage,omitempty"`
}

// DoneData is the payload of the done event.
type DoneData struct {
	QueryID    string                    `json:"query_id"`
	Status     string                    `json:"status"`
	DurationMS int64                     `json:"duration_ms"`
	Usage      domain.TokenUsageSnapshot `json:"usage"`
}
