package scoring

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/candidate"
)

var candidateIDPattern = regexp.MustCompile(`=== Candidate id: (\S+) ===`)

// mockCompleter answers every batch through respond, given the batch ids.
type mockCompleter struct {
	respond  func(ids []string) (string, error)
	delay    time.Duration
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	inputs   []string
}

func (m *mockCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	m.mu.Lock()
	m.inputs = append(m.inputs, req.UserContent)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return domain.CompletionResult{}, ctx.Err()
		}
	}

	var ids []string
	for _, match := range candidateIDPattern.FindAllStringSubmatch(req.UserContent, -1) {
		ids = append(ids, match[1])
	}
	text, err := m.respond(ids)
	return domain.CompletionResult{Text: text}, err
}

type wireScore struct {
	TraitIndex any    `json:"trait_index"`
	Score      string `json:"score"`
	Evidence   string `json:"evidence"`
}

// reply renders one verdict set for every id.
func reply(ids []string, scores ...wireScore) string {
	type cand struct {
		ID          string      `json:"id"`
		TraitScores []wireScore `json:"trait_scores"`
	}
	out := struct {
		Candidates []cand `json:"candidates"`
	}{Candidates: []cand{}}
	for _, id := range ids {
		out.Candidates = append(out.Candidates, cand{ID: id, TraitScores: scores})
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func cands(ids ...string) []candidate.Candidate {
	out := make([]candidate.Candidate, len(ids))
	for i, id := range ids {
		out[i] = candidate.Candidate{Summary: candidate.Summary{ID: id, FullName: "Person " + id}, Rank: i}
	}
	return out
}
