package netscout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const completedStream = "event: step\ndata: {\"name\":\"sections\",\"status\":\"started\"}\n\n" +
	"event: step\ndata: {\"name\":\"sections\",\"status\":\"completed\",\"data\":{\"sections\":[\"experience\"]}}\n\n" +
	"event: results\ndata: {\"query_id\":\"q1\",\"results\":[{\"candidate\":{\"id\":\"p1\",\"full_name\":\"Ada\",\"provenance\":{\"source\":\"structured\",\"branch\":0}},\"trait_scores\":[],\"aggregate_score\":1,\"match_percent\":100}],\"partial\":false}\n\n" +
	"event: done\ndata: {\"query_id\":\"q1\",\"status\":\"completed\",\"duration_ms\":12,\"usage\":{\"llm_calls\":3}}\n\n"

func streamServer(t *testing.T, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://bad"} {
		if _, err := New(raw); err == nil {
			t.Errorf("New(%q): expected error", raw)
		}
	}
}

func TestSearch_Completed(t *testing.T) {
	srv := streamServer(t, completedStream, func(r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/search" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["query"] != "founders in NYC" {
			t.Errorf("query = %q", body["query"])
		}
	})

	c, err := New(srv.URL+"/", WithToken("tok"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var names []EventName
	out, err := c.Search(context.Background(), "founders in NYC", func(ev Event) error {
		names = append(names, ev.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := []EventName{EventStep, EventStep, EventResults, EventDone}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, names[i], want[i])
		}
	}
	if len(out.Results.Results) != 1 || out.Results.Results[0].Candidate.FullName != "Ada" {
		t.Errorf("results = %+v", out.Results)
	}
	if out.Done.Status != "completed" || out.Done.Usage.LLMCalls != 3 {
		t.Errorf("done = %+v", out.Done)
	}
}

func TestSearch_ErrorEvent(t *testing.T) {
	stream := "event: error\ndata: {\"code\":\"retrieval_failed\",\"message\":\"Could not search your network.\",\"stage\":\"retrieval\"}\n\n" +
		"event: done\ndata: {\"query_id\":\"q1\",\"status\":\"error\",\"duration_ms\":5,\"usage\":{}}\n\n"
	srv := streamServer(t, stream, nil)
	c, _ := New(srv.URL)

	out, err := c.Search(context.Background(), "x", nil)
	if !errors.Is(err, ErrSearchFailed) {
		t.Fatalf("err = %v, want ErrSearchFailed", err)
	}
	var se *SearchError
	if !errors.As(err, &se) || se.Payload.Stage != "retrieval" {
		t.Errorf("SearchError = %+v", se)
	}
	if out.Done.Status != "error" {
		t.Errorf("done status = %q", out.Done.Status)
	}
}

func TestSearch_StreamWithoutDone(t *testing.T) {
	srv := streamServer(t, "event: step\ndata: {\"name\":\"sections\",\"status\":\"started\"}\n\n", nil)
	c, _ := New(srv.URL)

	_, err := c.Search(context.Background(), "x", nil)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("err = %v, want ErrIncomplete", err)
	}
}

func TestSearch_CallbackStops(t *testing.T) {
	srv := streamServer(t, completedStream, nil)
	c, _ := New(srv.URL)

	stop := errors.New("stop")
	calls := 0
	_, err := c.Search(context.Background(), "x", func(Event) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want stop", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSearch_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid query", http.StatusBadRequest, `{"code":"invalid_query","message":"query must not be empty"}`, ErrInvalidQuery},
		{"unauthorized", http.StatusUnauthorized, `{"code":"unauthorized","message":"unauthorized"}`, ErrUnauthorized},
		{"quota", http.StatusTooManyRequests, `{"code":"quota_exceeded","message":"search quota exceeded"}`, ErrQuotaExceeded},
		{"budget", http.StatusServiceUnavailable, `{"code":"budget_exceeded","message":"token budget exceeded"}`, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()
			c, _ := New(srv.URL)

			_, err := c.Search(context.Background(), "x", nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
				t.Errorf("APIError = %+v", apiErr)
			}
		})
	}
}

func TestUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/usage" || r.URL.Query().Get("period") != "month" {
			t.Errorf("request = %s", r.URL)
		}
		if r.Header.Get("X-User-ID") != "u1" || r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("headers = %v", r.Header)
		}
		_, _ = io.WriteString(w, `{"period":"month","searches":{"limit":50,"used":3,"remaining":47},"budgets":[{"provider":"llm","tokens_limit":1000,"tokens_remaining":10,"is_exhausted":false}]}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, WithAPIKey("key", "u1"))
	rep, err := c.Usage(context.Background(), PeriodMonth)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if rep.Searches.Remaining != 47 || len(rep.Budgets) != 1 || rep.Budgets[0].Provider != "llm" {
		t.Errorf("report = %+v", rep)
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"status":"error","checks":{"postgres":"error","redis":"ok"}}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "error" || h.Checks["postgres"] != "error" {
		t.Errorf("health = %+v", h)
	}
}

func TestClient_RecordsMetrics(t *testing.T) {
	srv := streamServer(t, completedStream, nil)
	reg := prometheus.NewRegistry()
	c, err := New(srv.URL, WithPrometheus(reg), WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Search(context.Background(), "x", nil); err != nil {
		t.Fatalf("Search: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"netscout_sdk_operations_total",
		"netscout_sdk_operation_duration_seconds",
		"netscout_sdk_stream_events_total",
		"netscout_sdk_time_to_results_seconds",
	} {
		if !names[want] {
			t.Errorf("%s not gathered", want)
		}
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&APIError{StatusCode: 429, Code: "quota_exceeded"}, "rejected"},
		{&SearchError{Payload: ErrorPayload{Code: "llm_provider_error"}}, "search_error"},
		{ErrIncomplete, "incomplete"},
		{errors.New("dial tcp: refused"), "error"},
	}
	for _, tt := range tests {
		if got := outcomeOf(tt.err); got != tt.want {
			t.Errorf("outcomeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var obs *observer
	obs.observe("test", time.Now(), nil)
	obs.observe("test", time.Now(), errors.New("err"))
	obs.event(EventStep, time.Now())
}

func TestObserver_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("second registration should reuse collectors: %v", err)
	}
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{StatusCode: 429, Code: "quota_exceeded", Message: "search quota exceeded"}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("Error() = %q", err.Error())
	}
}
