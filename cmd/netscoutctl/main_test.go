package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

const stream = "event: step\ndata: {\"name\":\"sections\",\"status\":\"started\"}\n\n" +
	"event: step\ndata: {\"name\":\"sections\",\"status\":\"completed\"}\n\n" +
	"event: results\ndata: {\"query_id\":\"q1\",\"results\":[{\"candidate\":{\"id\":\"p1\",\"full_name\":\"Ada Lovelace\",\"headline\":\"Engineer\",\"provenance\":{\"source\":\"structured\",\"branch\":0}},\"trait_scores\":[{\"trait_index\":0,\"trait\":\"Worked at Google\",\"score\":\"Yes\",\"evidence\":\"Google 2019-2022\"}],\"aggregate_score\":1,\"match_percent\":100}],\"partial\":false}\n\n" +
	"event: done\ndata: {\"query_id\":\"q1\",\"status\":\"completed\",\"duration_ms\":40,\"usage\":{\"llm_calls\":5}}\n\n"

func run(t *testing.T, handler http.HandlerFunc, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"netscoutctl", args[0], "--url", srv.URL}, args[1:]...))
	return out.String(), err
}

func TestSearchCommand(t *testing.T) {
	var gotUser string
	out, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-ID")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, stream)
	}, "search", "--user", "u1", "--evidence", "Google", "engineers")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotUser != "u1" {
		t.Errorf("X-User-ID = %q", gotUser)
	}
	for _, want := range []string{"sections", "completed", "Ada Lovelace", "100%", "Google 2019-2022", "5 LLM calls"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSearchCommand_Quiet(t *testing.T) {
	out, err := run(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, stream)
	}, "search", "-q", "anyone")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if strings.Contains(out, "started") {
		t.Errorf("quiet output contains steps:\n%s", out)
	}
}

func TestSearchCommand_RequiresQuery(t *testing.T) {
	_, err := run(t, func(http.ResponseWriter, *http.Request) {
		t.Error("server should not be called")
	}, "search")
	if err == nil {
		t.Fatal("expected error for missing query")
	}
}

func TestSearchCommand_ErrorEvent(t *testing.T) {
	_, err := run(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "event: error\ndata: {\"code\":\"timeout\",\"message\":\"The search took too long.\"}\n\n"+
			"event: done\ndata: {\"query_id\":\"q1\",\"status\":\"error\",\"duration_ms\":1,\"usage\":{}}\n\n")
	}, "search", "slow")
	if err == nil || !strings.Contains(err.Error(), "took too long") {
		t.Fatalf("err = %v", err)
	}
}

func TestUsageCommand(t *testing.T) {
	out, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("period") != "month" {
			t.Errorf("period = %q", r.URL.Query().Get("period"))
		}
		_, _ = io.WriteString(w, `{"period":"month","searches":{"limit":50,"used":3,"remaining":47},"budgets":[{"provider":"llm","tokens_limit":1000,"tokens_remaining":900,"is_exhausted":false}]}`)
	}, "usage", "--period", "month")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if !strings.Contains(out, "3/50 used, 47 remaining") || !strings.Contains(out, "llm") {
		t.Errorf("output:\n%s", out)
	}
}

func TestHealthCommand_Unhealthy(t *testing.T) {
	out, err := run(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"status":"error","checks":{"postgres":"error"}}`)
	}, "health")
	if err == nil {
		t.Fatal("expected non-zero exit for unhealthy server")
	}
	if !strings.Contains(out, "postgres: error") {
		t.Errorf("output:\n%s", out)
	}
}
