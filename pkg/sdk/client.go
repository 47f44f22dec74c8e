package netscout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the netscout SDK entry point.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	token   string
	userID  string
	obs     *observer
}

// New creates a Client for the API served at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("netscout: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("netscout: base url %q must be absolute", baseURL)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, fmt.Errorf("netscout: init observer: %w", err)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		baseURL: u,
		http:    hc,
		token:   cfg.token,
		userID:  cfg.userID,
		obs:     obs,
	}, nil
}

// Outcome is the summary of a finished search.
type Outcome struct {
	Results Results
	Done    Done
	// Err is set when the search ended with an error event.
	Err *ErrorPayload
}

// Search runs a query and calls fn for every event as it arrives, in order.
// Returning an error from fn stops reading and closes the stream.
// A search that ends with an error event returns the Outcome and a *SearchError.
func (c *Client) Search(ctx context.Context, query string, fn func(Event) error) (out Outcome, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return Outcome{}, fmt.Errorf("netscout: encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/search", nil, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("netscout: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Outcome{}, decodeAPIError(resp)
	}

	dec := NewDecoder(resp.Body)
	gotDone := false
	for !gotDone {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return out, ErrIncomplete
		}
		if err != nil {
			return out, fmt.Errorf("netscout: read stream: %w", err)
		}

		c.obs.event(ev.Name, start)
		switch ev.Name {
		case EventResults:
			if out.Results, err = ev.Results(); err != nil {
				return out, err
			}
		case EventError:
			p, err := ev.Error()
			if err != nil {
				return out, err
			}
			out.Err = &p
		case EventDone:
			if out.Done, err = ev.Done(); err != nil {
				return out, err
			}
			gotDone = true
		}

		if fn != nil {
			if err := fn(ev); err != nil {
				return out, err
			}
		}
	}

	if out.Err != nil {
		return out, &SearchError{Payload: *out.Err}
	}
	return out, nil
}

// Usage returns the caller's quota and the provider budgets for period.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) (rep UsageReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, err) }()

	q := url.Values{}
	if period != "" {
		q.Set("period", string(period))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/usage", q, nil)
	if err != nil {
		return UsageReport{}, err
	}
	if err := c.doJSON(req, &rep); err != nil {
		return UsageReport{}, err
	}
	return rep, nil
}

// Health returns the server's dependency health. A degraded or failing
// server still returns a status, not an error.
func (c *Client) Health(ctx context.Context) (h HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return HealthStatus{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("netscout: health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return HealthStatus{}, decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return HealthStatus{}, fmt.Errorf("netscout: decode health: %w", err)
	}
	return h, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path += path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("netscout: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
	return req, nil
}

func (c *Client) doJSON(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("netscout: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("netscout: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
