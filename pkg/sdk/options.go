package netscout

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	httpClient *http.Client

	token  string
	userID string

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithHTTPClient replaces the default http.Client. Search streams are long
// lived, so the client should not set a short Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithToken authenticates as the user named by a JWT.
func WithToken(jwt string) Option {
	return optionFunc(func(c *clientConfig) {
		c.token = jwt
		c.userID = ""
	})
}

// WithAPIKey authenticates as a trusted service acting for userID.
func WithAPIKey(key, userID string) Option {
	return optionFunc(func(c *clientConfig) {
		c.token = key
		c.userID = userID
	})
}

// WithUser names the user for servers running without authentication.
func WithUser(userID string) Option {
	return optionFunc(func(c *clientConfig) {
		c.userID = userID
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
