// Package client provides the Spotify Web API transport, its failure
// taxonomy and the Retrier that drives every call through the shared request
// gate with backoff.
//
// Client performs exactly one attempt per call and classifies the outcome.
// Retries are the Retrier's job, so paginated and batched fetches can compose
// them per page or per chunk.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/spotify-catalog-client/pkg/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Web API requests.
var (
	spotifyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotify_requests_total",
		Help: "Total Spotify Web API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	spotifyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spotify_request_duration_seconds",
		Help:    "Spotify Web API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	spotifyErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotify_errors_total",
		Help: "Total failed Spotify Web API attempts by kind",
	}, []string{"kind"})
)

// DefaultBaseURL is the Spotify Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Transport executes one HTTP round trip. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request describes one GET against the Web API.
type Request struct {
	// Endpoint is the path template used as metric and log label,
	// e.g. "/artists/{id}/albums".
	Endpoint string

	// Path is the concrete path below the base URL.
	Path string

	Query url.Values
}

// Config holds the client configuration.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// UserAgent is sent on every request when set.
	UserAgent string
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// Client is the single-attempt Web API client.
type Client struct {
	transport Transport
	tokens    auth.TokenProvider
	baseURL   string
	config    Config
	logger    zerolog.Logger
}

// New creates a new Web API client.
func New(cfg Config, tokens auth.TokenProvider) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %v)", cfg.Timeout)
	}

	logger := log.With().Str("component", "spotify-client").Logger()

	return &Client{
		transport: &http.Client{Timeout: cfg.Timeout},
		tokens:    tokens,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		config:    cfg,
		logger:    logger,
	}, nil
}

// SetTransport sets a custom transport (for testing).
func (c *Client) SetTransport(t Transport) {
	c.transport = t
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send performs one GET and decodes a 2xx JSON body into out.
// Failures are returned as *APIError with a Kind set; see KindOf.
func (c *Client) Send(ctx context.Context, req Request, out any) error {
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = req.Path
	}

	startTime := time.Now()
	defer func() {
		spotifyRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		spotifyErrorsTotal.WithLabelValues(string(KindPermanent)).Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Token provider failed")
		return &APIError{
			Kind:     KindPermanent,
			Endpoint: endpoint,
			Message:  "obtain access token",
			Err:      fmt.Errorf("%w: %w", ErrAuth, err),
		}
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &APIError{Kind: KindPermanent, Endpoint: endpoint, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("path", req.Path).
		Msg("Executing Web API request")

	resp, err := c.transport.Do(httpReq)
	if err != nil {
		spotifyErrorsTotal.WithLabelValues(string(KindTransient)).Inc()
		spotifyRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return &APIError{Kind: KindTransient, Endpoint: endpoint, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	spotifyRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			spotifyErrorsTotal.WithLabelValues(string(KindPermanent)).Inc()
			return &APIError{
				StatusCode: resp.StatusCode,
				Kind:       KindPermanent,
				Endpoint:   endpoint,
				Message:    "decode response",
				Err:        err,
			}
		}
		return nil
	}

	apiErr := c.classify(resp, endpoint)
	spotifyErrorsTotal.WithLabelValues(string(apiErr.Kind)).Inc()

	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Str("kind", string(apiErr.Kind)).
		Dur("retry_after", apiErr.RetryAfter).
		Msg("Web API request error")

	return apiErr
}

// classify turns a non-2xx response into an APIError.
func (c *Client) classify(resp *http.Response, endpoint string) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Endpoint:   endpoint,
		Message:    errorMessage(resp),
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode >= 500:
		apiErr.Kind = KindTransient
	default:
		apiErr.Kind = KindPermanent
	}
	return apiErr
}

// errorMessage extracts the Web API error message, falling back to the status text.
func errorMessage(resp *http.Response) string {
	var body struct {
		Error struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return resp.Status
}

// parseRetryAfter reads a Retry-After value given as delta-seconds or an
// HTTP date. Unparseable or past values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.ParseInt(value, 10, 32); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
