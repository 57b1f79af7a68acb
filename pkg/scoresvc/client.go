// Package scoresvc provides a client for the external assessment scoring
// microservice.
package scoresvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/assessment-cli/internal/resilience"
)

// Client defines the scoring service operations.
type Client interface {
	// Analyze posts an assessment for scoring and returns the raw JSON body.
	Analyze(ctx context.Context, req AnalyzeRequest) ([]byte, error)
}

// AnalyzeRequest is the payload the scoring service expects.
type AnalyzeRequest struct {
	AssessmentID   string         `json:"assessmentId"`
	AssessmentType string         `json:"assessmentType"`
	Responses      map[string]any `json:"responses"`
	PersonalInfo   map[string]any `json:"personalInfo,omitempty"`
	Resume         *Document      `json:"resume,omitempty"`
}

// Document is an inline file. Data is base64 encoded by encoding/json.
type Document struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds each call, including time spent waiting on the rate limiter.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit sets the maximum requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a scoring service client for baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: 25 * time.Second,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze sends one request. Errors are classified for the caller's retry
// policy: 400 and 422 are permanent; other non-2xx statuses and transport
// failures are transient.
func (c *httpClient) Analyze(ctx context.Context, req AnalyzeRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "scoresvc: rate limit wait"), 0)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "scoresvc: marshal request"), 0)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "scoresvc: create request"), 0)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "scoresvc: request failed"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "scoresvc: read response body"), 0)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, resilience.NewPermanentError(
			eris.Errorf("scoresvc: rejected input (%d): %s", resp.StatusCode, truncate(body)), resp.StatusCode)
	default:
		return nil, resilience.NewTransientError(
			eris.Errorf("scoresvc: unexpected status %d: %s", resp.StatusCode, truncate(body)), resp.StatusCode)
	}
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
