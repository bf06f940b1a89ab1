// Package embedding turns text into fixed-size vectors through a remote
// feature-extraction service, with an optional Redis-backed cache.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/policy/pacing"
)

// DefaultDimensions is the vector size of the default model.
const DefaultDimensions = 768

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
)

var (
	// ErrDimensionMismatch is returned when the service returns a vector of
	// the wrong size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrMalformedResponse is returned when the body is neither a vector nor
	// a single-element batch of vectors.
	ErrMalformedResponse = errors.New("malformed embedding response")
)

// Embedder produces a vector for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// StatusError is returned for non-2xx responses from the service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding service http status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is transient. Hosted inference
// answers 503 while a model is loading.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Config controls the HTTP client.
type Config struct {
	URL        string
	APIToken   string
	Model      string
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
	Backoff    pacing.Backoff
	HTTPClient *http.Client
	Pause      crawler.PauseFunc
}

// Client calls a feature-extraction endpoint with {"inputs": text}.
type Client struct {
	url        string
	token      string
	model      string
	dimensions int
	timeout    time.Duration
	maxRetries int
	backoff    pacing.Backoff
	httpClient *http.Client
	pause      crawler.PauseFunc
	logger     *zap.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, fmt.Errorf("embedding url is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = pacing.Backoff{Base: time.Second, Max: 20 * time.Second, JitterFraction: 0.2}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Pause == nil {
		cfg.Pause = pacing.Pause
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:        endpoint,
		token:      cfg.APIToken,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		httpClient: cfg.HTTPClient,
		pause:      cfg.Pause,
		logger:     logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Dimensions returns the expected vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Embed returns the vector for text, retrying transient failures.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	for attempt := 0; ; attempt++ {
		vec, err := c.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		if attempt >= c.maxRetries || !crawler.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		delay := c.backoff.Delay(attempt)
		c.logger.Warn("embedding call failed, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		c.pause(ctx, delay)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed: %w", ctx.Err())
		}
	}
}

type embedRequest struct {
	Inputs string `json:"inputs"`
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Inputs: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post embed request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 200)}
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, err
	}
	if len(vec) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.dimensions)
	}
	return vec, nil
}

// decodeVector accepts either [f, ...] or [[f, ...]].
func decodeVector(raw []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}
	var batch [][]float32
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(batch) != 1 {
		return nil, fmt.Errorf("%w: batch of %d vectors", ErrMalformedResponse, len(batch))
	}
	return batch[0], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
