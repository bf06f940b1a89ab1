// Package bypass talks to a FlareSolverr-compatible solver service that turns
// a target URL into rendered HTML, getting past bot-challenge pages.
package bypass

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

const (
	cmdRequestGet     = "request.get"
	cmdSessionCreate  = "sessions.create"
	cmdSessionDestroy = "sessions.destroy"

	statusOK = "ok"

	defaultMaxTimeout = 60 * time.Second
	controlTimeout    = 30 * time.Second
	// transportMargin is added on top of the solver's maxTimeout so the
	// service gets to report its own timeout before the HTTP call gives up.
	transportMargin = 10 * time.Second
	maxBodyBytes    = 32 << 20
)

// ErrNoSolution is returned when the service reports success without a solution.
var ErrNoSolution = errors.New("bypass service returned no solution")

// ServiceError carries a non-ok status reported by the solver service.
type ServiceError struct {
	Command string
	Status  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("bypass %s: status %q: %s", e.Command, e.Status, e.Message)
}

// HTTPStatusError is returned when the service answers with an unexpected
// HTTP status and a body that is not a service envelope.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("bypass service http status %d", e.Code)
}

// Retryable reports whether the status signals a transient condition.
func (e *HTTPStatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Waiter gates outbound requests (see policy/ratelimit).
type Waiter interface {
	Wait(ctx context.Context, targetURL string) error
}

// Config controls the solver client.
type Config struct {
	BaseURL    string
	MaxTimeout time.Duration
	MaxRetries int
	Backoff    pacing.Backoff
	HTTPClient *http.Client
	Pause      crawler.PauseFunc
}

// Client implements crawler.Fetcher against the solver service.
type Client struct {
	baseURL    string
	maxTimeout time.Duration
	maxRetries int
	backoff    pacing.Backoff
	httpClient *http.Client
	pause      crawler.PauseFunc
	limiter    Waiter
	logger     *zap.Logger
}

// New builds a Client. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("bypass base url is required")
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = defaultMaxTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = pacing.DefaultBackoff()
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
		baseURL:    base,
		maxTimeout: cfg.MaxTimeout,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		httpClient: cfg.HTTPClient,
		pause:      cfg.Pause,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

type commandRequest struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url,omitempty"`
	Session    string `json:"session,omitempty"`
	MaxTimeout int64  `json:"maxTimeout,omitempty"`
}

// Cookie is one cookie captured by the solver.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
}

// Solution is the rendered result of a request.get command.
type Solution struct {
	URL       string   `json:"url"`
	Status    int      `json:"status"`
	Response  string   `json:"response"`
	Cookies   []Cookie `json:"cookies"`
	UserAgent string   `json:"userAgent"`
}

type commandResponse struct {
	Status         string    `json:"status"`
	Message        string    `json:"message"`
	Solution       *Solution `json:"solution"`
	StartTimestamp int64     `json:"startTimestamp"`
	EndTimestamp   int64     `json:"endTimestamp"`
}

// CreateSession opens a reusable browser session on the service.
func (c *Client) CreateSession(ctx context.Context, sessionID string) error {
	if _, err := c.call(ctx, commandRequest{Cmd: cmdSessionCreate, Session: sessionID}, controlTimeout); err != nil {
		return fmt.Errorf("create session %s: %w", sessionID, err)
	}
	c.logger.Debug("bypass session created", zap.String("session", sessionID))
	return nil
}

// DestroySession releases a session. Failures are logged and swallowed.
func (c *Client) DestroySession(ctx context.Context, sessionID string) error {
	if _, err := c.call(ctx, commandRequest{Cmd: cmdSessionDestroy, Session: sessionID}, controlTimeout); err != nil {
		c.logger.Warn("bypass session destroy failed", zap.String("session", sessionID), zap.Error(err))
		return nil
	}
	c.logger.Debug("bypass session destroyed", zap.String("session", sessionID))
	return nil
}

// Fetch renders request.URL, retrying transient failures with backoff.
func (c *Client) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = c.maxTimeout
	}
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, request.URL); err != nil {
				return crawler.FetchResponse{}, err
			}
		}
		start := time.Now()
		solution, err := c.solve(ctx, request.URL, request.SessionID, timeout)
		if err == nil {
			return crawler.FetchResponse{
				URL:        firstNonEmpty(solution.URL, request.URL),
				StatusCode: solution.Status,
				Body:       solution.Response,
				Duration:   time.Since(start),
			}, nil
		}
		if attempt >= c.maxRetries || !crawler.IsRetryable(err) || ctx.Err() != nil {
			return crawler.FetchResponse{}, err
		}
		delay := c.backoff.Delay(attempt)
		c.logger.Warn("bypass fetch failed, backing off",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		c.pause(ctx, delay)
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ctx.Err())
		}
	}
}

// Health reports whether the service answers its health endpoint.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck // read-only probe
	return resp.StatusCode == http.StatusOK
}

func (c *Client) solve(ctx context.Context, targetURL, sessionID string, timeout time.Duration) (*Solution, error) {
	payload := commandRequest{
		Cmd:        cmdRequestGet,
		URL:        targetURL,
		Session:    sessionID,
		MaxTimeout: timeout.Milliseconds(),
	}
	resp, err := c.call(ctx, payload, timeout+transportMargin)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", targetURL, err)
	}
	if resp.Solution == nil {
		return nil, fmt.Errorf("fetch %s: %w", targetURL, ErrNoSolution)
	}
	return resp.Solution, nil
}

func (c *Client) call(ctx context.Context, payload commandRequest, timeout time.Duration) (commandResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return commandResponse{}, fmt.Errorf("marshal command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1", bytes.NewReader(body))
	if err != nil {
		return commandResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return commandResponse{}, fmt.Errorf("post command: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return commandResponse{}, fmt.Errorf("read response: %w", err)
	}

	var out commandResponse
	if decodeErr := json.Unmarshal(raw, &out); decodeErr != nil || out.Status == "" {
		if resp.StatusCode/100 != 2 {
			return commandResponse{}, &HTTPStatusError{Code: resp.StatusCode}
		}
		if decodeErr != nil {
			return commandResponse{}, fmt.Errorf("decode response: %w", decodeErr)
		}
	}
	if out.Status != statusOK {
		return commandResponse{}, &ServiceError{Command: payload.Cmd, Status: out.Status, Message: out.Message}
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
