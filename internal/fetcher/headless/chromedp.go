// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is how long to wait after the body is ready so client-side
	// rendering can finish.
	SettleDelay time.Duration
}

// Fetcher implements crawler.Fetcher using chromedp. A session is a browser tab
// that keeps its cookies across fetches until it is destroyed.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]tab
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		sessions:    make(map[string]tab),
	}, nil
}

// Close destroys every open tab and the browser allocator.
func (f *Fetcher) Close() {
	f.mu.Lock()
	for id, t := range f.sessions {
		t.cancel()
		delete(f.sessions, id)
	}
	f.mu.Unlock()
	f.allocCancel()
}

// CreateSession opens a tab bound to id. Creating an existing id is a no-op.
func (f *Fetcher) CreateSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; ok {
		return nil
	}
	ctx, cancel := chromedp.NewContext(f.allocator)
	f.sessions[id] = tab{ctx: ctx, cancel: cancel}
	return nil
}

// DestroySession closes the tab bound to id. Unknown ids are ignored.
func (f *Fetcher) DestroySession(_ context.Context, id string) error {
	f.mu.Lock()
	t, ok := f.sessions[id]
	delete(f.sessions, id)
	f.mu.Unlock()
	if ok {
		t.cancel()
	}
	return nil
}

// Fetch navigates with a headless browser and returns the fully rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return crawler.FetchResponse{}, err
	}
	defer f.release()

	taskCtx, taskCancel := f.taskContext(request.SessionID)
	defer taskCancel()

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.navTimeout()
	}
	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := &responseMeta{}
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.runHeadless(taskCtx, request.URL)
	if err != nil {
		return crawler.FetchResponse{}, err
	}

	status, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	if status >= http.StatusBadRequest {
		return crawler.FetchResponse{}, &StatusError{Code: status}
	}
	return crawler.FetchResponse{
		URL:        responseURL,
		StatusCode: status,
		Body:       html,
		Duration:   time.Since(start),
	}, nil
}

// taskContext returns the session tab when one exists, otherwise a fresh tab
// that is closed by the returned cancel func.
func (f *Fetcher) taskContext(sessionID string) (context.Context, context.CancelFunc) {
	f.mu.Lock()
	t, ok := f.sessions[sessionID]
	f.mu.Unlock()
	if ok {
		return t.ctx, func() {}
	}
	return chromedp.NewContext(f.allocator)
}

func (f *Fetcher) runHeadless(ctx context.Context, target string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

// StatusError reports a document response with an HTTP error status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("document status %d", e.Code)
}

// Retryable reports whether the status is transient.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
