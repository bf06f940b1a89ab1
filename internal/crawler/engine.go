package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/metrics"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/policy/pacing"
)

const (
	minPostingsForBudgetSignal = 5
	sessionCleanupTimeout      = 30 * time.Second
	archiveContentType         = "text/html; charset=utf-8"
)

// EngineConfig controls one crawl run.
type EngineConfig struct {
	BaseURL       string
	SearchPath    string
	PerPage       int
	PageDelay     pacing.Range
	DetailDelay   pacing.Range
	FetchTimeout  time.Duration
	SessionPrefix string
	// ArchivePrefix is the object prefix for page snapshots when an archive is set.
	ArchivePrefix string
	// NullBudgetAlertRatio is the share of budget-less postings above which a
	// run is reported as having degraded budget extraction.
	NullBudgetAlertRatio float64
}

// EngineDeps are the collaborators of an Engine. Archive and Detector may be nil.
type EngineDeps struct {
	Fetcher  Fetcher
	Listing  ListingParser
	Detail   DetailParser
	Store    PostingStore
	Archive  BlobStore
	Detector ChallengeDetector
	IDs      IDGenerator
	Clock    Clock
	Pause    PauseFunc
}

// Engine runs the acquisition loop: listing pages, then one detail fetch and
// insert per posting. It is strictly sequential.
type Engine struct {
	cfg    EngineConfig
	deps   EngineDeps
	logger *zap.Logger
}

// NewEngine validates deps and builds an Engine.
func NewEngine(cfg EngineConfig, deps EngineDeps, logger *zap.Logger) (*Engine, error) {
	if deps.Fetcher == nil || deps.Listing == nil || deps.Detail == nil || deps.Store == nil {
		return nil, errors.New("crawler engine requires fetcher, parsers and store")
	}
	if deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("crawler engine requires id generator and clock")
	}
	if deps.Pause == nil {
		deps.Pause = pacing.Pause
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 50
	}
	if cfg.SessionPrefix == "" {
		cfg.SessionPrefix = "upwork"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, deps: deps, logger: logger}, nil
}

// Crawl searches for query and scrapes up to maxItems postings. The returned
// error is set only for run-level failures; per-item failures are collected
// in CrawlResult.Errors.
func (e *Engine) Crawl(ctx context.Context, query string, maxItems int) (CrawlResult, error) {
	result := CrawlResult{Query: query, Errors: []string{}}
	if maxItems <= 0 {
		return result, fmt.Errorf("max items must be > 0, got %d", maxItems)
	}
	err := e.withSession(ctx, func(sessionID string) error {
		urls := e.collectURLs(ctx, sessionID, query, maxItems, &result)
		result.Discovered = len(urls)
		if len(urls) == 0 {
			result.Errors = append(result.Errors, "No job URLs found in search results")
			return nil
		}
		if len(urls) > maxItems {
			urls = urls[:maxItems]
		}
		e.scrapeAll(ctx, sessionID, urls, &result)
		return nil
	})
	e.finish(&result, err)
	return result, err
}

// ScrapeURLs runs the detail loop over an explicit list of posting URLs.
func (e *Engine) ScrapeURLs(ctx context.Context, urls []string) (CrawlResult, error) {
	result := CrawlResult{Errors: []string{}, Discovered: len(urls)}
	if len(urls) == 0 {
		return result, errors.New("at least one url is required")
	}
	err := e.withSession(ctx, func(sessionID string) error {
		e.scrapeAll(ctx, sessionID, urls, &result)
		return nil
	})
	e.finish(&result, err)
	return result, err
}

// withSession creates a fetcher session, runs fn and always destroys the
// session afterwards, including when creation itself failed.
func (e *Engine) withSession(ctx context.Context, fn func(sessionID string) error) error {
	sessionID := fmt.Sprintf("%s-%d", e.cfg.SessionPrefix, e.deps.Clock.Now().UnixMilli())
	defer e.destroySession(ctx, sessionID)

	if err := e.deps.Fetcher.CreateSession(ctx, sessionID); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	e.logger.Info("crawl session created", zap.String("session", sessionID))
	return fn(sessionID)
}

func (e *Engine) destroySession(ctx context.Context, sessionID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCleanupTimeout)
	defer cancel()
	if err := e.deps.Fetcher.DestroySession(cleanupCtx, sessionID); err != nil {
		e.logger.Warn("crawl session cleanup failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	e.logger.Debug("crawl session destroyed", zap.String("session", sessionID))
}

func (e *Engine) collectURLs(ctx context.Context, sessionID, query string, maxItems int, result *CrawlResult) []string {
	var (
		urls  []string
		seen  = make(map[string]struct{})
		pages = PagesFor(maxItems, e.cfg.PerPage)
	)
	for page := 1; page <= pages; page++ {
		searchURL := SearchURL(e.cfg.BaseURL, e.cfg.SearchPath, query, page, e.cfg.PerPage)
		body, err := e.fetch(ctx, sessionID, searchURL, "listing")
		if err != nil {
			e.logger.Warn("listing fetch failed", zap.Int("page", page), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to fetch page %d: %v", page, err))
			break
		}
		found, err := e.deps.Listing.ParseListing(body)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to fetch page %d: %v", page, err))
			break
		}
		added := 0
		for _, u := range found {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
			added++
		}
		e.logger.Info("listing page collected",
			zap.Int("page", page),
			zap.Int("pages", pages),
			zap.Int("new_urls", added),
			zap.Int("total_urls", len(urls)),
		)
		if len(urls) >= maxItems || added == 0 || page == pages {
			break
		}
		e.deps.Pause(ctx, e.cfg.PageDelay.Next())
		if ctx.Err() != nil {
			break
		}
	}
	return urls
}

func (e *Engine) scrapeAll(ctx context.Context, sessionID string, urls []string, result *CrawlResult) {
	absentBudgets := 0
	for i, u := range urls {
		stored, err := e.scrapeOne(ctx, sessionID, u)
		switch {
		case errors.Is(err, ErrAlreadyKnown):
			result.Known++
			metrics.ObservePosting("known")
			e.logger.Debug("posting already known", zap.String("url", u))
		case err != nil:
			result.Errors = append(result.Errors, err.Error())
			metrics.ObservePosting("failed")
			e.logger.Warn("posting scrape failed", zap.String("url", u), zap.Error(err))
		default:
			result.Scraped++
			if stored.Budget.IsAbsent() {
				absentBudgets++
			}
			metrics.ObservePosting("stored")
			e.logger.Info("posting stored",
				zap.Int("index", i+1),
				zap.Int("total", len(urls)),
				zap.String("source_id", stored.SourceID),
			)
		}
		if i == len(urls)-1 {
			break
		}
		e.deps.Pause(ctx, e.cfg.DetailDelay.Next())
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("crawl interrupted: %v", ctx.Err()))
			break
		}
	}
	e.recordBudgetGap(absentBudgets, result)
}

// itemError is a per-posting failure; its message is recorded in the run result.
type itemError struct {
	stage string
	url   string
	err   error
}

func (e *itemError) Error() string {
	return fmt.Sprintf("Failed to %s %s: %v", e.stage, e.url, e.err)
}

func (e *itemError) Unwrap() error { return e.err }

// scrapeOne returns the stored posting, ErrAlreadyKnown, or an *itemError.
func (e *Engine) scrapeOne(ctx context.Context, sessionID, postingURL string) (Posting, error) {
	body, err := e.fetch(ctx, sessionID, postingURL, "detail")
	if err != nil {
		return Posting{}, &itemError{stage: "scrape", url: postingURL, err: err}
	}
	details, err := e.deps.Detail.ParseDetail(body)
	if err != nil {
		return Posting{}, &itemError{stage: "scrape", url: postingURL, err: err}
	}
	id, err := e.deps.IDs.NewID()
	if err != nil {
		return Posting{}, &itemError{stage: "insert", url: postingURL, err: err}
	}
	now := e.deps.Clock.Now()
	posting := Posting{
		ID:             id,
		SourceID:       SourceID(postingURL),
		URL:            postingURL,
		PostingDetails: details,
		PostedAt:       now,
		FetchedAt:      now,
	}
	e.archive(ctx, posting.SourceID, now, body)

	if err := e.deps.Store.InsertPosting(ctx, posting); err != nil {
		if errors.Is(err, ErrAlreadyKnown) {
			return Posting{}, ErrAlreadyKnown
		}
		return Posting{}, &itemError{stage: "insert", url: postingURL, err: err}
	}
	return posting, nil
}

func (e *Engine) fetch(ctx context.Context, sessionID, target, kind string) (string, error) {
	resp, err := e.deps.Fetcher.Fetch(ctx, FetchRequest{
		URL:       target,
		SessionID: sessionID,
		Timeout:   e.cfg.FetchTimeout,
	})
	if err != nil {
		metrics.ObserveFetch(kind, "error", 0)
		return "", err
	}
	if e.deps.Detector != nil && e.deps.Detector.IsChallenge(resp) {
		metrics.ObserveFetch(kind, "challenge", resp.Duration)
		return "", ErrChallengePage
	}
	metrics.ObserveFetch(kind, "ok", resp.Duration)
	return resp.Body, nil
}

func (e *Engine) archive(ctx context.Context, sourceID string, at time.Time, body string) {
	if e.deps.Archive == nil {
		return
	}
	path := archivePath(e.cfg.ArchivePrefix, sourceID, at.Unix())
	if _, err := e.deps.Archive.PutObject(ctx, path, archiveContentType, []byte(body)); err != nil {
		e.logger.Warn("page archive failed", zap.String("path", path), zap.Error(err))
	}
}

func (e *Engine) recordBudgetGap(absent int, result *CrawlResult) {
	if result.Scraped < minPostingsForBudgetSignal {
		return
	}
	ratio := float64(absent) / float64(result.Scraped)
	result.BudgetGapRatio = ratio
	metrics.SetNullBudgetRatio(ratio)
	if e.cfg.NullBudgetAlertRatio > 0 && ratio > e.cfg.NullBudgetAlertRatio {
		e.logger.Warn("budget extraction degraded",
			zap.Float64("null_budget_ratio", ratio),
			zap.Float64("alert_ratio", e.cfg.NullBudgetAlertRatio),
			zap.Int("stored", result.Scraped),
		)
	}
}

func (e *Engine) finish(result *CrawlResult, err error) {
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Success = result.Scraped > 0
	status := "success"
	if !result.Success {
		status = "failure"
	}
	metrics.ObserveRun("crawl", status)
	e.logger.Info("crawl run finished",
		zap.String("query", result.Query),
		zap.Int("discovered", result.Discovered),
		zap.Int("scraped", result.Scraped),
		zap.Int("known", result.Known),
		zap.Int("errors", len(result.Errors)),
		zap.Bool("success", result.Success),
	)
}
