// Package dispatcher runs the crawl-then-process sequence, one run at a time
// per process.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/pipeline"
)

// ErrBusy is returned when a run is requested while another is active.
var ErrBusy = errors.New("run already in progress")

// Crawler acquires postings.
type Crawler interface {
	Crawl(ctx context.Context, query string, maxItems int) (crawler.CrawlResult, error)
	ScrapeURLs(ctx context.Context, urls []string) (crawler.CrawlResult, error)
}

// Processor scores unprocessed postings.
type Processor interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// Config holds run defaults.
type Config struct {
	DefaultQueries []string
	MaxJobs        int
	// Pick selects the index of the default query; random when nil.
	Pick func(n int) int
}

// Summary is the outcome of one run.
type Summary struct {
	Success   bool             `json:"success"`
	Timestamp time.Time        `json:"timestamp"`
	Duration  string           `json:"duration"`
	Query     string           `json:"query,omitempty"`
	Scraped   ScrapedSummary   `json:"scraped"`
	Processed ProcessedSummary `json:"processed"`
	Error     string           `json:"error,omitempty"`
}

// ScrapedSummary reports the crawl half of a run.
type ScrapedSummary struct {
	JobsScraped int `json:"jobsScraped"`
	Errors      int `json:"errors"`
}

// ProcessedSummary reports the processing half of a run.
type ProcessedSummary struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Alerts  int `json:"alerts"`
}

// Dispatcher guards and sequences runs.
type Dispatcher struct {
	cfg       Config
	crawler   Crawler
	processor Processor
	clock     crawler.Clock
	running   atomic.Bool
	logger    *zap.Logger
}

// New creates a Dispatcher. processor may be nil when processing is not
// configured; runs then fail after the crawl.
func New(cfg Config, c Crawler, processor Processor, clock crawler.Clock, logger *zap.Logger) (*Dispatcher, error) {
	if c == nil || clock == nil {
		return nil, errors.New("dispatcher requires a crawler and a clock")
	}
	if len(cfg.DefaultQueries) == 0 {
		cfg.DefaultQueries = []string{"nextjs react"}
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 20
	}
	if cfg.Pick == nil {
		cfg.Pick = rand.IntN
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, crawler: c, processor: processor, clock: clock, logger: logger}, nil
}

// Busy reports whether a run is active.
func (d *Dispatcher) Busy() bool {
	return d.running.Load()
}

// Run crawls query (a random default when empty) for up to maxItems
// postings (the configured default when <= 0), then processes. It returns
// ErrBusy without doing anything when another run is active.
func (d *Dispatcher) Run(ctx context.Context, query string, maxItems int) (Summary, error) {
	if query = strings.TrimSpace(query); query == "" {
		query = d.defaultQuery()
	}
	if maxItems <= 0 {
		maxItems = d.cfg.MaxJobs
	}
	return d.guarded(ctx, query, func(ctx context.Context) (crawler.CrawlResult, error) {
		return d.crawler.Crawl(ctx, query, maxItems)
	})
}

// RunURLs scrapes an explicit URL list, then processes.
func (d *Dispatcher) RunURLs(ctx context.Context, urls []string) (Summary, error) {
	return d.guarded(ctx, "", func(ctx context.Context) (crawler.CrawlResult, error) {
		return d.crawler.ScrapeURLs(ctx, urls)
	})
}

// Process runs only the processing half.
func (d *Dispatcher) Process(ctx context.Context) (Summary, error) {
	return d.guarded(ctx, "", nil)
}

func (d *Dispatcher) guarded(
	ctx context.Context,
	query string,
	acquire func(context.Context) (crawler.CrawlResult, error),
) (Summary, error) {
	if !d.running.CompareAndSwap(false, true) {
		return Summary{}, ErrBusy
	}
	defer d.running.Store(false)

	start := d.clock.Now()
	summary := Summary{Query: query}
	err := d.run(ctx, acquire, &summary)
	end := d.clock.Now()
	summary.Timestamp = end.UTC()
	summary.Duration = fmt.Sprintf("%.2fs", end.Sub(start).Seconds())
	if err != nil {
		summary.Error = err.Error()
		d.logger.Error("pipeline run failed", zap.String("query", query), zap.Error(err))
		return summary, err
	}
	summary.Success = true
	d.logger.Info("pipeline run completed",
		zap.String("query", query),
		zap.String("duration", summary.Duration),
		zap.Int("scraped", summary.Scraped.JobsScraped),
		zap.Int("processed", summary.Processed.Success),
		zap.Int("failed", summary.Processed.Failed),
	)
	return summary, nil
}

func (d *Dispatcher) run(
	ctx context.Context,
	acquire func(context.Context) (crawler.CrawlResult, error),
	summary *Summary,
) error {
	if acquire != nil {
		crawled, err := acquire(ctx)
		if err != nil {
			// Processing still runs after a failed crawl.
			d.logger.Warn("crawl finished with error", zap.Error(err))
		}
		summary.Scraped = ScrapedSummary{JobsScraped: crawled.Scraped, Errors: len(crawled.Errors)}
	}
	if d.processor == nil {
		return errors.New("processing is not configured")
	}
	processed, err := d.processor.Run(ctx)
	summary.Processed = ProcessedSummary{Success: processed.Processed, Failed: processed.Failed, Alerts: processed.Alerts}
	if err != nil {
		return fmt.Errorf("process postings: %w", err)
	}
	return nil
}

func (d *Dispatcher) defaultQuery() string {
	q := d.cfg.DefaultQueries[d.cfg.Pick(len(d.cfg.DefaultQueries))]
	return strings.TrimSpace(q)
}
