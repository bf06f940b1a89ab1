// Package scheduler triggers pipeline runs on a cron spec.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/dispatcher"
)

// Runner performs one crawl+process run with default parameters.
type Runner interface {
	Run(ctx context.Context, query string, maxItems int) (dispatcher.Summary, error)
}

// Scheduler wraps robfig/cron and manages the run loop.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string
	logger *zap.Logger
}

// New creates a Scheduler firing on spec, e.g. "@every 6h".
func New(spec string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler requires a runner")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner: runner,
		spec:   spec,
		logger: logger,
	}, nil
}

// Start registers the run and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("cron add func: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop halts the scheduler and waits for an active tick to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Tick performs one scheduled run. A run already active (for example one
// started over HTTP) makes the tick a no-op.
func (s *Scheduler) Tick(ctx context.Context) {
	summary, err := s.runner.Run(ctx, "", 0)
	switch {
	case errors.Is(err, dispatcher.ErrBusy):
		s.logger.Info("scheduled run skipped; a run is already active")
	case err != nil:
		s.logger.Error("scheduled run failed", zap.Error(err))
	default:
		s.logger.Info("scheduled run completed",
			zap.String("query", summary.Query),
			zap.Int("scraped", summary.Scraped.JobsScraped),
			zap.Int("processed", summary.Processed.Success),
		)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
