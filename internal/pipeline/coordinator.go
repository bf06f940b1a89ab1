// Package pipeline scores every scraped posting that has no processed result
// yet: normalize, embed, compare with the profile, score, alert, store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/embedding"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/metrics"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/normalize"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/notifier"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/policy/pacing"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/scoring"
)

// Alerter delivers alerts for scored postings.
type Alerter interface {
	ShouldAlert(score float64) bool
	Notify(ctx context.Context, alert notifier.Alert) int
}

// Config controls a processing run.
type Config struct {
	ItemDelay time.Duration
	// BatchLimit caps postings per run; 0 means no limit.
	BatchLimit int
}

// Deps are the collaborators of a Coordinator. Alerter may be nil.
type Deps struct {
	Postings crawler.PostingStore
	Results  crawler.ResultStore
	Profiles crawler.ProfileStore
	Embedder embedding.Embedder
	Alerter  Alerter
	Clock    crawler.Clock
	Pause    crawler.PauseFunc
}

// Result summarizes one processing run.
type Result struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Alerts    int      `json:"alerts"`
	Errors    []string `json:"errors"`
}

// Coordinator runs the scoring pipeline sequentially.
type Coordinator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates deps and builds a Coordinator.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Coordinator, error) {
	if deps.Postings == nil || deps.Results == nil || deps.Profiles == nil {
		return nil, errors.New("pipeline requires posting, result and profile stores")
	}
	if deps.Embedder == nil || deps.Clock == nil {
		return nil, errors.New("pipeline requires an embedder and a clock")
	}
	if deps.Pause == nil {
		deps.Pause = pacing.Pause
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{cfg: cfg, deps: deps, logger: logger}, nil
}

// runState is owned by one Run call and discarded at its end.
type runState struct {
	profile       crawler.Profile
	profileVector []float32
}

// Run processes every posting that has a description and no result. The
// profile is embedded once per run. A missing profile or a failed profile
// embedding aborts the run; per-item failures are recorded and skipped.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	result := Result{Errors: []string{}}

	state, err := c.prepare(ctx)
	if err != nil {
		metrics.ObserveRun("process", "failure")
		return result, err
	}

	postings, err := c.deps.Postings.ListUnprocessed(ctx, c.cfg.BatchLimit)
	if err != nil {
		metrics.ObserveRun("process", "failure")
		return result, fmt.Errorf("list unprocessed postings: %w", err)
	}
	c.logger.Info("processing run started", zap.Int("pending", len(postings)))

	for i, posting := range postings {
		c.processOne(ctx, state, posting, &result)
		if i == len(postings)-1 {
			break
		}
		c.deps.Pause(ctx, c.cfg.ItemDelay)
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("processing interrupted: %v", ctx.Err()))
			break
		}
	}

	status := "success"
	if result.Failed > 0 && result.Processed == 0 {
		status = "failure"
	}
	metrics.ObserveRun("process", status)
	c.logger.Info("processing run finished",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("alerts", result.Alerts),
	)
	return result, nil
}

func (c *Coordinator) prepare(ctx context.Context) (runState, error) {
	profile, err := c.deps.Profiles.GetProfile(ctx)
	if errors.Is(err, crawler.ErrNotFound) {
		return runState{}, crawler.ErrProfileMissing
	}
	if err != nil {
		return runState{}, fmt.Errorf("load profile: %w", err)
	}
	if len(profile.Skills) == 0 {
		return runState{}, crawler.ErrProfileMissing
	}
	vec, err := c.deps.Embedder.Embed(ctx, profile.EmbeddingText())
	if err != nil {
		return runState{}, fmt.Errorf("embed profile: %w", err)
	}
	c.logger.Info("profile embedded", zap.Int("skills", len(profile.Skills)), zap.Int("dimensions", len(vec)))
	return runState{profile: profile, profileVector: vec}, nil
}

func (c *Coordinator) processOne(ctx context.Context, state runState, posting crawler.Posting, result *Result) {
	processed, err := c.score(ctx, state, posting)
	if err != nil {
		c.fail(posting, err, result)
		return
	}

	if c.deps.Alerter != nil && c.deps.Alerter.ShouldAlert(processed.RelevanceScore) {
		alert := notifier.NewAlert(posting, processed.Scores, processed.ProcessedAt)
		if c.deps.Alerter.Notify(ctx, alert) > 0 {
			result.Alerts++
		}
	}

	if err := c.deps.Results.InsertResult(ctx, processed); err != nil {
		if errors.Is(err, crawler.ErrAlreadyKnown) {
			result.Skipped++
			metrics.ObserveProcessed("skipped", 0)
			c.logger.Debug("posting already processed", zap.String("source_id", posting.SourceID))
			return
		}
		c.fail(posting, fmt.Errorf("insert result: %w", err), result)
		return
	}
	result.Processed++
	metrics.ObserveProcessed("success", processed.RelevanceScore)
	c.logger.Info("posting scored",
		zap.String("source_id", posting.SourceID),
		zap.Float64("similarity", processed.EmbeddingSimilarity),
		zap.Float64("budget", processed.BudgetScore),
		zap.Float64("client", processed.ClientScore),
		zap.Float64("skills", processed.SkillsScore),
		zap.Float64("relevance", processed.RelevanceScore),
	)
}

func (c *Coordinator) score(ctx context.Context, state runState, posting crawler.Posting) (crawler.ProcessedResult, error) {
	clean := normalize.Clean(posting.Description)
	vec, err := c.deps.Embedder.Embed(ctx, clean)
	if err != nil {
		return crawler.ProcessedResult{}, fmt.Errorf("embed posting: %w", err)
	}
	similarity, err := scoring.Similarity(vec, state.profileVector)
	if err != nil {
		return crawler.ProcessedResult{}, fmt.Errorf("similarity: %w", err)
	}
	now := c.deps.Clock.Now()
	return crawler.ProcessedResult{
		ID:              posting.ID,
		CleanText:       clean,
		ExtractedSkills: normalize.ExtractSkills(clean),
		Metadata: crawler.ProcessingMetadata{
			OriginalDescriptionLength: len([]rune(posting.Description)),
			ProcessingTimestamp:       now,
			Model:                     c.deps.Embedder.Model(),
		},
		Embedding:   vec,
		Scores:      scoring.Score(posting, similarity, state.profile),
		ProcessedAt: now,
	}, nil
}

func (c *Coordinator) fail(posting crawler.Posting, err error, result *Result) {
	result.Failed++
	result.Errors = append(result.Errors, fmt.Sprintf("Failed to process %s: %v", posting.SourceID, err))
	metrics.ObserveProcessed("failed", 0)
	c.logger.Warn("posting processing failed", zap.String("source_id", posting.SourceID), zap.Error(err))
}
