// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/api"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/clock/system"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/config"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/dispatcher"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/embedding"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/extract"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/fetcher/bypass"
	collyfetcher "github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/fetcher/colly"
	headlessfetcher "github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/fetcher/headless"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/hash/sha256"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/headless/detector"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/id/uuid"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/logging"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/metrics"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/notifier"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/notifier/telegram"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/pipeline"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/policy/pacing"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/policy/ratelimit"
	memorypublisher "github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/publisher/memory"
	gcppublisher "github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/publisher/pubsub"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/scheduler"
	gcsstorage "github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/storage/gcs"
	localstorage "github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/storage/local"
	memoryStorage "github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/storage/memory"
	pgstore "github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// stores groups the three persistence roles, served by one backend.
type stores struct {
	postings crawler.PostingStore
	results  crawler.ResultStore
	profiles crawler.ProfileStore
}

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	scheduler *scheduler.Scheduler

	pool         *pgxpool.Pool
	redisClient  *redis.Client
	pubsubClient *pubsub.Client
	pubsubTopic  *pubsub.Topic
	storage      *storage.Client
	headless     *headlessfetcher.Fetcher
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Only non-sensitive fields are logged.
	type SanitizedConfig struct {
		ServerPort int    `json:"server_port"`
		Fetcher    string `json:"fetcher"`
		Archive    string `json:"archive"`
		Database   bool   `json:"database"`
		Schedule   bool   `json:"schedule"`
	}
	safeCfg := SanitizedConfig{
		ServerPort: cfg.Server.Port,
		Fetcher:    cfg.Crawler.Fetcher,
		Archive:    cfg.Archive.Backend,
		Database:   cfg.Database.DSN != "",
		Schedule:   cfg.Schedule.Enabled,
	}
	logger.Info("creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies")
	clock := system.New()
	ids := uuid.NewUUIDGenerator()

	st, err := a.setupStores(ctx)
	if err != nil {
		return err
	}
	archive, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}
	fetcher, err := a.setupFetcher()
	if err != nil {
		return err
	}
	engine, err := a.setupEngine(fetcher, archive, st.postings, ids, clock)
	if err != nil {
		return err
	}

	alerts := memorypublisher.New(a.cfg.Notify.RecentCapacity)
	recipients := append(a.setupRecipients(ctx), alerts)
	alerter := notifier.New(a.cfg.Notify.ScoreThreshold, recipients, a.logger.Named("notifier"))

	var processor dispatcher.Processor
	coordinator, err := a.setupPipeline(ctx, st, alerter, clock)
	if err != nil {
		a.logger.Warn("processing disabled", zap.Error(err))
	} else {
		processor = coordinator
	}

	a.dispatch, err = dispatcher.New(dispatcher.Config{
		DefaultQueries: a.cfg.Crawler.DefaultQueries,
		MaxJobs:        a.cfg.Crawler.MaxJobsPerRun,
	}, engine, processor, clock, a.logger.Named("dispatcher"))
	if err != nil {
		return fmt.Errorf("dispatcher init failed: %w", err)
	}

	if a.cfg.Schedule.Enabled {
		a.scheduler, err = scheduler.New(a.cfg.Schedule.Spec, a.dispatch, a.logger.Named("scheduler"))
		if err != nil {
			return fmt.Errorf("scheduler init failed: %w", err)
		}
	}

	var health crawler.HealthChecker
	if hc, ok := fetcher.(crawler.HealthChecker); ok {
		health = hc
	}
	a.apiServer = api.NewServer(api.Options{
		CronSecret:       a.cfg.Auth.CronSecret,
		TrustedUserAgent: a.cfg.Auth.TrustedUserAgent,
		APIKey:           a.cfg.Auth.APIKey,
		RequestTimeout:   time.Duration(a.cfg.Server.RequestTimeoutSeconds) * time.Second,
	}, api.Deps{
		Runner:   a.dispatch,
		Postings: st.postings,
		Results:  st.results,
		Profiles: st.profiles,
		Alerts:   alerts,
		Health:   health,
		IDs:      ids,
		Clock:    clock,
	}, a.logger.Named("api"))
	return nil
}

func (a *App) setupStores(ctx context.Context) (stores, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory stores")
		mem := memoryStorage.NewJobStore()
		return stores{postings: mem, results: mem, profiles: mem}, nil
	}
	pool, err := pgstore.NewPool(ctx, poolConfig(a.cfg.Database))
	if err != nil {
		return stores{}, fmt.Errorf("postgres init failed: %w", err)
	}
	a.pool = pool
	if a.cfg.Database.Migrate {
		if err := pgstore.Migrate(ctx, pool); err != nil {
			return stores{}, fmt.Errorf("postgres migrate failed: %w", err)
		}
		a.logger.Info("database schema applied")
	}
	store, err := pgstore.NewStore(pool)
	if err != nil {
		return stores{}, fmt.Errorf("postgres store init failed: %w", err)
	}
	a.logger.Info("postgres stores initialized", zap.Int32("max_conns", a.cfg.Database.MaxConns))
	return stores{postings: store, results: store, profiles: store}, nil
}

func (a *App) setupArchive(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		a.logger.Info("using GCS archive backend", zap.String("bucket", a.cfg.Archive.Bucket))
		client, err := gcsstorage.NewClient(ctx, a.cfg.Archive.Bucket, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return store, nil
	case config.ArchiveLocal:
		a.logger.Info("using local archive backend", zap.String("path", a.cfg.Archive.BaseDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	case config.ArchiveMemory:
		a.logger.Info("using in-memory archive backend")
		return memoryStorage.NewBlobStore(), nil
	default:
		a.logger.Info("page archive disabled")
		return nil, nil
	}
}

func (a *App) setupFetcher() (crawler.Fetcher, error) {
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: a.cfg.Crawler.RequestsPerSecond,
		Burst:             a.cfg.Crawler.Burst,
	})
	a.logger.Info("rate limiter configured",
		zap.Float64("requests_per_second", a.cfg.Crawler.RequestsPerSecond),
		zap.Int("burst", a.cfg.Crawler.Burst),
	)

	switch a.cfg.Crawler.Fetcher {
	case config.FetcherDirect:
		a.logger.Info("using direct fetcher", zap.String("user_agent", a.cfg.Crawler.UserAgent))
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: a.cfg.Crawler.UserAgent,
			Timeout:   config.Millis(a.cfg.Bypass.MaxTimeoutMs),
		}, limiter), nil
	case config.FetcherHeadless:
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSeconds) * time.Second,
			SettleDelay:       config.Millis(a.cfg.Headless.SettleDelayMs),
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = f
		a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		return &limitedFetcher{Fetcher: f, limiter: limiter}, nil
	default:
		client, err := bypass.New(bypass.Config{
			BaseURL:    a.cfg.Bypass.URL,
			MaxTimeout: config.Millis(a.cfg.Bypass.MaxTimeoutMs),
			MaxRetries: a.cfg.Bypass.MaxRetries,
			Backoff: pacing.Backoff{
				Base:           config.Millis(a.cfg.Bypass.BackoffBaseMs),
				Max:            config.Millis(a.cfg.Bypass.BackoffMaxMs),
				JitterFraction: pacing.DefaultBackoff().JitterFraction,
			},
			Pause: pacing.Pause,
		}, limiter, a.logger.Named("bypass"))
		if err != nil {
			return nil, fmt.Errorf("bypass client init failed: %w", err)
		}
		a.logger.Info("using bypass fetcher", zap.String("url", a.cfg.Bypass.URL))
		return client, nil
	}
}

func (a *App) setupEngine(
	fetcher crawler.Fetcher,
	archive crawler.BlobStore,
	postings crawler.PostingStore,
	ids crawler.IDGenerator,
	clock crawler.Clock,
) (*crawler.Engine, error) {
	listingCfg := extract.DefaultListingConfig()
	listingCfg.BaseURL = a.cfg.Crawler.BaseURL
	listing, err := extract.NewListingExtractor(listingCfg)
	if err != nil {
		return nil, fmt.Errorf("listing extractor init failed: %w", err)
	}
	fetchTimeout := config.Millis(a.cfg.Bypass.MaxTimeoutMs)
	if a.cfg.Crawler.Fetcher == config.FetcherHeadless {
		fetchTimeout = time.Duration(a.cfg.Headless.NavTimeoutSeconds) * time.Second
	}
	engine, err := crawler.NewEngine(crawler.EngineConfig{
		BaseURL:    a.cfg.Crawler.BaseURL,
		SearchPath: a.cfg.Crawler.SearchPath,
		PerPage:    a.cfg.Crawler.PerPage,
		PageDelay: pacing.Range{
			Min: config.Millis(a.cfg.Crawler.PageDelayMinMs),
			Max: config.Millis(a.cfg.Crawler.PageDelayMaxMs),
		},
		DetailDelay: pacing.Range{
			Min: config.Millis(a.cfg.Crawler.JobDelayMinMs),
			Max: config.Millis(a.cfg.Crawler.JobDelayMaxMs),
		},
		FetchTimeout:         fetchTimeout,
		ArchivePrefix:        a.cfg.Archive.Prefix,
		NullBudgetAlertRatio: a.cfg.Crawler.NullBudgetAlertRatio,
	}, crawler.EngineDeps{
		Fetcher:  fetcher,
		Listing:  listing,
		Detail:   extract.NewDetailExtractor(),
		Store:    postings,
		Archive:  archive,
		Detector: detector.NewHeuristic(a.cfg.Crawler.ChallengeThreshold),
		IDs:      ids,
		Clock:    clock,
		Pause:    pacing.Pause,
	}, a.logger.Named("crawl"))
	if err != nil {
		return nil, fmt.Errorf("crawl engine init failed: %w", err)
	}
	return engine, nil
}

// setupRecipients builds the external alert channels. Missing credentials
// disable only the affected channel.
func (a *App) setupRecipients(ctx context.Context) []notifier.Recipient {
	var out []notifier.Recipient

	chats := telegram.ParseChatIDs(a.cfg.Telegram.ChatIDs)
	switch {
	case a.cfg.Telegram.BotToken == "" || len(chats) == 0:
		a.logger.Warn("telegram credentials missing, telegram alerts disabled")
	default:
		bot, err := telegram.NewBot(a.cfg.Telegram.BotToken)
		if err != nil {
			a.logger.Warn("telegram bot init failed, telegram alerts disabled", zap.Error(err))
			break
		}
		recipients, err := telegram.Recipients(bot, chats)
		if err != nil {
			a.logger.Warn("telegram chat ids invalid, telegram alerts disabled", zap.Error(err))
			break
		}
		a.logger.Info("telegram alerts enabled", zap.Int("chats", len(recipients)))
		out = append(out, recipients...)
	}

	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.Topic == "" {
		a.logger.Warn("no Pub/Sub topic configured, pubsub alerts disabled")
		return out
	}
	client, err := gcppublisher.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		a.logger.Warn("pubsub client init failed, pubsub alerts disabled", zap.Error(err))
		return out
	}
	a.pubsubClient = client
	a.pubsubTopic = client.Topic(a.cfg.PubSub.Topic)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return append(out, gcppublisher.New(gcppublisher.WrapTopic(a.pubsubTopic)))
}

func (a *App) setupPipeline(
	ctx context.Context,
	st stores,
	alerter pipeline.Alerter,
	clock crawler.Clock,
) (*pipeline.Coordinator, error) {
	if a.cfg.Embedding.URL == "" {
		return nil, errors.New("embedding.url is not set")
	}
	client, err := embedding.New(embedding.Config{
		URL:        a.cfg.Embedding.URL,
		APIToken:   a.cfg.Embedding.APIToken,
		Model:      a.cfg.Embedding.Model,
		Dimensions: a.cfg.Embedding.Dimensions,
		Timeout:    time.Duration(a.cfg.Embedding.TimeoutSeconds) * time.Second,
		MaxRetries: a.cfg.Embedding.MaxRetries,
		Pause:      pacing.Pause,
	}, a.logger.Named("embedding"))
	if err != nil {
		return nil, fmt.Errorf("embedding client init failed: %w", err)
	}

	var embedder embedding.Embedder = client
	if a.cfg.Redis.URL != "" {
		rdb, err := embedding.NewRedisClient(ctx, a.cfg.Redis.URL)
		if err != nil {
			a.logger.Warn("redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			a.redisClient = rdb
			embedder = embedding.NewCachedEmbedder(
				client,
				embedding.NewRedisCache(rdb),
				sha256.New(),
				a.cfg.Embedding.Dimensions,
				time.Duration(a.cfg.Embedding.CacheTTLHours)*time.Hour,
				a.logger.Named("embedding_cache"),
			)
			a.logger.Info("embedding cache enabled")
		}
	}

	coordinator, err := pipeline.New(pipeline.Config{
		ItemDelay:  config.Millis(a.cfg.Pipeline.ItemDelayMs),
		BatchLimit: a.cfg.Pipeline.BatchLimit,
	}, pipeline.Deps{
		Postings: st.postings,
		Results:  st.results,
		Profiles: st.profiles,
		Embedder: embedder,
		Alerter:  alerter,
		Clock:    clock,
		Pause:    pacing.Pause,
	}, a.logger.Named("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	return coordinator, nil
}

// RunOnce performs a single crawl and processing run.
func (a *App) RunOnce(ctx context.Context, query string, maxItems int) (dispatcher.Summary, error) {
	summary, err := a.dispatch.Run(ctx, query, maxItems)
	if err != nil {
		return summary, fmt.Errorf("pipeline run: %w", err)
	}
	return summary, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		a.logger.Info("scheduler started", zap.String("spec", a.cfg.Schedule.Spec))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close()
}

// Close gracefully shuts down the application.
func (a *App) Close() error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// Migrate applies the database schema and returns.
func Migrate(ctx context.Context, cfg *config.Config) error {
	pool, err := pgstore.NewPool(ctx, poolConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	defer pool.Close()
	if err := pgstore.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrate failed: %w", err)
	}
	return nil
}

func poolConfig(db config.DatabaseConfig) pgstore.PoolConfig {
	return pgstore.PoolConfig{
		DSN:             db.DSN,
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
	}
}
