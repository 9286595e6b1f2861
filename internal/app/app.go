package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"NewsRelay/internal/config"
	"NewsRelay/internal/control"
	"NewsRelay/internal/coordinator"
	"NewsRelay/internal/dedup"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/fetcher"
	"NewsRelay/internal/infrastructure/article"
	"NewsRelay/internal/infrastructure/feed"
	"NewsRelay/internal/infrastructure/scheduler"
	"NewsRelay/internal/infrastructure/storage"
	"NewsRelay/internal/infrastructure/telegram"
	"NewsRelay/internal/infrastructure/telegraph"
	"NewsRelay/internal/logging"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/retry"
	"NewsRelay/internal/router"
	"NewsRelay/internal/sources"
	"NewsRelay/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	control   *control.Server
}

// New validates cfg, opens the store and builds every collaborator.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Telegram.BotToken == "" {
		return nil, fmt.Errorf("%w: telegram.botToken is required", domain.ErrConfig)
	}
	loc := cfg.Location()

	registry, err := sources.NewRegistry(cfg.SourceList())
	if err != nil {
		return nil, err
	}
	rt, err := router.New(registry, cfg.ChannelMap(), cfg.DefaultCategory())
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	engine := dedup.NewEngine(store, dedup.Config{
		Threshold:         cfg.Dedup.Similarity,
		HistoryDays:       cfg.Dedup.HistoryDays,
		ExactLookbackDays: cfg.Dedup.ExactLookbackDays,
		Prefixes:          cfg.Dedup.Prefixes,
	}, logging.Component(baseLogger, "dedup"), dedup.WithLocation(loc))

	fetchLogger := logging.Component(baseLogger, "fetcher")
	transport := feed.NewHTTPTransport(nil, cfg.Fetch.UserAgent, cfg.Fetch.MaxBodyBytes).WithLogger(fetchLogger)
	breakers := fetcher.NewBreakers(
		fetcher.WithThreshold(cfg.Fetch.BreakerThreshold),
		fetcher.WithCooldown(cfg.Fetch.BreakerCooldown),
	)
	f := fetcher.New(transport, feed.NewNormalizer(engine.Normalize), breakers, fetcher.Config{
		Timeout: cfg.Fetch.Timeout,
	}, fetchLogger).WithPolicy(retry.Policy{
		MaxRetries: cfg.Fetch.Retries,
		BaseDelay:  cfg.Fetch.BackoffBase,
		MaxDelay:   cfg.Fetch.BackoffMax,
		Logger:     fetchLogger,
	})

	coord := coordinator.New(store, loc, cfg.Scheduler.IntervalHours, logging.Component(baseLogger, "coordinator"))

	bot := telegram.NewClient(telegram.Config{
		BotToken:       cfg.Telegram.BotToken,
		APIBase:        cfg.Telegram.APIBase,
		DisablePreview: cfg.Telegram.DisablePreview,
		Timeout:        cfg.Delivery.Timeout,
	})

	deps := usecase.PipelineDeps{
		Registry:    registry,
		Fetcher:     f,
		Dedup:       engine,
		Router:      rt,
		Coordinator: coord,
		Store:       store,
		Sink:        telegram.NewSink(bot, logging.Component(baseLogger, "telegram")),
		Logger:      logging.Component(baseLogger, "pipeline"),
	}
	if cfg.Telegram.AdminChatID != "" {
		deps.Notifier = telegram.NewNotifier(bot, cfg.Telegram.AdminChatID)
	}
	if cfg.Telegraph.Token != "" {
		deps.Extractor = article.NewExtractor(&http.Client{Timeout: cfg.Delivery.Timeout}, nil)
		deps.Publisher = telegraph.NewClient(telegraph.Config{
			Endpoint:   cfg.Telegraph.Endpoint,
			Token:      cfg.Telegraph.Token,
			AuthorName: cfg.Telegraph.AuthorName,
			AuthorURL:  cfg.Telegraph.AuthorURL,
		})
	}

	pipeline := usecase.NewPipeline(deps, usecase.Options{
		FetchConcurrency:    cfg.Fetch.Concurrency,
		FreshnessDays:       cfg.Dedup.FreshnessDays,
		DeliveryConcurrency: cfg.Delivery.Concurrency,
		DeliveryTimeout:     cfg.Delivery.Timeout,
		DeliveryRetries:     cfg.Delivery.Retries,
		DeliveryBackoff:     cfg.Delivery.BackoffBase,
		DeliveryPause:       cfg.Delivery.Pause,
	})

	var driver ports.Scheduler = scheduler.NewSlotScheduler(loc, cfg.Scheduler.IntervalHours,
		scheduler.WithRunOnStart(cfg.Scheduler.RunOnStart))

	baseLogger.Info("application configured",
		"sources", registry.Len(),
		"categories", registry.Categories(),
		"driver", cfg.Database.Driver,
		"timezone", loc.String(),
		"admin_report", deps.Notifier != nil,
		"telegraph", deps.Publisher != nil)

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(driver, pipeline, logging.Component(baseLogger, "scheduler")),
		control:   control.NewServer(pipeline, cfg.Control.Addr, logging.Component(baseLogger, "control")),
	}, nil
}

// Pipeline exposes the relay use cases to one-shot commands.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// RunOnce performs a single pass; forced passes bypass slot uniqueness.
func (a *Application) RunOnce(ctx context.Context, forced bool) (domain.RunReport, error) {
	return a.pipeline.Run(ctx, forced)
}

// Serve runs the slot scheduler and the control server until ctx is done,
// then stops both. An in-flight run finishes its bookkeeping before the
// scheduler reports stopped.
func (a *Application) Serve(ctx context.Context) error {
	ln, err := a.control.Listen()
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.control.Serve(ln) }()

	if err := a.scheduler.Start(ctx); err != nil {
		_ = a.control.Shutdown(context.Background())
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("relay serving", "control_addr", ln.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		a.logger.Error("control server stopped", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.control.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop control server: %w", err))
	}
	a.logger.Info("relay stopped")
	return errors.Join(append(errs, runErr)...)
}

// Close releases the store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
