package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/handlers"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/scenarios"
	"github.com/ternarybob/uiflow/internal/services/browser"
	"github.com/ternarybob/uiflow/internal/services/events"
	"github.com/ternarybob/uiflow/internal/services/executor"
	"github.com/ternarybob/uiflow/internal/services/scheduler"
	"github.com/ternarybob/uiflow/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	StorageManager interfaces.StorageManager

	// Services
	EventService     interfaces.EventService
	DriverFactory    interfaces.DriverFactory
	Runner           *executor.Runner
	Catalog          *scenarios.Catalog
	SchedulerService *scheduler.Service

	// HTTP handlers
	WSHandler        *handlers.WebSocketHandler
	EventSubscriber  *handlers.EventSubscriber
	ReportHandler    *handlers.ReportHandler
	ScenarioHandler  *handlers.ScenarioHandler
	SchedulerHandler *handlers.SchedulerHandler

	ctx       context.Context
	cancelCtx context.CancelFunc
}

// Option customizes App construction
type Option func(*App)

// WithDriverFactory replaces the chromedp driver factory, e.g. with a scripted fake in tests
func WithDriverFactory(factory interfaces.DriverFactory) Option {
	return func(a *App) { a.DriverFactory = factory }
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger, opts ...Option) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(app)
	}

	if err := app.initDatabase(); err != nil {
		app.cancelCtx()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Int("scenarios", len(app.Catalog.List())).
		Bool("headless", cfg.Browser.Headless).
		Str("results_dir", cfg.Reports.Dir).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices initializes the engine services in dependency order
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	if a.DriverFactory == nil {
		a.DriverFactory = browser.NewFactory(browser.OptionsFromConfig(a.Config), a.Logger)
	}

	a.Runner = executor.NewRunner(
		executor.RunnerConfigFromConfig(a.Config),
		a.DriverFactory,
		a.StorageManager.ReportStorage(),
		a.EventService,
		a.Logger,
	)

	// A broken scenario file is reported but does not stop the others from loading
	catalog, err := scenarios.NewCatalog(a.Config.Scenarios.Dir, a.Config.Variables, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Str("dir", a.Config.Scenarios.Dir).Msg("Some scenario files failed to load")
	}
	a.Catalog = catalog

	a.SchedulerService = scheduler.NewService(a.Logger)
	if a.Config.Scheduler.Enabled {
		count, err := scheduler.RegisterScenarios(a.SchedulerService, a.Catalog, a.Runner, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to register scheduled scenarios: %w", err)
		}
		a.Logger.Debug().Int("jobs", count).Msg("Scheduled scenarios registered")
	}
	return nil
}

// initHandlers creates the HTTP and WebSocket handlers
func (a *App) initHandlers() {
	a.WSHandler = handlers.NewWebSocketHandler(a.Logger)
	a.EventSubscriber = handlers.NewEventSubscriber(a.WSHandler, a.EventService, a.Logger, &a.Config.WebSocket)
	a.ReportHandler = handlers.NewReportHandler(a.StorageManager.ReportStorage(), a.Logger)
	a.ScenarioHandler = handlers.NewScenarioHandler(a.ctx, a.Catalog, a.Runner, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
}

// StartScheduler starts cron-driven scenario runs
func (a *App) StartScheduler() error {
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Context is canceled when the application closes; background runs derive from it
func (a *App) Context() context.Context {
	return a.ctx
}

// Close closes all application resources
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SchedulerService != nil && a.SchedulerService.IsRunning() {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Msg("Storage closed")
	}

	return nil
}
