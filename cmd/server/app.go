package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/quarryproj/quarry/internal/config"
	"github.com/quarryproj/quarry/internal/events"
	"github.com/quarryproj/quarry/internal/platform/logger"
	"github.com/quarryproj/quarry/internal/platform/postgres"
	"github.com/quarryproj/quarry/internal/platform/redisbus"
	"github.com/quarryproj/quarry/internal/rmi"
	"github.com/quarryproj/quarry/internal/service"
	"github.com/quarryproj/quarry/internal/task"
)

// application holds the composed dependencies of the running server.
type application struct {
	config *config.Config
	logger *slog.Logger

	db     *sql.DB
	busCls func() error

	queue  *task.TaskQueue
	bridge *rmi.Bridge

	repositoryService *service.RepositoryService
}

// newApplication loads configuration and wires every component. The
// task queue and reply consumer are not started yet; run does that.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(logger.Config{Level: cfg.Server.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"concurrency_threshold", cfg.Tasking.ConcurrencyThreshold)

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, appLogger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	redisBus, err := redisbus.Connect(ctx, cfg.Redis.URL, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	registry := task.NewRegistry()
	snapshots := postgres.NewSnapshotStore(db)

	queue := task.NewTaskQueue(task.QueueConfig{
		ConcurrencyThreshold: cfg.Tasking.ConcurrencyThreshold,
		FailureThreshold:     cfg.Tasking.FailureThreshold,
		FailurePolicy:        task.FailurePolicy(cfg.Tasking.FailurePolicy),
		ScheduleThreshold:    cfg.Tasking.ScheduleThreshold,
		DispatchInterval:     cfg.Tasking.DispatchInterval,
	}, registry, snapshots, appLogger)

	bridge := rmi.NewBridge(redisBus, queue, rmi.BridgeConfig{
		DefaultTimeout: cfg.Tasking.ReplyTimeout,
	}, appLogger)

	emitter := events.NewInMemoryEventEmitter(appLogger)
	emitter.RegisterHandler(task.NewEventHandler(queue, appLogger))

	repoStore := postgres.NewRepositoryStore(db)
	syncer := service.NewFeedSyncer(0)
	repoService := service.NewRepositoryService(
		repoStore, emitter, bridge, syncer, cfg.Tasking.ReplyTimeout, appLogger)
	service.RegisterTasks(registry, repoService)

	return &application{
		config:            cfg,
		logger:            appLogger,
		db:                db,
		busCls:            redisBus.Close,
		queue:             queue,
		bridge:            bridge,
		repositoryService: repoService,
	}, nil
}

// run starts the task engine and serves HTTP until shutdown.
func (app *application) run(ctx context.Context) error {
	engineCtx, cancelEngine := context.WithCancel(ctx)
	defer cancelEngine()

	if err := app.queue.Start(engineCtx); err != nil {
		return fmt.Errorf("failed to start task queue: %w", err)
	}
	if err := app.bridge.Start(engineCtx); err != nil {
		app.queue.Stop()
		return fmt.Errorf("failed to start reply consumer: %w", err)
	}

	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup releases the application's resources in reverse startup
// order, so no callable observes a closed bus or database.
func (app *application) cleanup() {
	app.bridge.Stop()
	app.queue.Stop()

	if app.busCls != nil {
		if err := app.busCls(); err != nil {
			app.logger.Error("failed to close message bus", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", "error", err)
		}
	}
}
