package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/hibiken/asynq"
	"github.com/phrazzld/scry-research/internal/api"
	"github.com/phrazzld/scry-research/internal/config"
	"github.com/phrazzld/scry-research/internal/knowledge"
	"github.com/phrazzld/scry-research/internal/platform/filestore"
	"github.com/phrazzld/scry-research/internal/platform/gemini"
	"github.com/phrazzld/scry-research/internal/platform/postgres"
	"github.com/phrazzld/scry-research/internal/platform/queue"
	"github.com/phrazzld/scry-research/internal/platform/sqlite"
	"github.com/phrazzld/scry-research/internal/prompt"
	"github.com/phrazzld/scry-research/internal/render"
	"github.com/phrazzld/scry-research/internal/research"
	"github.com/phrazzld/scry-research/internal/service/auth"
	"github.com/phrazzld/scry-research/internal/store"
	"github.com/phrazzld/scry-research/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is the metadata database: Postgres or the local SQLite file.
	db *sql.DB

	taskStore store.TaskStore
	docStore  store.DocumentStore

	jwtService auth.JWTService
	knowledge  *knowledge.Service
	executor   *task.Executor
	service    *task.Service
	sweeper    *task.Sweeper

	// Exactly one of the two background backends is set.
	jobQueue   *task.JobQueue
	workerPool *task.WorkerPool
	dispatcher *queue.Dispatcher
	worker     *queue.Worker
}

// newApplication creates a new application instance with all dependencies initialized.
// Nothing is started; call startGroup to run it.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	if err := app.setupStores(ctx); err != nil {
		return nil, err
	}

	app.knowledge, err = knowledge.NewService(cfg.Storage.BasePath, app.docStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize knowledge service: %w", err)
	}

	client, err := newResearchClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	coordinator := research.NewCoordinator(client, research.CoordinatorConfig{
		MaxAttempts:  cfg.Research.MaxAttempts,
		PollInterval: cfg.Research.PollInterval(),
	}, logger)

	roles, err := prompt.NewBuilder(cfg.Prompt.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	renderer, err := render.New(cfg.Render, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize renderer: %w", err)
	}

	app.executor, err = task.NewExecutor(task.ExecutorDeps{
		Store:         app.taskStore,
		Research:      coordinator,
		Roles:         roles,
		Renderer:      renderer,
		Artifacts:     app.knowledge,
		Logger:        logger,
		PreviewLength: cfg.Research.PreviewLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create report executor: %w", err)
	}

	dispatcher, err := app.setupDispatch()
	if err != nil {
		return nil, err
	}

	app.service, err = task.NewService(app.taskStore, dispatcher, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	app.sweeper = task.NewSweeper(app.taskStore, task.SweeperConfig{
		StuckTaskAge:  cfg.Task.StuckTaskAge(),
		CheckInterval: cfg.Task.StuckTaskCheckInterval(),
	}, logger)

	logger.Info("Application initialized successfully",
		"storage_backend", cfg.Storage.Backend,
		"dispatcher", cfg.Task.Dispatcher,
		"provider", cfg.LLM.Provider,
		"render_format", cfg.Render.Format)
	return app, nil
}

// setupStores opens the task and document stores for the configured backend.
func (app *application) setupStores(ctx context.Context) error {
	cfg := app.config.Storage
	retention := store.RetentionPolicy{
		Ceiling: app.config.Task.RetentionCeiling,
		Keep:    app.config.Task.RetentionKeep,
	}

	switch cfg.Backend {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		app.db = db
		if err := postgres.Migrate(ctx, db, app.logger); err != nil {
			return err
		}
		app.taskStore = postgres.NewPostgresTaskStore(db, retention, app.logger)
		app.docStore = postgres.NewPostgresDocumentStore(db, app.logger)

	case "local", "":
		taskStore, err := filestore.NewTaskStore(filepath.Join(cfg.BasePath, "tasks.json"), retention, app.logger)
		if err != nil {
			return err
		}
		app.taskStore = taskStore

		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.BasePath, "knowledge.db")
		}
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return err
		}
		app.db = db
		app.docStore = sqlite.NewDocumentStore(db, app.logger)

	default:
		return fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}

	app.logger.Info("Storage initialized", "backend", cfg.Backend, "base_path", cfg.BasePath)
	return nil
}

// setupDispatch builds the background backend and returns the dispatcher
// the task service hands requests to.
func (app *application) setupDispatch() (task.Dispatcher, error) {
	cfg := app.config.Task

	switch cfg.Dispatcher {
	case "redis":
		redisOpt := asynq.RedisClientOpt{
			Addr:     app.config.Redis.Addr,
			Password: app.config.Redis.Password,
			DB:       app.config.Redis.DB,
		}
		opts := queue.Options{Concurrency: cfg.WorkerCount}

		app.dispatcher = queue.NewDispatcher(redisOpt, opts, app.logger)
		worker, err := queue.NewWorker(redisOpt, opts, app.executor, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create queue worker: %w", err)
		}
		app.worker = worker
		return app.dispatcher, nil

	case "local", "":
		app.jobQueue = task.NewJobQueue(cfg.QueueSize, app.logger)
		app.workerPool = task.NewWorkerPool(app.jobQueue, task.WorkerPoolConfig{
			WorkerCount: cfg.WorkerCount,
		}, app.logger)
		app.workerPool.SetErrorHandler(func(job task.Job, err error) {
			app.logger.Error("report job returned an error", "task_id", job.ID(), "error", err)
		})

		dispatcher, err := task.NewLocalDispatcher(app.jobQueue, app.executor)
		if err != nil {
			return nil, fmt.Errorf("failed to create local dispatcher: %w", err)
		}
		return dispatcher, nil

	default:
		return nil, fmt.Errorf("unsupported dispatcher %q", cfg.Dispatcher)
	}
}

// newResearchClient selects the provider adapter.
func newResearchClient(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (research.Client, error) {
	switch cfg.Provider {
	case "generate":
		generator, err := gemini.NewGeminiGenerator(ctx, logger.With("component", "llm_generator"), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM generator: %w", err)
		}
		return gemini.NewGenerateClient(generator, logger), nil
	case "interactions", "":
		client, err := gemini.NewInteractionsClient(cfg, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize research client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}

// handler builds the HTTP handler tree.
func (app *application) handler() http.Handler {
	return api.NewRouter(api.RouterDeps{
		Tasks:      app.service,
		Documents:  app.knowledge,
		JWTService: app.jwtService,
		Logger:     app.logger,
	})
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.jobQueue != nil {
		app.jobQueue.Close()
	}
	if app.dispatcher != nil {
		if err := app.dispatcher.Close(); err != nil {
			app.logger.Error("Error closing queue client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}
	app.logger.Info("Application shutdown completed")
}
