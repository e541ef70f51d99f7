package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/cache"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/database"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/handlers"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/llm"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/logging"
	mcpserver "github.com/ekaya-inc/ekaya-dictionary/pkg/mcp"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/middleware"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/observability"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories/memory"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

// stores groups the engine store repositories.
type stores struct {
	jobs       repositories.JobRepository
	recipes    repositories.RecipeRepository
	dictionary repositories.DictionaryRepository
	close      func()
}

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("store", cfg.Database.Type),
		zap.Int("datasources", len(cfg.Datasources)),
		zap.String("llm_default_provider", cfg.LLM.DefaultProvider),
		zap.String("tracing", cfg.Tracing.Exporter))

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, cfg.Env, cfg.Version)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	signals := openSignals(ctx, cfg, logger)
	defer func() {
		if err := signals.Close(); err != nil {
			logger.Warn("Failed to close job signals", zap.Error(err))
		}
	}()

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:   cfg.Pool.ConnectionTTLMinutes,
		PoolMaxConns: cfg.Pool.MaxConns,
		PoolMinConns: cfg.Pool.MinConns,
	}, logger)
	defer func() { _ = connMgr.Close() }()
	connections := datasource.NewConnectionRegistry(cfg.Datasources, connMgr)

	llmAdapter := llm.NewAdapterFromConfig(cfg.LLM, logger)

	queryService := services.NewQueryService(connections, cfg.Query, logger)
	schemaService := services.NewSchemaService(connections, queryService, cfg.Profiling, logger)
	recipeService := services.NewRecipeService(st.recipes, logger)
	dictionaryService := services.NewDictionaryService(st.dictionary, logger)

	seeded, err := recipeService.Seed(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed recipes: %w", err)
	}
	logger.Info("Recipe seed complete", zap.Int("created", seeded))

	engine := services.NewJobEngine(
		st.jobs,
		schemaService,
		services.NewPromptRenderer(st.recipes, logger),
		llmAdapter,
		dictionaryService,
		signals,
		services.EngineConfig{
			MaxConcurrent:     cfg.Jobs.MaxConcurrent,
			LLMTimeout:        cfg.LLM.RequestTimeout(),
			PromptSampleRows:  cfg.Profiling.PromptSampleRows,
			InstanceID:        cfg.Jobs.InstanceID,
			HeartbeatInterval: cfg.Jobs.HeartbeatInterval(),
			OrphanAfter:       cfg.Jobs.OrphanAfter(),
			RetainFinished:    cfg.Jobs.RetainFinished,
		},
		logger,
	)
	if err := engine.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}
	engine.StartOrphanSweep(ctx)

	jobService := services.NewJobService(st.jobs, st.recipes, connections, llmAdapter, engine, signals, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewJobsHandler(jobService, logger).RegisterRoutes(mux)
	handlers.NewEngineHandler(engine, engine.InstanceID(), logger).RegisterRoutes(mux)
	handlers.NewConnectionsHandler(connections, queryService, schemaService, logger).RegisterRoutes(mux)
	handlers.NewRecipesHandler(recipeService, logger).RegisterRoutes(mux)
	handlers.NewDictionaryHandler(dictionaryService, logger).RegisterRoutes(mux)

	mcpserver.NewServer("ekaya-dictionary", cfg.Version, &tools.Deps{
		Queries:    queryService,
		Schema:     schemaService,
		Jobs:       jobService,
		Dictionary: dictionaryService,
		Logger:     logger.Named("mcp-tools"),
	}, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger.Named("http"))(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-dictionary",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Job engine shutdown incomplete", zap.Error(err))
	}
	logger.Info("Shutdown complete")
	return nil
}

// openStores connects the engine store. database.type memory keeps everything
// in process.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Database.Type == "memory" {
		logger.Warn("Using in-memory engine store; jobs, recipes and dictionary entries are lost on exit")
		return &stores{
			jobs:       memory.NewJobRepository(),
			recipes:    memory.NewRecipeRepository(),
			dictionary: memory.NewDictionaryRepository(),
			close:      func() {},
		}, nil
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine store at %s: %w",
			logging.SanitizeConnectionString(cfg.Database.URL()), err)
	}

	// golang-migrate needs database/sql.
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &stores{
		jobs:       repositories.NewJobRepository(db),
		recipes:    repositories.NewRecipeRepository(db),
		dictionary: repositories.NewDictionaryRepository(db),
		close:      db.Close,
	}, nil
}

// openSignals uses Redis when configured and reachable, otherwise process-local
// signals. The job row stays authoritative either way. Closing the returned
// signals releases the Redis client.
func openSignals(ctx context.Context, cfg *config.Config, logger *zap.Logger) cache.JobSignals {
	if cfg.Redis.Host == "" {
		return cache.NewLocalSignals()
	}
	client, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, using local job signals", zap.Error(err))
		return cache.NewLocalSignals()
	}
	logger.Info("Using Redis job signals", zap.String("host", cfg.Redis.Host))
	return cache.NewRedisSignals(client, 0)
}
