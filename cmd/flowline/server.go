package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/flowline-ai/flowline/agent/registry"
	"github.com/flowline-ai/flowline/api/handlers"
	"github.com/flowline-ai/flowline/approval"
	"github.com/flowline-ai/flowline/config"
	"github.com/flowline-ai/flowline/eventlog"
	"github.com/flowline-ai/flowline/internal/database"
	"github.com/flowline-ai/flowline/internal/metrics"
	"github.com/flowline-ai/flowline/internal/server"
	"github.com/flowline-ai/flowline/llm"
	"github.com/flowline-ai/flowline/workflow"
)

// Server assembles the engine: storage, gate, manager, HTTP surface,
// and metrics endpoint.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	db          *gorm.DB
	redisClient *redis.Client
	syncStore   *config.SyncStore
	broadcaster *eventlog.Broadcaster
	manager     *workflow.Manager
	watcher     *config.FileWatcher

	httpManager    *server.Manager
	metricsManager *server.Manager

	watcherCancel context.CancelFunc
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, configPath: configPath, logger: logger}
}

// Start brings every component up. On error nothing keeps running.
func (s *Server) Start() error {
	db, err := database.Open(database.Options{
		Path:         s.cfg.Database.Path,
		MaxOpenConns: s.cfg.Database.MaxOpenConns,
		MaxIdleConns: s.cfg.Database.MaxIdleConns,
		ConnLifetime: s.cfg.Database.ConnLifetime,
	}, s.logger)
	if err != nil {
		return err
	}
	s.db = db

	s.syncStore, err = config.NewSyncStore(db, s.logger)
	if err != nil {
		return err
	}
	if err := s.syncStore.Sync(context.Background(), s.cfg.Workflow); err != nil {
		return fmt.Errorf("strategy sync failed: %w", err)
	}

	logStore, err := s.buildLogStore()
	if err != nil {
		return err
	}
	stateStore, err := workflow.NewGormStateStore(db)
	if err != nil {
		return err
	}

	registryStore := registry.New(s.cfg.AgentList())
	gate := approval.NewGate(approval.Config{
		ApprovalTimeout: s.cfg.Workflow.ApprovalTimeout,
	}, s.logger)
	s.broadcaster = eventlog.NewBroadcaster(64, s.logger)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("flowline", promRegistry)

	client := llm.NewHTTPClient(s.cfg.Generation.ClientConfig(), s.logger)
	generator := llm.NewResilientGenerator(client, s.cfg.Generation.ResilientConfig(), s.logger)

	s.manager = workflow.NewManager(workflow.ManagerDeps{
		Registry:    registryStore,
		Generator:   generator,
		Completer:   client,
		Gate:        gate,
		LogStore:    logStore,
		Broadcaster: s.broadcaster,
		State:       stateStore,
		Metrics:     collector,
		Configs:     s.syncStore,
		Logger:      s.logger,
	})

	if err := s.startHTTPServer(); err != nil {
		return err
	}
	if err := s.startMetricsServer(promRegistry); err != nil {
		return err
	}
	s.startConfigWatcher()

	s.logger.Info("flowline started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("agents", len(s.cfg.Agents)),
		zap.String("strategy", s.cfg.Workflow.Strategy),
	)
	return nil
}

// buildLogStore selects the event log backend: Redis when enabled,
// SQLite otherwise.
func (s *Server) buildLogStore() (eventlog.Store, error) {
	if !s.cfg.Redis.Enabled {
		return eventlog.NewGormStore(s.db)
	}
	s.redisClient = redis.NewClient(&redis.Options{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	})
	return eventlog.NewRedisStore(s.redisClient, "flowline")
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	handlers.NewWorkflowHandler(s.manager, s.logger).Register(mux)
	handlers.NewStreamHandler(s.broadcaster, s.logger).Register(mux)
	handlers.NewStrategyHandler(s.syncStore, s.logger).Register(mux)

	checks := map[string]handlers.CheckFunc{
		"database": func(ctx context.Context) error { return database.Ping(ctx, s.db) },
	}
	if s.redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return s.redisClient.Ping(ctx).Err() }
	}
	health := handlers.NewHealthHandler(checks, s.logger)
	health.Register(mux)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		RateLimit(float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(s.cfg.Auth, []string{"/health", "/healthz", "/ready", "/readyz", "/version"}, s.logger),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer(reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger.With(zap.String("server", "metrics")))
	return s.metricsManager.Start()
}

// startConfigWatcher re-syncs the default strategy when the YAML file
// changes. Running workflows keep the strategy they started with.
func (s *Server) startConfigWatcher() {
	if s.configPath == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.watcherCancel = cancel

	s.watcher = config.NewFileWatcher([]string{s.configPath}, 0, s.logger)
	s.watcher.OnChange(func(event config.FileEvent) {
		cfg, err := config.NewLoader().
			WithConfigPath(event.Path).
			WithValidator((*config.Config).Validate).
			Load()
		if err != nil {
			s.logger.Error("config reload rejected", zap.Error(err))
			return
		}
		if err := s.syncStore.Sync(ctx, cfg.Workflow); err != nil {
			s.logger.Error("strategy re-sync failed", zap.Error(err))
			return
		}
		s.logger.Info("default strategy reloaded", zap.String("strategy", cfg.Workflow.Strategy))
	})
	s.watcher.Start(ctx)
}

// WaitForShutdown blocks until a signal or server error, then stops
// everything in parallel.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	if s.watcher != nil {
		s.watcher.Stop()
		s.watcherCancel()
	}

	var g errgroup.Group
	g.Go(func() error { return s.metricsManager.Shutdown(context.Background()) })
	g.Go(func() error {
		if s.redisClient != nil {
			return s.redisClient.Close()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("shutdown error", zap.Error(err))
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("database close failed", zap.Error(err))
	}
	s.logger.Info("flowline stopped")
}
