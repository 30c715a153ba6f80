package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"worklens/internal/core/ports"
	"worklens/internal/core/services"
	httphandlers "worklens/internal/handlers/http"
	"worklens/internal/infrastructure/distributed"
	"worklens/internal/infrastructure/middleware"
	"worklens/internal/infrastructure/monitoring"
	"worklens/internal/infrastructure/reliability"
	repositories "worklens/internal/infrastructure/repositories"
	wsignal "worklens/internal/infrastructure/signal"
	"worklens/pkg/config"
	"worklens/pkg/logger"
	"worklens/pkg/tracing"
	"worklens/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/worklens/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("no usable config file, running with defaults", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	directory := repoFactory.CreateDirectory()
	if err := repositories.SeedDirectory(ctx, directory, cfg.Directory.Accounts); err != nil {
		log.Fatalw("failed to seed directory", "error", err)
	}

	// Metrics
	metricsService := services.NewMetricsService()
	var metrics ports.MetricsRecorder = metricsService
	if cfg.Monitoring.PrometheusEnabled {
		metrics = services.MultiMetrics{metricsService, monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)}
	}

	// Initialize services
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, directory, log)
	if err := authService.EnsureBootstrapAdmin(ctx, cfg.Auth.BootstrapAdmin.Email, cfg.Auth.BootstrapAdmin.Password); err != nil {
		log.Fatalw("failed to create bootstrap admin", "error", err)
	}

	teamService := services.NewTeamService(directory, log)
	auditRepo := repoFactory.CreateAuditRepository()
	auditService := services.NewAuditService(
		auditRepo,
		cfg.Audit.BatchSize,
		cfg.Audit.FlushInterval,
		metrics,
		log,
	)
	relayService := services.NewRelayService(teamService, auditService, metrics, log)
	workService := services.NewWorkSessionService(
		repoFactory.CreateWorkSessionRepository(),
		repoFactory.CreateLocker(),
		teamService,
		relayService,
		metrics,
		log,
	)
	intervalService := services.NewIntervalService(
		repoFactory.CreateIntervalRepository(),
		teamService,
		relayService,
		auditService,
		cfg.Capture.AllowedMinutes,
		log,
	)

	// Cross-instance events
	var eventBus *distributed.EventBus
	if repoFactory.UsesRedis() {
		eventBus = distributed.NewEventBus(repoFactory.RedisClient(), cfg.Redis.Prefix, utils.GenerateID("inst"), log)
		teamService.SetRemovalHooks(relayService, eventBus, auditService)
		intervalService.SetPublisher(eventBus)

		go func() {
			if err := eventBus.Subscribe(ctx, distributed.RelayEventHandler(relayService, relayService)); err != nil && ctx.Err() == nil {
				log.Errorw("event bus subscription ended", "error", err)
			}
		}()
	} else {
		teamService.SetRemovalHooks(relayService, nil, auditService)
	}

	// Control channel
	wsServer := wsignal.NewWebSocketServer(relayService, authService, metrics, wsignal.OptionsFromConfig(cfg), log)

	// Health checks
	health := monitoring.NewHealthChecker()
	health.AddStorageCheck(repoFactory, 15*time.Second, 2*time.Second)
	health.AddRelayCheck(relayService.Accepting, 15*time.Second, time.Second)
	if guarded, ok := auditRepo.(*reliability.AuditRepository); ok {
		health.AddBreakerCheck("audit_store", guarded.BreakerStats, 15*time.Second, time.Second)
	}
	health.StartBackgroundChecks(ctx)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.CORSMiddleware(cfg),
		middleware.TracingMiddleware(),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	httphandlers.RegisterAPI(router, httphandlers.NewAuthHandler(authService), authService,
		httphandlers.NewWorkHandler(workService),
		httphandlers.NewIntervalHandler(intervalService),
		httphandlers.NewLiveHandler(relayService),
		httphandlers.NewAdminHandler(teamService, auditService),
	)

	router.GET(cfg.Signal.Path, gin.WrapF(wsServer.HandleWebSocket))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"connections": wsServer.ConnectionCount(),
			"checks":      health.LastStatus().Checks,
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := health.CheckAll(checkCtx)
		if status.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting worklens server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down worklens server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Hijacked websocket connections are not tracked by srv.Shutdown
	wsServer.Shutdown(shutdownCtx)

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	relayService.Close()
	auditService.Close()
	cancel()

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Errorw("Error closing event bus", "error", err)
		}
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	log.Info("worklens server stopped")
}
