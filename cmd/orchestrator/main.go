// Package main is the entry point for the taskpilot orchestrator service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot/internal/agents"
	"github.com/taskpilot/taskpilot/internal/common/config"
	"github.com/taskpilot/taskpilot/internal/common/httpmw"
	"github.com/taskpilot/taskpilot/internal/common/logger"
	"github.com/taskpilot/taskpilot/internal/common/tracing"
	"github.com/taskpilot/taskpilot/internal/events"
	"github.com/taskpilot/taskpilot/internal/fallback"
	"github.com/taskpilot/taskpilot/internal/orchestrator"
	"github.com/taskpilot/taskpilot/internal/orchestrator/api"
	"github.com/taskpilot/taskpilot/internal/orchestrator/streaming"
	"github.com/taskpilot/taskpilot/internal/process"
	"github.com/taskpilot/taskpilot/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("Starting orchestrator service...")

	tracing.Init(cfg.Tracing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event bus: NATS when configured, in-memory otherwise
	providedBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer func() { _ = busCleanup() }()

	// Backend catalog, with optional yaml overrides
	catalog := agents.DefaultCatalog()
	if cfg.AgentsFile != "" {
		if err := catalog.LoadOverrides(cfg.AgentsFile); err != nil {
			log.Fatal("Failed to load agents file", zap.Error(err))
		}
		log.Info("Loaded agent catalog overrides", zap.String("file", cfg.AgentsFile))
	}

	supervisor := process.NewSupervisor(log,
		process.WithKillGrace(cfg.Orchestrator.KillGracePeriodDuration()),
		process.WithStderrTail(cfg.Orchestrator.StderrTailBytes),
	)
	tracker := session.NewTracker()
	fb := fallback.NewScript(fallback.Config{
		Script:       cfg.Fallback.Script,
		Timeout:      cfg.Fallback.TimeoutDuration(),
		UseClipboard: cfg.Fallback.UseClipboard,
	}, log)

	service := orchestrator.NewService(catalog, supervisor, tracker, fb, log,
		orchestrator.WithDefaultTimeout(cfg.Orchestrator.DefaultTimeoutDuration()))

	wsHub := streaming.NewHub(log)
	go wsHub.Run(ctx)

	runner := orchestrator.NewRunner(service, providedBus.Bus, wsHub, log)

	// HTTP surface
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(httpmw.RequestLogger(log, "orchestrator"))
	router.Use(httpmw.OtelTracing("orchestrator"))

	v1 := router.Group("/api/v1")
	api.SetupRoutes(v1, runner, wsHub, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down orchestrator service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("Orchestrator service stopped")
}
