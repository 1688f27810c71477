// Package main provides the entry point for the audit server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/api/rest"
	"github.com/audit-engine/go-core/internal/audit"
	"github.com/audit-engine/go-core/internal/auth"
	"github.com/audit-engine/go-core/internal/config"
	"github.com/audit-engine/go-core/internal/db"
	"github.com/audit-engine/go-core/internal/events"
	"github.com/audit-engine/go-core/internal/logging"
	"github.com/audit-engine/go-core/internal/metrics"
	"github.com/audit-engine/go-core/internal/rules"
	"github.com/audit-engine/go-core/internal/stats"
	"github.com/audit-engine/go-core/internal/ws"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("audit-server %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, logLevel, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting audit server",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database.
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer conn.Close()

	if cfg.Database.MigrateOnStart {
		runner, err := db.NewMigrationRunner(conn, logger)
		if err != nil {
			logger.Fatal("failed to create migration runner", zap.Error(err))
		}
		if err := runner.Up(); err != nil {
			logger.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	collector := metrics.New("audit_engine")

	// Redis rolling counters (optional).
	var counter *stats.Counter
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, rolling stats disabled", zap.Error(err))
		} else {
			counter = stats.NewCounter(client, cfg.Stats.Window.Std())
			go counter.RunCleanup(ctx, cfg.Stats.CleanupInterval.Std())
		}
		defer client.Close()
	}

	// Core services.
	ledger := audit.NewLedger(audit.NewPostgresStore(conn), logger, collector)
	hub := ws.NewHub(logger, collector)

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Std())
	if err != nil {
		logger.Fatal("failed to create token issuer", zap.Error(err))
	}
	authService := auth.NewService(auth.NewPostgresUserStore(conn), issuer, ledger, logger)

	var ruleCounter events.RuleCounter
	if counter != nil {
		ruleCounter = counter
	}
	eventService := events.NewService(events.NewPostgresStore(conn), ruleCounter, hub, logger, collector)
	ruleService := rules.NewService(rules.NewPostgresStore(conn), ledger, logger)

	// REST server.
	restCfg := rest.DefaultConfig()
	restCfg.Port = cfg.Server.Port
	restCfg.ReadTimeout = cfg.Server.ReadTimeout.Std()
	restCfg.WriteTimeout = cfg.Server.WriteTimeout.Std()
	restCfg.IdleTimeout = cfg.Server.IdleTimeout.Std()

	server, err := rest.New(restCfg, authService, eventService, ruleService, ledger, hub, collector, logger)
	if err != nil {
		logger.Fatal("failed to create REST server", zap.Error(err))
	}

	// Hot-reload the log level on config file changes.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, logger, func(next config.Config) {
			logLevel.SetLevel(logging.ParseLevel(next.Log.Level))
		})
		if err != nil {
			logger.Warn("config watcher unavailable", zap.Error(err))
		} else if err := watcher.Watch(ctx); err != nil {
			logger.Warn("config watch failed", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	errChan := make(chan error, 1)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		errChan <- server.Start()
	}()

	select {
	case err := <-errChan:
		if err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer shutdownCancel()

		hub.Shutdown(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}
