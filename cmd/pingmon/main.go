package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"pingmon/internal/config"
	"pingmon/internal/database"
	"pingmon/internal/metrics"
	"pingmon/internal/monitoring"
	"pingmon/internal/web"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Configuration file path")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		info := web.CurrentBuildInfo()
		fmt.Printf("pingmon %s\nCommit: %s\nBuilt: %s (%s)\n", info.Version, info.GitCommit, info.BuildTime, info.GoVersion)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	setupLogging(cfg.Logging)

	logrus.WithFields(logrus.Fields{
		"config_file": *configFile,
		"database":    cfg.Database.Type,
		"prober":      cfg.Monitoring.Prober,
	}).Info("Starting pingmon")

	store, err := database.Open(database.Options{
		Type: cfg.Database.Type,
		Path: cfg.Database.Path,
		DSN:  cfg.Database.DSN,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	metricsCollector := metrics.NewCollector()

	engine, err := monitoring.NewEngine(cfg, store, nil, metricsCollector)
	if err != nil {
		logrus.Fatalf("Failed to initialize monitoring engine: %v", err)
	}
	engine.Subscribe(monitoring.NewLogSink(logrus.StandardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.LoadDevices(ctx, cfg.Devices)

	var webServer *web.Server
	if cfg.Server.Enabled {
		webServer = web.NewServer(cfg, engine, metricsCollector)
		if err := webServer.Start(ctx); err != nil {
			logrus.Fatalf("Failed to start web server: %v", err)
		}
	}

	if cfg.Monitoring.Autostart {
		engine.Start(ctx)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logrus.WithField("signal", sig).Info("Received shutdown signal")

	// Graceful shutdown: let the current probe finish, then flush events.
	engine.Close()

	if webServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := webServer.Stop(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Web server shutdown incomplete")
		}
		shutdownCancel()
	}

	logrus.Info("Shutdown complete")
}

// loadConfig falls back to built-in defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logrus.WithField("config_file", path).Warn("Config file not found, using defaults")
		return config.Default(), nil
	}
	return config.Load(path)
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}
