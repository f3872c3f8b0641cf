// Command roc-svc is the entry point for the regenerator optimization
// core exposed as an HTTP microservice.
//
// Configuration is loaded with the following priority (highest to
// lowest): environment variables (prefix ROC_), config.yaml in one of
// the standard search paths, then built-in defaults.
//
// On SIGINT/SIGTERM the server stops accepting new connections and
// drains in-flight requests within http.shutdown_timeout before the
// process exits.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"roc/internal/config"
	"roc/internal/httpserver"
	"roc/internal/jobrunner"
	"roc/internal/logging"
	"roc/internal/metrics"
	"roc/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logging.InitWithConfig(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logging.Warn("failed to init telemetry", "error", err.Error())
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logging.Warn("failed to shutdown telemetry", "error", err.Error())
				}
			}()
		}
	}

	m := metrics.Init(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	m.SetServiceInfo(cfg.App.Version)
	httpserver.Version = cfg.App.Version
	jobrunner.DefaultMaxIterations = cfg.Optimizer.DefaultMaxIterations
	jobrunner.DefaultTolerance = cfg.Optimizer.DefaultTolerance

	srv := httpserver.New(httpserver.Config{
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	})

	logging.Info("starting roc-svc", "port", cfg.HTTP.Port, "environment", cfg.App.Environment, "version", cfg.App.Version)

	if err := srv.Run(ctx, cfg.HTTP.ShutdownTimeout); err != nil {
		logging.Fatal("server failed", "error", err.Error())
	}
}
