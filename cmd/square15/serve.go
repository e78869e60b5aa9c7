package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/agent"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/api"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/buildinfo"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/connwatch"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/jobs"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), stdout, opts.configPath)
		},
	}
}

// runServe is the primary operating mode: it loads config, opens the
// store, wires the agent, starts the API server and the overdue sweep,
// and blocks until SIGINT or SIGTERM.
//
// The shutdown sequence is:
//  1. The signal cancels the context
//  2. The cron scheduler stops and waits for a running sweep;
//     the health watchers exit
//  3. The HTTP server drains in-flight requests
//  4. MQTT is marked offline; side tasks finish; the store closes
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Square15", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	// Everything after this point uses the configured level and format.
	logger, err = configuredLogger(stdout, cfg)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", cfgPath)

	resolver, err := auth.NewFromConfig(cfg.Auth)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	health := connwatch.NewManager(logger)
	health.Watch(ctx, "model", a.llm.Ping, connwatch.Backoff{})
	health.Watch(ctx, "database", a.store.Ping, connwatch.Backoff{})

	if a.mqtt != nil {
		if err := a.mqtt.Start(ctx); err != nil {
			logger.Warn("mqtt connect failed, events will be retried by the client", "broker", cfg.MQTT.Broker, "error", err)
		}
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	var sweeper *jobs.OverdueSweeper
	if cfg.Jobs.OverdueSweep != "" {
		sweeper = jobs.NewOverdueSweeper(a.store, a.publisher, logger)
		if err := sweeper.Start(ctx, cfg.Jobs.OverdueSweep); err != nil {
			return err
		}
	}

	svc := agent.NewService(logger, a.loop, resolver, a.registries())
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, svc, a.store, logger)
	server.SetHealth(health)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if sweeper != nil {
			sweeper.Stop()
		}
		health.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown failed", "error", err)
		}
		if a.mqtt != nil {
			if err := a.mqtt.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
	}()

	// Start blocks until the server is shut down.
	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Square15 stopped")
	return nil
}
