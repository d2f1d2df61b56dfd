// Package main provides the entry point for blinkd.
//
// blinkd is the BlinkDB server: an in-memory key-value store speaking
// the RESP-2 protocol over TCP, with TTL expiry and LRU eviction under
// a fixed memory budget.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/blinklabs/blinkdb/internal/config"
	"github.com/blinklabs/blinkdb/internal/infra/buildinfo"
	"github.com/blinklabs/blinkdb/internal/infra/confloader"
	"github.com/blinklabs/blinkdb/internal/infra/shutdown"
	"github.com/blinklabs/blinkdb/internal/server"
	"github.com/blinklabs/blinkdb/internal/store"
	"github.com/blinklabs/blinkdb/internal/telemetry"
	"github.com/blinklabs/blinkdb/internal/telemetry/logger"
)

func main() {
	app := &cli.App{
		Name:    "blinkd",
		Usage:   "BlinkDB in-memory key-value server",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "TCP listening port",
				Value:   config.DefaultPort,
			},
			&cli.IntFlag{
				Name:    "connections",
				Aliases: []string{"c"},
				Usage:   "maximum concurrent client connections",
				Value:   config.DefaultMaxConnections,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML configuration file",
			},
			&cli.Int64Flag{
				Name:  "max-memory",
				Usage: "memory budget in bytes for live entries",
				Value: config.DefaultMaxMemory,
			},
			&cli.DurationFlag{
				Name:  "sweep-interval",
				Usage: "cadence of the TTL sweeper",
				Value: config.DefaultSweepInterval,
			},
			&cli.DurationFlag{
				Name:  "idle-timeout",
				Usage: "close connections idle for this long",
				Value: config.DefaultIdleTimeout,
			},
			&cli.IntFlag{
				Name:  "rate-limit",
				Usage: "max commands per second per client IP (0 disables)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "listen address for Prometheus /metrics (empty disables)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level: debug, info, warn, error",
				Value: config.DefaultLogLevel,
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format: json, text",
				Value: config.DefaultLogFormat,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger.SetDefault(log)
	telemetry.SetBuildInfo(buildinfo.Version, buildinfo.Commit)

	log.Info("starting blinkd",
		"version", buildinfo.Version,
		"port", cfg.Server.Port,
		"max_memory", cfg.Storage.MaxMemory)

	engine := store.New(store.Config{
		MaxMemory:     cfg.Storage.MaxMemory,
		SweepInterval: cfg.Storage.SweepInterval,
		Logger:        log,
	})

	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		MaxConnections: cfg.Server.MaxConnections,
		IdleTimeout:    cfg.Server.IdleTimeout,
		RateLimit:      cfg.Server.RateLimit,
		Logger:         log,
	}, engine)

	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve() }()

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.MetricsHandler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			log.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	shutdownHandler := shutdown.NewHandler(30 * time.Second)

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down storage engine")
		return engine.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down server")
		if err := srv.Stop(ctx); err != nil {
			return err
		}
		return <-serveDone
	})
	if metricsSrv != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			return metricsSrv.Shutdown(ctx)
		})
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig merges defaults, the optional config file, environment
// variables, and explicitly set CLI flags, in rising priority.
func loadConfig(c *cli.Context) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	// Flags the user passed explicitly win over file and environment.
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("connections") {
		cfg.Server.MaxConnections = c.Int("connections")
	}
	if c.IsSet("idle-timeout") {
		cfg.Server.IdleTimeout = c.Duration("idle-timeout")
	}
	if c.IsSet("rate-limit") {
		cfg.Server.RateLimit = c.Int("rate-limit")
	}
	if c.IsSet("max-memory") {
		cfg.Storage.MaxMemory = c.Int64("max-memory")
	}
	if c.IsSet("sweep-interval") {
		cfg.Storage.SweepInterval = c.Duration("sweep-interval")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
