package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/gaiatryst-synopsis/internal/api/http"
	"github.com/i474232898/gaiatryst-synopsis/internal/coherence"
	"github.com/i474232898/gaiatryst-synopsis/internal/coherence/providers"
	"github.com/i474232898/gaiatryst-synopsis/internal/config"
	"github.com/i474232898/gaiatryst-synopsis/internal/csvlog"
	"github.com/i474232898/gaiatryst-synopsis/internal/lock"
	"github.com/i474232898/gaiatryst-synopsis/internal/logger"
	"github.com/i474232898/gaiatryst-synopsis/internal/metrics"
	"github.com/i474232898/gaiatryst-synopsis/internal/scheduler"
	"github.com/i474232898/gaiatryst-synopsis/internal/store"
)

const appName = "GAIATRYST SYNOPSIS API"

// Injected at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// A second instance exits quietly; the first one owns the log file.
	inst, ok, err := lock.Acquire(cfg.LockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to acquire instance lock: %v\n", err)
		return 1
	}
	if !ok {
		return 0
	}
	defer inst.Release()

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}

	log.Info().
		Str("version", version).
		Str("mode", cfg.Mode).
		Str("csv", cfg.CSVPath).
		Dur("interval", cfg.FetchInterval).
		Msg("starting")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)

	fetcher := providers.NewHeartMathProvider(providers.BrowserConfig{
		TargetURL:      cfg.TargetURL,
		RenderTimeout:  cfg.FetchTimeout,
		Bin:            cfg.ChromeBin,
		RemoteURL:      cfg.ChromeRemoteURL,
		BlockResources: cfg.BlockResources,
		Breaker: providers.BreakerConfig{
			MaxFailures: uint32(cfg.BreakerMaxFailures),
			Timeout:     cfg.BreakerTimeout,
		},
		Logger: log.With().Str("component", "fetcher").Logger(),
	})

	// Core service orchestrating fetcher, log and cache.
	service := coherence.NewService(
		store.NewMemoryStore(),
		csvlog.NewWriter(cfg.CSVPath),
		fetcher,
		coherence.WithRecorder(recorder),
		coherence.WithLogger(log.With().Str("component", "service").Logger()),
		coherence.WithFetchOnEmpty(cfg.FetchOnEmpty),
	)

	// Serve the last logged reading until the first scrape completes.
	if err := service.Bootstrap(); err != nil {
		log.Warn().Err(err).Msg("could not load initial data from log")
	}

	sched := scheduler.New(cfg.FetchInterval, cfg.CycleTimeout, service, log.With().Str("component", "scheduler").Logger())
	if err := sched.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start scheduler")
		return 1
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// A forced refresh holds the request for a whole cycle.
		WriteTimeout: cfg.CycleTimeout + 10*time.Second,
		ErrorHandler: httpapi.ErrorHandler,
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	httpapi.RegisterRoutes(app, service, httpapi.Info{
		Name:           appName,
		Version:        version,
		Interval:       cfg.FetchInterval,
		NextRun:        sched.NextRun,
		RefreshTimeout: cfg.CycleTimeout,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("port", cfg.Port).Msg("api server listening")
	if err := httpapi.Serve(ctx, app, ":"+cfg.Port, 10*time.Second); err != nil {
		log.Error().Err(err).Msg("api server stopped")
		return 1
	}

	log.Info().Msg("shut down")
	return 0
}
