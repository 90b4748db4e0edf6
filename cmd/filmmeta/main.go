package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/filmmeta/internal/api"
	"github.com/JakeFAU/filmmeta/internal/app"
	"github.com/JakeFAU/filmmeta/internal/config"
	"github.com/JakeFAU/filmmeta/internal/crawler"
	"github.com/JakeFAU/filmmeta/internal/input"
	"github.com/JakeFAU/filmmeta/internal/logging"
	"github.com/JakeFAU/filmmeta/internal/metrics"
)

const (
	exitOK = iota
	exitFailure
	exitInput
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	inputPath := flag.String("input", "", "CSV of targets (overrides input.path)")
	limit := flag.Int("limit", -1, "Max rows to read, 0 for all (overrides scrape.limit)")
	workers := flag.Int("workers", 0, "Max concurrent scrapes (overrides scrape.workers)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return exitInput
	}
	if *inputPath != "" {
		cfg.Input.Path = *inputPath
	}
	if *limit >= 0 {
		cfg.Scrape.Limit = *limit
	}
	if *workers != 0 {
		cfg.Scrape.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return exitInput
	}

	logger, err := logging.New(cfg.Logging.Development, logging.WithLevel(cfg.Logging.Level))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return exitFailure
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Input.Path == "" {
		logger.Error("no input file", zap.Error(crawler.NewInputError("input.path or -input is required")))
		return exitInput
	}
	targets, err := input.ReadFile(cfg.Input.Path, cfg.Scrape.Limit, logger.Named("input"))
	if err != nil {
		logger.Error("read input failed", zap.String("path", cfg.Input.Path), zap.Error(err))
		return exitCode(err)
	}

	pipeline, err := app.New(ctx, cfg, logger, app.WithProgressOutput(os.Stderr))
	if err != nil {
		logger.Error("init pipeline failed", zap.Error(err))
		return exitCode(err)
	}
	defer pipeline.Close()

	opsCtx, stopOps := context.WithCancel(ctx)
	opsDone := make(chan struct{})
	if cfg.Server.Port > 0 {
		srv := api.NewServer(pipeline.Status(), logger.Named("api"))
		go func() {
			defer close(opsDone)
			if err := srv.Serve(opsCtx, cfg.Server.Port); err != nil {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
	} else {
		close(opsDone)
	}

	report, err := pipeline.Run(ctx, targets)
	stopOps()
	<-opsDone
	if err != nil {
		logger.Error("batch failed",
			zap.String("run_id", report.RunID),
			zap.Int("records", report.Records),
			zap.Error(err),
		)
		return exitCode(err)
	}
	logger.Info("done",
		zap.String("run_id", report.RunID),
		zap.String("uri", report.URI),
		zap.Int("records", report.Records),
		zap.Int("degraded", report.Degraded),
	)
	return exitOK
}

func exitCode(err error) int {
	if crawler.IsInputError(err) {
		return exitInput
	}
	return exitFailure
}
