package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core"
	"github.com/joseph-ayodele/committee-extract/internal/core/async"
	"github.com/joseph-ayodele/committee-extract/internal/export"
	"github.com/joseph-ayodele/committee-extract/internal/ingest"
	repo "github.com/joseph-ayodele/committee-extract/internal/repository"
	svc "github.com/joseph-ayodele/committee-extract/internal/server"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		os.Exit(1)
	}
	defer svc.CloseDB(store, logger)

	if err := svc.PingDB(ctx, store, logger, 5*time.Second); err != nil {
		os.Exit(1)
	}

	proc, closeOCR, err := core.NewProcessorFromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to build processor", "error", err)
		os.Exit(1)
	}
	defer closeOCR()

	runner := async.NewBatchRunner(proc, logger,
		async.WithConcurrency(cfg.Batch.Concurrency),
		async.WithDocumentTimeout(cfg.Batch.DocumentTimeout),
	)
	queue := async.NewProcessorQueue(proc, logger,
		async.WithWorkers(cfg.Batch.QueueWorkers),
		async.WithQueueSize(cfg.Batch.QueueSize),
		async.WithProcessTimeout(cfg.Batch.DocumentTimeout),
		async.WithObserver(repo.Recorder(store, logger)),
	)
	batches := svc.NewBatchService(ctx, store, runner, queue, export.NewService(store, proc.Schema(), logger), logger)

	// gRPC health
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	health := svc.NewHealthServer(store, logger)
	go health.Monitor(ctx, 30*time.Second)
	go func() {
		if err := health.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	// HTTP API
	api := svc.NewHTTPServer(batches, store, cfg.Server, logger)
	go func() {
		if err := api.Start(); err != nil {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	// Watch folders
	if len(cfg.Watch.Directories) > 0 {
		paths, _, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       cfg.Watch.Directories,
			InitialScan: true,
			Debounce:    cfg.Watch.Debounce,
		}, logger)
		if err != nil {
			logger.Error("failed to start watcher", "error", err)
			os.Exit(1)
		}
		loader := ingest.NewFSLoader(cfg.Server.MaxUploadBytes, logger)
		logger.Info("watch.batch", "batch_id", batches.WatchBatchID())
		go ingest.Feed(ctx, paths, loader, batches.SubmitWatched, logger)
	}

	logger.Info("committeed started", "http_addr", cfg.Server.HTTPAddr, "grpc_addr", cfg.Server.GRPCAddr)
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := api.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("http shutdown", "error", err)
	}
	health.Stop()
	queue.Shutdown(shutdownCtx)
	batches.Wait(shutdownCtx)
	logger.Info("stopped")
}
