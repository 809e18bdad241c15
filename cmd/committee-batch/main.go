package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core"
	"github.com/joseph-ayodele/committee-extract/internal/core/async"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
	"github.com/joseph-ayodele/committee-extract/internal/export"
	"github.com/joseph-ayodele/committee-extract/internal/ingest"
	repo "github.com/joseph-ayodele/committee-extract/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir         = flag.String("dir", "", "directory of committee documents (required)")
		out         = flag.String("out", "", "output XLSX file path (optional, defaults to the parent of --dir)")
		concurrency = flag.Int("concurrency", 0, "documents processed in parallel (default from config)")
		configPath  = flag.String("config", "", "optional YAML config file")
		persist     = flag.Bool("persist", false, "also save records to DB_URL")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.Load(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if *concurrency > 0 {
		cfg.Batch.Concurrency = *concurrency
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), export.FileName(time.Now()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc, closeOCR, err := core.NewProcessorFromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to build processor", "error", err)
		os.Exit(1)
	}
	defer closeOCR()

	loader := ingest.NewFSLoader(cfg.Server.MaxUploadBytes, logger)
	results, stats, err := loader.LoadDirectory(ctx, *dir, true)
	if err != nil {
		logger.Error("failed to load directory", "error", err)
		os.Exit(1)
	}
	docs := ingest.Documents(results)
	if len(docs) == 0 {
		printError("No supported documents found in %s\n", *dir)
		os.Exit(1)
	}

	var observers []core.Observer
	observers = append(observers, func(rec entity.Record) {
		if !rec.Status.IsTerminal() {
			return
		}
		fmt.Printf("[%d/%d] %-40s %s %s\n", rec.Position, len(docs), rec.FileName, rec.Status, rec.ErrorMessage)
	})
	if *persist {
		store, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		observers = append(observers, repo.Recorder(store, logger))
	}

	runner := async.NewBatchRunner(proc, logger,
		async.WithConcurrency(cfg.Batch.Concurrency),
		async.WithDocumentTimeout(cfg.Batch.DocumentTimeout),
	)
	res := runner.Run(ctx, docs, fanOut(observers))

	xlsx, err := export.NewService(nil, proc.Schema(), logger).Records(res.Records)
	if err != nil {
		logger.Error("failed to render workbook", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Batch %s complete!\n", res.BatchID)
	fmt.Printf("- Files found: %d (duplicates skipped: %d, unreadable: %d)\n", stats.Matched, stats.Duplicates, stats.Failed)
	fmt.Printf("- Completed: %d\n", res.Completed)
	fmt.Printf("- Failed: %d\n", res.Failed)
	fmt.Printf("- Output: %s\n", *out)
}

// fanOut calls each observer in order; the runner may call it from several goroutines.
func fanOut(obs []core.Observer) core.Observer {
	return func(rec entity.Record) {
		for _, o := range obs {
			o(rec)
		}
	}
}
