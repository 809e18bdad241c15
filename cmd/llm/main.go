package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// llm runs one document through the full pipeline several times and prints each record,
// to check how stable the LLM extraction is for that document.
func main() {
	var (
		file       = flag.String("file", "", "PDF or image to extract (required)")
		times      = flag.Int("times", 1, "number of runs")
		configPath = flag.String("config", "", "optional YAML config file")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *file == "" {
		logger.Error("usage: llm -file <document> [-times N]")
		os.Exit(2)
	}
	cfg, err := common.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Error("read file", "file", *file, "error", err)
		os.Exit(1)
	}

	proc, closeOCR, err := core.NewProcessorFromConfig(cfg, logger)
	if err != nil {
		logger.Error("build processor", "error", err)
		os.Exit(1)
	}
	defer closeOCR()

	doc := &entity.RawDocument{FileName: filepath.Base(*file), MimeType: constants.MimeForPath(*file), Data: data}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	failures := 0
	for i := 1; i <= *times; i++ {
		runCtx, cancelRun := context.WithTimeout(context.Background(), cfg.Batch.DocumentTimeout)
		ctx := common.WithRequestID(runCtx, "run-"+time.Now().Format("150405.000"))
		start := time.Now()
		rec := proc.Process(ctx, doc)
		cancelRun()

		logger.Info("pipeline.run.done", "iter", i, "status", rec.Status, "degraded", rec.Degraded,
			"elapsed_ms", time.Since(start).Milliseconds())
		if rec.Status != constants.StatusCompleted {
			failures++
		}
		if err := enc.Encode(rec); err != nil {
			logger.Error("encode record", "error", err)
		}
	}

	logger.Info("done", "file", doc.FileName, "times", *times, "failures", failures)
	if failures > 0 {
		os.Exit(1)
	}
}
