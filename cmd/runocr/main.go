package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core"
	"github.com/joseph-ayodele/committee-extract/internal/core/extract"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

func main() {
	var (
		file       = flag.String("file", "", "PDF or image to run through the extraction cascade (required)")
		configPath = flag.String("config", "", "optional YAML config file")
		printText  = flag.Bool("text", false, "print the extracted text")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	if *file == "" {
		logger.Error("usage", "cmd", "runocr -file <document>")
		os.Exit(2)
	}
	cfg, err := common.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(2)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Error("read file", "file", *file, "error", err)
		os.Exit(1)
	}

	cascade, closeOCR, err := core.NewCascadeFromConfig(cfg, logger)
	if err != nil {
		logger.Error("build cascade", "error", err)
		os.Exit(2)
	}
	defer closeOCR()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	doc := &entity.RawDocument{FileName: filepath.Base(*file), MimeType: constants.MimeForPath(*file), Data: data}
	start := time.Now()
	res, err := cascade.Extract(ctx, doc)
	dur := time.Since(start)
	for _, a := range res.Attempts {
		logger.Info("attempt", "strategy", a.Strategy, "outcome", a.Outcome, "length", a.Length, "reason", a.Reason)
	}
	if err != nil {
		logger.Error("text extraction failed", "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	score := extract.ReadabilityScore(res.Text)
	logger.Info("text extraction OK",
		"strategy", res.Strategy,
		"chars", len([]rune(res.Text)),
		"readability", score,
		"readable", score >= cfg.Extraction.ReadabilityThreshold,
		"duration_ms", dur.Milliseconds(),
	)
	if *printText {
		fmt.Println(res.Text)
	}
}
