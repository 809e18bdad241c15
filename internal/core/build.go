package core

import (
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core/extract"
	"github.com/joseph-ayodele/committee-extract/internal/core/llm/openai"
	"github.com/joseph-ayodele/committee-extract/internal/core/ocr"
)

// NewCascadeFromConfig builds text layer -> OCR -> heuristic. The returned close func
// releases the OCR backend and is never nil.
func NewCascadeFromConfig(cfg *common.Config, logger *slog.Logger) (*extract.Cascade, func(), error) {
	ex := cfg.Extraction
	textLayer := extract.NewTextLayerStrategy(ex.TextLayerMaxPages, ex.TextLayerMinChars, logger)
	textLayer.ReadScanned = ex.TextLayerOnScanned
	strategies := []extract.Strategy{textLayer}
	closeFn := func() {}

	var recognizer ocr.PageRecognizer
	switch cfg.OCR.Provider {
	case "vision":
		recognizer = ocr.NewVisionClient(ocr.VisionConfig{
			Endpoint: cfg.OCR.VisionEndpoint,
			APIKey:   cfg.OCR.VisionAPIKey,
			Timeout:  cfg.OCR.Timeout,
		}, logger)
	case "tesseract":
		engine := ocr.SharedLocalEngine(ocr.LocalConfig{
			Binary:      cfg.OCR.Tesseract,
			TessdataDir: cfg.OCR.TessdataDir,
		}, logger)
		recognizer = engine
		closeFn = func() {
			if err := engine.Close(); err != nil {
				logger.Warn("ocr.local.close_failed", "error", err)
			}
		}
	case "none":
	default:
		return nil, nil, fmt.Errorf("unknown OCR provider %q", cfg.OCR.Provider)
	}
	if recognizer != nil {
		strategies = append(strategies, extract.NewOCRStrategy(
			newRasterizer(cfg, logger), recognizer,
			cfg.OCR.MaxPages, cfg.OCR.MaxImageDimension, ex.OCRMinChars, cfg.OCR.LanguageHints, logger))
	}
	strategies = append(strategies, extract.NewHeuristicStrategy(ex.HeuristicMinChars, 0))
	return extract.NewCascade(logger, strategies...), closeFn, nil
}

// NewProcessorFromConfig wires the cascade, the OpenAI client and, when enabled, the
// multimodal fallback.
func NewProcessorFromConfig(cfg *common.Config, logger *slog.Logger) (*Processor, func(), error) {
	cascade, closeFn, err := NewCascadeFromConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	client := openai.NewClient(openai.ConfigFrom(cfg.LLM), logger)

	opts := []Option{
		WithReadabilityThreshold(cfg.Extraction.ReadabilityThreshold),
		WithPromptMaxChars(cfg.Extraction.PromptMaxChars),
	}
	if cfg.LLM.VisionFallback {
		opts = append(opts, WithVisionFallback(client, newRasterizer(cfg, logger), cfg.OCR.MaxPages, cfg.OCR.MaxImageDimension))
	}
	proc, err := NewProcessor(cascade, client, logger, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return proc, closeFn, nil
}

func newRasterizer(cfg *common.Config, logger *slog.Logger) ocr.Rasterizer {
	return ocr.NewPdftoppmRasterizer(cfg.OCR.Pdftoppm, cfg.OCR.DPI, ocr.ExecRunner(), logger)
}
