package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/core/ocr"
)

// OCRStrategy rasterizes up to MaxPages pages and submits each page image to an OCR oracle.
// A page whose recognition fails contributes no text; it does not fail the stage.
type OCRStrategy struct {
	Rasterizer    ocr.Rasterizer
	Recognizer    ocr.PageRecognizer
	MaxPages      int
	MaxImageDim   int
	LanguageHints []string
	Min           int
	logger        *slog.Logger
}

func NewOCRStrategy(r ocr.Rasterizer, rec ocr.PageRecognizer, maxPages, maxImageDim, minChars int, hints []string, logger *slog.Logger) *OCRStrategy {
	if maxPages <= 0 {
		maxPages = 5
	}
	if minChars <= 0 {
		minChars = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStrategy{
		Rasterizer:    r,
		Recognizer:    rec,
		MaxPages:      maxPages,
		MaxImageDim:   maxImageDim,
		LanguageHints: hints,
		Min:           minChars,
		logger:        logger,
	}
}

func (s *OCRStrategy) Name() string  { return "ocr" }
func (s *OCRStrategy) MinChars() int { return s.Min }

func (s *OCRStrategy) Applies(in Input) bool {
	if s.Recognizer == nil {
		return false
	}
	switch in.Doc.Format() {
	case constants.IMAGE:
		return true
	case constants.PDF:
		return s.Rasterizer != nil
	}
	return false
}

func (s *OCRStrategy) Extract(ctx context.Context, in Input) (string, error) {
	var pages []string
	recognize := func(pageNr int, img []byte) error {
		prepared, err := ocr.PrepareImage(img, s.MaxImageDim)
		if err != nil {
			s.logger.Debug("ocr.page.prepare_skipped", "file", in.Doc.FileName, "page", pageNr, "error", err)
			prepared = img
		}
		text, err := s.Recognizer.RecognizePage(ctx, prepared, s.LanguageHints)
		if err != nil {
			s.logger.Warn("ocr.page.failed", "file", in.Doc.FileName, "page", pageNr, "error", err)
			return ctx.Err()
		}
		if t := strings.TrimSpace(text); t != "" {
			pages = append(pages, t)
		}
		return ctx.Err()
	}

	switch in.Doc.Format() {
	case constants.IMAGE:
		if err := recognize(1, in.Doc.Data); err != nil {
			return "", err
		}
	case constants.PDF:
		maxPages := s.MaxPages
		if in.Info != nil && in.Info.Pages > 0 && in.Info.Pages < maxPages {
			maxPages = in.Info.Pages
		}
		if err := s.Rasterizer.RenderPages(ctx, in.Doc.Data, maxPages, recognize); err != nil {
			return "", err
		}
	default:
		return "", errors.New("unsupported document format")
	}

	s.logger.Debug("ocr.pages.done", "file", in.Doc.FileName, "pages_with_text", len(pages))
	return ocr.Normalize(ocr.RepairRTL(strings.Join(pages, "\n\n"))), nil
}
