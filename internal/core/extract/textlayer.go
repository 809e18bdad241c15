package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/committee-extract/constants"
)

// TextLayerStrategy reads the embedded text layer page by page, capped at MaxPages.
// PDFs whose probe reports an image on every page are left to OCR unless ReadScanned is set.
type TextLayerStrategy struct {
	MaxPages    int
	Min         int
	ReadScanned bool
	logger      *slog.Logger
}

func NewTextLayerStrategy(maxPages, minChars int, logger *slog.Logger) *TextLayerStrategy {
	if maxPages <= 0 {
		maxPages = 20
	}
	if minChars <= 0 {
		minChars = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TextLayerStrategy{MaxPages: maxPages, Min: minChars, logger: logger}
}

func (s *TextLayerStrategy) Name() string  { return "text-layer" }
func (s *TextLayerStrategy) MinChars() int { return s.Min }

func (s *TextLayerStrategy) Applies(in Input) bool {
	if in.Doc.Format() != constants.PDF {
		return false
	}
	return s.ReadScanned || in.Info == nil || !in.Info.Scanned()
}

func (s *TextLayerStrategy) Extract(_ context.Context, in Input) (text string, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read text layer: %v", r)
		}
	}()

	content := in.Doc.Data
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	numPages := r.NumPage()
	if numPages > s.MaxPages {
		s.logger.Debug("text_layer.page_cap", "file", in.Doc.FileName, "pages", numPages, "cap", s.MaxPages)
		numPages = s.MaxPages
	}

	var b strings.Builder
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			s.logger.Warn("text_layer.page_failed", "file", in.Doc.FileName, "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}
