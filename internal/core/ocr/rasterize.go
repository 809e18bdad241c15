package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Rasterizer renders PDF pages to PNG images, one page at a time.
// visit receives each page in order; the image buffer must not be retained after visit returns.
type Rasterizer interface {
	RenderPages(ctx context.Context, pdf []byte, maxPages int, visit func(pageNr int, png []byte) error) error
}

// PdftoppmRasterizer shells out to poppler's pdftoppm.
type PdftoppmRasterizer struct {
	Binary string
	DPI    int
	runner Runner
	logger *slog.Logger
}

func NewPdftoppmRasterizer(binary string, dpi int, runner Runner, logger *slog.Logger) *PdftoppmRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 200
	}
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PdftoppmRasterizer{Binary: binary, DPI: dpi, runner: runner, logger: logger}
}

func (p *PdftoppmRasterizer) RenderPages(ctx context.Context, pdf []byte, maxPages int, visit func(int, []byte) error) error {
	tmpDir, err := os.MkdirTemp("", "committee-pp-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			p.logger.Warn("ocr.rasterize.cleanup_failed", "dir", path, "error", err)
		}
	}(tmpDir)

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return fmt.Errorf("write temp pdf: %w", err)
	}

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(p.DPI), "-png"}
	if maxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(maxPages))
	}
	args = append(args, in, prefix)
	if _, errb, err := p.runner.Run(ctx, p.Binary, p.logger, args...); err != nil {
		return fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	// pdftoppm zero-pads page numbers uniformly, so lexical order is page order.
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if maxPages > 0 && len(matches) > maxPages {
		matches = matches[:maxPages]
	}
	if len(matches) == 0 {
		return fmt.Errorf("pdftoppm produced no images")
	}

	for i, path := range matches {
		img, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read page %d: %w", i+1, err)
		}
		// drop the page file before handing the buffer on
		_ = os.Remove(path)
		if err := visit(i+1, img); err != nil {
			return err
		}
	}
	return nil
}
