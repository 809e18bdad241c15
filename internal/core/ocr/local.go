package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// LocalConfig configures the local tesseract engine.
type LocalConfig struct {
	Binary      string // default "tesseract"
	TessdataDir string
	PSM         int // page segmentation mode, default 6
	Required    []string
}

// LocalEngine is the process-wide local OCR backend. Loading it (probing the binary and
// its language data) is expensive, so it happens lazily once; concurrent callers wait on
// the same in-flight initialization. Close resets it and the next call loads again.
type LocalEngine struct {
	cfg    LocalConfig
	runner Runner
	logger *slog.Logger

	mu    sync.Mutex
	init  *engineInit
	loads atomic.Int32
}

type engineInit struct {
	done  chan struct{}
	err   error
	langs map[string]struct{}
}

func NewLocalEngine(cfg LocalConfig, runner Runner, logger *slog.Logger) *LocalEngine {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 6
	}
	if len(cfg.Required) == 0 {
		cfg.Required = []string{"heb"}
	}
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalEngine{cfg: cfg, runner: runner, logger: logger}
}

var (
	localOnce   sync.Once
	localEngine *LocalEngine
)

// SharedLocalEngine returns the process-wide engine, creating it with cfg on first use.
// Later calls ignore cfg.
func SharedLocalEngine(cfg LocalConfig, logger *slog.Logger) *LocalEngine {
	localOnce.Do(func() {
		localEngine = NewLocalEngine(cfg, nil, logger)
	})
	return localEngine
}

// Initialize loads the engine if needed. A failed load is not cached.
func (e *LocalEngine) Initialize(ctx context.Context) error {
	_, err := e.ready(ctx)
	return err
}

func (e *LocalEngine) ready(ctx context.Context) (*engineInit, error) {
	e.mu.Lock()
	if st := e.init; st != nil {
		e.mu.Unlock()
		select {
		case <-st.done:
			return st, st.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	st := &engineInit{done: make(chan struct{})}
	e.init = st
	e.mu.Unlock()

	st.langs, st.err = e.load(ctx)
	close(st.done)
	if st.err != nil {
		e.mu.Lock()
		if e.init == st {
			e.init = nil
		}
		e.mu.Unlock()
	}
	return st, st.err
}

func (e *LocalEngine) load(ctx context.Context) (map[string]struct{}, error) {
	e.loads.Add(1)
	args := []string{"--list-langs"}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, e.logger, args...)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", e.cfg.Binary, err)
	}
	langs := map[string]struct{}{}
	// older tesseract builds print the list on stderr
	for _, line := range strings.Split(string(out)+"\n"+string(errb), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, " ") {
			continue
		}
		langs[line] = struct{}{}
	}
	for _, want := range e.cfg.Required {
		if _, ok := langs[want]; !ok {
			return nil, fmt.Errorf("tesseract language data %q not installed", want)
		}
	}
	e.logger.Info("ocr.local.initialized", "binary", e.cfg.Binary, "languages", len(langs))
	return langs, nil
}

// Loads reports how many times the engine actually probed the binary.
func (e *LocalEngine) Loads() int {
	return int(e.loads.Load())
}

// Close tears the engine down, waiting for an in-flight initialization first.
func (e *LocalEngine) Close() error {
	e.mu.Lock()
	st := e.init
	e.mu.Unlock()
	if st != nil {
		<-st.done
	}
	e.mu.Lock()
	if e.init == st {
		e.init = nil
	}
	e.mu.Unlock()
	return nil
}

// tesseract language codes for ISO 639-1 hints
var tessLangs = map[string]string{"he": "heb", "iw": "heb", "en": "eng", "ar": "ara"}

// RecognizePage runs tesseract on one page image. It initializes the engine on first use.
func (e *LocalEngine) RecognizePage(ctx context.Context, img []byte, languageHints []string) (string, error) {
	st, err := e.ready(ctx)
	if err != nil {
		return "", err
	}

	var langs []string
	for _, h := range languageHints {
		code, ok := tessLangs[strings.ToLower(h)]
		if !ok {
			code = h
		}
		if _, installed := st.langs[code]; installed {
			langs = append(langs, code)
		}
	}
	if len(langs) == 0 {
		langs = e.cfg.Required
	}

	tmp, err := os.MkdirTemp("", "committee-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	in := filepath.Join(tmp, "page.png")
	if err := os.WriteFile(in, img, 0o600); err != nil {
		return "", fmt.Errorf("write page image: %w", err)
	}

	args := []string{in, "stdout", "-l", strings.Join(langs, "+"), "--psm", strconv.Itoa(e.cfg.PSM)}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, e.logger, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}
