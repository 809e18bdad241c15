package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

type WatchConfig struct {
	Roots       []string // directories to watch (recursive)
	InitialScan bool     // if true, walk roots and emit existing files
	Debounce    time.Duration
}

// StartWatcher emits paths of supported files created or written under cfg.Roots.
// Both channels close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("watcher start failed: no roots provided")
		return nil, nil, errors.New("no roots provided")
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != root && hidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if cfg.InitialScan && watchable(path) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}
	logger.Info("watch.started", "roots", cfg.Roots, "initial", len(initial))

	go func() {
		var mu sync.Mutex
		pending := map[string]struct{}{}
		var timer *time.Timer

		emit := func(p string) {
			select {
			case evCh <- p:
			case <-ctx.Done():
			}
		}
		flush := func() {
			mu.Lock()
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			mu.Unlock()
			for _, p := range paths {
				emit(p)
			}
		}
		var flushing sync.WaitGroup

		defer func() {
			mu.Lock()
			if timer != nil && timer.Stop() {
				flushing.Done()
			}
			mu.Unlock()
			flushing.Wait()
			if err := w.Close(); err != nil {
				logger.Warn("watcher close failed", "error", err)
			}
			close(evCh)
			close(errCh)
		}()

		for _, p := range initial {
			emit(p)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create == fsnotify.Create {
					if fi, err := os.Stat(e.Name); err == nil && fi.IsDir() && !hidden(e.Name) {
						if err := w.Add(e.Name); err != nil {
							logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
						}
						continue
					}
				}
				if !watchable(e.Name) || e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if cfg.Debounce <= 0 {
					emit(e.Name)
					continue
				}
				mu.Lock()
				pending[e.Name] = struct{}{}
				if timer != nil && timer.Stop() {
					flushing.Done()
				}
				flushing.Add(1)
				timer = time.AfterFunc(cfg.Debounce, func() {
					defer flushing.Done()
					flush()
				})
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func watchable(path string) bool {
	_, ok := documentExt(path)
	return ok && !hidden(path)
}

// SubmitFunc hands one loaded document to the pipeline.
type SubmitFunc func(ctx context.Context, doc *entity.RawDocument) error

// Feed loads every path received on paths and submits it until paths closes or ctx is done.
// A file that fails to load or submit is logged and skipped. Returns the number submitted.
func Feed(ctx context.Context, paths <-chan string, loader Loader, submit SubmitFunc, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n
		case p, ok := <-paths:
			if !ok {
				return n
			}
			r, err := loader.LoadPath(ctx, p)
			if err != nil {
				logger.Warn("watch.load_failed", "path", p, "error", err)
				continue
			}
			if err := submit(ctx, r.Doc); err != nil {
				logger.Error("watch.submit_failed", "path", p, "error", err)
				continue
			}
			logger.Info("watch.submitted", "path", r.SourcePath, "sha256", r.HashHex)
			n++
		}
	}
}
