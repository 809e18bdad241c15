package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/committee-extract/constants"
)

// LoadDirectory walks root, skips hidden entries if requested, and loads each supported file.
// Byte-identical files are reported once; later copies come back with Duplicate set.
func (l *FSLoader) LoadDirectory(ctx context.Context, root string, skipHidden bool) ([]LoadResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []LoadResult
	var stats DirStats
	seen := map[string]string{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, LoadResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && hidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := documentExt(path); !ok {
			return nil
		}
		stats.Matched++

		r, err := l.LoadPath(ctx, path)
		if err != nil {
			l.logger.Warn("ingest.load_failed", "path", path, "error", err)
			results = append(results, LoadResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		if first, ok := seen[r.HashHex]; ok {
			l.logger.Info("ingest.duplicate", "path", r.SourcePath, "same_as", first)
			r.Duplicate = true
			stats.Duplicates++
		} else {
			seen[r.HashHex] = r.SourcePath
			stats.Loaded++
		}
		results = append(results, r)
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	l.logger.Info("ingest.directory.done", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched, "loaded", stats.Loaded,
		"duplicates", stats.Duplicates, "failed", stats.Failed)
	return results, stats, nil
}

// documentExt returns the normalized extension of path and whether it names a committee
// document format (pdf, png, jpg, jpeg).
func documentExt(path string) (string, bool) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	_, ok := constants.AllowedExtensions[ext]
	return ext, ok && ext != ""
}

// hidden reports whether the last element of path is a dot-file or dot-directory.
func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
