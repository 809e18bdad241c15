package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// FSLoader reads documents from the local filesystem.
type FSLoader struct {
	MaxBytes int64 // 0 -> unlimited
	logger   *slog.Logger
}

var _ Loader = (*FSLoader)(nil)

func NewFSLoader(maxBytes int64, logger *slog.Logger) *FSLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSLoader{MaxBytes: maxBytes, logger: logger}
}

func (l *FSLoader) LoadPath(ctx context.Context, path string) (LoadResult, error) {
	out := LoadResult{SourcePath: path}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs

	ext, ok := documentExt(abs)
	if !ok {
		return out, common.NewAppError(common.CodeUnsupported,
			fmt.Sprintf("unsupported or missing extension %q", ext), common.ErrInvalidInput)
	}

	f, err := os.Open(abs)
	if err != nil {
		return out, fmt.Errorf("open: %w", err)
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			l.logger.Warn("ingest.close_failed", "path", abs, "error", err)
		}
	}(f)

	var r io.Reader = f
	if l.MaxBytes > 0 {
		r = io.LimitReader(f, l.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return out, fmt.Errorf("read: %w", err)
	}

	v := common.NewValidator().
		Field("file", data, common.MaxBytes(l.MaxBytes))
	if err := v.Error(); err != nil {
		return out, err
	}

	sum := sha256.Sum256(data)
	out.HashHex = hex.EncodeToString(sum[:])
	out.Doc = &entity.RawDocument{
		FileName: filepath.Base(abs),
		MimeType: constants.MimeForPath(abs),
		Data:     data,
	}
	l.logger.Debug("ingest.loaded", "path", abs, "bytes", len(data), "sha256", out.HashHex)
	return out, nil
}
