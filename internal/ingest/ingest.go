package ingest

import (
	"context"

	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// LoadResult is the per-file load outcome.
type LoadResult struct {
	SourcePath string
	Doc        *entity.RawDocument
	HashHex    string
	Duplicate  bool
	Err        string
}

// DirStats summarizes a directory load.
type DirStats struct {
	Scanned    uint32
	Matched    uint32
	Loaded     uint32
	Duplicates uint32
	Failed     uint32
}

// Loader turns filesystem paths into RawDocuments for the pipeline.
type Loader interface {
	// LoadPath reads a single file.
	LoadPath(ctx context.Context, path string) (LoadResult, error)
	// LoadDirectory loads all matching files under root in lexical order.
	LoadDirectory(ctx context.Context, root string, skipHidden bool) ([]LoadResult, DirStats, error)
}

// Documents returns the loaded, non-duplicate documents of results in order.
func Documents(results []LoadResult) []*entity.RawDocument {
	out := make([]*entity.RawDocument, 0, len(results))
	for _, r := range results {
		if r.Doc != nil && !r.Duplicate && r.Err == "" {
			out = append(out, r.Doc)
		}
	}
	return out
}
