// Package llm builds extraction prompts and turns model completions into schema records.
package llm

import "context"

// Completer issues a single completion request and returns the raw response text.
// Implementations do not retry; every failure is reported as ErrOracleUnavailable.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Image is one rendered page attached to a multimodal request.
type Image struct {
	MimeType string
	Data     []byte
}

// VisionCompleter completes a prompt that refers to attached page images.
type VisionCompleter interface {
	CompleteWithImages(ctx context.Context, prompt string, images []Image) (string, error)
}
