package ocr

import "context"

// PageRecognizer turns one page image into text. Implementations call an OCR oracle
// (remote vision API or a local engine) and must be safe for concurrent use.
type PageRecognizer interface {
	RecognizePage(ctx context.Context, img []byte, languageHints []string) (string, error)
}
