// Package core wires the extraction cascade, the readability gate and the LLM into
// the per-document processing path.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core/extract"
	"github.com/joseph-ayodele/committee-extract/internal/core/llm"
	"github.com/joseph-ayodele/committee-extract/internal/core/ocr"
	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// StrategyVision tags records produced by the multimodal fallback.
const StrategyVision = "vision-llm"

// Observer receives a snapshot of a record after every status change.
type Observer func(rec entity.Record)

// Processor takes one document from raw bytes to a terminal record.
type Processor struct {
	logger         *slog.Logger
	schema         *schema.Schema
	cascade        *extract.Cascade
	gate           extract.ReadabilityGate
	completer      llm.Completer
	validator      *llm.RecordValidator
	promptMaxChars int
	vision         *visionFallback
}

type visionFallback struct {
	completer   llm.VisionCompleter
	rasterizer  ocr.Rasterizer
	maxPages    int
	maxImageDim int
}

type Option func(*Processor)

func WithSchema(s *schema.Schema) Option {
	return func(p *Processor) {
		if s != nil {
			p.schema = s
		}
	}
}

func WithReadabilityThreshold(t float64) Option {
	return func(p *Processor) {
		if t > 0 {
			p.gate.Threshold = t
		}
	}
}

func WithPromptMaxChars(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.promptMaxChars = n
		}
	}
}

// WithVisionFallback sends page images to vc when every text strategy failed.
func WithVisionFallback(vc llm.VisionCompleter, r ocr.Rasterizer, maxPages, maxImageDim int) Option {
	return func(p *Processor) {
		if vc == nil {
			return
		}
		if maxPages <= 0 {
			maxPages = 3
		}
		p.vision = &visionFallback{completer: vc, rasterizer: r, maxPages: maxPages, maxImageDim: maxImageDim}
	}
}

func NewProcessor(cascade *extract.Cascade, completer llm.Completer, logger *slog.Logger, opts ...Option) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		logger:         logger,
		schema:         schema.Committee,
		cascade:        cascade,
		gate:           extract.ReadabilityGate{Threshold: extract.DefaultReadabilityThreshold},
		completer:      completer,
		promptMaxChars: llm.DefaultPromptMaxChars,
	}
	for _, o := range opts {
		o(p)
	}
	v, err := llm.NewRecordValidator(p.schema)
	if err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}
	p.validator = v
	return p, nil
}

// Schema is the record schema this processor fills.
func (p *Processor) Schema() *schema.Schema { return p.schema }

// Process creates a record for doc and drives it to a terminal state.
func (p *Processor) Process(ctx context.Context, doc *entity.RawDocument) *entity.Record {
	rec := entity.NewRecord(doc.FileName, p.schema)
	_ = p.ProcessRecord(ctx, rec, doc, nil)
	return rec
}

// ProcessRecord moves a pending record through processing to completed or error.
// The returned error is the document-level failure already stored on the record;
// it is informational and never requires the caller to stop other documents.
func (p *Processor) ProcessRecord(ctx context.Context, rec *entity.Record, doc *entity.RawDocument, notify Observer) (err error) {
	log := common.LoggerWithContext(ctx, p.logger).With("file", doc.FileName, "record_id", rec.ID)
	if err := rec.Start(); err != nil {
		return err
	}
	emit(notify, rec)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("processor.panic", "panic", fmt.Sprint(r))
			err = common.NewAppError(common.CodeExtraction, "internal error", fmt.Errorf("%w: %v", common.ErrInternal, r))
		}
		if err != nil {
			if ferr := rec.Fail(err); ferr != nil {
				log.Error("processor.status.invalid", "error", ferr)
			}
			log.Error("processor.document.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		}
		emit(notify, rec)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := p.extract(ctx, rec, doc, log)
	if err != nil {
		return err
	}
	rec.Degraded = res.Degraded()
	if err := rec.Complete(res.Fields, res.Decisions); err != nil {
		return err
	}
	log.Info("processor.document.completed",
		"strategy", rec.Strategy,
		"readability", rec.Readability,
		"normalize", res.Method,
		"decisions", len(res.Decisions),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func emit(notify Observer, rec *entity.Record) {
	if notify != nil {
		notify(rec.Clone())
	}
}

func (p *Processor) extract(ctx context.Context, rec *entity.Record, doc *entity.RawDocument, log *slog.Logger) (llm.Normalized, error) {
	if len(doc.Data) == 0 {
		return llm.Normalized{}, common.NewAppError(common.CodeUnsupported, "empty document", common.ErrInvalidInput)
	}
	if doc.Format() == "" {
		return llm.Normalized{}, common.NewAppError(common.CodeUnsupported,
			fmt.Sprintf("unsupported document type %q", doc.MimeType), common.ErrInvalidInput)
	}

	text, err := p.cascade.Extract(ctx, doc)
	if err != nil {
		if errors.Is(err, common.ErrExtractionExhausted) && p.vision != nil {
			log.Info("processor.vision_fallback", "reason", err)
			return p.extractFromImages(ctx, rec, doc, err, log)
		}
		return llm.Normalized{}, err
	}
	rec.Strategy = text.Strategy

	score, err := p.gate.Check(text.Text)
	rec.Readability = score
	if err != nil {
		return llm.Normalized{}, err
	}
	log.Debug("processor.readability.ok", "score", score, "strategy", text.Strategy)

	raw, err := p.completer.Complete(ctx, llm.BuildPrompt(text.Text, p.schema, p.promptMaxChars))
	if err != nil {
		return llm.Normalized{}, err
	}
	return p.normalize(raw, log), nil
}

// extractFromImages is the multimodal path used only after the text cascade found nothing.
func (p *Processor) extractFromImages(ctx context.Context, rec *entity.Record, doc *entity.RawDocument, cause error, log *slog.Logger) (llm.Normalized, error) {
	var images []llm.Image
	add := func(pageNr int, img []byte) error {
		page := llm.Image{MimeType: constants.MimePNG}
		prepared, err := ocr.PrepareImage(img, p.vision.maxImageDim)
		if err != nil {
			// send the page as it came; an empty MimeType is sniffed from the bytes
			log.Debug("processor.vision_fallback.prepare_skipped", "page", pageNr, "error", err)
			page.MimeType = ""
			prepared = img
		}
		page.Data = prepared
		images = append(images, page)
		return ctx.Err()
	}

	switch doc.Format() {
	case constants.IMAGE:
		_ = add(1, doc.Data)
	case constants.PDF:
		if p.vision.rasterizer != nil {
			if err := p.vision.rasterizer.RenderPages(ctx, doc.Data, p.vision.maxPages, add); err != nil {
				log.Warn("processor.vision_fallback.render_failed", "error", err)
			}
		}
	}
	if len(images) == 0 {
		return llm.Normalized{}, cause
	}

	rec.Strategy = StrategyVision
	raw, err := p.vision.completer.CompleteWithImages(ctx, llm.BuildImagePrompt(p.schema, len(images)), images)
	if err != nil {
		return llm.Normalized{}, err
	}
	return p.normalize(raw, log), nil
}

func (p *Processor) normalize(raw string, log *slog.Logger) llm.Normalized {
	res := llm.Normalize(raw, p.schema, log)
	if err := p.validator.Validate(res.Fields); err != nil {
		log.Error("processor.validate.failed", "error", err)
	}
	if res.Degraded() {
		log.Warn("processor.normalize.degraded", "method", res.Method, "error", common.ErrMalformedResponse)
	}
	return res
}
