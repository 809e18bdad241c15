// Package extract turns raw committee documents into text through an ordered cascade
// of strategies and scores the result before any LLM call is spent on it.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// Cascade tries strategies in fixed order and returns the first result meeting its threshold.
type Cascade struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewCascade(logger *slog.Logger, strategies ...Strategy) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{strategies: strategies, logger: logger}
}

// Strategies returns the configured strategy names in order.
func (c *Cascade) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract runs the cascade. The returned text is trimmed and at least as long as the
// winning strategy's MinChars; otherwise the error wraps common.ErrExtractionExhausted.
func (c *Cascade) Extract(ctx context.Context, doc *entity.RawDocument) (Text, error) {
	log := common.LoggerWithContext(ctx, c.logger).With("file", doc.FileName)
	in := Input{Doc: doc}

	if doc.Format() == constants.PDF {
		info, err := ProbePDF(doc.Data)
		if err != nil {
			log.Warn("cascade.probe.failed", "error", err)
		} else {
			in.Info = &info
			log.Debug("cascade.probe.ok", "pages", info.Pages, "image_pages", info.ImagePages, "scanned", info.Scanned())
		}
	}

	var attempts []Attempt
	for _, s := range c.strategies {
		if !s.Applies(in) {
			attempts = append(attempts, Attempt{Strategy: s.Name(), Outcome: OutcomeSkipped})
			continue
		}
		start := time.Now()
		log.Debug("cascade.stage.start", "strategy", s.Name())

		text, err := s.Extract(ctx, in)
		text = strings.TrimSpace(text)
		n := utf8.RuneCountInString(text)
		elapsed := time.Since(start).Milliseconds()

		switch {
		case err != nil:
			attempts = append(attempts, Attempt{Strategy: s.Name(), Outcome: OutcomeFailure, Length: n, Reason: err.Error()})
			log.Info("cascade.stage.failed", "strategy", s.Name(), "error", err, "elapsed_ms", elapsed)
		case n < s.MinChars():
			reason := fmt.Errorf("%w: %d < %d chars", common.ErrExtractionInsufficient, n, s.MinChars())
			attempts = append(attempts, Attempt{Strategy: s.Name(), Outcome: OutcomeInsufficient, Length: n, Reason: reason.Error()})
			log.Info("cascade.stage.insufficient", "strategy", s.Name(), "length", n, "min", s.MinChars(), "elapsed_ms", elapsed)
		default:
			attempts = append(attempts, Attempt{Strategy: s.Name(), Outcome: OutcomeSuccess, Length: n})
			log.Info("cascade.stage.ok", "strategy", s.Name(), "length", n, "elapsed_ms", elapsed)
			return Text{Text: text, Strategy: s.Name(), Attempts: attempts}, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	log.Warn("cascade.exhausted", "attempts", len(attempts))
	return Text{Attempts: attempts}, common.NewAppError(common.CodeExtraction, summarize(attempts), common.ErrExtractionExhausted)
}

func summarize(attempts []Attempt) string {
	if len(attempts) == 0 {
		return "no strategy configured"
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if a.Outcome == OutcomeSkipped {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s(%d)", a.Strategy, a.Outcome, a.Length))
	}
	if len(parts) == 0 {
		return "no strategy applies to this document"
	}
	return strings.Join(parts, ", ")
}
