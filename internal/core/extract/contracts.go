package extract

import (
	"context"

	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// Input is what every cascade strategy sees: the document plus the PDF probe, when available.
type Input struct {
	Doc  *entity.RawDocument
	Info *PDFInfo
}

// Strategy is one stage of the extraction cascade.
type Strategy interface {
	Name() string
	// MinChars is the acceptance threshold in runes of trimmed text.
	MinChars() int
	Applies(in Input) bool
	Extract(ctx context.Context, in Input) (string, error)
}

// Outcome of a single strategy attempt.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeInsufficient Outcome = "insufficient"
	OutcomeFailure      Outcome = "failure"
	OutcomeSkipped      Outcome = "skipped"
)

// Attempt is the transient record of one strategy run. Never persisted.
type Attempt struct {
	Strategy string
	Outcome  Outcome
	Length   int
	Reason   string
}

// Text is the accepted output of the cascade, tagged with the strategy that produced it.
type Text struct {
	Text     string
	Strategy string
	Attempts []Attempt
}
