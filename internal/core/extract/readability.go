package extract

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/committee-extract/internal/common"
)

// DefaultReadabilityThreshold is the gate below which no LLM call is made.
const DefaultReadabilityThreshold = 30.0

const punctuation = `.,:;!?()[]{}"'-/%@#&*+=_<>|` + "׳״–"

func isReadable(r rune) bool {
	switch {
	case unicode.Is(unicode.Hebrew, r):
		return true
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune(punctuation, r)
}

func isLetter(r rune) bool {
	return (r >= 0x05D0 && r <= 0x05EA) || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// ReadabilityScore returns a value in [0,100]: the percentage of readable characters plus
// min(words/10*5, 15), where words are whitespace-separated tokens longer than one rune that
// contain a Hebrew or Latin letter. Whitespace is neutral, so reflowing it never changes the score.
func ReadabilityScore(text string) float64 {
	var total, readable int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isReadable(r) {
			readable++
		}
	}
	if total == 0 {
		return 0
	}

	words := 0
	for _, tok := range strings.Fields(text) {
		if len([]rune(tok)) <= 1 {
			continue
		}
		if strings.IndexFunc(tok, isLetter) >= 0 {
			words++
		}
	}

	pct := float64(readable) / float64(total) * 100
	bonus := math.Min(float64(words)/10*5, 15)
	return math.Min(pct+bonus, 100)
}

// ReadabilityGate rejects text scoring below Threshold.
type ReadabilityGate struct {
	Threshold float64
}

// Check returns the score, and an ErrUnreadableText error when it is below the threshold.
func (g ReadabilityGate) Check(text string) (float64, error) {
	score := ReadabilityScore(text)
	if score < g.Threshold {
		return score, common.NewAppError(common.CodeUnreadable,
			fmt.Sprintf("readability %.1f below %.1f", score, g.Threshold), common.ErrUnreadableText)
	}
	return score, nil
}
