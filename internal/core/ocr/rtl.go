package ocr

import (
	"strings"
	"unicode"
)

// IsHebrew reports whether r is in the Hebrew block.
func IsHebrew(r rune) bool {
	return unicode.Is(unicode.Hebrew, r)
}

func hasHebrew(s string) bool {
	for _, r := range s {
		if IsHebrew(r) {
			return true
		}
	}
	return false
}

// RepairRTL reorders each line that mixes Hebrew and non-Hebrew tokens so that the
// Hebrew tokens come first, each group keeping its original relative order.
// Lines with a single script are returned untouched.
func RepairRTL(text string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		tokens := strings.Fields(line)
		var heb, other []string
		for _, t := range tokens {
			if hasHebrew(t) {
				heb = append(heb, t)
			} else {
				other = append(other, t)
			}
		}
		if len(heb) == 0 || len(other) == 0 {
			continue
		}
		lines[i] = strings.Join(append(heb, other...), " ")
	}
	return strings.Join(lines, "\n")
}
