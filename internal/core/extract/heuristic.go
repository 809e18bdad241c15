package extract

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// HeuristicStrategy is the last resort: it decodes the raw bytes several ways and keeps
// only fragments that look like committee vocabulary, ids, dates or percentages.
// The result is approximate by nature.
type HeuristicStrategy struct {
	Min          int
	MaxFragments int
}

func NewHeuristicStrategy(minChars, maxFragments int) *HeuristicStrategy {
	if minChars <= 0 {
		minChars = 50
	}
	if maxFragments <= 0 {
		maxFragments = 400
	}
	return &HeuristicStrategy{Min: minChars, MaxFragments: maxFragments}
}

func (s *HeuristicStrategy) Name() string       { return "heuristic" }
func (s *HeuristicStrategy) MinChars() int      { return s.Min }
func (s *HeuristicStrategy) Applies(Input) bool { return true }

const hebLetters = `\x{05D0}-\x{05EA}`

var fragmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:המוסד לביטוח לאומי|ביטוח לאומי|ועדה רפואית|ועדת עררים|הועדה|ועדה|ועדת|נפגעי עבודה|נכות כללית|המבוטח|מבוטח|אבחנה|אבחנות|ליקוי|סעיף|החלטה|החלטות|תקנה|אחוז|נכות)(?:[ \t]+[` + hebLetters + `"'׳״.\-]+){0,4}`),
	regexp.MustCompile(`\b\d{9}\b`),
	regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-](?:19|20)?\d{2}\b`),
	regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,2})?\s?%`),
	regexp.MustCompile(`\b\d{1,3}\(\d{1,2}\)(?:\([` + hebLetters + `a-z]{1,2}\))*`),
	regexp.MustCompile(`[` + hebLetters + `]{3,}`),
}

var reStream = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\nendstream`)

func (s *HeuristicStrategy) Extract(ctx context.Context, in Input) (string, error) {
	seen := map[string]struct{}{}
	var fragments []string

	for _, decoded := range decodings(in.Doc.Data) {
		for _, re := range fragmentPatterns {
			for _, m := range re.FindAllString(decoded, -1) {
				m = strings.TrimSpace(m)
				if m == "" {
					continue
				}
				if _, dup := seen[m]; dup {
					continue
				}
				seen[m] = struct{}{}
				fragments = append(fragments, m)
				if len(fragments) >= s.MaxFragments {
					return strings.Join(fragments, " "), nil
				}
			}
		}
		if ctx.Err() != nil {
			return strings.Join(fragments, " "), ctx.Err()
		}
	}
	return strings.Join(fragments, " "), nil
}

// decodings returns candidate texts for data and for every deflated stream inside it.
func decodings(data []byte) []string {
	sources := [][]byte{data}
	for _, m := range reStream.FindAllSubmatch(data, 32) {
		if inflated, ok := inflate(m[1]); ok {
			sources = append(sources, inflated)
		}
	}

	var out []string
	for _, src := range sources {
		out = append(out, decodeUTF8(src), decodeHebrewSingleByte(src))
		if s, err := charmap.Windows1255.NewDecoder().Bytes(src); err == nil {
			out = append(out, string(s))
		}
	}
	return out
}

func inflate(b []byte) ([]byte, bool) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, false
	}
	defer func() { _ = zr.Close() }()
	// a truncated stream still yields a useful prefix, so read errors are ignored
	out, _ := io.ReadAll(io.LimitReader(zr, 8<<20))
	return out, len(out) > 0
}

func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), " ")
}

// decodeHebrewSingleByte maps 0xE0..0xFA onto the Hebrew letters (the ISO-8859-8 /
// Windows-1255 letter range), keeps printable ASCII and whitespace, and blanks the rest.
func decodeHebrewSingleByte(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		switch {
		case c >= 0xE0 && c <= 0xFA:
			sb.WriteRune(rune(0x05D0 + int(c-0xE0)))
		case c >= 0x20 && c <= 0x7E, c == '\n', c == '\r', c == '\t':
			sb.WriteByte(c)
		default:
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}
