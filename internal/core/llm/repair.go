package llm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reFence        = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \\t]*\\r?\\n?(.*?)\\r?\\n?[ \\t]*```$")
	reOpenFence    = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \\t]*\\r?\\n")
	reGershayim    = regexp.MustCompile(`(\p{Hebrew})"(\p{Hebrew})`)
	reBareKey      = regexp.MustCompile(`([{,\n][ \t]*)([^\s"'{}\[\],:]+(?:[ \t]+[^\s"'{}\[\],:]+)*)([ \t]*:)`)
	reTrailComma   = regexp.MustCompile(`,(\s*[}\]])`)
	reLiteralValue = regexp.MustCompile(`^(?:true|false|null|-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?)$`)
)

// StripFence removes a Markdown code fence wrapping the whole response.
func StripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	if m := reFence.FindStringSubmatch(t); m != nil {
		return m[1]
	}
	// unterminated fence from a truncated response
	return reOpenFence.ReplaceAllString(t, "")
}

// SliceObject keeps the text between the first '{' and the last '}'.
// Without a closing brace the tail is kept so a later pass can balance it.
func SliceObject(s string) string {
	i := strings.IndexByte(s, '{')
	if i < 0 {
		return s
	}
	j := strings.LastIndexByte(s, '}')
	if j < i {
		return s[i:]
	}
	return s[i : j+1]
}

// Repair applies the textual fixes for the malformations models commonly emit:
// unescaped gershayim inside Hebrew words, smart-quote delimiters, bare property names,
// missing commas between adjacent values, trailing commas, and "null" as a string.
// It leaves valid JSON structurally unchanged and is idempotent.
func Repair(s string) string {
	s = reGershayim.ReplaceAllString(s, "$1״$2")
	s = scanCommas(s)
	s = mapOutsideStrings(s, func(seg string) string {
		seg = quoteBareKeys(seg)
		return reTrailComma.ReplaceAllString(seg, "$1")
	})
	s = scanCommas(s)
	return nullStrings(s)
}

// AggressiveRepair is the second pass: it strips invisible characters, normalizes
// non-breaking spaces, escapes raw control characters inside strings and closes
// brackets left open by truncation, then runs Repair again.
func AggressiveRepair(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\u00a0' || r == '\u2007' || r == '\u202f':
			return ' '
		case isInvisible(r):
			return -1
		}
		return r
	}, s)
	s = escapeControlInStrings(s)
	s = balanceBrackets(s)
	return Repair(s)
}

func isInvisible(r rune) bool {
	switch {
	case r >= '\u200b' && r <= '\u200f',
		r >= '\u202a' && r <= '\u202e',
		r >= '\u2060' && r <= '\u2064',
		r == '\ufeff', r == '\u00ad':
		return true
	}
	return false
}

func quoteBareKeys(seg string) string {
	return reBareKey.ReplaceAllStringFunc(seg, func(m string) string {
		sub := reBareKey.FindStringSubmatch(m)
		if reLiteralValue.MatchString(sub[2]) {
			return m
		}
		return sub[1] + `"` + sub[2] + `"` + sub[3]
	})
}

func isSmartQuote(r rune) bool {
	return r == '“' || r == '”' || r == '„' || r == '‟'
}

// scanCommas walks the text once, tracking string state. Outside strings it turns
// smart-quote delimiters into ASCII quotes and inserts a comma wherever a value end
// ('}', ']', a closing quote or a literal) is followed directly by the start of
// another value or key ('{', '[', '"') with only whitespace between.
func scanCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	inStr, esc, smart := false, false, false
	valueEnded := false
	for _, r := range s {
		if inStr {
			switch {
			case esc:
				esc = false
			case r == '\\':
				esc = true
			case r == '"' || (smart && isSmartQuote(r)):
				inStr, smart, valueEnded = false, false, true
				b.WriteByte('"')
				continue
			}
			b.WriteRune(r)
			continue
		}

		if unicode.IsSpace(r) {
			b.WriteRune(r)
			continue
		}
		quote := r == '"' || isSmartQuote(r)
		if valueEnded && (quote || r == '{' || r == '[') {
			b.WriteByte(',')
		}
		switch {
		case quote:
			inStr, smart, valueEnded = true, r != '"', false
			b.WriteByte('"')
			continue
		case r == '}' || r == ']':
			valueEnded = true
		case r == '{' || r == '[' || r == ':' || r == ',':
			valueEnded = false
		default:
			valueEnded = unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '+'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// mapOutsideStrings applies fn to every run of text that is not inside a JSON string literal.
func mapOutsideStrings(s string, fn func(string) string) string {
	var b strings.Builder
	b.Grow(len(s))
	start, inStr, esc := 0, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
				b.WriteString(s[start : i+1])
				start = i + 1
			}
			continue
		}
		if c == '"' {
			b.WriteString(fn(s[start:i]))
			start = i
			inStr = true
		}
	}
	if inStr {
		b.WriteString(s[start:])
	} else {
		b.WriteString(fn(s[start:]))
	}
	return b.String()
}

// nullStrings turns a string value spelled "null" into the null token.
func nullStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSig := byte(0)
	start, inStr, esc := 0, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
				lit := s[start : i+1]
				if lastSig == ':' && strings.EqualFold(lit, `"null"`) {
					lit = "null"
				}
				b.WriteString(lit)
				lastSig = '"'
			}
			continue
		}
		if c == '"' {
			inStr = true
			start = i
			continue
		}
		b.WriteByte(c)
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			lastSig = c
		}
	}
	if inStr {
		b.WriteString(s[start:])
	}
	return b.String()
}

// escapeControlInStrings escapes raw newlines and tabs inside string literals and drops
// other control characters there.
func escapeControlInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr, esc := false, false
	for _, r := range s {
		if !inStr {
			if r == '"' {
				inStr = true
			}
			b.WriteRune(r)
			continue
		}
		switch {
		case esc:
			esc = false
		case r == '\\':
			esc = true
		case r == '"':
			inStr = false
		case r == '\n':
			b.WriteString(`\n`)
			continue
		case r == '\r':
			continue
		case r == '\t':
			b.WriteString(`\t`)
			continue
		case r < 0x20:
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// balanceBrackets closes an unterminated string and any '{' or '[' left open.
func balanceBrackets(s string) string {
	var stack []byte
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if n := len(stack); n > 0 && stack[n-1] == c {
				stack = stack[:n-1]
			}
		}
	}
	if !inStr && len(stack) == 0 {
		return s
	}
	var b strings.Builder
	b.WriteString(s)
	if inStr {
		if esc {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	trimmed := strings.TrimRight(b.String(), " \t\r\n")
	if strings.HasSuffix(trimmed, ":") {
		trimmed += " null"
	}
	b.Reset()
	b.WriteString(trimmed)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
