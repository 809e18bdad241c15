package llm

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
)

// DefaultPromptMaxChars bounds the embedded source text, in characters.
const DefaultPromptMaxChars = 20000

// TruncationMarker follows the source text when it was cut.
const TruncationMarker = "…(truncated)"

const role = "אתה מומחה לחילוץ נתונים מפרוטוקולים של ועדות רפואיות של המוסד לביטוח לאומי. " +
	"You extract structured data from Israeli National Insurance medical committee protocols."

var rules = []string{
	"אל תמציא ערכים. השתמש רק במידע שמופיע במפורש במסמך. Never invent values.",
	"אם שדה אינו מופיע במסמך, החזר עבורו null. Return null for any field that is absent.",
	"חפש בכל המסמך ולא רק בפסקאות הראשונות; פרטים רבים מופיעים בטבלאות או בסוף הפרוטוקול.",
	`הבחן בין שדות דומים: "אבחנה" היא תיאור מילולי חופשי של המצב הרפואי, ואילו "סעיף ליקוי" הוא קוד פורמלי מתוך התוספת לתקנות (למשל 37(7)(א)). לעולם אל תכתוב מספר סעיף בשדה האבחנה.`,
	`"אחוז הנכות הנובע מהפגיעה" הוא האחוז שנקבע לליקוי הספציפי, ואילו "אחוז נכות משוקלל" הוא האחוז הכולל לאחר שקלול כל הליקויים.`,
	`"תאריך הועדה" הוא מועד כינוס הועדה, לא תאריך הפגיעה ולא תאריך המכתב.`,
	"החזר אובייקט JSON תקין אחד בלבד, ללא טקסט נוסף וללא סימון Markdown. Respond with a single JSON object only.",
	"השתמש בדיוק בשמות השדות המופיעים ברשימה, בלי לתרגם ובלי להוסיף שדות.",
}

// BuildPrompt renders the extraction instructions for text. The result depends only
// on its arguments.
func BuildPrompt(text string, sch *schema.Schema, maxChars int) string {
	var b strings.Builder
	writeHeader(&b)

	b.WriteString("\n## מסמך המקור\n<<<\n")
	body, cut := truncate(text, maxChars)
	b.WriteString(body)
	if cut {
		b.WriteString("\n")
		b.WriteString(TruncationMarker)
	}
	b.WriteString("\n>>>\n")

	writeSchema(&b, sch)
	return b.String()
}

// BuildImagePrompt renders the instructions for a request that carries page images
// instead of extracted text.
func BuildImagePrompt(sch *schema.Schema, pages int) string {
	var b strings.Builder
	writeHeader(&b)
	b.WriteString("\n## מסמך המקור\n")
	b.WriteString("המסמך מצורף כתמונות של ")
	b.WriteString(strconv.Itoa(pages))
	b.WriteString(" העמודים הראשונים. קרא את הטקסט העברי מימין לשמאל.\n")
	writeSchema(&b, sch)
	return b.String()
}

func writeHeader(b *strings.Builder) {
	b.WriteString(role)
	b.WriteString("\n\n## כללים\n")
	for i, r := range rules {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(r)
		b.WriteString("\n")
	}
}

func writeSchema(b *strings.Builder, sch *schema.Schema) {
	b.WriteString("\n## שדות\n")
	for _, f := range sch.Fields() {
		b.WriteString(`- "`)
		b.WriteString(f.Key)
		b.WriteString(`": `)
		b.WriteString(f.Hint)
		b.WriteString("\n")
	}

	b.WriteString("\n## מבנה התשובה\n{\n")
	keys := sch.Keys()
	for i, k := range keys {
		b.WriteString(`  "`)
		b.WriteString(k)
		b.WriteString(`": null`)
		if i < len(keys)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n")
}

// truncate cuts s to at most maxChars runes; maxChars <= 0 uses the default.
func truncate(s string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		maxChars = DefaultPromptMaxChars
	}
	if utf8.RuneCountInString(s) <= maxChars {
		return s, false
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i], true
		}
		n++
	}
	return s, false
}
