// Package schema defines the closed set of fields every committee document record carries.
package schema

import "strings"

// Field keys as they appear in the LLM response and in the exported workbook.
const (
	KeyCommitteeType        = "סוג הועדה"
	KeyCommitteeBranch      = "סניף הועדה"
	KeyInsuredName          = "שם המבוטח"
	KeyIDNumber             = "ת.ז"
	KeyCommitteeDate        = "תאריך הועדה"
	KeyInjuryDate           = "תאריך פגיעה"
	KeyParticipants         = "משתתפי הועדה"
	KeyDecisionPeriod       = "תקופת ההחלטה"
	KeyDiagnosis            = "אבחנה"
	KeyDeficiencyCode       = "סעיף ליקוי"
	KeyDisabilityPercentage = "אחוז הנכות הנובע מהפגיעה"
	KeyWeightedDisability   = "אחוז נכות משוקלל"
	KeyDecisions            = "החלטות"
	KeyNotes                = "הערות"
)

// Field is one named, string-valued slot of the schema.
type Field struct {
	Key     string
	Name    string
	Aliases []string
	// Hint is the per-field extraction and disambiguation guidance rendered into the prompt.
	Hint string
}

// Schema is a versioned, ordered field list. It is immutable after construction.
type Schema struct {
	version string
	fields  []Field
	index   map[string]int
}

// New builds a schema; alias and key lookups are normalized with CanonicalKey.
func New(version string, fields []Field) *Schema {
	s := &Schema{
		version: version,
		fields:  make([]Field, len(fields)),
		index:   make(map[string]int, len(fields)*2),
	}
	copy(s.fields, fields)
	for i, f := range s.fields {
		s.index[CanonicalKey(f.Key)] = i
		s.index[CanonicalKey(f.Name)] = i
		for _, a := range f.Aliases {
			s.index[CanonicalKey(a)] = i
		}
	}
	return s
}

func (s *Schema) Version() string { return s.version }

// Fields returns a copy of the ordered field list.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Keys returns the canonical keys in schema order.
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.fields))
	for i, f := range s.fields {
		keys[i] = f.Key
	}
	return keys
}

// Resolve maps a response key (canonical, English name or alias) to the canonical key.
func (s *Schema) Resolve(key string) (string, bool) {
	i, ok := s.index[CanonicalKey(key)]
	if !ok {
		return "", false
	}
	return s.fields[i].Key, true
}

// CanonicalKey folds the cosmetic variations models introduce into keys:
// invisible marks, surrounding whitespace and punctuation, gershayim and case.
func CanonicalKey(k string) string {
	k = strings.Map(func(r rune) rune {
		if (r >= '\u200b' && r <= '\u200f') || r == '\ufeff' {
			return -1
		}
		return r
	}, k)
	k = strings.TrimSpace(k)
	k = strings.Trim(k, ":. \u200e\u200f")
	k = strings.NewReplacer("״", `"`, "׳", "'", "  ", " ").Replace(k)
	return strings.ToLower(k)
}

// Fields holds one string value per schema key.
type Fields map[string]string

// NewFields returns a record with every key of s present and empty.
func (s *Schema) NewFields() Fields {
	f := make(Fields, len(s.fields))
	for _, fd := range s.fields {
		f[fd.Key] = ""
	}
	return f
}

// Get returns the value of key, "" when absent.
func (f Fields) Get(key string) string {
	return f[key]
}

// Decision is one row of a committee's decision table.
type Decision struct {
	Diagnosis      string `json:"diagnosis"`
	DeficiencyCode string `json:"deficiency_code"`
	Percentage     string `json:"percentage"`
	From           string `json:"from"`
	To             string `json:"to"`
}

// IsEmpty reports whether every column of d is blank.
func (d Decision) IsEmpty() bool {
	return strings.TrimSpace(d.Diagnosis+d.DeficiencyCode+d.Percentage+d.From+d.To) == ""
}

// Decision object keys accepted from the response, per column.
var (
	DecisionDiagnosisKeys  = []string{"אבחנה", "diagnosis"}
	DecisionCodeKeys       = []string{"סעיף ליקוי", "סעיף", "deficiency_code", "code"}
	DecisionPercentageKeys = []string{"אחוז", "אחוז נכות", "אחוז הנכות", "percentage", "percent"}
	DecisionFromKeys       = []string{"מתאריך", "מ-תאריך", "from"}
	DecisionToKeys         = []string{"עד תאריך", "עד", "to"}
)
