package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
)

// Method records which stage produced a normalized record.
type Method string

const (
	MethodJSON       Method = "json"
	MethodRepaired   Method = "repaired"
	MethodAggressive Method = "aggressive"
	MethodScraped    Method = "scraped"
	MethodEmpty      Method = "empty"
)

// Normalized is the closed-schema record recovered from a model response.
type Normalized struct {
	Fields    schema.Fields
	Decisions []schema.Decision
	Method    Method
	Dropped   []string
}

// Degraded reports whether the record was recovered without a successful parse.
func (n Normalized) Degraded() bool {
	return n.Method == MethodScraped || n.Method == MethodEmpty
}

var errNotObject = errors.New("response is not a JSON object")

// Normalize turns a raw model response into a record keyed exactly by the schema.
// It never fails: whatever cannot be recovered is left as an empty string.
func Normalize(raw string, sch *schema.Schema, logger *slog.Logger) (out Normalized) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("llm.normalize.panic", "panic", fmt.Sprint(r))
			out = Normalized{Fields: sch.NewFields(), Method: MethodEmpty}
		}
	}()

	body := SliceObject(StripFence(raw))

	obj, err := parseObject(body)
	method := MethodJSON
	if err != nil {
		body = Repair(body)
		obj, err = parseObject(body)
		method = MethodRepaired
	}
	if err != nil {
		body = AggressiveRepair(body)
		obj, err = parseObject(body)
		method = MethodAggressive
	}
	if err != nil {
		fields, n := scrapeFields(raw, sch)
		method = MethodScraped
		if n == 0 {
			method = MethodEmpty
		}
		logger.Warn("llm.normalize.scraped", "error", err, "fields_found", n)
		return Normalized{Fields: fields, Method: method}
	}

	out = fromObject(obj, sch)
	out.Method = method
	if method != MethodJSON {
		logger.Info("llm.normalize.repaired", "method", method)
	}
	if len(out.Dropped) > 0 {
		logger.Warn("llm.normalize.dropped", "keys", out.Dropped)
	}
	return out
}

// parseObject decodes the first JSON value in s, accepting an object or an
// array whose first element is an object.
func parseObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		if len(t) > 0 {
			if m, ok := t[0].(map[string]any); ok {
				return m, nil
			}
		}
	}
	return nil, errNotObject
}

func fromObject(obj map[string]any, sch *schema.Schema) Normalized {
	obj = unwrap(obj, sch)

	out := Normalized{Fields: sch.NewFields()}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	// exact keys win over aliases
	for _, exact := range []bool{true, false} {
		for _, k := range keys {
			canon, ok := sch.Resolve(k)
			if !ok {
				if exact {
					out.Dropped = append(out.Dropped, k)
				}
				continue
			}
			if (k == canon) != exact || out.Fields[canon] != "" {
				continue
			}
			v := obj[k]
			out.Fields[canon] = Coerce(v)
			if canon == schema.KeyDecisions && out.Decisions == nil {
				out.Decisions = parseDecisions(v)
			}
		}
	}
	return out
}

// unwrap descends into a single wrapping object such as {"result": {...}}.
func unwrap(obj map[string]any, sch *schema.Schema) map[string]any {
	for range 3 {
		if len(obj) != 1 {
			return obj
		}
		for k, v := range obj {
			inner, ok := v.(map[string]any)
			if _, known := sch.Resolve(k); known || !ok {
				return obj
			}
			obj = inner
		}
	}
	return obj
}

var nullTokens = []string{"null", "undefined"}

// Coerce renders any decoded JSON value as the string stored in a field.
func Coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		for _, tok := range nullTokens {
			if strings.EqualFold(strings.TrimSpace(t), tok) {
				return ""
			}
		}
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := present(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		if s, ok := member(t); ok {
			return s
		}
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// present renders one array element.
func present(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return Coerce(v)
	}
	if s, ok := member(m); ok {
		return s
	}
	if d := decisionFrom(m); !d.IsEmpty() {
		return formatDecision(d)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	vals := make([]string, 0, len(keys))
	for _, k := range keys {
		if s := Coerce(m[k]); s != "" {
			vals = append(vals, s)
		}
	}
	return strings.Join(vals, " / ")
}

var (
	memberNameKeys = []string{"name", "שם", "full_name"}
	memberRoleKeys = []string{"role", "תפקיד", "title"}
)

// member renders a committee participant as "name (role)".
func member(m map[string]any) (string, bool) {
	name := pick(m, memberNameKeys)
	if name == "" {
		return "", false
	}
	if role := pick(m, memberRoleKeys); role != "" {
		return name + " (" + role + ")", true
	}
	return name, true
}

func pick(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s := strings.TrimSpace(Coerce(v)); s != "" {
				return s
			}
		}
	}
	for k, v := range m {
		ck := schema.CanonicalKey(k)
		for _, want := range keys {
			if ck == schema.CanonicalKey(want) {
				if s := strings.TrimSpace(Coerce(v)); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func decisionFrom(m map[string]any) schema.Decision {
	return schema.Decision{
		Diagnosis:      pick(m, schema.DecisionDiagnosisKeys),
		DeficiencyCode: pick(m, schema.DecisionCodeKeys),
		Percentage:     pick(m, schema.DecisionPercentageKeys),
		From:           pick(m, schema.DecisionFromKeys),
		To:             pick(m, schema.DecisionToKeys),
	}
}

func formatDecision(d schema.Decision) string {
	parts := make([]string, 0, 4)
	for _, s := range []string{d.Diagnosis, d.DeficiencyCode, d.Percentage} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if d.From != "" || d.To != "" {
		parts = append(parts, strings.Trim(d.From+" - "+d.To, " -"))
	}
	return strings.Join(parts, " / ")
}

// parseDecisions keeps the structured rows of the decisions array.
func parseDecisions(v any) []schema.Decision {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		items = []any{t}
	default:
		return nil
	}
	out := make([]schema.Decision, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if d := decisionFrom(m); !d.IsEmpty() {
			out = append(out, d)
		}
	}
	return out
}

// scrapeFields pulls `"key": "value"` pairs directly from text that could not be parsed.
func scrapeFields(raw string, sch *schema.Schema) (schema.Fields, int) {
	fields := sch.NewFields()
	found := 0
	for _, f := range sch.Fields() {
		names := append([]string{f.Key, f.Name}, f.Aliases...)
		for _, name := range names {
			if name == "" {
				continue
			}
			if v, ok := scrapeOne(raw, name); ok {
				fields[f.Key] = v
				if v != "" {
					found++
				}
				break
			}
		}
	}
	return fields, found
}

// scrapePatterns holds one compiled pattern per field name or alias.
var scrapePatterns sync.Map

func scrapePattern(name string) *regexp.Regexp {
	if re, ok := scrapePatterns.Load(name); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(name) + `"\s*:\s*(?:"((?:[^"\\]|\\.)*)"|(null))`)
	actual, _ := scrapePatterns.LoadOrStore(name, re)
	return actual.(*regexp.Regexp)
}

func scrapeOne(raw, name string) (string, bool) {
	re := scrapePattern(name)
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	if m[2] != "" {
		return "", true
	}
	if s, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
		return Coerce(s), true
	}
	return Coerce(m[1]), true
}
