package llm

import (
	"strings"
	"testing"

	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
)

func TestBuildPromptIsDeterministic(t *testing.T) {
	text := "פרוטוקול ועדה רפואית\nשם המבוטח: דוגמה כהן"
	a := BuildPrompt(text, schema.Committee, 0)
	b := BuildPrompt(text, schema.Committee, 0)
	if a != b {
		t.Fatal("prompt differs between calls")
	}
	if !strings.Contains(a, text) {
		t.Fatal("prompt does not embed the source text")
	}
	for _, f := range schema.Committee.Fields() {
		if !strings.Contains(a, `"`+f.Key+`": null`) {
			t.Fatalf("prompt missing template entry for %q", f.Key)
		}
		if !strings.Contains(a, f.Hint) {
			t.Fatalf("prompt missing hint for %q", f.Key)
		}
	}
	if strings.Contains(a, TruncationMarker) {
		t.Fatal("short text should not be truncated")
	}
}

func TestBuildPromptTruncatesByRunes(t *testing.T) {
	text := strings.Repeat("א", 100)
	p := BuildPrompt(text, schema.Committee, 10)
	if !strings.Contains(p, "<<<\n"+strings.Repeat("א", 10)+"\n"+TruncationMarker+"\n>>>") {
		t.Fatalf("unexpected truncation:\n%s", p)
	}
}

func TestBuildImagePrompt(t *testing.T) {
	p := BuildImagePrompt(schema.Committee, 3)
	if !strings.Contains(p, "3") || !strings.Contains(p, schema.KeyDecisions) {
		t.Fatalf("image prompt = %s", p)
	}
	if strings.Contains(p, "<<<") {
		t.Fatal("image prompt should not embed text")
	}
}

func TestRecordValidator(t *testing.T) {
	v, err := NewRecordValidator(schema.Committee)
	if err != nil {
		t.Fatal(err)
	}
	res := Normalize(`{"שם המבוטח": "כהן"}`, schema.Committee, nil)
	if err := v.Validate(res.Fields); err != nil {
		t.Fatalf("normalized record rejected: %v", err)
	}

	extra := schema.Committee.NewFields()
	extra["unknown"] = "x"
	if err := v.Validate(extra); err == nil {
		t.Fatal("extra key accepted")
	}

	missing := schema.Committee.NewFields()
	delete(missing, schema.KeyNotes)
	if err := v.Validate(missing); err == nil {
		t.Fatal("missing key accepted")
	}
}
