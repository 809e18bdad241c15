package llm

import (
	"encoding/json"
	"testing"
)

func TestStripFence(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		"  ```JSON\n{}\n```  ":    `{}`,
		"```json\n{\"a\":":        `{"a":`,
		`{"a":1}`:                 `{"a":1}`,
	}
	for in, want := range tests {
		if got := StripFence(in); got != want {
			t.Errorf("StripFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSliceObject(t *testing.T) {
	tests := map[string]string{
		`Sure! {"a": {"b": 1}} hope this helps`: `{"a": {"b": 1}}`,
		`no braces`:                             `no braces`,
		`prefix {"a": "b`:                       `{"a": "b`,
	}
	for in, want := range tests {
		if got := SliceObject(in); got != want {
			t.Errorf("SliceObject(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRepair(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"trailing comma", `{"a": "1", "b": [1, 2,],}`, `{"a": "1", "b": [1, 2]}`},
		{"bare keys", `{committee_type: "x", notes: null}`, `{"committee_type": "x", "notes": null}`},
		{"bare hebrew key", "{\n  סוג הועדה: \"x\"\n}", "{\n  \"סוג הועדה\": \"x\"\n}"},
		{"null string", `{"a": "null", "b": ["null"]}`, `{"a": null, "b": ["null"]}`},
		{"missing comma", "{\"a\": \"1\"\n\"b\": \"2\"}", "{\"a\": \"1\"\n,\"b\": \"2\"}"},
		{"adjacent objects", `[{"a":"1"} {"b":"2"}]`, `[{"a":"1"} ,{"b":"2"}]`},
		{"smart quotes", `{“a”: “b”}`, `{"a": "b"}`},
		{"gershayim", `{"ת"ז": "1"}`, `{"ת״ז": "1"}`},
		{"smart quotes inside strings kept", `{"a": "x, “y”"}`, `{"a": "x, “y”"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Repair(tt.in)
			if got != tt.want {
				t.Fatalf("Repair(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !json.Valid([]byte(got)) {
				t.Fatalf("repaired text is not valid JSON: %q", got)
			}
		})
	}
}

func TestRepairIsIdempotentOnValidJSON(t *testing.T) {
	inputs := []string{
		`{"a": "1", "b": {"c": [1, 2, true, null]}}`,
		"{\n  \"סוג הועדה\": \"ועדה רפואית\",\n  \"הערות\": \"null\"\n}",
		`{"a": "x, “y”", "b": "ד\"ר"}`,
		`[{"name": "כהן", "role": "יו\"ר"}]`,
	}
	for _, in := range inputs {
		once := Repair(in)
		if twice := Repair(once); twice != once {
			t.Errorf("Repair not idempotent for %q: %q then %q", in, once, twice)
		}
		if !json.Valid([]byte(once)) {
			t.Errorf("Repair broke valid JSON %q: %q", in, once)
		}
	}
}

func TestAggressiveRepair(t *testing.T) {
	in := "{\u200b\"a\u200f\": \"x\ty\",\ufeff\"b\": [1, {\"c\": \"d"
	got := AggressiveRepair(in)
	var v map[string]any
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("AggressiveRepair(%q) = %q: %v", in, got, err)
	}
	if v["a"] != "x\ty" {
		t.Fatalf("a = %#v", v["a"])
	}
}
