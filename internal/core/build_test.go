package core

import (
	"strings"
	"testing"

	"github.com/joseph-ayodele/committee-extract/internal/common"
)

func TestNewCascadeFromConfig(t *testing.T) {
	cases := []struct {
		provider string
		want     string
	}{
		{"none", "text-layer,heuristic"},
		{"tesseract", "text-layer,ocr,heuristic"},
		{"vision", "text-layer,ocr,heuristic"},
	}
	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			cfg := common.Defaults()
			cfg.OCR.Provider = tc.provider
			c, closeFn, err := NewCascadeFromConfig(cfg, quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			defer closeFn()
			if got := strings.Join(c.Strategies(), ","); got != tc.want {
				t.Fatalf("strategies = %s", got)
			}
		})
	}

	cfg := common.Defaults()
	cfg.OCR.Provider = "carrier-pigeon"
	if _, _, err := NewCascadeFromConfig(cfg, quietLogger()); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewProcessorFromConfig(t *testing.T) {
	cfg := common.Defaults()
	cfg.OCR.Provider = "none"
	cfg.LLM.APIKey = "test"
	cfg.LLM.VisionFallback = true
	p, closeFn, err := NewProcessorFromConfig(cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if p.vision == nil || p.gate.Threshold != cfg.Extraction.ReadabilityThreshold {
		t.Fatalf("processor not configured: vision=%v gate=%.1f", p.vision != nil, p.gate.Threshold)
	}
}
