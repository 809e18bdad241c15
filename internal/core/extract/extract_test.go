package extract

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

type stubStrategy struct {
	name  string
	min   int
	text  string
	err   error
	calls int
}

func (s *stubStrategy) Name() string       { return s.name }
func (s *stubStrategy) MinChars() int      { return s.min }
func (s *stubStrategy) Applies(Input) bool { return true }
func (s *stubStrategy) Extract(context.Context, Input) (string, error) {
	s.calls++
	return s.text, s.err
}

func pdfDoc(data string) *entity.RawDocument {
	return &entity.RawDocument{FileName: "doc.pdf", MimeType: constants.MimePDF, Data: []byte(data)}
}

func TestCascadeStopsAtFirstSufficientStrategy(t *testing.T) {
	first := &stubStrategy{name: "a", min: 20, text: "  short  "}
	second := &stubStrategy{name: "b", min: 5, text: "  long enough text  "}
	third := &stubStrategy{name: "c", min: 1, text: "never"}
	c := NewCascade(nil, first, second, third)

	got, err := c.Extract(context.Background(), pdfDoc("not a pdf"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Strategy != "b" || got.Text != "long enough text" {
		t.Errorf("got %+v", got)
	}
	if third.calls != 0 {
		t.Error("cascade continued past a successful stage")
	}
	if got.Attempts[0].Outcome != OutcomeInsufficient || got.Attempts[1].Outcome != OutcomeSuccess {
		t.Errorf("attempts = %+v", got.Attempts)
	}
}

func TestCascadeExhausted(t *testing.T) {
	c := NewCascade(nil,
		&stubStrategy{name: "a", min: 10, err: errors.New("boom")},
		&stubStrategy{name: "b", min: 100, text: strings.Repeat("א", 99)},
	)
	got, err := c.Extract(context.Background(), pdfDoc("x"))
	if !errors.Is(err, common.ErrExtractionExhausted) {
		t.Fatalf("err = %v, want ErrExtractionExhausted", err)
	}
	if got.Text != "" || len(got.Attempts) != 2 {
		t.Errorf("got %+v", got)
	}
	if !strings.Contains(err.Error(), "b=insufficient(99)") {
		t.Errorf("error should summarize attempts: %v", err)
	}
}

func TestCascadeNeverReturnsBelowThreshold(t *testing.T) {
	// threshold counts runes, not bytes
	s := &stubStrategy{name: "a", min: 10, text: strings.Repeat("ש", 9)}
	if _, err := NewCascade(nil, s).Extract(context.Background(), pdfDoc("x")); err == nil {
		t.Fatal("9 Hebrew runes (18 bytes) must not satisfy a 10 char threshold")
	}
	s.text = strings.Repeat("ש", 10)
	got, err := NewCascade(nil, s).Extract(context.Background(), pdfDoc("x"))
	if err != nil || utf8.RuneCountInString(got.Text) < 10 {
		t.Fatalf("got %q, %v", got.Text, err)
	}
}

func TestTextLayerRejectsGarbage(t *testing.T) {
	s := NewTextLayerStrategy(0, 0, nil)
	if !s.Applies(Input{Doc: pdfDoc("x")}) {
		t.Fatal("text layer should apply to PDFs")
	}
	img := &entity.RawDocument{FileName: "scan.png", MimeType: constants.MimePNG}
	if s.Applies(Input{Doc: img}) {
		t.Error("text layer should not apply to images")
	}
	if _, err := s.Extract(context.Background(), Input{Doc: pdfDoc("%PDF-1.4 truncated")}); err == nil {
		t.Error("expected an error for a broken PDF")
	}
}

func TestTextLayerSkipsScannedPDF(t *testing.T) {
	tests := []struct {
		name        string
		info        *PDFInfo
		readScanned bool
		want        bool
	}{
		{"no probe", nil, false, true},
		{"digital", &PDFInfo{Pages: 3}, false, true},
		{"mixed", &PDFInfo{Pages: 3, ImagePages: 1}, false, true},
		{"scanned", &PDFInfo{Pages: 2, ImagePages: 2}, false, false},
		{"scanned, text layer forced", &PDFInfo{Pages: 2, ImagePages: 2}, true, true},
		{"empty probe", &PDFInfo{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewTextLayerStrategy(0, 0, nil)
			s.ReadScanned = tt.readScanned
			if got := s.Applies(Input{Doc: pdfDoc("x"), Info: tt.info}); got != tt.want {
				t.Fatalf("Applies = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbePDFRejectsGarbage(t *testing.T) {
	if _, err := ProbePDF([]byte("definitely not a pdf")); err == nil {
		t.Error("expected probe error")
	}
}

const committeeText = "המוסד לביטוח לאומי ועדה רפואית לעררים סניף חיפה\n" +
	"שם המבוטח דוגמה כהן ת.ז 123456789 תאריך 12/03/2024\n" +
	"אבחנה כאבי גב סעיף 37(7)(א) אחוז הנכות 10%"

func TestHeuristicDecodesWindows1255(t *testing.T) {
	raw, err := charmap.Windows1255.NewEncoder().Bytes([]byte(committeeText))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// surround with binary noise the way a broken PDF would
	data := append([]byte{0x00, 0x01, 0x9f, 0x80}, raw...)
	data = append(data, 0x00, 0xff, 0x10)

	s := NewHeuristicStrategy(0, 0)
	text, err := s.Extract(context.Background(), Input{Doc: pdfDoc(string(data))})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"ביטוח לאומי", "123456789", "12/03/2024", "10%", "37(7)(א)"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in %q", want, text)
		}
	}
	if utf8.RuneCountInString(text) < s.MinChars() {
		t.Errorf("best-effort text shorter than threshold: %d", utf8.RuneCountInString(text))
	}
}

func TestHeuristicInflatesStreams(t *testing.T) {
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	_, _ = zw.Write([]byte(committeeText))
	_ = zw.Close()
	data := "%PDF-1.4\n1 0 obj << /Filter /FlateDecode >>\nstream\n" + z.String() + "\nendstream\nendobj\n"

	text, err := NewHeuristicStrategy(0, 0).Extract(context.Background(), Input{Doc: pdfDoc(data)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(text, "ועדה רפואית") {
		t.Errorf("inflated stream not scanned: %q", text)
	}
}

func TestHeuristicDeduplicatesAndCaps(t *testing.T) {
	data := strings.Repeat("ועדה 10% ", 50)
	text, _ := NewHeuristicStrategy(0, 3).Extract(context.Background(), Input{Doc: pdfDoc(data)})
	if strings.Count(text, "10%") != 1 {
		t.Errorf("duplicates kept: %q", text)
	}
	if n := len(strings.Fields(text)); n > 6 {
		t.Errorf("fragment cap not applied: %q", text)
	}
}

func TestDecodeHebrewSingleByte(t *testing.T) {
	got := decodeHebrewSingleByte([]byte{0xF9, 0xED, ' ', 'A', '1', 0x05, 0xFA, '\n'})
	if got != "שם A1 ת\n" {
		t.Errorf("got %q", got)
	}
}
