package export

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet      = "סיכום"
	ConsolidatedSheet = "מאוחד"
	maxSheetName      = 31
)

var reSheetUnsafe = regexp.MustCompile(`[\[\]:*?/\\]`)

// FileName returns the export file name for t, e.g. committee-results-20240131-154500.xlsx.
func FileName(t time.Time) string {
	return "committee-results-" + t.Format("20060102-150405") + ".xlsx"
}

// Workbook renders Aggregated views into an XLSX file.
type Workbook struct {
	f      *excelize.File
	styles map[string]int
	header int
}

// Render builds the summary, consolidated and per-document sheets.
func Render(agg Aggregated) (*Workbook, error) {
	w := &Workbook{f: excelize.NewFile(), styles: map[string]int{}}
	var err error
	w.header, err = w.f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#BFBFBF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	if err := w.f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, err
	}
	if err := w.table(SummarySheet, SummaryHeaders, agg.Summary, 1); err != nil {
		return nil, fmt.Errorf("summary sheet: %w", err)
	}
	_ = w.f.SetColWidth(SummarySheet, "B", "B", 32)
	_ = w.f.SetColWidth(SummarySheet, "C", "J", 18)
	_ = w.f.SetColWidth(SummarySheet, "K", "K", 48)

	if _, err := w.f.NewSheet(ConsolidatedSheet); err != nil {
		return nil, err
	}
	if err := w.table(ConsolidatedSheet, ConsolidatedHeaders, agg.Consolidated, 1); err != nil {
		return nil, fmt.Errorf("consolidated sheet: %w", err)
	}
	_ = w.f.SetColWidth(ConsolidatedSheet, "B", "B", 32)
	_ = w.f.SetColWidth(ConsolidatedSheet, "C", "F", 18)
	_ = w.f.SetColWidth(ConsolidatedSheet, "G", "G", 48)
	_ = w.f.SetColWidth(ConsolidatedSheet, "H", "L", 16)

	used := map[string]bool{SummarySheet: true, ConsolidatedSheet: true}
	for _, d := range agg.Documents {
		name := sheetName(d.Doc, d.FileName, used)
		if err := w.document(name, d); err != nil {
			return nil, fmt.Errorf("document sheet %q: %w", name, err)
		}
	}
	w.f.SetActiveSheet(0)
	return w, nil
}

// WriteTo writes the XLSX bytes to dst.
func (w *Workbook) WriteTo(dst io.Writer) (int64, error) {
	return w.f.WriteTo(dst)
}

// Bytes returns the encoded workbook.
func (w *Workbook) Bytes() ([]byte, error) {
	buf, err := w.f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// SheetNames lists the sheets in workbook order.
func (w *Workbook) SheetNames() []string { return w.f.GetSheetList() }

// Close releases the workbook.
func (w *Workbook) Close() error { return w.f.Close() }

func (w *Workbook) table(sheet string, headers []string, rows []Row, startRow int) error {
	rtl := true
	if err := w.f.SetSheetView(sheet, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		return err
	}
	if err := w.row(sheet, startRow, headers, w.header); err != nil {
		return err
	}
	for i, r := range rows {
		style, err := w.fill(r.Color)
		if err != nil {
			return err
		}
		if err := w.row(sheet, startRow+i+1, r.Cells, style); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) document(sheet string, d DocumentSheet) error {
	if _, err := w.f.NewSheet(sheet); err != nil {
		return err
	}
	rtl := true
	if err := w.f.SetSheetView(sheet, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		return err
	}
	style, err := w.fill(d.Color)
	if err != nil {
		return err
	}

	r := 1
	meta := [][2]string{{"קובץ", d.FileName}, {"סטטוס", d.Status}}
	if d.Error != "" {
		meta = append(meta, [2]string{"שגיאה", d.Error})
	}
	for _, kv := range append(meta, d.Fields...) {
		if err := w.row(sheet, r, []string{kv[0]}, w.header); err != nil {
			return err
		}
		if err := w.row(sheet, r, []string{"", kv[1]}, style); err != nil {
			return err
		}
		r++
	}
	_ = w.f.SetColWidth(sheet, "A", "A", 28)
	_ = w.f.SetColWidth(sheet, "B", "B", 60)

	r++
	return w.table(sheet, DecisionHeaders, d.Decisions, r)
}

// row writes cells starting at column A; empty leading cells are skipped so a key
// column and a value column can be styled separately.
func (w *Workbook) row(sheet string, r int, cells []string, style int) error {
	for c, v := range cells {
		if v == "" && c == 0 && len(cells) > 1 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(c+1, r)
		if err != nil {
			return err
		}
		if err := w.f.SetCellStr(sheet, cell, v); err != nil {
			return err
		}
		if err := w.f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) fill(color string) (int, error) {
	if id, ok := w.styles[color]; ok {
		return id, nil
	}
	id, err := w.f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return 0, fmt.Errorf("fill style %s: %w", color, err)
	}
	w.styles[color] = id
	return id, nil
}

// sheetName derives a unique, Excel-safe sheet name from the document number and file name.
func sheetName(n int, fileName string, used map[string]bool) string {
	base := strconv.Itoa(n) + " " + reSheetUnsafe.ReplaceAllString(fileName, "_")
	base = clip(base, maxSheetName)
	name := base
	for i := 2; used[name]; i++ {
		suffix := "~" + strconv.Itoa(i)
		name = clip(base, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
	}
	used[name] = true
	return name
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
