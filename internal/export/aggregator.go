// Package export projects processed records into the summary, consolidated and
// per-document views and renders them as an XLSX workbook.
package export

import (
	"strconv"
	"strings"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// Placeholder fills decision columns of a document without decisions.
const Placeholder = "-"

// Palette is cycled by document position to group rows of the same document.
var Palette = []string{"#DDEBF7", "#E2EFDA", "#FFF2CC", "#FCE4D6", "#EDE2F6", "#DDF3F5", "#F2F2F2", "#FDE9E7"}

// ColorFor returns the group colour of the document at zero-based index i.
func ColorFor(i int) string {
	return Palette[i%len(Palette)]
}

var (
	SummaryHeaders = []string{
		"#", "קובץ", "סטטוס", schema.KeyCommitteeType, schema.KeyCommitteeBranch, schema.KeyInsuredName,
		schema.KeyIDNumber, schema.KeyCommitteeDate, schema.KeyWeightedDisability, "מספר החלטות", "שגיאה",
	}
	ConsolidatedHeaders = []string{
		"#", "קובץ", schema.KeyInsuredName, schema.KeyIDNumber, schema.KeyCommitteeType, schema.KeyCommitteeDate,
		schema.KeyDiagnosis, schema.KeyDeficiencyCode, "אחוז", "מתאריך", "עד תאריך", schema.KeyWeightedDisability,
	}
	DecisionHeaders = []string{"#", schema.KeyDiagnosis, schema.KeyDeficiencyCode, "אחוז", "מתאריך", "עד תאריך"}
)

// Row is one presentation row. Cells follow the headers of the view it belongs to.
type Row struct {
	Number string
	Doc    int
	Color  string
	Cells  []string
}

// DocumentSheet is the detail view of one record.
type DocumentSheet struct {
	Doc       int
	FileName  string
	Color     string
	Status    string
	Error     string
	Fields    [][2]string
	Decisions []Row
}

// Aggregated holds every view the workbook renders, with no further transformation needed.
type Aggregated struct {
	Summary      []Row
	Consolidated []Row
	Documents    []DocumentSheet
}

// Counts returns the number of completed and failed documents.
func (a Aggregated) Counts() (completed, failed int) {
	for _, d := range a.Documents {
		switch constants.ProcessingStatus(d.Status) {
		case constants.StatusCompleted:
			completed++
		case constants.StatusError:
			failed++
		}
	}
	return completed, failed
}

// Aggregate builds the export views for records in their given order.
func Aggregate(records []entity.Record, sch *schema.Schema) Aggregated {
	var out Aggregated
	for i, rec := range records {
		n := i + 1
		num := strconv.Itoa(n)
		color := ColorFor(i)
		f := rec.Fields
		entries := entriesOf(rec)

		out.Summary = append(out.Summary, Row{
			Number: num, Doc: n, Color: color,
			Cells: []string{
				num, rec.FileName, string(rec.Status),
				f.Get(schema.KeyCommitteeType), f.Get(schema.KeyCommitteeBranch), f.Get(schema.KeyInsuredName),
				f.Get(schema.KeyIDNumber), f.Get(schema.KeyCommitteeDate), f.Get(schema.KeyWeightedDisability),
				strconv.Itoa(len(entries)), rec.ErrorMessage,
			},
		})

		sheet := DocumentSheet{
			Doc: n, FileName: rec.FileName, Color: color,
			Status: string(rec.Status), Error: rec.ErrorMessage,
		}
		for _, k := range sch.Keys() {
			sheet.Fields = append(sheet.Fields, [2]string{k, f.Get(k)})
		}

		head := []string{rec.FileName, f.Get(schema.KeyInsuredName), f.Get(schema.KeyIDNumber),
			f.Get(schema.KeyCommitteeType), f.Get(schema.KeyCommitteeDate)}
		weighted := f.Get(schema.KeyWeightedDisability)

		if len(entries) == 0 {
			cells := placeholderCells(len(DecisionHeaders) - 1)
			out.Consolidated = append(out.Consolidated, Row{
				Number: num, Doc: n, Color: color,
				Cells: concat([]string{num}, head, cells, []string{orPlaceholder(weighted)}),
			})
			sheet.Decisions = append(sheet.Decisions, Row{Number: num, Doc: n, Color: color, Cells: concat([]string{num}, cells)})
		}
		for m, d := range entries {
			sub := num + "." + strconv.Itoa(m+1)
			cells := []string{d.Diagnosis, d.DeficiencyCode, d.Percentage, d.From, d.To}
			out.Consolidated = append(out.Consolidated, Row{
				Number: sub, Doc: n, Color: color,
				Cells: concat([]string{sub}, head, cells, []string{weighted}),
			})
			sheet.Decisions = append(sheet.Decisions, Row{Number: sub, Doc: n, Color: color, Cells: concat([]string{sub}, cells)})
		}
		out.Documents = append(out.Documents, sheet)
	}
	return out
}

// entriesOf returns the decision rows of rec. Without structured decisions the free-text
// diagnosis list is split into one entry per diagnosis.
func entriesOf(rec entity.Record) []schema.Decision {
	if len(rec.Decisions) > 0 {
		return rec.Decisions
	}
	diag := strings.TrimSpace(rec.Fields.Get(schema.KeyDiagnosis))
	if diag == "" {
		return nil
	}
	parts := strings.FieldsFunc(diag, func(r rune) bool { return r == ';' || r == '\n' })
	var out []schema.Decision
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, schema.Decision{Diagnosis: p})
		}
	}
	if len(out) == 1 {
		out[0].DeficiencyCode = rec.Fields.Get(schema.KeyDeficiencyCode)
		out[0].Percentage = rec.Fields.Get(schema.KeyDisabilityPercentage)
		out[0].From, out[0].To = splitPeriod(rec.Fields.Get(schema.KeyDecisionPeriod))
	}
	return out
}

// splitPeriod splits "מ-01/01/2024 עד 31/12/2024" into its two dates.
func splitPeriod(p string) (from, to string) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ""
	}
	before, after, ok := strings.Cut(p, "עד")
	if !ok {
		return strings.TrimSpace(p), ""
	}
	from = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(before), "מ-"))
	return from, strings.TrimSpace(after)
}

func placeholderCells(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = Placeholder
	}
	return out
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}

func concat(parts ...[]string) []string {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]string, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
