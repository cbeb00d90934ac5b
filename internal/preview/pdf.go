package preview

import (
	"bytes"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
)

const (
	pageMargin = 12.0
	lineHeight = 6.0
)

// PDF lays the document out on A4 portrait pages.
func PDF(doc Document) (pdfFile []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("render pdf panic recover: %v", r)
		}
	}()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	width, _ := pdf.GetPageSize()
	usable := width - 2*pageMargin

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(usable, 8, tr(doc.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(usable, lineHeight, tr("Permit ID: "+doc.PermitID+"   Status: "+doc.Status), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	labelled := func(cells []Cell) {
		for _, c := range cells {
			pdf.SetFont("Helvetica", "B", 9)
			pdf.CellFormat(usable*0.35, lineHeight, tr(c.Label), "1", 0, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 9)
			pdf.CellFormat(usable*0.65, lineHeight, tr(c.Value), "1", 1, "L", false, 0, "")
		}
	}
	table := func(t *Table, widths []float64) {
		pdf.SetFont("Helvetica", "B", 9)
		for i, col := range t.Columns {
			pdf.CellFormat(usable*widths[i], lineHeight, tr(col), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		for _, row := range t.Rows {
			for i, v := range row {
				pdf.CellFormat(usable*widths[i], lineHeight, tr(fit(pdf, v, usable*widths[i])), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}
	section := func(title string) {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(usable, 7, tr(title), "", 1, "L", false, 0, "")
	}

	labelled(doc.Header)
	for _, s := range doc.Sections {
		section(s.Title)
		labelled(s.Fields)
		if s.Checklist != nil {
			table(s.Checklist, []float64{0.07, 0.53, 0.1, 0.3})
		}
		if s.Authorizations != nil {
			table(s.Authorizations, []float64{0.18, 0.22, 0.16, 0.14, 0.1, 0.2})
		}
	}
	if len(doc.Closure) > 0 {
		section("Work Closure")
		labelled(doc.Closure)
	}
	if pdf.Error() != nil {
		return nil, errors.Wrap(pdf.Error(), "render pdf")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "write pdf")
	}
	return buf.Bytes(), nil
}

// fit trims s with an ellipsis so it stays inside one cell.
func fit(pdf *fpdf.Fpdf, s string, w float64) string {
	limit := w - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > limit {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
