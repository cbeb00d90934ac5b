package export

import (
	"bytes"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"permitline/internal/domain"
)

const registerSheet = "Permit Register"

var registerHeaders = []string{
	"Permit ID", "Type", "Permit No.", "Certificate No.", "Status", "Requester",
	"Approver 1", "Approver 2", "Safety Manager", "Issue Date", "Expected Return", "Closure", "Updated",
}

// Register writes one row per permit into an xlsx workbook.
func Register(permits []domain.Permit) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.WithError(err).Error("close register workbook")
		}
	}()
	sheet := "Sheet1"
	row, err := writeHeader(f, sheet, 0, registerHeaders)
	if err != nil {
		return nil, errors.Wrap(err, "write register header")
	}
	if len(permits) > 0 {
		if err := applyDataCellStyle(f, sheet, 1, row+1, len(registerHeaders), row+len(permits)); err != nil {
			return nil, errors.Wrap(err, "style register rows")
		}
	}
	for _, p := range permits {
		row++
		closure := ""
		if p.Closure != nil {
			closure = string(p.Closure.Status)
		}
		values := []any{
			p.PermitID, string(p.DocType), p.Header.PermitNumber, p.Header.CertificateNumber, string(p.Status),
			p.Header.PermitRequester, p.Header.PermitApprover1, p.Header.PermitApprover2, p.Header.SafetyManager,
			p.Header.PermitIssueDate, p.Header.ExpectedReturnDate, closure, p.UpdatedAt,
		}
		for i, v := range values {
			if err := writeColumn(f, sheet, i+1, row, v); err != nil {
				return nil, errors.Wrap(err, "write register row")
			}
		}
	}
	if err := f.SetSheetName(sheet, registerSheet); err != nil {
		return nil, errors.Wrap(err, "name register sheet")
	}
	return f.WriteToBuffer()
}

func writeColumn(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

func writeHeader(f *excelize.File, sheet string, row int, headers []string) (int, error) {
	row++
	style, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Font:      &excelize.Font{Bold: true, Family: "Arial", Size: 10},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDDDDD"}},
	})
	if err != nil {
		return row, err
	}
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return row, err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), row)
	if err != nil {
		return row, err
	}
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return row, err
	}
	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return row, err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 20); err != nil {
		return row, err
	}
	for i, h := range headers {
		if err := writeColumn(f, sheet, i+1, row, h); err != nil {
			return row, err
		}
	}
	return row, nil
}

func applyDataCellStyle(f *excelize.File, sheet string, colFrom, rowFrom, colTo, rowTo int) error {
	style, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
		Font:      &excelize.Font{Family: "Arial", Size: 10},
	})
	if err != nil {
		return err
	}
	first, err := excelize.CoordinatesToCellName(colFrom, rowFrom)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(colTo, rowTo)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, first, last, style)
}
