package export

import (
	"testing"

	"github.com/xuri/excelize/v2"

	"permitline/internal/domain"
)

func TestRegister(t *testing.T) {
	permits := []domain.Permit{
		{PermitID: "a", DocType: domain.DocWork, Status: domain.StatusApproved, Header: domain.Header{PermitNumber: "PTW-1", PermitRequester: "N. Shah"}},
		{PermitID: "b", DocType: domain.DocGasLine, Status: domain.StatusClosed, Closure: &domain.Closure{Status: domain.ClosureApproved}},
	}
	buf, err := Register(permits)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(registerSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Permit ID" || rows[1][2] != "PTW-1" || rows[1][5] != "N. Shah" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][4] != "closed" || rows[2][11] != string(domain.ClosureApproved) {
		t.Fatalf("unexpected second row %v", rows[2])
	}
}

func TestRegisterEmpty(t *testing.T) {
	buf, err := Register(nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows(registerSheet)
	if len(rows) != 1 {
		t.Fatalf("expected only the header row, got %d", len(rows))
	}
}
