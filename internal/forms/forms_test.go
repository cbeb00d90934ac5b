package forms

import (
	"testing"

	"permitline/internal/domain"
)

func TestHighTensionSectionsInOrder(t *testing.T) {
	steps := InitialStepData(domain.DocHighTension)
	want := []string{
		"basicInfo", "workStartAuthorization", "deEnergizing", "permitToWork",
		"preExecution", "jobCompletion", "reEnergizeInstruction", "reEnergizeAuthorization",
	}
	if len(steps) != len(want) {
		t.Fatalf("expected %d sections, got %d", len(want), len(steps))
	}
	for i, key := range want {
		if steps[i].Key != key {
			t.Fatalf("section %d: expected %s, got %s", i, key, steps[i].Key)
		}
	}
}

func TestInitialStepDataRowsBlank(t *testing.T) {
	for _, dt := range domain.DocTypes {
		for _, st := range InitialStepData(dt) {
			for _, r := range st.Rows {
				if r.ID == "" || r.Activity == "" {
					t.Fatalf("%s/%s: row missing identity: %+v", dt, st.Key, r)
				}
				if r.Answer != domain.AnswerBlank || r.Remarks != "" {
					t.Fatalf("%s/%s: row not blank: %+v", dt, st.Key, r)
				}
			}
		}
	}
}

func TestInitialStepDataIsFreshCopy(t *testing.T) {
	a := InitialStepData(domain.DocWork)
	a[1].Rows[0].Answer = domain.AnswerYes
	b := InitialStepData(domain.DocWork)
	if b[1].Rows[0].Answer != domain.AnswerBlank {
		t.Fatalf("seeded data shares state between calls")
	}
}

func TestRoute(t *testing.T) {
	f, err := Route(domain.DocGasLine, domain.RoleSafety)
	if err != nil {
		t.Fatal(err)
	}
	if f.View != ViewSafety || f.Layout.DocType != domain.DocGasLine {
		t.Fatalf("unexpected form %+v", f)
	}
	if _, err := Route("Boiler", domain.RoleSafety); err == nil {
		t.Fatalf("expected unknown doc type error")
	}
	if _, err := Route(domain.DocWork, "visitor"); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func TestHasRow(t *testing.T) {
	if !HasRow(domain.DocHighTension, "deEnergizing", "de-3") {
		t.Fatalf("expected de-3 in deEnergizing")
	}
	if HasRow(domain.DocHighTension, "preExecution", "de-3") {
		t.Fatalf("row must be scoped to its section")
	}
}
