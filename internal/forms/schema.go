package forms

import (
	"strconv"

	"permitline/internal/domain"
)

// Section describes one step of a permit form. Fields are free-text inputs,
// Rows are checklist activities and Authorizations name the signatory roles.
type Section struct {
	Key            string   `json:"key"`
	Title          string   `json:"title"`
	Fields         []string `json:"fields,omitempty"`
	Rows           []Row    `json:"rows,omitempty"`
	Authorizations []string `json:"authorizations,omitempty"`
}

type Row struct {
	ID       string `json:"id"`
	Activity string `json:"activity"`
}

type Schema struct {
	DocType  domain.DocType `json:"docType"`
	Title    string         `json:"title"`
	Sections []Section      `json:"sections"`
}

var basicInfoFields = []string{
	"location", "equipment", "workDescription", "contractor", "workersCount", "startTime", "endTime",
}

func rows(prefix string, activities ...string) []Row {
	out := make([]Row, len(activities))
	for i, a := range activities {
		out[i] = Row{ID: prefix + "-" + strconv.Itoa(i+1), Activity: a}
	}
	return out
}

var workSchema = Schema{
	DocType: domain.DocWork,
	Title:   "Work Permit",
	Sections: []Section{
		{Key: "basicInfo", Title: "Basic Information", Fields: basicInfoFields},
		{Key: "hazards", Title: "Hazard Identification", Rows: rows("hz",
			"Work at height above 2 m",
			"Hot work (welding, cutting, grinding)",
			"Confined space entry",
			"Lifting operations",
			"Hazardous chemicals present",
			"Excavation",
		)},
		{Key: "precautions", Title: "Precautions", Rows: rows("pc",
			"Area barricaded and signage displayed",
			"Fire extinguisher available at site",
			"PPE issued and checked",
			"Gas test carried out",
			"Equipment isolated and locked out",
			"Emergency contacts briefed",
		)},
		{Key: "permitToWork", Title: "Permit To Work", Authorizations: []string{"Requester", "Approver", "Safety Officer"}},
		{Key: "jobCompletion", Title: "Job Completion", Rows: rows("jc",
			"Work completed as per scope",
			"Area cleaned and housekeeping done",
			"Isolations removed",
		), Authorizations: []string{"Requester", "Approver"}},
	},
}

var highTensionSchema = Schema{
	DocType: domain.DocHighTension,
	Title:   "High Tension Permit",
	Sections: []Section{
		{Key: "basicInfo", Title: "Basic Information", Fields: append(append([]string{}, basicInfoFields...), "feederName", "voltageLevel")},
		{Key: "workStartAuthorization", Title: "Work Start Authorization", Authorizations: []string{"Requester", "Approver"}},
		{Key: "deEnergizing", Title: "De-Energizing Checklist", Rows: rows("de",
			"Breaker switched off and racked out",
			"Isolator opened",
			"Line tested dead with approved tester",
			"Earthing applied on both ends",
			"Lock and tag applied",
			"Danger boards displayed",
		)},
		{Key: "permitToWork", Title: "Permit To Work", Authorizations: []string{"Issuer", "Receiver"}},
		{Key: "preExecution", Title: "Pre-Execution Checklist", Rows: rows("pe",
			"Insulated tools available",
			"Rubber mats and gloves tested",
			"Work area demarcated",
			"Crew briefed on limits of work",
			"Adjacent live parts identified and screened",
		)},
		{Key: "jobCompletion", Title: "Job Completion", Rows: rows("jc",
			"Men and material withdrawn",
			"Temporary earths removed",
			"Work area inspected",
		), Authorizations: []string{"Receiver"}},
		{Key: "reEnergizeInstruction", Title: "Re-Energize Instruction", Rows: rows("ri",
			"Permit returned and cancelled",
			"Lock and tag removed",
			"Earthing removed",
			"Breaker racked in",
		)},
		{Key: "reEnergizeAuthorization", Title: "Re-Energize Authorization", Authorizations: []string{"Approver", "Safety Officer"}},
	},
}

var gasLineSchema = Schema{
	DocType: domain.DocGasLine,
	Title:   "Gas Line Permit",
	Sections: []Section{
		{Key: "basicInfo", Title: "Basic Information", Fields: append(append([]string{}, basicInfoFields...), "lineNumber", "medium")},
		{Key: "isolation", Title: "Isolation Checklist", Rows: rows("is",
			"Upstream valve closed and locked",
			"Downstream valve closed and locked",
			"Line depressurised",
			"Spectacle blind installed",
			"Line purged with nitrogen",
		)},
		{Key: "gasTest", Title: "Gas Test", Rows: rows("gt",
			"Oxygen level between 19.5% and 23.5%",
			"LEL below 10%",
			"H2S below 10 ppm",
			"CO below 25 ppm",
		), Fields: []string{"testedBy", "instrumentId", "testTime"}},
		{Key: "permitToWork", Title: "Permit To Work", Authorizations: []string{"Requester", "Approver", "Safety Officer"}},
		{Key: "jobCompletion", Title: "Job Completion", Rows: rows("jc",
			"Blinds removed",
			"Line leak tested",
			"Area handed back to operations",
		), Authorizations: []string{"Requester", "Approver"}},
	},
}

// SchemaFor returns the schema of a permit type.
func SchemaFor(dt domain.DocType) (Schema, bool) {
	switch dt {
	case domain.DocWork:
		return workSchema, true
	case domain.DocHighTension:
		return highTensionSchema, true
	case domain.DocGasLine:
		return gasLineSchema, true
	}
	return Schema{}, false
}

// InitialStepData seeds every section so row identity and order are fixed
// from creation: fields empty, answers blank, authorizations named by role only.
func InitialStepData(dt domain.DocType) []domain.Step {
	schema, ok := SchemaFor(dt)
	if !ok {
		return nil
	}
	steps := make([]domain.Step, 0, len(schema.Sections))
	for _, sec := range schema.Sections {
		st := domain.Step{Key: sec.Key, Title: sec.Title}
		if len(sec.Fields) > 0 {
			st.Fields = make(map[string]string, len(sec.Fields))
			for _, f := range sec.Fields {
				st.Fields[f] = ""
			}
		}
		if len(sec.Rows) > 0 {
			st.Rows = make([]domain.ChecklistRow, len(sec.Rows))
			for i, r := range sec.Rows {
				st.Rows[i] = domain.ChecklistRow{ID: r.ID, Activity: r.Activity, Answer: domain.AnswerBlank}
			}
		}
		if len(sec.Authorizations) > 0 {
			st.Authorizations = make([]domain.Authorization, len(sec.Authorizations))
			for i, role := range sec.Authorizations {
				st.Authorizations[i] = domain.Authorization{Role: role}
			}
		}
		steps = append(steps, st)
	}
	return steps
}
