// Package preview projects a permit into the fixed tabular layout used for
// printing. Render is pure; HTML and PDF only format its result.
package preview

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"permitline/internal/domain"
	"permitline/internal/forms"
)

type Cell struct {
	Label string
	Value string
}

type Table struct {
	Columns []string
	Rows    [][]string
}

type Section struct {
	Key            string
	Title          string
	Fields         []Cell
	Checklist      *Table
	Authorizations *Table
}

type Document struct {
	Title    string
	PermitID string
	DocType  domain.DocType
	Status   string
	Header   []Cell
	Sections []Section
	Closure  []Cell
}

var (
	checklistColumns     = []string{"No.", "Activity", "Answer", "Remarks"}
	authorizationColumns = []string{"Role", "Name", "Contact No.", "Date", "Time", "Signature"}
)

// Render builds the printable document. Absent values render as blank cells.
func Render(p domain.Permit) Document {
	schema, _ := forms.SchemaFor(p.DocType)
	title := schema.Title
	if title == "" {
		title = "Permit To Work"
	}
	doc := Document{
		Title:    title,
		PermitID: p.PermitID,
		DocType:  p.DocType,
		Status:   statusLabel(p.Status),
		Header: []Cell{
			{"Permit Number", p.Header.PermitNumber},
			{"Certificate Number", p.Header.CertificateNumber},
			{"Permit Requester", p.Header.PermitRequester},
			{"Permit Approver 1", p.Header.PermitApprover1},
			{"Permit Approver 2", p.Header.PermitApprover2},
			{"Safety Manager", p.Header.SafetyManager},
			{"Issue Date", p.Header.PermitIssueDate},
			{"Expected Return Date", p.Header.ExpectedReturnDate},
		},
	}
	for _, st := range p.StepData {
		doc.Sections = append(doc.Sections, renderSection(st, fieldOrder(schema, st.Key)))
	}
	if c := p.Closure; c != nil {
		doc.Closure = []Cell{
			{"Closure Status", string(c.Status)},
			{"Decision", string(c.Decision)},
			{"Decided By", string(c.DecidedBy)},
			{"Requested At", c.RequestedAt},
			{"Decided At", c.DecidedAt},
			{"Comments", c.Comments},
			{"Checklist", checklistSummary(c.Checklist)},
		}
	}
	return doc
}

func renderSection(st domain.Step, order []string) Section {
	sec := Section{Key: st.Key, Title: st.Title}
	if sec.Title == "" {
		sec.Title = humanize(st.Key)
	}
	seen := map[string]bool{}
	for _, name := range order {
		if v, ok := st.Fields[name]; ok {
			sec.Fields = append(sec.Fields, Cell{humanize(name), v})
			seen[name] = true
		}
	}
	var extra []string
	for name := range st.Fields {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		sec.Fields = append(sec.Fields, Cell{humanize(name), st.Fields[name]})
	}
	if len(st.Rows) > 0 {
		t := &Table{Columns: checklistColumns}
		for i, r := range st.Rows {
			t.Rows = append(t.Rows, []string{strconv.Itoa(i + 1), r.Activity, answerLabel(r.Answer), r.Remarks})
		}
		sec.Checklist = t
	}
	if len(st.Authorizations) > 0 {
		t := &Table{Columns: authorizationColumns}
		for _, a := range st.Authorizations {
			signed := ""
			if a.SignatureImage != "" {
				signed = "Signed"
			}
			t.Rows = append(t.Rows, []string{a.Role, a.Name, a.ContactNo, a.Date, a.Time, signed})
		}
		sec.Authorizations = t
	}
	return sec
}

func fieldOrder(schema forms.Schema, key string) []string {
	for _, s := range schema.Sections {
		if s.Key == key {
			return s.Fields
		}
	}
	return nil
}

func answerLabel(a domain.Answer) string {
	switch a {
	case domain.AnswerYes:
		return "Yes"
	case domain.AnswerNo:
		return "No"
	case domain.AnswerNA:
		return "N/A"
	}
	return ""
}

func statusLabel(s domain.Status) string {
	return strings.ToUpper(strings.ReplaceAll(string(s), "_", " "))
}

func checklistSummary(c domain.ClosureChecklist) string {
	missing := c.Missing()
	if len(missing) == 0 {
		return "Complete"
	}
	return "Pending: " + strings.Join(missing, ", ")
}

// humanize turns workDescription into Work Description.
func humanize(key string) string {
	var b strings.Builder
	for i, r := range key {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
