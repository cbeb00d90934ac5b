package forms

import (
	"fmt"

	"permitline/internal/domain"
)

// View names the presentation component that renders a form for a role.
type View string

const (
	ViewRequester View = "requester-form"
	ViewApprover  View = "approver-review"
	ViewSafety    View = "safety-review"
	ViewAdmin     View = "admin-console"
)

// Form is the routing result: which schema applies and which view renders it.
type Form struct {
	DocType  domain.DocType `json:"docType"`
	Role     domain.Role    `json:"role"`
	View     View           `json:"view"`
	Layout   Schema         `json:"schema"`
	StepData []domain.Step  `json:"stepData"`
}

// Route resolves the form for a permit type and the active role. It never
// touches comment channels; those are keyed independently of the view.
func Route(dt domain.DocType, role domain.Role) (Form, error) {
	schema, ok := SchemaFor(dt)
	if !ok {
		return Form{}, fmt.Errorf("unknown doc type %q", dt)
	}
	view, err := viewFor(role)
	if err != nil {
		return Form{}, err
	}
	return Form{
		DocType:  dt,
		Role:     role,
		View:     view,
		Layout:   schema,
		StepData: InitialStepData(dt),
	}, nil
}

func viewFor(role domain.Role) (View, error) {
	switch role {
	case domain.RoleRequester:
		return ViewRequester, nil
	case domain.RoleApprover:
		return ViewApprover, nil
	case domain.RoleSafety:
		return ViewSafety, nil
	case domain.RoleAdmin:
		return ViewAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

// HasRow reports whether the schema of dt declares row id inside section key.
func HasRow(dt domain.DocType, section, rowID string) bool {
	schema, ok := SchemaFor(dt)
	if !ok {
		return false
	}
	for _, sec := range schema.Sections {
		if sec.Key != section {
			continue
		}
		for _, r := range sec.Rows {
			if r.ID == rowID {
				return true
			}
		}
	}
	return false
}
