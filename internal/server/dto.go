package server

import (
	"permitline/internal/domain"
	"permitline/internal/engine"
	"permitline/internal/forms"
)

// Request payloads

type CreatePermitRequest struct {
	DocType string `json:"docType" example:"Work"`
}

type SetAnswerRequest struct {
	Section string  `json:"section" example:"hazards"`
	RowID   string  `json:"rowId" example:"hz-1"`
	Answer  string  `json:"answer" example:"yes" doc:"yes, no, na or empty to clear"`
	Remarks *string `json:"remarks,omitempty"`
}

type SetFieldRequest struct {
	Section string `json:"section" example:"basicInfo"`
	Field   string `json:"field" example:"location"`
	Value   string `json:"value"`
}

type SetAuthorizationRequest struct {
	Section        string `json:"section"`
	Signatory      string `json:"signatory" example:"Permit Requester"`
	Name           string `json:"name"`
	ContactNo      string `json:"contactNo,omitempty"`
	Date           string `json:"date,omitempty" example:"2024-01-02"`
	Time           string `json:"time,omitempty" example:"08:30"`
	SignatureImage string `json:"signatureImage,omitempty"`
}

type ActionRequest struct {
	Action string `json:"action" example:"submit"`
}

type AppendCommentRequest struct {
	Text string `json:"text"`
}

type ToggleCommentRequest struct {
	Checked bool `json:"checked"`
}

type FlagsRequest struct {
	Urgent                        bool   `json:"urgent,omitempty"`
	SafetyManagerApprovalRequired bool   `json:"safetyManagerApprovalRequired,omitempty"`
	PlannedShutdown               bool   `json:"plannedShutdown,omitempty"`
	PlannedShutdownDate           string `json:"plannedShutdownDate,omitempty" example:"2024-02-10"`
}

func (r FlagsRequest) flags() domain.Flags {
	return domain.Flags{
		Urgent:                        r.Urgent,
		SafetyManagerApprovalRequired: r.SafetyManagerApprovalRequired,
		PlannedShutdown:               r.PlannedShutdown,
		PlannedShutdownDate:           r.PlannedShutdownDate,
	}
}

type WriteThreadRequest struct {
	Thread  domain.CommentThread `json:"thread"`
	Version int64                `json:"version,omitempty"`
}

type SwitchFormRequest struct {
	DocType string `json:"docType" example:"GasLine"`
}

type SetRoleRequest struct {
	Role string `json:"role" example:"approver"`
}

// Response payloads

type AvailableActionsResponse struct {
	PermitID string          `json:"permitId"`
	Role     domain.Role     `json:"role"`
	Status   domain.Status   `json:"status"`
	Actions  []engine.Action `json:"actions"`
}

type ThreadResponse struct {
	Source  domain.Role          `json:"source"`
	Target  domain.Role          `json:"target"`
	Thread  domain.CommentThread `json:"thread"`
	Version int64                `json:"version"`
}

type ThreadsResponse struct {
	Role     domain.Role         `json:"role"`
	Inbound  []engine.ThreadView `json:"inbound"`
	Outbound []engine.ThreadView `json:"outbound"`
}

type SwitchFormResponse struct {
	Permit  domain.Permit `json:"permit"`
	Created bool          `json:"created"`
	Form    forms.Form    `json:"form"`
}

type RoleResponse struct {
	Role domain.Role `json:"role"`
}

type StatsResponse struct {
	Counts map[domain.Status]int `json:"counts"`
	Total  int                   `json:"total"`
}

func statsResponse(counts map[domain.Status]int) StatsResponse {
	total := 0
	for _, n := range counts {
		total += n
	}
	return StatsResponse{Counts: counts, Total: total}
}

func threadResponse(source, target domain.Role, th domain.CommentThread, version int64) ThreadResponse {
	return ThreadResponse{Source: source, Target: target, Thread: th, Version: version}
}
