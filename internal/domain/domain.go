package domain

import (
	"encoding/json"
	"strings"
)

type DocType string

const (
	DocWork        DocType = "Work"
	DocHighTension DocType = "HighTension"
	DocGasLine     DocType = "GasLine"
)

// DocTypes lists every permit schema variant in display order.
var DocTypes = []DocType{DocWork, DocHighTension, DocGasLine}

func (d DocType) Valid() bool {
	switch d {
	case DocWork, DocHighTension, DocGasLine:
		return true
	}
	return false
}

// ParseDocType accepts the canonical names plus a few spellings the views use.
func ParseDocType(s string) (DocType, bool) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.TrimSpace(s))) {
	case "work":
		return DocWork, true
	case "hightension", "ht":
		return DocHighTension, true
	case "gasline", "gas":
		return DocGasLine, true
	}
	return "", false
}

type Role string

const (
	RoleRequester Role = "requester"
	RoleApprover  Role = "approver"
	RoleSafety    Role = "safety"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a session role string onto a Role. Unknown values are not valid.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "requester":
		return RoleRequester, true
	case "approver":
		return RoleApprover, true
	case "safety", "safety-officer", "safety_officer", "safetyofficer":
		return RoleSafety, true
	case "admin", "administrator":
		return RoleAdmin, true
	}
	return "", false
}

type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusClosed      Status = "closed"
)

type Answer string

const (
	AnswerBlank Answer = ""
	AnswerYes   Answer = "yes"
	AnswerNo    Answer = "no"
	AnswerNA    Answer = "na"
)

func (a Answer) Valid() bool {
	switch a {
	case AnswerBlank, AnswerYes, AnswerNo, AnswerNA:
		return true
	}
	return false
}

// Header is stored verbatim under permit:header and inside every permit.
type Header struct {
	PermitRequester    string  `json:"permitRequester"`
	PermitApprover1    string  `json:"permitApprover1"`
	PermitApprover2    string  `json:"permitApprover2"`
	SafetyManager      string  `json:"safetyManager"`
	PermitIssueDate    string  `json:"permitIssueDate"`
	ExpectedReturnDate string  `json:"expectedReturnDate"`
	CertificateNumber  string  `json:"certificateNumber"`
	PermitNumber       string  `json:"permitNumber"`
	PermitDocType      DocType `json:"permitDocType"`
}

type ChecklistRow struct {
	ID       string `json:"id"`
	Activity string `json:"activity"`
	Answer   Answer `json:"answer"`
	Remarks  string `json:"remarks"`
}

type Authorization struct {
	Role           string `json:"role"`
	Name           string `json:"name"`
	ContactNo      string `json:"contactNo"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	SignatureImage string `json:"signatureImage"`
}

// Step is one named section of a permit form.
type Step struct {
	Key            string            `json:"key"`
	Title          string            `json:"title"`
	Fields         map[string]string `json:"fields,omitempty"`
	Rows           []ChecklistRow    `json:"rows,omitempty"`
	Authorizations []Authorization   `json:"authorizations,omitempty"`
}

type Permit struct {
	PermitID  string   `json:"permitId"`
	DocType   DocType  `json:"docType"`
	Header    Header   `json:"header"`
	Status    Status   `json:"status"`
	StepData  []Step   `json:"stepData"`
	Closure   *Closure `json:"closure,omitempty"`
	CreatedAt string   `json:"createdAt" format:"date-time"`
	UpdatedAt string   `json:"updatedAt" format:"date-time"`
}

// Step returns the section with the given key.
func (p *Permit) Step(key string) (*Step, bool) {
	for i := range p.StepData {
		if p.StepData[i].Key == key {
			return &p.StepData[i], true
		}
	}
	return nil, false
}

// AuditEntry is one line of the envelope's audit trail.
type AuditEntry struct {
	ID      string         `json:"id"`
	TS      string         `json:"ts" format:"date-time"`
	Type    string         `json:"type"`
	Role    Role           `json:"role"`
	From    Status         `json:"from,omitempty"`
	To      Status         `json:"to,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Envelope is the stored shape of permit:{docType}-{permitId}.
type Envelope struct {
	Data       Permit       `json:"data"`
	AuditTrail []AuditEntry `json:"auditTrail"`
}

type ClosureStatus string

const (
	ClosureRequested     ClosureStatus = "CLOSURE REQUESTED"
	ClosureOverdue       ClosureStatus = "OVERDUE"
	ClosureApproved      ClosureStatus = "APPROVED"
	ClosureRejected      ClosureStatus = "REJECTED"
	ClosureInfoRequested ClosureStatus = "INFO REQUESTED"
)

type ClosureDecision string

const (
	DecisionApprove     ClosureDecision = "approve"
	DecisionReject      ClosureDecision = "reject"
	DecisionRequestInfo ClosureDecision = "request_info"
)

func (d ClosureDecision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestInfo:
		return true
	}
	return false
}

// ClosureChecklist is the completion checklist every closure decision is gated on.
type ClosureChecklist struct {
	WorkCompleted       bool `json:"workCompleted"`
	AreaCleaned         bool `json:"areaCleaned"`
	ToolsRemoved        bool `json:"toolsRemoved"`
	IsolationsRemoved   bool `json:"isolationsRemoved"`
	GuardsRestored      bool `json:"guardsRestored"`
	PersonnelWithdrawn  bool `json:"personnelWithdrawn"`
	EquipmentHandedOver bool `json:"equipmentHandedOver"`
}

// Missing returns the JSON names of unchecked items, in declaration order.
func (c ClosureChecklist) Missing() []string {
	items := []struct {
		name string
		ok   bool
	}{
		{"workCompleted", c.WorkCompleted},
		{"areaCleaned", c.AreaCleaned},
		{"toolsRemoved", c.ToolsRemoved},
		{"isolationsRemoved", c.IsolationsRemoved},
		{"guardsRestored", c.GuardsRestored},
		{"personnelWithdrawn", c.PersonnelWithdrawn},
		{"equipmentHandedOver", c.EquipmentHandedOver},
	}
	var missing []string
	for _, it := range items {
		if !it.ok {
			missing = append(missing, it.name)
		}
	}
	return missing
}

type Closure struct {
	Status         ClosureStatus    `json:"status"`
	Checklist      ClosureChecklist `json:"checklist"`
	Decision       ClosureDecision  `json:"decision,omitempty"`
	Comments       string           `json:"comments,omitempty"`
	SignatureImage string           `json:"signatureImage,omitempty"`
	SignatureRef   string           `json:"signatureRef,omitempty"`
	DecidedBy      Role             `json:"decidedBy,omitempty"`
	RequestedAt    string           `json:"requestedAt,omitempty"`
	DecidedAt      string           `json:"decidedAt,omitempty"`
}

// Flags are the fixed toggles carried by every comment thread.
type Flags struct {
	Urgent                        bool   `json:"urgent"`
	SafetyManagerApprovalRequired bool   `json:"safetyManagerApprovalRequired"`
	PlannedShutdown               bool   `json:"plannedShutdown"`
	PlannedShutdownDate           string `json:"plannedShutdownDate,omitempty"`
}

type Comment struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

// UnmarshalJSON also accepts the older plain-string entries.
func (c *Comment) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = Comment{Text: text}
		return nil
	}
	type plain Comment
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Comment(p)
	return nil
}

type CommentThread struct {
	Flags          Flags     `json:"flags"`
	CustomComments []Comment `json:"customComments"`
}

// EmptyThread returns a thread with all flags off and no comments.
func EmptyThread() CommentThread {
	return CommentThread{CustomComments: []Comment{}}
}
