package engine

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"permitline/internal/domain"
	"permitline/internal/events"
	"permitline/internal/signature"
)

// ClosureSubmission is what an approver or safety officer submits on the closure form.
type ClosureSubmission struct {
	Checklist      domain.ClosureChecklist `json:"checklist,omitempty"`
	Decision       domain.ClosureDecision  `json:"decision"`
	Comments       string                  `json:"comments,omitempty"`
	SignatureImage string                  `json:"signatureImage,omitempty"`
}

// CheckClosure applies the closure gate: every checklist item done, comments
// of 1..maxComments characters unless approving, and a signature.
func CheckClosure(sub ClosureSubmission, maxComments int) error {
	var problems []string
	if !sub.Decision.Valid() {
		problems = append(problems, "decision must be approve, reject or request_info")
	}
	if missing := sub.Checklist.Missing(); len(missing) > 0 {
		problems = append(problems, "checklist incomplete: "+strings.Join(missing, ", "))
	}
	if sub.Decision != domain.DecisionApprove {
		n := utf8.RuneCountInString(strings.TrimSpace(sub.Comments))
		switch {
		case n == 0:
			problems = append(problems, "comments are required unless approving")
		case n > maxComments:
			problems = append(problems, "comments exceed the maximum length")
		}
	}
	if strings.TrimSpace(sub.SignatureImage) == "" {
		problems = append(problems, "signature is required")
	}
	if len(problems) > 0 {
		return &ClosureValidationError{Problems: problems}
	}
	return nil
}

func closureRequestable(c *domain.Closure) bool {
	return c == nil || c.Status == domain.ClosureRejected || c.Status == domain.ClosureInfoRequested
}

func closureDecidable(c *domain.Closure) bool {
	return c != nil && (c.Status == domain.ClosureRequested || c.Status == domain.ClosureOverdue)
}

// project reports OVERDUE on a pending closure once the expected return date
// plus the configured grace has passed. The stored record is not changed.
func (e Engine) project(p domain.Permit) domain.Permit {
	if p.Closure == nil || p.Closure.Status != domain.ClosureRequested {
		return p
	}
	due, ok := parseDate(p.Header.ExpectedReturnDate)
	if !ok {
		return p
	}
	if len(p.Header.ExpectedReturnDate) == len("2006-01-02") {
		due = due.Add(24 * time.Hour)
	}
	due = due.Add(time.Duration(e.Config.Closure.OverdueAfterHours) * time.Hour)
	if e.now().After(due) {
		c := *p.Closure
		c.Status = domain.ClosureOverdue
		p.Closure = &c
	}
	return p
}

// RequestClosure opens the closure review of an approved permit.
func (e Engine) RequestClosure(ctx context.Context, permitID string, role domain.Role) (domain.Permit, error) {
	fields := logrus.Fields{"permit_id": permitID, "role": role, "action": ActionRequestClosure}
	p, err := e.mutate(ctx, permitID, func(env *domain.Envelope) error {
		fields["doc_type"] = env.Data.DocType
		fields["from"] = env.Data.Status
		if env.Data.Status != domain.StatusApproved || role != domain.RoleRequester || !closureRequestable(env.Data.Closure) {
			return &TransitionError{From: env.Data.Status, Action: ActionRequestClosure, Role: role}
		}
		c := domain.Closure{Status: domain.ClosureRequested, RequestedAt: e.stamp()}
		if env.Data.Closure != nil {
			c.Checklist = env.Data.Closure.Checklist
		}
		env.Data.Closure = &c
		e.audit(env, events.ClosureRequested, role, env.Data.Status, env.Data.Status, nil)
		return nil
	})
	if err != nil {
		e.log().WithFields(fields).WithError(err).Warn("closure request rejected")
		return p, err
	}
	e.log().WithFields(fields).Info("closure requested")
	return p, nil
}

// DecideClosure records an approver or safety decision on a pending closure.
// Approving closes the permit; rejecting keeps it approved so closure can be requested again.
func (e Engine) DecideClosure(ctx context.Context, permitID string, role domain.Role, sub ClosureSubmission) (domain.Permit, error) {
	fields := logrus.Fields{"permit_id": permitID, "role": role, "action": ActionDecideClosure, "decision": sub.Decision}
	current, err := e.GetPermit(ctx, permitID)
	if err != nil {
		return domain.Permit{}, err
	}
	if err := CheckClosure(sub, e.Config.CommentsMax()); err != nil {
		e.log().WithFields(fields).WithError(err).Warn("closure decision rejected")
		return domain.Permit{}, err
	}
	if err := ensureClosureDecision(current, role); err != nil {
		e.log().WithFields(fields).WithError(err).Warn("closure decision rejected")
		return domain.Permit{}, err
	}
	// One object per decision. An upload whose save fails stays unreferenced.
	ref, err := signature.Upload(ctx, e.Signatures, permitID, "closure/"+uuid.NewString(), sub.SignatureImage)
	if errors.Is(err, signature.ErrBadDataURL) {
		return domain.Permit{}, &ClosureValidationError{Problems: []string{"signature is not a valid image"}}
	}
	if err != nil {
		return domain.Permit{}, err
	}

	p, err := e.mutate(ctx, permitID, func(env *domain.Envelope) error {
		if err := ensureClosureDecision(e.project(env.Data), role); err != nil {
			return err
		}
		from := env.Data.Status
		c := *env.Data.Closure
		c.Checklist = sub.Checklist
		c.Decision = sub.Decision
		c.Comments = strings.TrimSpace(sub.Comments)
		c.SignatureImage = sub.SignatureImage
		c.SignatureRef = ref
		c.DecidedBy = role
		c.DecidedAt = e.stamp()
		switch sub.Decision {
		case domain.DecisionApprove:
			c.Status = domain.ClosureApproved
			env.Data.Status = domain.StatusClosed
		case domain.DecisionReject:
			c.Status = domain.ClosureRejected
		case domain.DecisionRequestInfo:
			c.Status = domain.ClosureInfoRequested
		}
		env.Data.Closure = &c
		fields["from"] = from
		fields["to"] = env.Data.Status
		e.audit(env, events.ClosureDecided, role, from, env.Data.Status, events.EventPayload{
			"decision":      string(sub.Decision),
			"closureStatus": string(c.Status),
		})
		return nil
	})
	if err != nil {
		e.log().WithFields(fields).WithError(err).Warn("closure decision rejected")
		return p, err
	}
	e.log().WithFields(fields).Info("closure decided")
	return p, nil
}

func ensureClosureDecision(p domain.Permit, role domain.Role) error {
	if p.Status != domain.StatusApproved || (role != domain.RoleApprover && role != domain.RoleSafety) || !closureDecidable(p.Closure) {
		return &TransitionError{From: p.Status, Action: ActionDecideClosure, Role: role}
	}
	return nil
}
