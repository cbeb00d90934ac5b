package engine

import (
	"context"
	"slices"

	"github.com/sirupsen/logrus"

	"permitline/internal/domain"
	"permitline/internal/events"
)

type Action string

const (
	ActionSubmit         Action = "submit"
	ActionBeginReview    Action = "begin_review"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionResubmit       Action = "resubmit"
	ActionRequestClosure Action = "request_closure"
	ActionDecideClosure  Action = "decide_closure"
)

// Actions lists the lifecycle actions accepted by Act.
var Actions = []Action{ActionSubmit, ActionBeginReview, ActionApprove, ActionReject, ActionResubmit}

func ParseAction(s string) (Action, bool) {
	a := Action(s)
	if slices.Contains(Actions, a) {
		return a, true
	}
	switch s {
	case "begin-review", "review":
		return ActionBeginReview, true
	}
	return "", false
}

type transition struct {
	from   domain.Status
	action Action
	roles  []domain.Role
	to     domain.Status
}

var transitions = []transition{
	{domain.StatusDraft, ActionSubmit, []domain.Role{domain.RoleRequester}, domain.StatusSubmitted},
	{domain.StatusSubmitted, ActionBeginReview, []domain.Role{domain.RoleSafety, domain.RoleApprover}, domain.StatusUnderReview},
	{domain.StatusUnderReview, ActionApprove, []domain.Role{domain.RoleApprover}, domain.StatusApproved},
	{domain.StatusUnderReview, ActionReject, []domain.Role{domain.RoleApprover}, domain.StatusRejected},
	{domain.StatusRejected, ActionResubmit, []domain.Role{domain.RoleRequester}, domain.StatusSubmitted},
}

// ensureTransition resolves the target status of action taken by role from status from.
func ensureTransition(from domain.Status, action Action, role domain.Role) (domain.Status, error) {
	for _, t := range transitions {
		if t.from == from && t.action == action && slices.Contains(t.roles, role) {
			return t.to, nil
		}
	}
	return from, &TransitionError{From: from, Action: action, Role: role}
}

// AvailableActions lists what role may do to a permit in its current state.
func AvailableActions(p domain.Permit, role domain.Role) []Action {
	out := []Action{}
	for _, t := range transitions {
		if t.from == p.Status && slices.Contains(t.roles, role) {
			out = append(out, t.action)
		}
	}
	if p.Status == domain.StatusApproved {
		if role == domain.RoleRequester && closureRequestable(p.Closure) {
			out = append(out, ActionRequestClosure)
		}
		if (role == domain.RoleApprover || role == domain.RoleSafety) && closureDecidable(p.Closure) {
			out = append(out, ActionDecideClosure)
		}
	}
	return out
}

// Act applies a lifecycle action. Illegal actions leave the stored permit untouched.
func (e Engine) Act(ctx context.Context, permitID string, role domain.Role, action Action) (domain.Permit, error) {
	fields := logrus.Fields{"permit_id": permitID, "role": role, "action": action}
	p, err := e.mutate(ctx, permitID, func(env *domain.Envelope) error {
		from := env.Data.Status
		fields["doc_type"] = env.Data.DocType
		fields["from"] = from
		to, err := ensureTransition(from, action, role)
		if err != nil {
			return err
		}
		env.Data.Status = to
		fields["to"] = to
		e.audit(env, events.StatusChanged, role, from, to, events.EventPayload{"action": string(action)})
		return nil
	})
	if err != nil {
		e.log().WithFields(fields).WithError(err).Warn("permit action rejected")
		return p, err
	}
	e.log().WithFields(fields).Info("permit status changed")
	return p, nil
}
