package events

import (
	"time"

	"github.com/google/uuid"

	"permitline/internal/domain"
)

// Audit event types.
const (
	PermitCreated    = "permit.created"
	PermitUpdated    = "permit.updated"
	HeaderUpdated    = "permit.header_updated"
	AnswerRecorded   = "permit.answer_recorded"
	AuthorizationSet = "permit.authorization_set"
	StatusChanged    = "permit.status_changed"
	ClosureRequested = "closure.requested"
	ClosureDecided   = "closure.decided"
	CommentAppended  = "comment.appended"
	CommentToggled   = "comment.toggled"
	CommentDeleted   = "comment.deleted"
	CommentFlagsSet  = "comment.flags_set"
	ThreadWritten    = "comment.thread_written"
	FormSwitched     = "form.switched"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append adds one entry to the envelope's audit trail.
func (w Writer) Append(env *domain.Envelope, evtType string, role domain.Role, from, to domain.Status, payload EventPayload) domain.AuditEntry {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	entry := domain.AuditEntry{
		ID:      uuid.New().String(),
		TS:      w.Now().UTC().Format(time.RFC3339),
		Type:    evtType,
		Role:    role,
		From:    from,
		To:      to,
		Payload: map[string]any(payload),
	}
	env.AuditTrail = append(env.AuditTrail, entry)
	return entry
}
