package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"permitline/internal/config"
	"permitline/internal/domain"
	"permitline/internal/events"
	"permitline/internal/forms"
	"permitline/internal/kv"
	"permitline/internal/repo"
	"permitline/internal/signature"
)

type Engine struct {
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Signatures signature.Store
	Log        logrus.FieldLogger
	Now        func() time.Time
}

func New(store kv.Store, cfg *config.Config, sigs signature.Store, log logrus.FieldLogger) Engine {
	if cfg == nil {
		cfg = config.Default("")
	}
	if sigs == nil {
		sigs = signature.NewMemory()
	}
	return Engine{
		Repo:       repo.New(store, log),
		Config:     cfg,
		Signatures: sigs,
		Log:        log,
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}

func (e Engine) audit(env *domain.Envelope, evtType string, role domain.Role, from, to domain.Status, payload events.EventPayload) {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	w.Append(env, evtType, role, from, to, payload)
}

// mutate loads the envelope, applies fn and writes it back against the version
// it read. Nothing is written when fn fails.
func (e Engine) mutate(ctx context.Context, permitID string, fn func(env *domain.Envelope) error) (domain.Permit, error) {
	env, version, err := e.Repo.LoadEnvelope(ctx, permitID)
	if err != nil {
		return domain.Permit{}, err
	}
	if err := fn(&env); err != nil {
		return domain.Permit{}, err
	}
	env.Data.UpdatedAt = e.stamp()
	if _, err := e.Repo.SaveEnvelope(ctx, env, version); err != nil {
		return domain.Permit{}, err
	}
	return e.project(env.Data), nil
}

// mutateOpen is mutate for edits that a closed permit no longer accepts.
func (e Engine) mutateOpen(ctx context.Context, permitID string, fn func(env *domain.Envelope) error) (domain.Permit, error) {
	return e.mutate(ctx, permitID, func(env *domain.Envelope) error {
		if env.Data.Status == domain.StatusClosed {
			return ErrPermitClosed
		}
		return fn(env)
	})
}

// CreatePermit stores a fresh draft of type dt.
func (e Engine) CreatePermit(ctx context.Context, dt domain.DocType, role domain.Role) (domain.Permit, error) {
	p, err := e.Repo.Create(dt)
	if err != nil {
		return domain.Permit{}, invalidf("%v", err)
	}
	p.CreatedAt = e.stamp()
	p.UpdatedAt = p.CreatedAt
	env := domain.Envelope{Data: p, AuditTrail: []domain.AuditEntry{}}
	e.audit(&env, events.PermitCreated, role, "", p.Status, events.EventPayload{"docType": string(dt)})
	if _, err := e.Repo.SaveEnvelope(ctx, env, 0); err != nil {
		return domain.Permit{}, err
	}
	e.log().WithFields(logrus.Fields{"permit_id": p.PermitID, "doc_type": dt, "role": role}).Info("permit created")
	return p, nil
}

// GetPermit loads a permit with its closure state projected to now.
func (e Engine) GetPermit(ctx context.Context, permitID string) (domain.Permit, error) {
	p, err := e.Repo.Load(ctx, permitID)
	if err != nil {
		return p, err
	}
	return e.project(p), nil
}

func (e Engine) AuditTrail(ctx context.Context, permitID string) ([]domain.AuditEntry, error) {
	env, _, err := e.Repo.LoadEnvelope(ctx, permitID)
	if err != nil {
		return nil, err
	}
	return env.AuditTrail, nil
}

// LatestDraft returns the permit most recently saved for dt.
func (e Engine) LatestDraft(ctx context.Context, dt domain.DocType) (domain.Permit, bool, error) {
	p, ok, err := e.Repo.LoadLatestDraft(ctx, dt)
	if err != nil || !ok {
		return p, ok, err
	}
	return e.project(p), true, nil
}

// ListPermits lists permits of dt, or of every type when dt is empty.
func (e Engine) ListPermits(ctx context.Context, dt domain.DocType) ([]domain.Permit, error) {
	var (
		items []domain.Permit
		err   error
	)
	if dt == "" {
		items, err = e.Repo.ListAll(ctx)
	} else {
		items, err = e.Repo.List(ctx, dt)
	}
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = e.project(items[i])
	}
	return items, nil
}

// HeaderPatch carries the header fields to change; nil fields are kept.
type HeaderPatch struct {
	PermitRequester    *string `json:"permitRequester,omitempty"`
	PermitApprover1    *string `json:"permitApprover1,omitempty"`
	PermitApprover2    *string `json:"permitApprover2,omitempty"`
	SafetyManager      *string `json:"safetyManager,omitempty"`
	PermitIssueDate    *string `json:"permitIssueDate,omitempty"`
	ExpectedReturnDate *string `json:"expectedReturnDate,omitempty"`
	CertificateNumber  *string `json:"certificateNumber,omitempty"`
	PermitNumber       *string `json:"permitNumber,omitempty"`
}

func (hp HeaderPatch) apply(h *domain.Header) []string {
	var changed []string
	set := func(name string, dst *string, v *string) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = append(changed, name)
		}
	}
	set("permitRequester", &h.PermitRequester, hp.PermitRequester)
	set("permitApprover1", &h.PermitApprover1, hp.PermitApprover1)
	set("permitApprover2", &h.PermitApprover2, hp.PermitApprover2)
	set("safetyManager", &h.SafetyManager, hp.SafetyManager)
	set("permitIssueDate", &h.PermitIssueDate, hp.PermitIssueDate)
	set("expectedReturnDate", &h.ExpectedReturnDate, hp.ExpectedReturnDate)
	set("certificateNumber", &h.CertificateNumber, hp.CertificateNumber)
	set("permitNumber", &h.PermitNumber, hp.PermitNumber)
	return changed
}

// UpdateHeader patches a permit's header and mirrors it to permit:header.
func (e Engine) UpdateHeader(ctx context.Context, permitID string, role domain.Role, patch HeaderPatch) (domain.Permit, error) {
	for name, v := range map[string]*string{"permitIssueDate": patch.PermitIssueDate, "expectedReturnDate": patch.ExpectedReturnDate} {
		if v != nil && *v != "" {
			if _, ok := parseDate(*v); !ok {
				return domain.Permit{}, invalidf("%s must be a date (YYYY-MM-DD)", name)
			}
		}
	}
	p, err := e.mutateOpen(ctx, permitID, func(env *domain.Envelope) error {
		changed := patch.apply(&env.Data.Header)
		env.Data.Header.PermitDocType = env.Data.DocType
		e.audit(env, events.HeaderUpdated, role, "", "", events.EventPayload{"fields": changed})
		return nil
	})
	if err != nil {
		return p, err
	}
	if err := e.Repo.SaveHeader(ctx, p.Header); err != nil {
		return p, err
	}
	return p, nil
}

// AnswerOptions selects one checklist row and the values to record on it.
type AnswerOptions struct {
	PermitID string
	Role     domain.Role
	Section  string
	RowID    string
	Answer   domain.Answer
	Remarks  *string
}

func (e Engine) SetAnswer(ctx context.Context, opts AnswerOptions) (domain.Permit, error) {
	if !opts.Answer.Valid() {
		return domain.Permit{}, invalidf("answer must be yes, no, na or blank")
	}
	return e.mutateOpen(ctx, opts.PermitID, func(env *domain.Envelope) error {
		if !forms.HasRow(env.Data.DocType, opts.Section, opts.RowID) {
			return invalidf("%s form has no row %s in section %s", env.Data.DocType, opts.RowID, opts.Section)
		}
		st, ok := env.Data.Step(opts.Section)
		if !ok {
			return invalidf("permit %s is missing section %s", env.Data.PermitID, opts.Section)
		}
		for i := range st.Rows {
			if st.Rows[i].ID != opts.RowID {
				continue
			}
			st.Rows[i].Answer = opts.Answer
			if opts.Remarks != nil {
				st.Rows[i].Remarks = *opts.Remarks
			}
			e.audit(env, events.AnswerRecorded, opts.Role, "", "", events.EventPayload{
				"section": opts.Section,
				"row":     opts.RowID,
				"answer":  string(opts.Answer),
			})
			return nil
		}
		return invalidf("permit %s is missing row %s", env.Data.PermitID, opts.RowID)
	})
}

// AuthorizationOptions fills the authorization entry labelled Signatory in a section.
type AuthorizationOptions struct {
	PermitID       string
	Role           domain.Role
	Section        string
	Signatory      string
	Name           string
	ContactNo      string
	Date           string
	Time           string
	SignatureImage string
}

func (e Engine) SetAuthorization(ctx context.Context, opts AuthorizationOptions) (domain.Permit, error) {
	if opts.SignatureImage != "" {
		if _, err := signature.DecodeDataURL(opts.SignatureImage); err != nil {
			return domain.Permit{}, invalidf("%v", err)
		}
	}
	if opts.Date != "" {
		if _, ok := parseDate(opts.Date); !ok {
			return domain.Permit{}, invalidf("date must be YYYY-MM-DD")
		}
	}
	return e.mutateOpen(ctx, opts.PermitID, func(env *domain.Envelope) error {
		st, ok := env.Data.Step(opts.Section)
		if !ok {
			return invalidf("unknown section %s", opts.Section)
		}
		for i := range st.Authorizations {
			a := &st.Authorizations[i]
			if !strings.EqualFold(a.Role, opts.Signatory) {
				continue
			}
			a.Name = opts.Name
			a.ContactNo = opts.ContactNo
			a.Date = opts.Date
			a.Time = opts.Time
			a.SignatureImage = opts.SignatureImage
			e.audit(env, events.AuthorizationSet, opts.Role, "", "", events.EventPayload{
				"section":   opts.Section,
				"signatory": a.Role,
				"signed":    opts.SignatureImage != "",
			})
			return nil
		}
		return invalidf("section %s has no %s authorization", opts.Section, opts.Signatory)
	})
}

// SetField writes one free-text field of a section.
func (e Engine) SetField(ctx context.Context, permitID string, role domain.Role, section, field, value string) (domain.Permit, error) {
	return e.mutateOpen(ctx, permitID, func(env *domain.Envelope) error {
		st, ok := env.Data.Step(section)
		if !ok {
			return invalidf("unknown section %s", section)
		}
		if _, ok := st.Fields[field]; !ok {
			return invalidf("section %s has no field %s", section, field)
		}
		st.Fields[field] = value
		e.audit(env, events.PermitUpdated, role, "", "", events.EventPayload{"section": section, "field": field})
		return nil
	})
}

// SwitchForm moves the session to another permit type. The current draft is
// left as it is; the destination's latest draft is resumed or a new one created.
func (e Engine) SwitchForm(ctx context.Context, to domain.DocType, role domain.Role) (domain.Permit, bool, error) {
	if !to.Valid() {
		return domain.Permit{}, false, invalidf("unknown doc type %q", to)
	}
	p, ok, err := e.LatestDraft(ctx, to)
	if err != nil {
		return domain.Permit{}, false, err
	}
	created := !ok
	if created {
		if p, err = e.CreatePermit(ctx, to, role); err != nil {
			return domain.Permit{}, false, err
		}
	}
	e.log().WithFields(logrus.Fields{"permit_id": p.PermitID, "doc_type": to, "created": created}).Info(events.FormSwitched)
	return p, created, nil
}

// Stats counts stored permits per status.
func (e Engine) Stats(ctx context.Context) (map[domain.Status]int, error) {
	return e.Repo.CountByStatus(ctx)
}

// IsNotFound reports whether err means the permit does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
