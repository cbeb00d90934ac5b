package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"permitline/internal/domain"
	"permitline/internal/events"
	"permitline/internal/migrate"
	"permitline/internal/repo"
)

// ref scopes a channel to an existing permit.
func (e Engine) ref(ctx context.Context, permitID string, source, target domain.Role) (repo.ChannelRef, error) {
	p, err := e.Repo.Load(ctx, permitID)
	if err != nil {
		return repo.ChannelRef{}, err
	}
	ref := repo.ChannelRef{PermitID: p.PermitID, DocType: p.DocType, Source: source, Target: target}
	if _, err := ref.Key(); err != nil {
		return ref, invalidf("%v", err)
	}
	if err := e.adopt(ctx, ref); err != nil {
		return ref, err
	}
	return ref, nil
}

// adopt hands the shared docType thread, and the unscoped legacy thread
// before it, to the latest permit of that type.
func (e Engine) adopt(ctx context.Context, ref repo.ChannelRef) error {
	latest, ok, err := e.Repo.LoadLatestDraft(ctx, ref.DocType)
	if err != nil || !ok || latest.PermitID != ref.PermitID {
		return err
	}
	var legacyKey string
	if e.Config != nil && ref.DocType == e.Config.LegacyDocType() {
		if c, ok := repo.LookupChannel(ref.Source, ref.Target); ok {
			legacyKey = c.LegacyKey()
			if o := e.Config.Legacy.Keys[c.Base]; o != "" {
				legacyKey = o
			}
		}
	}
	_, err = migrate.AdoptThread(ctx, e.Repo.KV, ref, legacyKey, e.log())
	return err
}

// ThreadView is one channel as seen from a role.
type ThreadView struct {
	Source domain.Role          `json:"source"`
	Target domain.Role          `json:"target"`
	Thread domain.CommentThread `json:"thread"`
}

func (e Engine) ReadThread(ctx context.Context, permitID string, source, target domain.Role) (domain.CommentThread, error) {
	ref, err := e.ref(ctx, permitID, source, target)
	if err != nil {
		return domain.EmptyThread(), err
	}
	return e.Repo.ReadThread(ctx, ref)
}

// ReadThreadVersion also returns the stored version for a later conditional WriteThread.
func (e Engine) ReadThreadVersion(ctx context.Context, permitID string, source, target domain.Role) (domain.CommentThread, int64, error) {
	ref, err := e.ref(ctx, permitID, source, target)
	if err != nil {
		return domain.EmptyThread(), 0, err
	}
	return e.Repo.ReadThreadVersion(ctx, ref)
}

// Threads returns the inbound and outbound channels of role for a permit.
func (e Engine) Threads(ctx context.Context, permitID string, role domain.Role) (inbound, outbound []ThreadView, err error) {
	collect := func(chans []repo.Channel) ([]ThreadView, error) {
		out := make([]ThreadView, 0, len(chans))
		for _, c := range chans {
			th, err := e.ReadThread(ctx, permitID, c.Source, c.Target)
			if err != nil {
				return nil, err
			}
			out = append(out, ThreadView{Source: c.Source, Target: c.Target, Thread: th})
		}
		return out, nil
	}
	if inbound, err = collect(repo.Inbound(role)); err != nil {
		return nil, nil, err
	}
	if outbound, err = collect(repo.Outbound(role)); err != nil {
		return nil, nil, err
	}
	return inbound, outbound, nil
}

func (e Engine) logComment(permitID string, role, target domain.Role, evt string) {
	e.log().WithFields(logrus.Fields{"permit_id": permitID, "role": role, "target": target, "event": evt}).Debug("comment thread updated")
}

// AppendComment writes on role's outbound channel to target.
func (e Engine) AppendComment(ctx context.Context, permitID string, role, target domain.Role, text string) (domain.CommentThread, error) {
	if text == "" {
		return domain.EmptyThread(), invalidf("comment text is required")
	}
	ref, err := e.ref(ctx, permitID, role, target)
	if err != nil {
		return domain.EmptyThread(), err
	}
	th, err := e.Repo.AppendComment(ctx, ref, text)
	if err == nil {
		e.logComment(permitID, role, target, events.CommentAppended)
	}
	return th, err
}

// ToggleComment may be used by either end of the channel.
func (e Engine) ToggleComment(ctx context.Context, permitID string, role, source, target domain.Role, index int, checked bool) (domain.CommentThread, error) {
	if role != source && role != target {
		return domain.EmptyThread(), ErrWrongChannel
	}
	ref, err := e.ref(ctx, permitID, source, target)
	if err != nil {
		return domain.EmptyThread(), err
	}
	th, err := e.Repo.ToggleComment(ctx, ref, index, checked)
	if err == nil {
		e.logComment(permitID, role, target, events.CommentToggled)
	}
	return th, err
}

func (e Engine) DeleteComment(ctx context.Context, permitID string, role, target domain.Role, index int) (domain.CommentThread, error) {
	ref, err := e.ref(ctx, permitID, role, target)
	if err != nil {
		return domain.EmptyThread(), err
	}
	th, err := e.Repo.DeleteComment(ctx, ref, index)
	if err == nil {
		e.logComment(permitID, role, target, events.CommentDeleted)
	}
	return th, err
}

func (e Engine) SetFlags(ctx context.Context, permitID string, role, target domain.Role, flags domain.Flags) (domain.CommentThread, error) {
	if flags.PlannedShutdownDate != "" {
		if _, ok := parseDate(flags.PlannedShutdownDate); !ok {
			return domain.EmptyThread(), invalidf("plannedShutdownDate must be YYYY-MM-DD")
		}
	}
	ref, err := e.ref(ctx, permitID, role, target)
	if err != nil {
		return domain.EmptyThread(), err
	}
	th, err := e.Repo.SetFlags(ctx, ref, flags)
	if err == nil {
		e.logComment(permitID, role, target, events.CommentFlagsSet)
	}
	return th, err
}

// WriteThread replaces role's outbound thread wholesale. A positive version
// makes the write conditional.
func (e Engine) WriteThread(ctx context.Context, permitID string, role, target domain.Role, th domain.CommentThread, version int64) (int64, error) {
	ref, err := e.ref(ctx, permitID, role, target)
	if err != nil {
		return 0, err
	}
	next, err := e.Repo.WriteThreadIfVersion(ctx, ref, th, version)
	if err == nil {
		e.logComment(permitID, role, target, events.ThreadWritten)
	}
	return next, err
}
