package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"permitline/internal/domain"
	"permitline/internal/kv"
)

// Channel is a directed comment relationship between two roles. Base is the
// key stem shared with the presentation layer; the docType (and optionally
// the permit) is appended to it.
type Channel struct {
	Source domain.Role `json:"source"`
	Target domain.Role `json:"target"`
	Base   string      `json:"base"`
}

// Channels is the fixed registry. The requester/approver pair keeps the
// historical key names the views were built with.
var Channels = []Channel{
	{Source: domain.RoleRequester, Target: domain.RoleSafety, Base: "comments:requester→safety"},
	{Source: domain.RoleSafety, Target: domain.RoleApprover, Base: "comments:safety→approver"},
	{Source: domain.RoleApprover, Target: domain.RoleSafety, Base: "comments:approver→safety"},
	{Source: domain.RoleSafety, Target: domain.RoleRequester, Base: "comments:safety→requester"},
	{Source: domain.RoleRequester, Target: domain.RoleApprover, Base: "comments:approver"},
	{Source: domain.RoleApprover, Target: domain.RoleRequester, Base: "comments:safety-officer"},
}

var ErrUnknownChannel = errors.New("unknown channel")

// LookupChannel finds the channel for an ordered role pair.
func LookupChannel(source, target domain.Role) (Channel, bool) {
	for _, c := range Channels {
		if c.Source == source && c.Target == target {
			return c, true
		}
	}
	return Channel{}, false
}

// Outbound lists the channels a role writes to.
func Outbound(role domain.Role) []Channel {
	var out []Channel
	for _, c := range Channels {
		if c.Source == role {
			out = append(out, c)
		}
	}
	return out
}

// Inbound lists the channels addressed to a role.
func Inbound(role domain.Role) []Channel {
	var out []Channel
	for _, c := range Channels {
		if c.Target == role {
			out = append(out, c)
		}
	}
	return out
}

// LegacyKey is the channel's name from before threads were scoped by docType.
func (c Channel) LegacyKey() string {
	return c.Base
}

// Key returns the docType-scoped wire key.
func (c Channel) Key(dt domain.DocType) string {
	return c.Base + ":" + string(dt)
}

// ChannelRef addresses one thread. An empty PermitID yields the shared
// docType-scoped key; a set PermitID scopes the thread to that permit.
type ChannelRef struct {
	PermitID string
	DocType  domain.DocType
	Source   domain.Role
	Target   domain.Role
}

func (ref ChannelRef) Key() (string, error) {
	if !ref.DocType.Valid() {
		return "", fmt.Errorf("invalid doc type %q", ref.DocType)
	}
	c, ok := LookupChannel(ref.Source, ref.Target)
	if !ok {
		return "", fmt.Errorf("%w: %s→%s", ErrUnknownChannel, ref.Source, ref.Target)
	}
	key := c.Key(ref.DocType)
	if ref.PermitID != "" {
		key += ":" + ref.PermitID
	}
	return key, nil
}

// ReadThread returns the thread at ref. Missing and malformed records read
// as an empty thread; only storage failures are returned.
func (r Repo) ReadThread(ctx context.Context, ref ChannelRef) (domain.CommentThread, error) {
	th, _, err := r.ReadThreadVersion(ctx, ref)
	return th, err
}

// ReadThreadVersion is ReadThread plus the storage version (0 when absent).
func (r Repo) ReadThreadVersion(ctx context.Context, ref ChannelRef) (domain.CommentThread, int64, error) {
	key, err := ref.Key()
	if err != nil {
		return domain.EmptyThread(), 0, err
	}
	rec, err := r.KV.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.EmptyThread(), 0, nil
	}
	if err != nil {
		return domain.EmptyThread(), 0, err
	}
	th, ok := decodeThread(rec.Value)
	if !ok {
		r.log().WithField("key", key).Warn("discarding malformed comment thread")
		return domain.EmptyThread(), rec.Version, nil
	}
	return th, rec.Version, nil
}

func decodeThread(raw []byte) (domain.CommentThread, bool) {
	var th domain.CommentThread
	if err := json.Unmarshal(raw, &th); err != nil {
		return domain.EmptyThread(), false
	}
	if th.CustomComments == nil {
		th.CustomComments = []domain.Comment{}
	}
	return th, true
}

// WriteThread overwrites the thread. Last writer wins.
func (r Repo) WriteThread(ctx context.Context, ref ChannelRef, th domain.CommentThread) error {
	_, err := r.WriteThreadIfVersion(ctx, ref, th, 0)
	return err
}

// WriteThreadIfVersion writes only while the stored version equals version.
// Version 0 writes unconditionally.
func (r Repo) WriteThreadIfVersion(ctx context.Context, ref ChannelRef, th domain.CommentThread, version int64) (int64, error) {
	key, err := ref.Key()
	if err != nil {
		return 0, err
	}
	if th.CustomComments == nil {
		th.CustomComments = []domain.Comment{}
	}
	payload, err := json.Marshal(th)
	if err != nil {
		return 0, err
	}
	next, err := r.KV.Put(ctx, key, payload, version)
	if errors.Is(err, kv.ErrConflict) {
		return next, ErrConflict
	}
	return next, err
}

const threadWriteAttempts = 3

// updateThread applies fn to the current thread and writes it back against
// the version it read, retrying when another writer got there first. fn
// returning false skips the write.
func (r Repo) updateThread(ctx context.Context, ref ChannelRef, fn func(*domain.CommentThread) bool) (domain.CommentThread, error) {
	for attempt := 0; ; attempt++ {
		th, version, err := r.ReadThreadVersion(ctx, ref)
		if err != nil {
			return th, err
		}
		if !fn(&th) {
			return th, nil
		}
		_, err = r.WriteThreadIfVersion(ctx, ref, th, version)
		if errors.Is(err, ErrConflict) && attempt+1 < threadWriteAttempts {
			continue
		}
		return th, err
	}
}

// AppendComment adds {text, checked:false} at the end of the thread.
func (r Repo) AppendComment(ctx context.Context, ref ChannelRef, text string) (domain.CommentThread, error) {
	return r.updateThread(ctx, ref, func(th *domain.CommentThread) bool {
		th.CustomComments = append(th.CustomComments, domain.Comment{Text: text})
		return true
	})
}

// ToggleComment sets checked on one entry. Out-of-range indices are ignored.
func (r Repo) ToggleComment(ctx context.Context, ref ChannelRef, index int, checked bool) (domain.CommentThread, error) {
	return r.updateThread(ctx, ref, func(th *domain.CommentThread) bool {
		if index < 0 || index >= len(th.CustomComments) {
			return false
		}
		th.CustomComments[index].Checked = checked
		return true
	})
}

// DeleteComment removes one entry and shifts the rest down. Out-of-range indices are ignored.
func (r Repo) DeleteComment(ctx context.Context, ref ChannelRef, index int) (domain.CommentThread, error) {
	return r.updateThread(ctx, ref, func(th *domain.CommentThread) bool {
		if index < 0 || index >= len(th.CustomComments) {
			return false
		}
		th.CustomComments = append(th.CustomComments[:index], th.CustomComments[index+1:]...)
		return true
	})
}

// SetFlags replaces the thread's flags, keeping its comments.
func (r Repo) SetFlags(ctx context.Context, ref ChannelRef, flags domain.Flags) (domain.CommentThread, error) {
	if !flags.PlannedShutdown {
		flags.PlannedShutdownDate = ""
	}
	return r.updateThread(ctx, ref, func(th *domain.CommentThread) bool {
		th.Flags = flags
		return true
	})
}
