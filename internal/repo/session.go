package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"permitline/internal/domain"
	"permitline/internal/kv"
)

// LoadHeader reads permit:header. Missing or malformed data reads as an empty header.
func (r Repo) LoadHeader(ctx context.Context) (domain.Header, error) {
	rec, err := r.KV.Get(ctx, HeaderKey)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.Header{}, nil
	}
	if err != nil {
		return domain.Header{}, err
	}
	var h domain.Header
	if err := json.Unmarshal(rec.Value, &h); err != nil {
		r.log().WithField("key", HeaderKey).WithError(err).Warn("discarding malformed header")
		return domain.Header{}, nil
	}
	return h, nil
}

func (r Repo) SaveHeader(ctx context.Context, h domain.Header) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return err
	}
	_, err = r.KV.Put(ctx, HeaderKey, payload, 0)
	return err
}

// SessionRole reads session:role. Values are stored as plain strings, though
// a JSON-quoted string is accepted too. Unknown or missing roles read as requester.
func (r Repo) SessionRole(ctx context.Context) (domain.Role, error) {
	rec, err := r.KV.Get(ctx, SessionRoleKey)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.RoleRequester, nil
	}
	if err != nil {
		return domain.RoleRequester, err
	}
	raw := strings.TrimSpace(string(rec.Value))
	var quoted string
	if json.Unmarshal(rec.Value, &quoted) == nil {
		raw = quoted
	}
	role, ok := domain.ParseRole(raw)
	if !ok {
		return domain.RoleRequester, nil
	}
	return role, nil
}

func (r Repo) SetSessionRole(ctx context.Context, role domain.Role) error {
	parsed, ok := domain.ParseRole(string(role))
	if !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	_, err := r.KV.Put(ctx, SessionRoleKey, []byte(parsed), 0)
	return err
}
