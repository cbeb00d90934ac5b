package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"permitline/internal/domain"
	"permitline/internal/forms"
	"permitline/internal/kv"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("version conflict")
)

// Repo is the Permit Record Store over a key/value backend.
type Repo struct {
	KV  kv.Store
	Log logrus.FieldLogger
	Now func() time.Time
}

func New(store kv.Store, log logrus.FieldLogger) Repo {
	return Repo{KV: store, Log: log, Now: time.Now}
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) log() logrus.FieldLogger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}

// Create allocates a fresh draft permit with schema-seeded step data. It is not persisted.
func (r Repo) Create(dt domain.DocType) (domain.Permit, error) {
	if !dt.Valid() {
		return domain.Permit{}, fmt.Errorf("invalid doc type %q", dt)
	}
	now := r.now().UTC().Format(time.RFC3339)
	return domain.Permit{
		PermitID:  uuid.New().String(),
		DocType:   dt,
		Header:    domain.Header{PermitDocType: dt},
		Status:    domain.StatusDraft,
		StepData:  forms.InitialStepData(dt),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Load returns the stored permit. Malformed records read as ErrNotFound.
func (r Repo) Load(ctx context.Context, permitID string) (domain.Permit, error) {
	env, _, err := r.LoadEnvelope(ctx, permitID)
	return env.Data, err
}

// LoadEnvelope returns the permit envelope and its storage version.
func (r Repo) LoadEnvelope(ctx context.Context, permitID string) (domain.Envelope, int64, error) {
	if permitID == "" {
		return domain.Envelope{}, 0, ErrNotFound
	}
	for _, dt := range domain.DocTypes {
		env, version, err := r.readEnvelope(ctx, PermitKey(dt, permitID))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return env, version, err
	}
	return domain.Envelope{}, 0, ErrNotFound
}

// LoadLatestDraft returns the most recently saved permit of a type, if any.
func (r Repo) LoadLatestDraft(ctx context.Context, dt domain.DocType) (domain.Permit, bool, error) {
	env, _, err := r.readEnvelope(ctx, LatestKey(dt))
	if errors.Is(err, ErrNotFound) {
		return domain.Permit{}, false, nil
	}
	if err != nil {
		return domain.Permit{}, false, err
	}
	return env.Data, true, nil
}

func (r Repo) readEnvelope(ctx context.Context, key string) (domain.Envelope, int64, error) {
	rec, err := r.KV.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.Envelope{}, 0, ErrNotFound
	}
	if err != nil {
		return domain.Envelope{}, 0, err
	}
	var env domain.Envelope
	if err := json.Unmarshal(rec.Value, &env); err != nil || env.Data.PermitID == "" {
		r.log().WithField("key", key).WithError(err).Warn("discarding malformed permit record")
		return domain.Envelope{}, 0, ErrNotFound
	}
	if env.AuditTrail == nil {
		env.AuditTrail = []domain.AuditEntry{}
	}
	return env, rec.Version, nil
}

// Save overwrites the stored permit wholesale and moves the latest pointer. Last writer wins.
func (r Repo) Save(ctx context.Context, p domain.Permit) error {
	_, err := r.SaveEnvelope(ctx, domain.Envelope{Data: p, AuditTrail: []domain.AuditEntry{}}, 0)
	return err
}

// SaveEnvelope writes the envelope; expectedVersion 0 overwrites unconditionally.
func (r Repo) SaveEnvelope(ctx context.Context, env domain.Envelope, expectedVersion int64) (int64, error) {
	p := env.Data
	if p.PermitID == "" {
		return 0, errors.New("permit id required")
	}
	if !p.DocType.Valid() {
		return 0, fmt.Errorf("invalid doc type %q", p.DocType)
	}
	if env.AuditTrail == nil {
		env.AuditTrail = []domain.AuditEntry{}
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return 0, err
	}
	version, err := r.KV.Put(ctx, PermitKey(p.DocType, p.PermitID), payload, expectedVersion)
	if errors.Is(err, kv.ErrConflict) {
		return version, ErrConflict
	}
	if err != nil {
		return 0, err
	}
	if _, err := r.KV.Put(ctx, LatestKey(p.DocType), payload, 0); err != nil {
		return version, fmt.Errorf("update latest pointer: %w", err)
	}
	return version, nil
}

// List returns permits of a type, newest first. Unreadable records are skipped.
func (r Repo) List(ctx context.Context, dt domain.DocType) ([]domain.Permit, error) {
	keys, err := r.KV.ListKeys(ctx, permitKeyPrefix(dt))
	if err != nil {
		return nil, err
	}
	res := make([]domain.Permit, 0, len(keys))
	for _, key := range keys {
		if _, ok := permitIDFromKey(dt, key); !ok {
			continue
		}
		env, _, err := r.readEnvelope(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		res = append(res, env.Data)
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].UpdatedAt == res[j].UpdatedAt {
			return res[i].PermitID > res[j].PermitID
		}
		return res[i].UpdatedAt > res[j].UpdatedAt
	})
	return res, nil
}

// ListAll returns permits of every type, newest first.
func (r Repo) ListAll(ctx context.Context) ([]domain.Permit, error) {
	var all []domain.Permit
	for _, dt := range domain.DocTypes {
		items, err := r.List(ctx, dt)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].UpdatedAt > all[j].UpdatedAt })
	return all, nil
}

// CountByStatus tallies permits per lifecycle status.
func (r Repo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[domain.Status]int{}
	for _, p := range all {
		counts[p.Status]++
	}
	return counts, nil
}
