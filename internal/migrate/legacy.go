package migrate

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"permitline/internal/domain"
	"permitline/internal/kv"
	"permitline/internal/repo"
)

// EnsureMigrated copies oldKey to newKey when newKey is absent and oldKey is
// present. An existing newKey is never overwritten. Reports whether a copy happened.
func EnsureMigrated(ctx context.Context, store kv.Store, oldKey, newKey string) (bool, error) {
	if oldKey == newKey {
		return false, nil
	}
	exists, err := kv.Has(ctx, store, newKey)
	if err != nil || exists {
		return false, err
	}
	rec, err := store.Get(ctx, oldKey)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := store.Put(ctx, newKey, rec.Value, 0); err != nil {
		return false, err
	}
	return true, nil
}

// LegacyResult lists the channel keys a legacy pass populated.
type LegacyResult struct {
	DocType  domain.DocType `json:"docType"`
	Migrated []string       `json:"migrated"`
	Skipped  []string       `json:"skipped"`
}

// LegacyChannels moves every unscoped channel thread into the docType-scoped
// key for dt. overrides maps a channel's key stem to a different legacy key.
func LegacyChannels(ctx context.Context, store kv.Store, dt domain.DocType, overrides map[string]string, log logrus.FieldLogger) (LegacyResult, error) {
	res := LegacyResult{DocType: dt, Migrated: []string{}, Skipped: []string{}}
	if !dt.Valid() {
		return res, errors.New("legacy doc type is not valid")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	for _, c := range repo.Channels {
		oldKey := c.LegacyKey()
		if o, ok := overrides[c.Base]; ok && o != "" {
			oldKey = o
		}
		newKey := c.Key(dt)
		copied, err := EnsureMigrated(ctx, store, oldKey, newKey)
		if err != nil {
			return res, err
		}
		if copied {
			log.WithFields(logrus.Fields{"from": oldKey, "to": newKey}).Info("migrated legacy comment channel")
			res.Migrated = append(res.Migrated, newKey)
		} else {
			res.Skipped = append(res.Skipped, newKey)
		}
	}
	return res, nil
}

// AdoptedKey marks a shared thread as already copied into a permit.
func AdoptedKey(shared string) string {
	return "adopted:" + shared
}

// AdoptThread gives ref's permit the thread that was written before threads
// were scoped by permit. legacyKey, when set, is first moved into the shared
// docType key. The shared thread is copied into at most one permit.
func AdoptThread(ctx context.Context, store kv.Store, ref repo.ChannelRef, legacyKey string, log logrus.FieldLogger) (bool, error) {
	c, ok := repo.LookupChannel(ref.Source, ref.Target)
	if !ok || ref.PermitID == "" {
		return false, nil
	}
	shared := c.Key(ref.DocType)
	if legacyKey != "" {
		if _, err := EnsureMigrated(ctx, store, legacyKey, shared); err != nil {
			return false, err
		}
	}
	done, err := kv.Has(ctx, store, AdoptedKey(shared))
	if err != nil || done {
		return false, err
	}
	own, err := ref.Key()
	if err != nil {
		return false, err
	}
	copied, err := EnsureMigrated(ctx, store, shared, own)
	if err != nil || !copied {
		return false, err
	}
	if _, err := store.Put(ctx, AdoptedKey(shared), []byte(ref.PermitID), 0); err != nil {
		return true, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{"from": shared, "to": own, "permit_id": ref.PermitID}).Info("adopted shared comment thread")
	return true, nil
}
