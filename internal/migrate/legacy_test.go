package migrate_test

import (
	"context"
	"testing"

	"permitline/internal/domain"
	"permitline/internal/kv"
	"permitline/internal/migrate"
	"permitline/internal/repo"
)

func TestEnsureMigratedCopiesOnce(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	if _, err := store.Put(ctx, "old", []byte(`"W"`), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	copied, err := migrate.EnsureMigrated(ctx, store, "old", "new")
	if err != nil || !copied {
		t.Fatalf("first call: copied=%v err=%v", copied, err)
	}
	first, _ := store.Get(ctx, "new")
	copied, err = migrate.EnsureMigrated(ctx, store, "old", "new")
	if err != nil || copied {
		t.Fatalf("second call: copied=%v err=%v", copied, err)
	}
	second, _ := store.Get(ctx, "new")
	if string(first.Value) != string(second.Value) || first.Version != second.Version {
		t.Fatalf("second call changed value: %s/%d -> %s/%d", first.Value, first.Version, second.Value, second.Version)
	}
}

func TestEnsureMigratedNewWins(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	if _, err := store.Put(ctx, "old", []byte(`"W"`), 0); err != nil {
		t.Fatalf("put old: %v", err)
	}
	if _, err := store.Put(ctx, "new", []byte(`"V"`), 0); err != nil {
		t.Fatalf("put new: %v", err)
	}
	if copied, err := migrate.EnsureMigrated(ctx, store, "old", "new"); err != nil || copied {
		t.Fatalf("expected no copy: copied=%v err=%v", copied, err)
	}
	rec, _ := store.Get(ctx, "new")
	if string(rec.Value) != `"V"` {
		t.Fatalf("legacy value overwrote new key: %s", rec.Value)
	}
}

func TestEnsureMigratedNothingToCopy(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	if copied, err := migrate.EnsureMigrated(ctx, store, "old", "new"); err != nil || copied {
		t.Fatalf("copied=%v err=%v", copied, err)
	}
	if ok, _ := kv.Has(ctx, store, "new"); ok {
		t.Fatalf("new key should stay absent")
	}
}

func TestLegacyChannels(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	r := repo.New(store, nil)
	legacy := `{"flags":{"urgent":true},"customComments":["check valve"]}`
	if _, err := store.Put(ctx, "comments:requester→safety", []byte(legacy), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "old-approver-thread", []byte(`{"flags":{},"customComments":[{"text":"x","checked":true}]}`), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	existing := repo.ChannelRef{DocType: domain.DocWork, Source: domain.RoleSafety, Target: domain.RoleRequester}
	if _, err := r.AppendComment(ctx, existing, "already scoped"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Put(ctx, "comments:safety→requester", []byte(`{"customComments":["stale"]}`), 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	res, err := migrate.LegacyChannels(ctx, store, domain.DocWork, map[string]string{"comments:approver": "old-approver-thread"}, nil)
	if err != nil {
		t.Fatalf("legacy channels: %v", err)
	}
	if len(res.Migrated) != 2 {
		t.Fatalf("expected 2 migrated, got %v", res.Migrated)
	}

	th, _ := r.ReadThread(ctx, repo.ChannelRef{DocType: domain.DocWork, Source: domain.RoleRequester, Target: domain.RoleSafety})
	if !th.Flags.Urgent || len(th.CustomComments) != 1 || th.CustomComments[0].Text != "check valve" {
		t.Fatalf("unexpected migrated thread %+v", th)
	}
	th, _ = r.ReadThread(ctx, repo.ChannelRef{DocType: domain.DocWork, Source: domain.RoleRequester, Target: domain.RoleApprover})
	if len(th.CustomComments) != 1 || !th.CustomComments[0].Checked {
		t.Fatalf("override key not migrated: %+v", th)
	}
	th, _ = r.ReadThread(ctx, existing)
	if len(th.CustomComments) != 1 || th.CustomComments[0].Text != "already scoped" {
		t.Fatalf("scoped thread overwritten: %+v", th)
	}

	again, err := migrate.LegacyChannels(ctx, store, domain.DocWork, map[string]string{"comments:approver": "old-approver-thread"}, nil)
	if err != nil || len(again.Migrated) != 0 {
		t.Fatalf("second pass should be a no-op: %v %v", again.Migrated, err)
	}
}

func TestAdoptThreadOnce(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	if _, err := store.Put(ctx, "comments:approver", []byte(`{"customComments":["old"]}`), 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	first := repo.ChannelRef{PermitID: "p1", DocType: domain.DocWork, Source: domain.RoleRequester, Target: domain.RoleApprover}
	adopted, err := migrate.AdoptThread(ctx, store, first, "comments:approver", nil)
	if err != nil || !adopted {
		t.Fatalf("first adopt: %v %v", adopted, err)
	}
	rec, err := store.Get(ctx, "comments:approver:Work:p1")
	if err != nil || string(rec.Value) != `{"customComments":["old"]}` {
		t.Fatalf("permit thread: %q %v", rec.Value, err)
	}
	second := first
	second.PermitID = "p2"
	if adopted, err := migrate.AdoptThread(ctx, store, second, "comments:approver", nil); err != nil || adopted {
		t.Fatalf("second adopt: %v %v", adopted, err)
	}
}
