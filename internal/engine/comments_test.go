package engine_test

import (
	"errors"
	"reflect"
	"testing"

	"permitline/internal/domain"
	"permitline/internal/engine"
	"permitline/internal/migrate"
	"permitline/internal/repo"
)

func TestCommentScenario(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, domain.DocWork)
	if _, err := env.Engine.AppendComment(env.Ctx, p.PermitID, domain.RoleRequester, domain.RoleSafety, "Need gas test"); err != nil {
		t.Fatalf("append: %v", err)
	}
	th, err := env.Engine.ReadThread(env.Ctx, p.PermitID, domain.RoleRequester, domain.RoleSafety)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(th.CustomComments, []domain.Comment{{Text: "Need gas test", Checked: false}}) {
		t.Fatalf("after append: %+v", th.CustomComments)
	}
	// the reading role may acknowledge
	th, err = env.Engine.ToggleComment(env.Ctx, p.PermitID, domain.RoleSafety, domain.RoleRequester, domain.RoleSafety, 0, true)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !reflect.DeepEqual(th.CustomComments, []domain.Comment{{Text: "Need gas test", Checked: true}}) {
		t.Fatalf("after toggle: %+v", th.CustomComments)
	}
	th, err = env.Engine.DeleteComment(env.Ctx, p.PermitID, domain.RoleRequester, domain.RoleSafety, 0)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(th.CustomComments) != 0 {
		t.Fatalf("after delete: %+v", th.CustomComments)
	}
}

func TestCommentsArePermitScoped(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, domain.DocWork)
	b := env.create(t, domain.DocWork)
	if _, err := env.Engine.AppendComment(env.Ctx, a.PermitID, domain.RoleApprover, domain.RoleSafety, "only on a"); err != nil {
		t.Fatalf("append: %v", err)
	}
	th, _ := env.Engine.ReadThread(env.Ctx, b.PermitID, domain.RoleApprover, domain.RoleSafety)
	if len(th.CustomComments) != 0 {
		t.Fatalf("comment leaked across permits: %+v", th)
	}
	shared, _ := env.Engine.Repo.ReadThread(env.Ctx, repo.ChannelRef{DocType: domain.DocWork, Source: domain.RoleApprover, Target: domain.RoleSafety})
	if len(shared.CustomComments) != 0 {
		t.Fatalf("permit comment written to the shared key")
	}
}

func TestCommentChannelRules(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, domain.DocWork)
	if _, err := env.Engine.AppendComment(env.Ctx, p.PermitID, domain.RoleRequester, domain.RoleSafety, ""); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("empty comment: %v", err)
	}
	if _, err := env.Engine.AppendComment(env.Ctx, p.PermitID, domain.RoleAdmin, domain.RoleSafety, "hi"); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("admin has no channel: %v", err)
	}
	if _, err := env.Engine.ToggleComment(env.Ctx, p.PermitID, domain.RoleApprover, domain.RoleRequester, domain.RoleSafety, 0, true); !errors.Is(err, engine.ErrWrongChannel) {
		t.Fatalf("third party toggle: %v", err)
	}
	if _, err := env.Engine.AppendComment(env.Ctx, "missing", domain.RoleRequester, domain.RoleSafety, "hi"); !engine.IsNotFound(err) {
		t.Fatalf("unknown permit: %v", err)
	}
}

func TestThreadsForRole(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, domain.DocHighTension)
	if _, err := env.Engine.AppendComment(env.Ctx, p.PermitID, domain.RoleSafety, domain.RoleApprover, "Earthing verified"); err != nil {
		t.Fatalf("append: %v", err)
	}
	flags := domain.Flags{Urgent: true, PlannedShutdown: true, PlannedShutdownDate: "2024-02-10"}
	if _, err := env.Engine.SetFlags(env.Ctx, p.PermitID, domain.RoleSafety, domain.RoleApprover, flags); err != nil {
		t.Fatalf("flags: %v", err)
	}
	inbound, outbound, err := env.Engine.Threads(env.Ctx, p.PermitID, domain.RoleApprover)
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(inbound) != 2 || len(outbound) != 2 {
		t.Fatalf("unexpected thread counts %d/%d", len(inbound), len(outbound))
	}
	found := false
	for _, v := range inbound {
		if v.Source == domain.RoleSafety {
			found = true
			if len(v.Thread.CustomComments) != 1 || v.Thread.Flags != flags {
				t.Fatalf("unexpected safety thread %+v", v.Thread)
			}
		}
	}
	if !found {
		t.Fatalf("safety→approver not inbound for approver")
	}
}

func TestWriteThreadVersioned(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, domain.DocWork)
	th := domain.EmptyThread()
	th.CustomComments = append(th.CustomComments, domain.Comment{Text: "first"})
	v, err := env.Engine.WriteThread(env.Ctx, p.PermitID, domain.RoleApprover, domain.RoleRequester, th, 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := env.Engine.WriteThread(env.Ctx, p.PermitID, domain.RoleApprover, domain.RoleRequester, th, v+1); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLegacyThreadReachesLatestPermit(t *testing.T) {
	env := newTestEnv(t)
	store := env.Engine.Repo.KV
	if _, err := store.Put(env.Ctx, "comments:requester→safety", []byte(`{"customComments":[{"text":"legacy note","checked":true}]}`), 0); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}
	p := env.create(t, domain.DocWork)
	th, err := env.Engine.ReadThread(env.Ctx, p.PermitID, domain.RoleRequester, domain.RoleSafety)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(th.CustomComments, []domain.Comment{{Text: "legacy note", Checked: true}}) {
		t.Fatalf("legacy thread not adopted: %+v", th.CustomComments)
	}
	if ok, _ := kvHas(env, "comments:requester→safety:Work"); !ok {
		t.Fatalf("legacy thread not moved to the docType key")
	}

	// a later permit starts clean
	next := env.create(t, domain.DocWork)
	th, _ = env.Engine.ReadThread(env.Ctx, next.PermitID, domain.RoleRequester, domain.RoleSafety)
	if len(th.CustomComments) != 0 {
		t.Fatalf("thread adopted twice: %+v", th.CustomComments)
	}
}

func TestSharedThreadReachesLatestPermit(t *testing.T) {
	env := newTestEnv(t)
	store := env.Engine.Repo.KV
	if _, err := store.Put(env.Ctx, "comments:safety→approver:HighTension", []byte(`{"customComments":[{"text":"isolate feeder 3","checked":false}],"flags":{"plannedShutdown":true,"plannedShutdownDate":"2024-02-01"}}`), 0); err != nil {
		t.Fatalf("seed shared: %v", err)
	}
	older := env.create(t, domain.DocHighTension)
	p := env.create(t, domain.DocHighTension)
	th, _ := env.Engine.ReadThread(env.Ctx, older.PermitID, domain.RoleSafety, domain.RoleApprover)
	if len(th.CustomComments) != 0 {
		t.Fatalf("older permit adopted the shared thread")
	}
	th, err := env.Engine.AppendComment(env.Ctx, p.PermitID, domain.RoleSafety, domain.RoleApprover, "done")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	want := []domain.Comment{{Text: "isolate feeder 3"}, {Text: "done"}}
	if !reflect.DeepEqual(th.CustomComments, want) || th.Flags.PlannedShutdownDate != "2024-02-01" {
		t.Fatalf("shared thread not adopted: %+v", th)
	}
	if ok, _ := kvHas(env, migrate.AdoptedKey("comments:safety→approver:HighTension")); !ok {
		t.Fatalf("adoption not recorded")
	}
}

func kvHas(env testEnv, key string) (bool, error) {
	_, err := env.Engine.Repo.KV.Get(env.Ctx, key)
	return err == nil, err
}
