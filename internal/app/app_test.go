package app

import (
	"context"
	"testing"

	"permitline/internal/config"
	"permitline/internal/domain"
	"permitline/internal/engine"
	"permitline/internal/kv"
	"permitline/internal/logging"
	"permitline/internal/repo"
)

func TestOpenSQLiteWorkspaceRunsLegacyMigration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rt, err := Open(ctx, dir, nil, logging.Discard())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(rt.Legacy.Migrated) != 0 {
		t.Fatalf("nothing to migrate on a fresh workspace: %v", rt.Legacy.Migrated)
	}
	store := rt.Engine.Repo.KV
	if _, err := store.Put(ctx, "comments:safety→approver", []byte(`{"customComments":["legacy note"]}`), 0); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}
	rt.Close()

	rt, err = Open(ctx, dir, nil, logging.Discard())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt.Close()
	if len(rt.Legacy.Migrated) != 1 {
		t.Fatalf("expected one migrated channel, got %v", rt.Legacy.Migrated)
	}
	th, err := rt.Engine.Repo.ReadThread(ctx, repo.ChannelRef{DocType: domain.DocWork, Source: domain.RoleSafety, Target: domain.RoleApprover})
	if err != nil || len(th.CustomComments) != 1 || th.CustomComments[0].Text != "legacy note" {
		t.Fatalf("legacy thread not readable under scoped key: %+v %v", th, err)
	}
	p, err := rt.Engine.CreatePermit(ctx, domain.DocWork, domain.RoleSafety)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	th, err = rt.Engine.ReadThread(ctx, p.PermitID, domain.RoleSafety, domain.RoleApprover)
	if err != nil || len(th.CustomComments) != 1 || th.CustomComments[0].Text != "legacy note" {
		t.Fatalf("legacy thread not visible on the new permit: %+v %v", th, err)
	}
}

func TestOpenMemoryDriver(t *testing.T) {
	cfg := config.Default("mem")
	cfg.Storage.Driver = "memory"
	cfg.Legacy.DocType = "GasLine"
	rt, err := Open(context.Background(), t.TempDir(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if ok, _ := kv.Has(context.Background(), rt.Engine.Repo.KV, "permit:header"); ok {
		t.Fatalf("fresh memory store should be empty")
	}
	if rt.Legacy.DocType != domain.DocGasLine {
		t.Fatalf("legacy doc type not honoured: %s", rt.Legacy.DocType)
	}
}

func TestClosureSignatureSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rt, err := Open(ctx, dir, nil, logging.Discard())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e := rt.Engine
	p, err := e.CreatePermit(ctx, domain.DocWork, domain.RoleRequester)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, step := range []struct {
		role   domain.Role
		action engine.Action
	}{
		{domain.RoleRequester, engine.ActionSubmit},
		{domain.RoleSafety, engine.ActionBeginReview},
		{domain.RoleApprover, engine.ActionApprove},
	} {
		if _, err := e.Act(ctx, p.PermitID, step.role, step.action); err != nil {
			t.Fatalf("%s: %v", step.action, err)
		}
	}
	if _, err := e.RequestClosure(ctx, p.PermitID, domain.RoleRequester); err != nil {
		t.Fatalf("request closure: %v", err)
	}
	p, err = e.DecideClosure(ctx, p.PermitID, domain.RoleSafety, engine.ClosureSubmission{
		Checklist: domain.ClosureChecklist{
			WorkCompleted: true, AreaCleaned: true, ToolsRemoved: true, IsolationsRemoved: true,
			GuardsRestored: true, PersonnelWithdrawn: true, EquipmentHandedOver: true,
		},
		Decision:       domain.DecisionApprove,
		SignatureImage: "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==",
	})
	if err != nil {
		t.Fatalf("decide closure: %v", err)
	}
	rt.Close()

	rt, err = Open(ctx, dir, nil, logging.Discard())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt.Close()
	img, err := rt.Engine.Signatures.Get(ctx, p.Closure.SignatureRef)
	if err != nil || img.ContentType != "image/png" {
		t.Fatalf("signature lost across reopen: %v", err)
	}
}
