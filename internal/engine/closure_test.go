package engine_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"permitline/internal/domain"
	"permitline/internal/engine"
	"permitline/internal/signature"
)

const pixel = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func fullChecklist() domain.ClosureChecklist {
	return domain.ClosureChecklist{
		WorkCompleted: true, AreaCleaned: true, ToolsRemoved: true, IsolationsRemoved: true,
		GuardsRestored: true, PersonnelWithdrawn: true, EquipmentHandedOver: true,
	}
}

func TestCheckClosureGating(t *testing.T) {
	ok := engine.ClosureSubmission{Checklist: fullChecklist(), Decision: domain.DecisionApprove, SignatureImage: pixel}
	if err := engine.CheckClosure(ok, 500); err != nil {
		t.Fatalf("approve without comments should pass: %v", err)
	}

	missingItem := ok
	missingItem.Checklist.GuardsRestored = false
	reject := ok
	reject.Decision = domain.DecisionReject
	longReject := reject
	longReject.Comments = strings.Repeat("x", 501)
	noSig := ok
	noSig.SignatureImage = ""
	blankInfo := ok
	blankInfo.Decision = domain.DecisionRequestInfo
	blankInfo.Comments = "   "
	noDecision := ok
	noDecision.Decision = ""
	for name, sub := range map[string]engine.ClosureSubmission{
		"missing checklist item": missingItem,
		"reject without comments": reject,
		"comments too long":      longReject,
		"missing signature":      noSig,
		"blank comments":         blankInfo,
		"no decision":            noDecision,
	} {
		err := engine.CheckClosure(sub, 500)
		if !errors.Is(err, engine.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	reject.Comments = "Area not handed back"
	if err := engine.CheckClosure(reject, 500); err != nil {
		t.Fatalf("reject with comments should pass: %v", err)
	}
	reject.Comments = strings.Repeat("é", 500)
	if err := engine.CheckClosure(reject, 500); err != nil {
		t.Fatalf("500 characters should pass: %v", err)
	}
}

func TestCheckClosureListsEveryProblem(t *testing.T) {
	err := engine.CheckClosure(engine.ClosureSubmission{Decision: domain.DecisionReject}, 500)
	var cve *engine.ClosureValidationError
	if !errors.As(err, &cve) {
		t.Fatalf("expected closure validation error, got %v", err)
	}
	if len(cve.Problems) != 3 {
		t.Fatalf("expected 3 problems, got %v", cve.Problems)
	}
}

func TestClosureApproveClosesPermit(t *testing.T) {
	env := newTestEnv(t)
	p := env.approved(t, domain.DocWork)
	p, err := env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleRequester)
	if err != nil {
		t.Fatalf("request closure: %v", err)
	}
	if p.Closure == nil || p.Closure.Status != domain.ClosureRequested || p.Status != domain.StatusApproved {
		t.Fatalf("unexpected closure state %+v", p.Closure)
	}
	p, err = env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleApprover, engine.ClosureSubmission{
		Checklist: fullChecklist(), Decision: domain.DecisionApprove, SignatureImage: pixel,
	})
	if err != nil {
		t.Fatalf("decide closure: %v", err)
	}
	if p.Status != domain.StatusClosed || p.Closure.Status != domain.ClosureApproved || p.Closure.DecidedBy != domain.RoleApprover {
		t.Fatalf("expected closed permit, got %s / %+v", p.Status, p.Closure)
	}
	img, err := env.Engine.Signatures.Get(env.Ctx, p.Closure.SignatureRef)
	if err != nil || img.ContentType != "image/png" {
		t.Fatalf("signature not stored: %v", err)
	}
	if !strings.HasPrefix(p.Closure.SignatureRef, signature.Key(p.PermitID, "closure/")) {
		t.Fatalf("unexpected signature ref %s", p.Closure.SignatureRef)
	}
}

func TestClosureDecisionsKeepTheirSignatures(t *testing.T) {
	env := newTestEnv(t)
	p := env.approved(t, domain.DocWork)
	if _, err := env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleRequester); err != nil {
		t.Fatalf("request: %v", err)
	}
	rejected, err := env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleSafety, engine.ClosureSubmission{
		Checklist: fullChecklist(), Decision: domain.DecisionReject, Comments: "Tools on site", SignatureImage: pixel,
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleRequester); err != nil {
		t.Fatalf("re-request: %v", err)
	}
	approved, err := env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleApprover, engine.ClosureSubmission{
		Checklist: fullChecklist(), Decision: domain.DecisionApprove, SignatureImage: pixel,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if rejected.Closure.SignatureRef == approved.Closure.SignatureRef {
		t.Fatalf("decisions share signature object %s", approved.Closure.SignatureRef)
	}
	if _, err := env.Engine.Signatures.Get(env.Ctx, rejected.Closure.SignatureRef); err != nil {
		t.Fatalf("reject signature lost: %v", err)
	}
}

func TestDecideClosureUnknownPermitIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.DecideClosure(env.Ctx, "missing", domain.RoleApprover, engine.ClosureSubmission{Decision: domain.DecisionReject})
	if !engine.IsNotFound(err) {
		t.Fatalf("expected not found before form validation, got %v", err)
	}
}

func TestDecideClosureBadSignature(t *testing.T) {
	env := newTestEnv(t)
	p := env.approved(t, domain.DocWork)
	if _, err := env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleRequester); err != nil {
		t.Fatalf("request: %v", err)
	}
	_, err := env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleApprover, engine.ClosureSubmission{
		Checklist: fullChecklist(), Decision: domain.DecisionApprove, SignatureImage: "data:text/plain;base64,aGk=",
	})
	var cve *engine.ClosureValidationError
	if !errors.As(err, &cve) {
		t.Fatalf("expected closure validation error, got %v", err)
	}
	got, _ := env.Engine.GetPermit(env.Ctx, p.PermitID)
	if got.Status != domain.StatusApproved || got.Closure.Status != domain.ClosureRequested {
		t.Fatalf("bad signature changed the permit: %s / %s", got.Status, got.Closure.Status)
	}
}

func TestClosureRejectAllowsRerequest(t *testing.T) {
	env := newTestEnv(t)
	p := env.approved(t, domain.DocGasLine)
	if _, err := env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleRequester); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleRequester); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("double request should be illegal, got %v", err)
	}
	p, err := env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleSafety, engine.ClosureSubmission{
		Checklist: fullChecklist(), Decision: domain.DecisionReject, Comments: "Blinds still in place", SignatureImage: pixel,
	})
	if err != nil {
		t.Fatalf("reject closure: %v", err)
	}
	if p.Status != domain.StatusApproved || p.Closure.Status != domain.ClosureRejected {
		t.Fatalf("expected approved permit with rejected closure, got %s / %s", p.Status, p.Closure.Status)
	}
	p, err = env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleRequester)
	if err != nil || p.Closure.Status != domain.ClosureRequested {
		t.Fatalf("re-request: %v", err)
	}
	p, err = env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleApprover, engine.ClosureSubmission{
		Checklist: fullChecklist(), Decision: domain.DecisionRequestInfo, Comments: "Photo of area?", SignatureImage: pixel,
	})
	if err != nil || p.Closure.Status != domain.ClosureInfoRequested {
		t.Fatalf("request info: %v", err)
	}
}

func TestClosureGatedByRoleAndState(t *testing.T) {
	env := newTestEnv(t)
	draft := env.create(t, domain.DocWork)
	if _, err := env.Engine.RequestClosure(env.Ctx, draft.PermitID, domain.RoleRequester); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("closure on draft should be illegal, got %v", err)
	}
	p := env.approved(t, domain.DocWork)
	if _, err := env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleApprover); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("approver cannot request closure, got %v", err)
	}
	sub := engine.ClosureSubmission{Checklist: fullChecklist(), Decision: domain.DecisionApprove, SignatureImage: pixel}
	if _, err := env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleApprover, sub); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("decision before request should be illegal, got %v", err)
	}
	if _, err := env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleRequester); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleRequester, sub); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("requester cannot decide closure, got %v", err)
	}
	incomplete := sub
	incomplete.Checklist.ToolsRemoved = false
	if _, err := env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleApprover, incomplete); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := env.Engine.GetPermit(env.Ctx, p.PermitID)
	if got.Status != domain.StatusApproved || got.Closure.Status != domain.ClosureRequested {
		t.Fatalf("rejected decision changed state: %s / %s", got.Status, got.Closure.Status)
	}
}

func TestClosureOverdueProjection(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Closure.OverdueAfterHours = 4
	p := env.approved(t, domain.DocWork)
	ret := "2024-01-02"
	if _, err := env.Engine.UpdateHeader(env.Ctx, p.PermitID, domain.RoleRequester, engine.HeaderPatch{ExpectedReturnDate: &ret}); err != nil {
		t.Fatalf("header: %v", err)
	}
	if _, err := env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleRequester); err != nil {
		t.Fatalf("request: %v", err)
	}
	*env.Clock = time.Date(2024, 1, 3, 3, 0, 0, 0, time.UTC)
	got, _ := env.Engine.GetPermit(env.Ctx, p.PermitID)
	if got.Closure.Status != domain.ClosureRequested {
		t.Fatalf("not yet overdue, got %s", got.Closure.Status)
	}
	*env.Clock = time.Date(2024, 1, 3, 5, 0, 0, 0, time.UTC)
	got, _ = env.Engine.GetPermit(env.Ctx, p.PermitID)
	if got.Closure.Status != domain.ClosureOverdue {
		t.Fatalf("expected overdue, got %s", got.Closure.Status)
	}
	stored, _ := env.Engine.Repo.Load(env.Ctx, p.PermitID)
	if stored.Closure.Status != domain.ClosureRequested {
		t.Fatalf("overdue must not be persisted, got %s", stored.Closure.Status)
	}
	got, err := env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleSafety, engine.ClosureSubmission{
		Checklist: fullChecklist(), Decision: domain.DecisionApprove, SignatureImage: pixel,
	})
	if err != nil || got.Status != domain.StatusClosed {
		t.Fatalf("overdue closure should still be decidable: %v", err)
	}
}

func TestClosedPermitIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	p := env.approved(t, domain.DocWork)
	if _, err := env.Engine.RequestClosure(env.Ctx, p.PermitID, domain.RoleRequester); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.Engine.DecideClosure(env.Ctx, p.PermitID, domain.RoleApprover, engine.ClosureSubmission{
		Checklist: fullChecklist(), Decision: domain.DecisionApprove, SignatureImage: pixel,
	}); err != nil {
		t.Fatalf("decide: %v", err)
	}
	num := "PTW-9"
	if _, err := env.Engine.UpdateHeader(env.Ctx, p.PermitID, domain.RoleAdmin, engine.HeaderPatch{PermitNumber: &num}); !errors.Is(err, engine.ErrPermitClosed) {
		t.Fatalf("header edit on closed permit: %v", err)
	}
	if _, err := env.Engine.SetAnswer(env.Ctx, engine.AnswerOptions{PermitID: p.PermitID, Section: "hazards", RowID: "hz-1", Answer: domain.AnswerNo}); !errors.Is(err, engine.ErrPermitClosed) {
		t.Fatalf("answer on closed permit: %v", err)
	}
	if _, err := env.Engine.SetField(env.Ctx, p.PermitID, domain.RoleRequester, "basicInfo", "location", "Bay 4"); !errors.Is(err, engine.ErrPermitClosed) {
		t.Fatalf("field on closed permit: %v", err)
	}
	if _, err := env.Engine.AppendComment(env.Ctx, p.PermitID, domain.RoleRequester, domain.RoleSafety, "thanks"); err != nil {
		t.Fatalf("comments stay open on closed permits: %v", err)
	}
}
