package permitsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"permitline/internal/config"
	"permitline/internal/engine"
	"permitline/internal/kv"
	"permitline/internal/logging"
	"permitline/internal/server"
	"permitline/internal/signature"
	permitsdk "permitline/sdk/go"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logging.Discard()
	e := engine.New(kv.NewMemory(), config.Default("sdk"), signature.NewMemory(), log)
	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0", Log: log})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientWorkflow(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	requester := permitsdk.New(srv.URL, "requester")
	safety := permitsdk.New(srv.URL, "safety")
	approver := permitsdk.New(srv.URL, "approver")

	p, err := requester.CreatePermit(ctx, "Work")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := requester.UpdateHeader(ctx, p.PermitID, map[string]string{"permitNumber": "PTW-7"}); err != nil {
		t.Fatalf("header: %v", err)
	}
	if _, err := requester.Act(ctx, p.PermitID, "submit"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := safety.Act(ctx, p.PermitID, "begin_review"); err != nil {
		t.Fatalf("review: %v", err)
	}
	p, err = approver.Act(ctx, p.PermitID, "approve")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if p.Status != "approved" || p.Header.PermitNumber != "PTW-7" {
		t.Fatalf("unexpected permit %+v", p)
	}

	_, err = approver.Act(ctx, p.PermitID, "approve")
	var apiErr *permitsdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict || apiErr.Code != "illegal_transition" {
		t.Fatalf("expected illegal_transition, got %v", err)
	}

	actions, err := requester.AvailableActions(ctx, p.PermitID)
	if err != nil || len(actions) != 1 || actions[0] != "request_closure" {
		t.Fatalf("actions %v: %v", actions, err)
	}
}

func TestClientComments(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	requester := permitsdk.New(srv.URL, "requester")
	safety := permitsdk.New(srv.URL, "safety")
	p, err := requester.CreatePermit(ctx, "HighTension")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	th, err := requester.AddComment(ctx, p.PermitID, "safety", "Isolate feeder 3")
	if err != nil || len(th.Thread.CustomComments) != 1 {
		t.Fatalf("add: %+v %v", th, err)
	}
	th, err = safety.ToggleComment(ctx, p.PermitID, "requester", "safety", 0, true)
	if err != nil || !th.Thread.CustomComments[0].Checked {
		t.Fatalf("toggle: %+v %v", th, err)
	}
	stale := th.Version
	if _, err := requester.WriteThread(ctx, p.PermitID, "safety", th.Thread, stale); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = requester.WriteThread(ctx, p.PermitID, "safety", th.Thread, stale)
	var apiErr *permitsdk.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "version_conflict" {
		t.Fatalf("expected version_conflict, got %v", err)
	}
	th, err = requester.DeleteComment(ctx, p.PermitID, "safety", 0)
	if err != nil || len(th.Thread.CustomComments) != 0 {
		t.Fatalf("delete: %+v %v", th, err)
	}
}

func TestClientSwitchAndPreview(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c := permitsdk.New(srv.URL, "")
	if err := c.SetSessionRole(ctx, "requester"); err != nil {
		t.Fatalf("role: %v", err)
	}
	p, created, err := c.SwitchForm(ctx, "GasLine")
	if err != nil || !created {
		t.Fatalf("switch: %v created=%v", err, created)
	}
	again, created, err := c.SwitchForm(ctx, "GasLine")
	if err != nil || created || again.PermitID != p.PermitID {
		t.Fatalf("switch should resume %s, got %s", p.PermitID, again.PermitID)
	}
	pdf, err := c.Preview(ctx, p.PermitID, "pdf")
	if err != nil || len(pdf) < 4 || string(pdf[:4]) != "%PDF" {
		t.Fatalf("pdf: %v", err)
	}
	list, err := c.ListPermits(ctx, "GasLine")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %d %v", len(list), err)
	}
}
