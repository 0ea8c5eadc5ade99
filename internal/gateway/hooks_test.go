package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/calyptra/skillflow/internal/model"
)

func hooksFixture(t *testing.T) (*Hooks, *fakePlatform, *Manager, context.Context) {
	t.Helper()
	mgr, fp, ms := newTestManager(t)
	return NewHooks(mgr, ms), fp, mgr, context.Background()
}

func TestHooksAfterCreateProvisionsToolBearingSteps(t *testing.T) {
	hooks, fp, mgr, ctx := hooksFixture(t)

	wf := &model.Workflow{
		ID:   "wf-1",
		Name: "digest",
		Steps: []model.Step{
			{Order: 0, Task: "fetch", AllowedTools: []string{"GMAIL__FETCH"}},
			{Order: 1, Task: "summarize"},
			{Order: 2, Task: "post", AllowedTools: []string{"SLACK__POST", "Read"}},
		},
	}

	hooks.AfterCreate(ctx, wf)

	if len(fp.createServerCalls) != 2 {
		t.Fatalf("gateways created = %d, want 2 (steps without external tools are skipped)", len(fp.createServerCalls))
	}
	for _, order := range []int{0, 2} {
		if _, err := mgr.gateways.GetStepGateway(ctx, "wf-1", order); err != nil {
			t.Errorf("step %d gateway missing: %v", order, err)
		}
	}
}

func TestHooksAfterCreateContinuesPastFailedStep(t *testing.T) {
	hooks, fp, mgr, ctx := hooksFixture(t)
	fp.listAuthErr = errors.New("platform down")

	wf := &model.Workflow{
		ID:   "wf-1",
		Name: "digest",
		Steps: []model.Step{
			{Order: 0, Task: "fetch", AllowedTools: []string{"GMAIL__FETCH"}},
		},
	}

	// Must not panic or abort; failures are logged per step.
	hooks.AfterCreate(ctx, wf)

	if _, err := mgr.gateways.GetStepGateway(ctx, "wf-1", 0); err == nil {
		t.Error("no gateway record expected after provisioning failure")
	}
}

func TestHooksAfterUpdateRemovesStaleGateways(t *testing.T) {
	hooks, fp, mgr, ctx := hooksFixture(t)

	wf := &model.Workflow{
		ID:   "wf-1",
		Name: "digest",
		Steps: []model.Step{
			{Order: 0, Task: "fetch", AllowedTools: []string{"GMAIL__FETCH"}},
		},
	}
	hooks.AfterCreate(ctx, wf)

	// The step no longer references external tools after the edit.
	wf.Steps[0].AllowedTools = []string{"Read"}
	hooks.AfterUpdate(ctx, wf)

	if _, err := mgr.gateways.GetStepGateway(ctx, "wf-1", 0); err == nil {
		t.Error("gateway should be torn down when the step drops external tools")
	}
	if len(fp.deleteServerCalls) != 1 {
		t.Errorf("remote deletions = %d, want 1", len(fp.deleteServerCalls))
	}
}

func TestHooksAfterUpdateRecreatesChangedSteps(t *testing.T) {
	hooks, _, mgr, ctx := hooksFixture(t)

	wf := &model.Workflow{
		ID:   "wf-1",
		Name: "digest",
		Steps: []model.Step{
			{Order: 0, Task: "fetch", AllowedTools: []string{"GMAIL__FETCH"}},
		},
	}
	hooks.AfterCreate(ctx, wf)
	before, err := mgr.gateways.GetStepGateway(ctx, "wf-1", 0)
	if err != nil {
		t.Fatal(err)
	}

	wf.Steps[0].AllowedTools = []string{"GMAIL__FETCH", "GMAIL__SEND"}
	hooks.AfterUpdate(ctx, wf)

	after, err := mgr.gateways.GetStepGateway(ctx, "wf-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if after.ServerID == before.ServerID {
		t.Error("update should provision a fresh gateway for the changed step")
	}
	if len(after.AllowedTools) != 2 {
		t.Errorf("snapshot = %v, want the updated tool list", after.AllowedTools)
	}
}

func TestHooksBeforeDeleteTearsDownAllStepGateways(t *testing.T) {
	hooks, fp, mgr, ctx := hooksFixture(t)

	wf := &model.Workflow{
		ID:   "wf-1",
		Name: "digest",
		Steps: []model.Step{
			{Order: 0, Task: "fetch", AllowedTools: []string{"GMAIL__FETCH"}},
			{Order: 1, Task: "post", AllowedTools: []string{"SLACK__POST"}},
		},
	}
	hooks.AfterCreate(ctx, wf)

	hooks.BeforeDelete(ctx, "wf-1")

	recs, err := mgr.gateways.ListStepGateways(ctx, "wf-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("remaining records = %d, want 0", len(recs))
	}
	if len(fp.deleteServerCalls) != 2 {
		t.Errorf("remote deletions = %d, want 2", len(fp.deleteServerCalls))
	}
}
