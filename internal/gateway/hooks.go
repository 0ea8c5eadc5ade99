package gateway

import (
	"context"

	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/model"
	"github.com/calyptra/skillflow/internal/store"
)

// Hooks keeps step-level gateways consistent with workflow definitions.
// Invoked on workflow create/update/delete.
type Hooks struct {
	mgr      *Manager
	gateways store.GatewayStore
}

// NewHooks creates lifecycle hooks bound to a manager.
func NewHooks(mgr *Manager, gateways store.GatewayStore) *Hooks {
	return &Hooks{mgr: mgr, gateways: gateways}
}

// AfterCreate provisions a gateway for every step that references
// externally-backed tools. Provisioning failures are logged per step;
// the workflow record itself must exist regardless.
func (h *Hooks) AfterCreate(ctx context.Context, wf *model.Workflow) {
	for _, step := range wf.OrderedSteps() {
		if len(model.ToolkitsFor(step.AllowedTools)) == 0 {
			continue
		}
		if _, err := h.mgr.CreateStepGateway(ctx, wf.ID, step.Order, step.AllowedTools); err != nil {
			log.Error("step gateway provisioning failed",
				"workflow", wf.ID, "step", step.Order, "error", err)
		}
	}
}

// AfterUpdate recreates gateways for steps that still need them and
// removes gateways for steps that no longer do.
func (h *Hooks) AfterUpdate(ctx context.Context, wf *model.Workflow) {
	for _, step := range wf.OrderedSteps() {
		if len(model.ToolkitsFor(step.AllowedTools)) > 0 {
			if _, err := h.mgr.CreateStepGateway(ctx, wf.ID, step.Order, step.AllowedTools); err != nil {
				log.Error("step gateway recreation failed",
					"workflow", wf.ID, "step", step.Order, "error", err)
			}
			continue
		}
		if err := h.mgr.DeleteStepGateway(ctx, wf.ID, step.Order); err != nil {
			log.Error("step gateway removal failed",
				"workflow", wf.ID, "step", step.Order, "error", err)
		}
	}
}

// BeforeDelete tears down every step gateway the workflow owns.
func (h *Hooks) BeforeDelete(ctx context.Context, workflowID string) {
	recs, err := h.gateways.ListStepGateways(ctx, workflowID)
	if err != nil {
		log.Error("could not enumerate step gateways for deletion",
			"workflow", workflowID, "error", err)
		return
	}
	for _, rec := range recs {
		if err := h.mgr.DeleteStepGateway(ctx, workflowID, rec.StepOrder); err != nil {
			log.Error("step gateway removal failed",
				"workflow", workflowID, "step", rec.StepOrder, "error", err)
		}
	}
}
