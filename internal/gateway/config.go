package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/calyptra/skillflow/internal/errdefs"
	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/model"
	"github.com/calyptra/skillflow/internal/platform"
)

// ServerRef is one entry of the gateway configuration consumed by the
// execution engine. The shape is the engine's tool-gateway contract and
// must not drift.
type ServerRef struct {
	URL         string            `json:"url"`
	Type        string            `json:"type"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
}

func (m *Manager) serverRef(url string) ServerRef {
	ref := ServerRef{
		URL:  url,
		Type: "http",
		Headers: map[string]string{
			platform.AuthHeader: m.platform.APIKey(),
		},
	}
	if m.accountID != "" {
		ref.QueryParams = map[string]string{
			"connected_account_id": m.accountID,
		}
	}
	return ref
}

// ConfigForStep assembles the gateway configuration map for one step:
// one entry per externally-backed workflow connection whose toolkit
// gateway exists, then the step's own gateway merged last so it takes
// precedence. Missing records mean "not available", never an error; an
// empty map is a valid result.
func (m *Manager) ConfigForStep(ctx context.Context, wf *model.Workflow, stepOrder int) map[string]ServerRef {
	out := make(map[string]ServerRef)
	if wf == nil {
		return out
	}

	names := wf.Connections
	if step, ok := wf.StepByOrder(stepOrder); ok && len(step.Connections) > 0 {
		names = step.Connections
	}

	if len(names) > 0 && m.conns != nil {
		conns, err := m.conns.GetConnectionsByNames(ctx, names)
		if err != nil {
			log.Warn("connection lookup failed during gateway config assembly", "error", err)
		}
		for _, conn := range conns {
			if !conn.Hosted {
				continue
			}
			toolkit := strings.ToLower(conn.Name)
			rec, err := m.gateways.GetToolkitGateway(ctx, toolkit)
			if err != nil {
				if !errdefs.IsNotFound(err) {
					log.Warn("toolkit gateway lookup failed", "toolkit", toolkit, "error", err)
				}
				continue
			}
			out[toolkit] = m.serverRef(rec.URL)
		}
	}

	if rec, err := m.gateways.GetStepGateway(ctx, wf.ID, stepOrder); err == nil {
		out[fmt.Sprintf("step-%d", stepOrder)] = m.serverRef(rec.URL)
	}

	return out
}
