// Package gateway manages the lifecycle of externally-provisioned,
// tool-scoped gateways: shared toolkit-level gateways created lazily and
// reused, and per-step custom gateways recreated whenever a step's tool
// set changes.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/calyptra/skillflow/internal/errdefs"
	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/model"
	"github.com/calyptra/skillflow/internal/platform"
	"github.com/calyptra/skillflow/internal/store"
)

// PlatformAPI is the subset of platform operations the manager needs.
// Satisfied by *platform.Client; tests substitute a double.
type PlatformAPI interface {
	ListAuthConfigs(ctx context.Context, toolkit string) ([]platform.AuthConfig, error)
	CreateAuthConfig(ctx context.Context, toolkit string) (*platform.AuthConfig, error)
	ListToolkitTools(ctx context.Context, toolkit string) ([]string, error)
	CreateServer(ctx context.Context, name string, authConfigIDs, allowedTools []string) (*platform.Server, error)
	DeleteServer(ctx context.Context, serverID string) error
	APIKey() string
}

// Manager owns gateway provisioning and the per-step gateway config map.
type Manager struct {
	platform  PlatformAPI
	gateways  store.GatewayStore
	conns     store.ConnectionStore
	accountID string
}

// NewManager creates a gateway manager.
func NewManager(api PlatformAPI, gateways store.GatewayStore, conns store.ConnectionStore, accountID string) *Manager {
	return &Manager{
		platform:  api,
		gateways:  gateways,
		conns:     conns,
		accountID: accountID,
	}
}

// resolveAuthConfig finds an existing auth configuration for the toolkit
// or creates a platform-managed one.
func (m *Manager) resolveAuthConfig(ctx context.Context, toolkit string) (string, error) {
	existing, err := m.platform.ListAuthConfigs(ctx, toolkit)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return existing[0].ID, nil
	}

	created, err := m.platform.CreateAuthConfig(ctx, toolkit)
	if err != nil {
		return "", err
	}
	log.Debug("created auth config", "toolkit", toolkit, "id", created.ID)
	return created.ID, nil
}

// GetOrCreateToolkitGateway returns the shared gateway for a toolkit,
// provisioning it on first use. Once the record exists no network call
// is made. Two callers racing on the same toolkit before the record
// exists may both create a remote gateway; the loser's server is simply
// unused. Creation is cheap and the duplicate is not harmful, so no
// cross-process lock guards this path.
func (m *Manager) GetOrCreateToolkitGateway(ctx context.Context, toolkit string) (*model.ToolkitGatewayRecord, error) {
	toolkit = strings.ToLower(toolkit)

	if rec, err := m.gateways.GetToolkitGateway(ctx, toolkit); err == nil {
		return rec, nil
	} else if !errdefs.IsNotFound(err) {
		return nil, err
	}

	authID, err := m.resolveAuthConfig(ctx, toolkit)
	if err != nil {
		return nil, errdefs.Gateway(fmt.Sprintf("resolve auth config for %s", toolkit), err)
	}

	tools, err := m.platform.ListToolkitTools(ctx, toolkit)
	if err != nil {
		return nil, errdefs.Gateway(fmt.Sprintf("list tools for %s", toolkit), err)
	}

	srv, err := m.platform.CreateServer(ctx, "toolkit-"+toolkit, []string{authID}, tools)
	if err != nil {
		return nil, errdefs.Gateway(fmt.Sprintf("create toolkit gateway for %s", toolkit), err)
	}

	rec := &model.ToolkitGatewayRecord{
		Toolkit:      toolkit,
		AuthConfigID: authID,
		ServerID:     srv.ID,
		URL:          srv.URL,
		Tools:        tools,
	}
	if err := m.gateways.SaveToolkitGateway(ctx, rec); err != nil {
		return nil, err
	}

	log.Info("provisioned toolkit gateway", "toolkit", toolkit, "server", srv.ID)
	return rec, nil
}

// CreateStepGateway provisions a custom gateway scoped exactly to a
// step's allowed tools, replacing any previous gateway for the same
// (workflow, step) key.
func (m *Manager) CreateStepGateway(ctx context.Context, workflowID string, stepOrder int, allowedTools []string) (*model.StepGatewayRecord, error) {
	toolkits := model.ToolkitsFor(allowedTools)
	if len(toolkits) == 0 {
		return nil, errdefs.Config("no externally-backed toolkit found in tools for step %d of workflow %s", stepOrder, workflowID)
	}

	authIDs := make([]string, 0, len(toolkits))
	for _, toolkit := range toolkits {
		id, err := m.resolveAuthConfig(ctx, toolkit)
		if err != nil {
			return nil, errdefs.Gateway(fmt.Sprintf("resolve auth config for %s", toolkit), err)
		}
		authIDs = append(authIDs, id)
	}

	// Remote delete of a stale gateway is best effort; the local record
	// is removed regardless so the catalog never points at a gateway we
	// tried to replace.
	if old, err := m.gateways.GetStepGateway(ctx, workflowID, stepOrder); err == nil {
		if err := m.platform.DeleteServer(ctx, old.ServerID); err != nil {
			log.Warn("could not delete stale step gateway", "server", old.ServerID, "error", err)
		}
		if err := m.gateways.DeleteStepGateway(ctx, workflowID, stepOrder); err != nil {
			return nil, err
		}
	}

	hosted := hostedTools(allowedTools)
	name := fmt.Sprintf("wf-%s-step-%d", workflowID, stepOrder)
	srv, err := m.platform.CreateServer(ctx, name, authIDs, hosted)
	if err != nil {
		return nil, errdefs.Gateway(fmt.Sprintf("create step gateway %s", name), err)
	}

	rec := &model.StepGatewayRecord{
		WorkflowID:    workflowID,
		StepOrder:     stepOrder,
		AuthConfigIDs: authIDs,
		ServerID:      srv.ID,
		URL:           srv.URL,
		AllowedTools:  allowedTools,
	}
	if err := m.gateways.SaveStepGateway(ctx, rec); err != nil {
		return nil, err
	}

	log.Info("provisioned step gateway", "workflow", workflowID, "step", stepOrder, "server", srv.ID)
	return rec, nil
}

// DeleteStepGateway tears down a step's gateway. Absent records are a
// no-op; remote deletion failures are logged and the local record is
// removed anyway.
func (m *Manager) DeleteStepGateway(ctx context.Context, workflowID string, stepOrder int) error {
	rec, err := m.gateways.GetStepGateway(ctx, workflowID, stepOrder)
	if errdefs.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := m.platform.DeleteServer(ctx, rec.ServerID); err != nil {
		log.Warn("could not delete step gateway remotely", "server", rec.ServerID, "error", err)
	}
	return m.gateways.DeleteStepGateway(ctx, workflowID, stepOrder)
}

// hostedTools keeps only tool names carrying a toolkit prefix.
func hostedTools(tools []string) []string {
	var out []string
	for _, tool := range tools {
		if model.ToolkitFor(tool) != "" {
			out = append(out, tool)
		}
	}
	return out
}
