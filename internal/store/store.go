// Package store persists workflows, connections and gateway records.
// Two implementations exist: a PostgreSQL store for production and an
// in-memory store for tests and degraded/offline operation.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/calyptra/skillflow/internal/model"
)

// newID mints workflow ids at the store boundary.
func newID() string {
	return uuid.NewString()
}

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	// SaveWorkflow validates and upserts a workflow by id.
	SaveWorkflow(ctx context.Context, wf *model.Workflow) error
	// GetWorkflow returns the full workflow (with steps) by id.
	GetWorkflow(ctx context.Context, id string) (*model.Workflow, error)
	// ListWorkflowSummaries returns name and description only, for the
	// classifier registry.
	ListWorkflowSummaries(ctx context.Context) ([]model.WorkflowSummary, error)
	// ListWorkflows returns every workflow with steps.
	ListWorkflows(ctx context.Context) ([]*model.Workflow, error)
	// DeleteWorkflow removes a workflow by id.
	DeleteWorkflow(ctx context.Context, id string) error
}

// ConnectionStore persists named tool connections.
type ConnectionStore interface {
	// SaveConnection validates and upserts a connection by name.
	SaveConnection(ctx context.Context, conn *model.Connection) error
	// GetConnectionsByNames returns active connections matching names.
	GetConnectionsByNames(ctx context.Context, names []string) ([]model.Connection, error)
	// ListConnections returns every connection.
	ListConnections(ctx context.Context) ([]model.Connection, error)
	// DeleteConnection removes a connection by name.
	DeleteConnection(ctx context.Context, name string) error
}

// GatewayStore persists provisioned gateway records. Toolkit records are
// keyed by toolkit name; step records by (workflow id, step order). Both
// keys are unique.
type GatewayStore interface {
	GetToolkitGateway(ctx context.Context, toolkit string) (*model.ToolkitGatewayRecord, error)
	SaveToolkitGateway(ctx context.Context, rec *model.ToolkitGatewayRecord) error
	GetStepGateway(ctx context.Context, workflowID string, stepOrder int) (*model.StepGatewayRecord, error)
	SaveStepGateway(ctx context.Context, rec *model.StepGatewayRecord) error
	DeleteStepGateway(ctx context.Context, workflowID string, stepOrder int) error
	ListStepGateways(ctx context.Context, workflowID string) ([]model.StepGatewayRecord, error)
}

// Store combines every aggregate plus a reachability probe.
type Store interface {
	WorkflowStore
	ConnectionStore
	GatewayStore

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
