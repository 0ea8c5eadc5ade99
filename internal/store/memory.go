package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/calyptra/skillflow/internal/errdefs"
	"github.com/calyptra/skillflow/internal/model"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests, the
// offline CLI mode and degraded operation when no database is configured.
type MemoryStore struct {
	mu sync.RWMutex

	workflows   map[string]*model.Workflow
	connections map[string]*model.Connection
	toolkitGWs  map[string]*model.ToolkitGatewayRecord
	stepGWs     map[string]*model.StepGatewayRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[string]*model.Workflow),
		connections: make(map[string]*model.Connection),
		toolkitGWs:  make(map[string]*model.ToolkitGatewayRecord),
		stepGWs:     make(map[string]*model.StepGatewayRecord),
	}
}

func stepKey(workflowID string, stepOrder int) string {
	return fmt.Sprintf("%s/%d", workflowID, stepOrder)
}

// SaveWorkflow validates and upserts a workflow, assigning an id when absent.
func (s *MemoryStore) SaveWorkflow(ctx context.Context, wf *model.Workflow) error {
	if err := wf.Validate(); err != nil {
		return errdefs.Validation("%v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if wf.ID == "" {
		wf.ID = newID()
	}
	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

// GetWorkflow returns the full workflow by id.
func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, errdefs.NotFound("workflow " + id)
	}
	cp := *wf
	return &cp, nil
}

// ListWorkflowSummaries returns name and description only.
func (s *MemoryStore) ListWorkflowSummaries(ctx context.Context) ([]model.WorkflowSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WorkflowSummary, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, wf.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListWorkflows returns every workflow with steps.
func (s *MemoryStore) ListWorkflows(ctx context.Context) ([]*model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		cp := *wf
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteWorkflow removes a workflow by id.
func (s *MemoryStore) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, id)
	return nil
}

// SaveConnection validates and upserts a connection by name.
func (s *MemoryStore) SaveConnection(ctx context.Context, conn *model.Connection) error {
	if err := conn.Validate(); err != nil {
		return errdefs.Validation("%v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *conn
	s.connections[conn.Name] = &cp
	return nil
}

// GetConnectionsByNames returns active connections matching names.
func (s *MemoryStore) GetConnectionsByNames(ctx context.Context, names []string) ([]model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Connection
	for _, name := range names {
		if conn, ok := s.connections[name]; ok && conn.Active {
			out = append(out, *conn)
		}
	}
	return out, nil
}

// ListConnections returns every connection.
func (s *MemoryStore) ListConnections(ctx context.Context) ([]model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		out = append(out, *conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteConnection removes a connection by name.
func (s *MemoryStore) DeleteConnection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, name)
	return nil
}

// GetToolkitGateway looks up the shared gateway record for a toolkit.
func (s *MemoryStore) GetToolkitGateway(ctx context.Context, toolkit string) (*model.ToolkitGatewayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.toolkitGWs[toolkit]
	if !ok {
		return nil, errdefs.NotFound("toolkit gateway " + toolkit)
	}
	cp := *rec
	return &cp, nil
}

// SaveToolkitGateway upserts the record keyed by toolkit name.
func (s *MemoryStore) SaveToolkitGateway(ctx context.Context, rec *model.ToolkitGatewayRecord) error {
	if rec.Toolkit == "" {
		return errdefs.Validation("toolkit gateway record needs a toolkit name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.toolkitGWs[rec.Toolkit] = &cp
	return nil
}

// GetStepGateway looks up the per-step gateway record.
func (s *MemoryStore) GetStepGateway(ctx context.Context, workflowID string, stepOrder int) (*model.StepGatewayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.stepGWs[stepKey(workflowID, stepOrder)]
	if !ok {
		return nil, errdefs.NotFound(fmt.Sprintf("step gateway %s/%d", workflowID, stepOrder))
	}
	cp := *rec
	return &cp, nil
}

// SaveStepGateway upserts the record keyed by (workflow id, step order).
func (s *MemoryStore) SaveStepGateway(ctx context.Context, rec *model.StepGatewayRecord) error {
	if rec.WorkflowID == "" {
		return errdefs.Validation("step gateway record needs a workflow id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.stepGWs[stepKey(rec.WorkflowID, rec.StepOrder)] = &cp
	return nil
}

// DeleteStepGateway removes the per-step record. Deleting an absent record
// is a no-op.
func (s *MemoryStore) DeleteStepGateway(ctx context.Context, workflowID string, stepOrder int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stepGWs, stepKey(workflowID, stepOrder))
	return nil
}

// ListStepGateways returns every step gateway record for a workflow.
func (s *MemoryStore) ListStepGateways(ctx context.Context, workflowID string) ([]model.StepGatewayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StepGatewayRecord
	for _, rec := range s.stepGWs {
		if rec.WorkflowID == workflowID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
