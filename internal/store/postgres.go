package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calyptra/skillflow/internal/errdefs"
	"github.com/calyptra/skillflow/internal/model"
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore on an existing pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema if it does not exist. The unique keys on
// toolkit name and (workflow_id, step_order) enforce the gateway record
// invariants at the database level.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			steps JSONB NOT NULL,
			connections JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS connections (
			name TEXT PRIMARY KEY,
			active BOOLEAN NOT NULL DEFAULT true,
			tools JSONB,
			hosted BOOLEAN NOT NULL DEFAULT false,
			command TEXT NOT NULL DEFAULT '',
			args JSONB,
			env JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS toolkit_gateways (
			toolkit TEXT PRIMARY KEY,
			auth_config_id TEXT NOT NULL,
			server_id TEXT NOT NULL,
			url TEXT NOT NULL,
			tools JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS step_gateways (
			workflow_id TEXT NOT NULL,
			step_order INT NOT NULL,
			auth_config_ids JSONB,
			server_id TEXT NOT NULL,
			url TEXT NOT NULL,
			allowed_tools JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (workflow_id, step_order)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func toJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func fromJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// SaveWorkflow validates and upserts a workflow by id.
func (s *PostgresStore) SaveWorkflow(ctx context.Context, wf *model.Workflow) error {
	if err := wf.Validate(); err != nil {
		return errdefs.Validation("%v", err)
	}
	if wf.ID == "" {
		wf.ID = newID()
	}
	steps, err := toJSON(wf.Steps)
	if err != nil {
		return err
	}
	conns, err := toJSON(wf.Connections)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO workflows (id, name, description, steps, connections)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			steps = EXCLUDED.steps,
			connections = EXCLUDED.connections,
			updated_at = now()`,
		wf.ID, wf.Name, wf.Description, steps, conns)
	return err
}

// GetWorkflow returns the full workflow (with steps) by id.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	var wf model.Workflow
	var steps, conns []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, name, description, steps, connections, created_at, updated_at
		 FROM workflows WHERE id = $1`, id).
		Scan(&wf.ID, &wf.Name, &wf.Description, &steps, &conns, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdefs.NotFound("workflow " + id)
	}
	if err != nil {
		return nil, err
	}
	if err := fromJSON(steps, &wf.Steps); err != nil {
		return nil, errdefs.Validation("workflow %s has malformed steps: %v", id, err)
	}
	if err := fromJSON(conns, &wf.Connections); err != nil {
		return nil, errdefs.Validation("workflow %s has malformed connections: %v", id, err)
	}
	// Reject non-conforming records at the boundary instead of trusting
	// shape at every read site.
	if err := wf.Validate(); err != nil {
		return nil, errdefs.Validation("%v", err)
	}
	return &wf, nil
}

// ListWorkflowSummaries returns name and description only.
func (s *PostgresStore) ListWorkflowSummaries(ctx context.Context) ([]model.WorkflowSummary, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, description FROM workflows ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WorkflowSummary
	for rows.Next() {
		var sum model.WorkflowSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Description); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// ListWorkflows returns every workflow with steps.
func (s *PostgresStore) ListWorkflows(ctx context.Context) ([]*model.Workflow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, steps, connections, created_at, updated_at
		 FROM workflows ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Workflow
	for rows.Next() {
		var wf model.Workflow
		var steps, conns []byte
		if err := rows.Scan(&wf.ID, &wf.Name, &wf.Description, &steps, &conns, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, err
		}
		if err := fromJSON(steps, &wf.Steps); err != nil {
			return nil, errdefs.Validation("workflow %s has malformed steps: %v", wf.ID, err)
		}
		if err := fromJSON(conns, &wf.Connections); err != nil {
			return nil, errdefs.Validation("workflow %s has malformed connections: %v", wf.ID, err)
		}
		out = append(out, &wf)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes a workflow by id.
func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	return err
}

// SaveConnection validates and upserts a connection by name.
func (s *PostgresStore) SaveConnection(ctx context.Context, conn *model.Connection) error {
	if err := conn.Validate(); err != nil {
		return errdefs.Validation("%v", err)
	}
	tools, err := toJSON(conn.Tools)
	if err != nil {
		return err
	}
	args, err := toJSON(conn.Args)
	if err != nil {
		return err
	}
	env, err := toJSON(conn.Env)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO connections (name, active, tools, hosted, command, args, env)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (name) DO UPDATE SET
			active = EXCLUDED.active,
			tools = EXCLUDED.tools,
			hosted = EXCLUDED.hosted,
			command = EXCLUDED.command,
			args = EXCLUDED.args,
			env = EXCLUDED.env`,
		conn.Name, conn.Active, tools, conn.Hosted, conn.Command, args, env)
	return err
}

// GetConnectionsByNames returns active connections matching names.
func (s *PostgresStore) GetConnectionsByNames(ctx context.Context, names []string) ([]model.Connection, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT name, active, tools, hosted, command, args, env
		 FROM connections WHERE name = ANY($1) AND active`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnections(rows)
}

// ListConnections returns every connection.
func (s *PostgresStore) ListConnections(ctx context.Context) ([]model.Connection, error) {
	rows, err := s.db.Query(ctx,
		`SELECT name, active, tools, hosted, command, args, env
		 FROM connections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnections(rows)
}

func scanConnections(rows pgx.Rows) ([]model.Connection, error) {
	var out []model.Connection
	for rows.Next() {
		var conn model.Connection
		var tools, args, env []byte
		if err := rows.Scan(&conn.Name, &conn.Active, &tools, &conn.Hosted, &conn.Command, &args, &env); err != nil {
			return nil, err
		}
		if err := fromJSON(tools, &conn.Tools); err != nil {
			return nil, err
		}
		if err := fromJSON(args, &conn.Args); err != nil {
			return nil, err
		}
		if err := fromJSON(env, &conn.Env); err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

// DeleteConnection removes a connection by name.
func (s *PostgresStore) DeleteConnection(ctx context.Context, name string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM connections WHERE name = $1`, name)
	return err
}

// GetToolkitGateway looks up the shared gateway record for a toolkit.
func (s *PostgresStore) GetToolkitGateway(ctx context.Context, toolkit string) (*model.ToolkitGatewayRecord, error) {
	var rec model.ToolkitGatewayRecord
	var tools []byte
	err := s.db.QueryRow(ctx,
		`SELECT toolkit, auth_config_id, server_id, url, tools, created_at
		 FROM toolkit_gateways WHERE toolkit = $1`, toolkit).
		Scan(&rec.Toolkit, &rec.AuthConfigID, &rec.ServerID, &rec.URL, &tools, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdefs.NotFound("toolkit gateway " + toolkit)
	}
	if err != nil {
		return nil, err
	}
	if err := fromJSON(tools, &rec.Tools); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveToolkitGateway upserts the record keyed by toolkit name.
func (s *PostgresStore) SaveToolkitGateway(ctx context.Context, rec *model.ToolkitGatewayRecord) error {
	tools, err := toJSON(rec.Tools)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO toolkit_gateways (toolkit, auth_config_id, server_id, url, tools)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (toolkit) DO UPDATE SET
			auth_config_id = EXCLUDED.auth_config_id,
			server_id = EXCLUDED.server_id,
			url = EXCLUDED.url,
			tools = EXCLUDED.tools`,
		rec.Toolkit, rec.AuthConfigID, rec.ServerID, rec.URL, tools)
	return err
}

// GetStepGateway looks up the per-step gateway record.
func (s *PostgresStore) GetStepGateway(ctx context.Context, workflowID string, stepOrder int) (*model.StepGatewayRecord, error) {
	var rec model.StepGatewayRecord
	var authIDs, tools []byte
	err := s.db.QueryRow(ctx,
		`SELECT workflow_id, step_order, auth_config_ids, server_id, url, allowed_tools, created_at
		 FROM step_gateways WHERE workflow_id = $1 AND step_order = $2`, workflowID, stepOrder).
		Scan(&rec.WorkflowID, &rec.StepOrder, &authIDs, &rec.ServerID, &rec.URL, &tools, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdefs.NotFound(fmt.Sprintf("step gateway %s/%d", workflowID, stepOrder))
	}
	if err != nil {
		return nil, err
	}
	if err := fromJSON(authIDs, &rec.AuthConfigIDs); err != nil {
		return nil, err
	}
	if err := fromJSON(tools, &rec.AllowedTools); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveStepGateway upserts the record keyed by (workflow id, step order).
func (s *PostgresStore) SaveStepGateway(ctx context.Context, rec *model.StepGatewayRecord) error {
	authIDs, err := toJSON(rec.AuthConfigIDs)
	if err != nil {
		return err
	}
	tools, err := toJSON(rec.AllowedTools)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO step_gateways (workflow_id, step_order, auth_config_ids, server_id, url, allowed_tools)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (workflow_id, step_order) DO UPDATE SET
			auth_config_ids = EXCLUDED.auth_config_ids,
			server_id = EXCLUDED.server_id,
			url = EXCLUDED.url,
			allowed_tools = EXCLUDED.allowed_tools,
			created_at = now()`,
		rec.WorkflowID, rec.StepOrder, authIDs, rec.ServerID, rec.URL, tools)
	return err
}

// DeleteStepGateway removes the per-step record.
func (s *PostgresStore) DeleteStepGateway(ctx context.Context, workflowID string, stepOrder int) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM step_gateways WHERE workflow_id = $1 AND step_order = $2`,
		workflowID, stepOrder)
	return err
}

// ListStepGateways returns every step gateway record for a workflow.
func (s *PostgresStore) ListStepGateways(ctx context.Context, workflowID string) ([]model.StepGatewayRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT workflow_id, step_order, auth_config_ids, server_id, url, allowed_tools, created_at
		 FROM step_gateways WHERE workflow_id = $1 ORDER BY step_order`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StepGatewayRecord
	for rows.Next() {
		var rec model.StepGatewayRecord
		var authIDs, tools []byte
		if err := rows.Scan(&rec.WorkflowID, &rec.StepOrder, &authIDs, &rec.ServerID, &rec.URL, &tools, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := fromJSON(authIDs, &rec.AuthConfigIDs); err != nil {
			return nil, err
		}
		if err := fromJSON(tools, &rec.AllowedTools); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)
