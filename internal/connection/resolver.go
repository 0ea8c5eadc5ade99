// Package connection decides, per workflow step, which named connections
// apply and which concrete tool names a step may use.
package connection

import (
	"context"
	"encoding/json"
	"os"

	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/model"
	"github.com/calyptra/skillflow/internal/store"
)

// StaticTableEnv names the environment variable holding a JSON array of
// connections used when the store has none. Degraded/offline operation
// only; it never masks store contents.
const StaticTableEnv = "SKILLFLOW_CONNECTIONS"

// ResolveNames returns the connection names that apply to a step:
// step-level when non-empty, else workflow-level, else none. The two
// levels are never merged.
func ResolveNames(step model.Step, wf *model.Workflow) []string {
	if len(step.Connections) > 0 {
		return step.Connections
	}
	if wf != nil && len(wf.Connections) > 0 {
		return wf.Connections
	}
	return nil
}

// Resolver loads connection records and filters step tool lists.
type Resolver struct {
	store store.ConnectionStore
}

// NewResolver creates a resolver over the given connection store.
func NewResolver(s store.ConnectionStore) *Resolver {
	return &Resolver{store: s}
}

// Load fetches the active connections matching names. A store outage is
// absorbed: the step still runs with builtin tools only. Connections
// with malformed invocation parameters are skipped with a warning.
// When the store returns zero rows for a non-empty request, the static
// environment-supplied table is consulted as a last resort.
func (r *Resolver) Load(ctx context.Context, names []string) []model.Connection {
	if len(names) == 0 {
		return nil
	}

	conns, err := r.store.GetConnectionsByNames(ctx, names)
	if err != nil {
		log.Warn("connection store unreachable, continuing without connections", "error", err)
		return nil
	}
	if len(conns) == 0 {
		conns = staticConnections(names)
	}

	out := conns[:0]
	for _, conn := range conns {
		if err := conn.Validate(); err != nil {
			log.Warn("skipping malformed connection", "name", conn.Name, "error", err)
			continue
		}
		out = append(out, conn)
	}
	return out
}

// staticConnections reads the process-level fallback table from the
// environment and filters it to the requested names.
func staticConnections(names []string) []model.Connection {
	raw := os.Getenv(StaticTableEnv)
	if raw == "" {
		return nil
	}

	var table []model.Connection
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		log.Warn("ignoring malformed static connection table", "error", err)
		return nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	var out []model.Connection
	for _, conn := range table {
		if wanted[conn.Name] && conn.Active {
			out = append(out, conn)
		}
	}
	if len(out) > 0 {
		log.Debug("using static connection table", "matched", len(out))
	}
	return out
}
