// Package model defines the persistent shapes of the execution core:
// workflows, steps, connections and provisioned gateway records.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ToolSeparator splits a hosted tool name into toolkit and action,
// e.g. "GMAIL__SEND_EMAIL".
const ToolSeparator = "__"

// Workflow is an ordered sequence of steps executed against one request.
// Immutable during a single run.
type Workflow struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Steps       []Step   `json:"steps" yaml:"steps"`
	Connections []string `json:"connections,omitempty" yaml:"connections,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// WorkflowSummary is the registry-level view sent to the classifier:
// name and description only, never full step bodies.
type WorkflowSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Summary returns the registry-level view of the workflow.
func (w *Workflow) Summary() WorkflowSummary {
	return WorkflowSummary{ID: w.ID, Name: w.Name, Description: w.Description}
}

// Step is one unit of work in a workflow. Order is unique within the
// workflow and defines execution sequence.
type Step struct {
	Order           int      `json:"order" yaml:"order"`
	Task            string   `json:"task" yaml:"task"`
	Guidance        string   `json:"guidance,omitempty" yaml:"guidance,omitempty"`
	AllowedTools    []string `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"`
	DisallowedTools []string `json:"disallowed_tools,omitempty" yaml:"disallowed_tools,omitempty"`
	Connections     []string `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// Connection is a named reusable reference to a tool source: either a
// locally spawned stdio tool server (Command set) or one backed by the
// remote tool-hosting platform (Hosted true).
type Connection struct {
	Name    string   `json:"name" yaml:"name"`
	Active  bool     `json:"active" yaml:"active"`
	Tools   []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Hosted  bool     `json:"hosted,omitempty" yaml:"hosted,omitempty"`
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Env     []string `json:"env,omitempty" yaml:"env,omitempty"`
}

// ToolkitGatewayRecord tracks a shared, toolkit-scoped gateway on the
// remote platform. One record per toolkit name, reused by every workflow.
type ToolkitGatewayRecord struct {
	Toolkit      string    `json:"toolkit"`
	AuthConfigID string    `json:"auth_config_id"`
	ServerID     string    `json:"server_id"`
	URL          string    `json:"url"`
	Tools        []string  `json:"tools"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// StepGatewayRecord tracks a custom gateway scoped to one workflow step.
// Keyed by (WorkflowID, StepOrder); recreated whenever the step's allowed
// tools change.
type StepGatewayRecord struct {
	WorkflowID    string    `json:"workflow_id"`
	StepOrder     int       `json:"step_order"`
	AuthConfigIDs []string  `json:"auth_config_ids"`
	ServerID      string    `json:"server_id"`
	URL           string    `json:"url"`
	AllowedTools  []string  `json:"allowed_tools"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// Confidence grades a classification match.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// ParseConfidence maps free-form classifier output onto the known
// grades. Anything unrecognized is none.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	case ConfidenceLow:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// ClassificationResult is computed fresh per request and never persisted.
type ClassificationResult struct {
	WorkflowID string     `json:"workflow_id,omitempty"`
	Workflow   *Workflow  `json:"-"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// Matched reports whether classification selected a workflow.
func (r ClassificationResult) Matched() bool {
	return r.WorkflowID != ""
}

// Validate checks a workflow at the store boundary. Records that do not
// conform are rejected on write rather than trusted at every read site.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", w.Name)
	}
	seen := make(map[int]bool, len(w.Steps))
	for i := range w.Steps {
		s := &w.Steps[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("workflow %q step %d: %w", w.Name, s.Order, err)
		}
		if seen[s.Order] {
			return fmt.Errorf("workflow %q: duplicate step order %d", w.Name, s.Order)
		}
		seen[s.Order] = true
	}
	return nil
}

// Validate checks a single step.
func (s *Step) Validate() error {
	if s.Order < 0 {
		return fmt.Errorf("step order must be non-negative")
	}
	if strings.TrimSpace(s.Task) == "" {
		return fmt.Errorf("step task is required")
	}
	return nil
}

// Validate checks a connection record.
func (c *Connection) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("connection name is required")
	}
	if !c.Hosted && c.Command == "" {
		return fmt.Errorf("connection %q needs a command or the hosted marker", c.Name)
	}
	return nil
}

// OrderedSteps returns the workflow's steps sorted by execution order.
func (w *Workflow) OrderedSteps() []Step {
	steps := make([]Step, len(w.Steps))
	copy(steps, w.Steps)
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
	return steps
}

// StepByOrder returns the step with the given order, if present.
func (w *Workflow) StepByOrder(order int) (Step, bool) {
	for _, s := range w.Steps {
		if s.Order == order {
			return s, true
		}
	}
	return Step{}, false
}

// ToolkitFor extracts the toolkit from a hosted tool name: the prefix
// before the first separator, lower-cased. Returns "" when the name has
// no separator.
func ToolkitFor(tool string) string {
	idx := strings.Index(tool, ToolSeparator)
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(tool[:idx])
}

// ToolkitsFor derives the distinct toolkits referenced by a tool list,
// preserving first-seen order.
func ToolkitsFor(tools []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tool := range tools {
		tk := ToolkitFor(tool)
		if tk == "" || seen[tk] {
			continue
		}
		seen[tk] = true
		out = append(out, tk)
	}
	return out
}
