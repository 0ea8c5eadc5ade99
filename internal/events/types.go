// Package events carries run progress between the orchestrator and any
// attached listeners (SSE streams, CLI progress display).
package events

import "time"

// Type identifies event categories
type Type string

const (
	TypeWorkflowSelected Type = "workflow_selected"
	TypeStepStatus       Type = "step_status"
	TypeProgress         Type = "progress"
	TypeRunCompleted     Type = "run_completed"
	TypeRunFailed        Type = "run_failed"
)

// StepState is a per-step status transition value.
type StepState string

const (
	StepRunning  StepState = "running"
	StepComplete StepState = "complete"
	StepError    StepState = "error"
)

// Event is the base event structure
type Event struct {
	Type      Type
	RequestID string
	Timestamp time.Time
	Data      map[string]any
}

// Eventer interface for typed events
type Eventer interface {
	ToEvent() Event
}

// WorkflowSelectedEvent announces the matched workflow and its step list.
type WorkflowSelectedEvent struct {
	RequestID  string
	WorkflowID string
	Name       string
	Steps      []string
	Confidence string
	Timestamp  time.Time
}

func (e WorkflowSelectedEvent) ToEvent() Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return Event{
		Type:      TypeWorkflowSelected,
		RequestID: e.RequestID,
		Timestamp: e.Timestamp,
		Data: map[string]any{
			"workflow_id": e.WorkflowID,
			"name":        e.Name,
			"steps":       e.Steps,
			"confidence":  e.Confidence,
		},
	}
}

// StepStatusEvent reports a step transition with its duration so far.
type StepStatusEvent struct {
	RequestID string
	StepOrder int
	Task      string
	State     StepState
	Duration  time.Duration
	Error     string
	Timestamp time.Time
}

func (e StepStatusEvent) ToEvent() Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return Event{
		Type:      TypeStepStatus,
		RequestID: e.RequestID,
		Timestamp: e.Timestamp,
		Data: map[string]any{
			"step_order":  e.StepOrder,
			"task":        e.Task,
			"state":       string(e.State),
			"duration_ms": e.Duration.Milliseconds(),
			"error":       e.Error,
		},
	}
}

// ProgressEvent carries free-form progress detail, e.g. tool invocations.
type ProgressEvent struct {
	RequestID string
	Message   string
	Tool      string
	Timestamp time.Time
}

func (e ProgressEvent) ToEvent() Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return Event{
		Type:      TypeProgress,
		RequestID: e.RequestID,
		Timestamp: e.Timestamp,
		Data: map[string]any{
			"message": e.Message,
			"tool":    e.Tool,
		},
	}
}

// RunCompletedEvent is the terminal success event for a request.
type RunCompletedEvent struct {
	RequestID string
	Answer    string
	Timestamp time.Time
}

func (e RunCompletedEvent) ToEvent() Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return Event{
		Type:      TypeRunCompleted,
		RequestID: e.RequestID,
		Timestamp: e.Timestamp,
		Data: map[string]any{
			"answer": e.Answer,
		},
	}
}

// RunFailedEvent is the terminal failure event for a request.
type RunFailedEvent struct {
	RequestID string
	Kind      string
	Error     string
	Timestamp time.Time
}

func (e RunFailedEvent) ToEvent() Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return Event{
		Type:      TypeRunFailed,
		RequestID: e.RequestID,
		Timestamp: e.Timestamp,
		Data: map[string]any{
			"kind":  e.Kind,
			"error": e.Error,
		},
	}
}
