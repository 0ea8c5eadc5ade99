// Package engine defines the execution-engine boundary and the Claude
// CLI implementation behind it. The engine runs one prompt per call;
// multi-step coordination lives in the orchestrator.
package engine

import (
	"context"

	"github.com/calyptra/skillflow/internal/gateway"
)

// Message is one typed entry of the engine's streaming output.
type Message struct {
	// Type is the stream message class: system, assistant, result.
	Type string
	// Subtype refines Type (init for system, success/error for result).
	Subtype string
	// Text is the assistant text or final result text, when present.
	Text string
	// SessionID is set on init and result messages.
	SessionID string
	// ToolCalls lists tool names invoked in an assistant message.
	ToolCalls []string
	// IsError marks a terminal failure result.
	IsError bool
}

// Request describes a single engine invocation.
type Request struct {
	Prompt       string
	SystemPrompt string
	WorkDir      string

	// SessionID resumes an existing session when set.
	SessionID string
	// ForkSession branches a resumed session instead of appending to it.
	ForkSession bool

	// DisallowedTools names engine-builtin tools the call must not use.
	DisallowedTools []string
	// Servers is the gateway configuration handed to the engine.
	Servers map[string]gateway.ServerRef

	// OnMessage, when set, observes each stream message as it arrives.
	OnMessage func(Message)
}

// Result is the aggregated outcome of one invocation.
type Result struct {
	// Text is the engine's final answer.
	Text string
	// SessionID identifies the session this call ran in, for chaining.
	SessionID string
	// Messages is the full ordered stream trace.
	Messages []Message
}

// Engine executes prompts. Implementations must honor ctx cancellation.
type Engine interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}
