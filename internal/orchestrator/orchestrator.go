// Package orchestrator runs a workflow's steps strictly in order inside
// one engine session lineage, then synthesizes a single answer.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/calyptra/skillflow/internal/connection"
	"github.com/calyptra/skillflow/internal/engine"
	"github.com/calyptra/skillflow/internal/errdefs"
	"github.com/calyptra/skillflow/internal/events"
	"github.com/calyptra/skillflow/internal/gateway"
	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/model"
)

// GatewayConfigurer supplies the per-step gateway configuration.
// Satisfied by *gateway.Manager.
type GatewayConfigurer interface {
	ConfigForStep(ctx context.Context, wf *model.Workflow, stepOrder int) map[string]gateway.ServerRef
}

// ConnectionLoader resolves connection names to records.
// Satisfied by *connection.Resolver.
type ConnectionLoader interface {
	Load(ctx context.Context, names []string) []model.Connection
}

// Options tunes run behavior.
type Options struct {
	// StepDelay is the pause between consecutive steps.
	StepDelay time.Duration
	// WorkDirRoot is where per-run working directories are created.
	// Empty means the system temp dir.
	WorkDirRoot string
}

// Orchestrator executes workflows.
type Orchestrator struct {
	connections ConnectionLoader
	gateways    GatewayConfigurer
	engine      engine.Engine
	bus         *events.Bus
	opts        Options
}

// New creates an orchestrator.
func New(conns ConnectionLoader, gateways GatewayConfigurer, eng engine.Engine, bus *events.Bus, opts Options) *Orchestrator {
	return &Orchestrator{
		connections: conns,
		gateways:    gateways,
		engine:      eng,
		bus:         bus,
		opts:        opts,
	}
}

// RunResult is the outcome of a full workflow run.
type RunResult struct {
	// Answer is the synthesized response to the original request.
	Answer string
	// WorkDir is the run's working directory. The caller removes it.
	WorkDir string
	// Trace concatenates every call's output text in execution order,
	// synthesis included.
	Trace string
	// Messages concatenates every call's stream trace in execution
	// order, synthesis included.
	Messages []engine.Message
}

// Run executes every step of wf in order against prompt. Steps share a
// working directory and a forked session lineage: step i resumes step
// i-1's session. A final synthesis call with no tools produces the
// answer. Any step failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context, wf *model.Workflow, prompt, requestID string) (*RunResult, error) {
	if wf == nil || len(wf.Steps) == 0 {
		return nil, errdefs.Validation("workflow has no steps to run")
	}

	workDir, err := os.MkdirTemp(o.opts.WorkDirRoot, "skillflow-run-")
	if err != nil {
		return nil, fmt.Errorf("create run workdir: %w", err)
	}
	// On success the caller owns workDir; on failure nobody else can
	// reach it, so remove it here.
	success := false
	defer func() {
		if !success {
			os.RemoveAll(workDir)
		}
	}()

	runLog := log.With("request", requestID, "workflow", wf.ID)

	steps := wf.OrderedSteps()
	runLog.Info("run started", "steps", len(steps))
	o.publish(events.WorkflowSelectedEvent{
		RequestID:  requestID,
		WorkflowID: wf.ID,
		Name:       wf.Name,
		Steps:      stepTasks(steps),
	})

	var (
		trace     strings.Builder
		messages  []engine.Message
		sessionID string
	)

	for i, step := range steps {
		o.publish(events.StepStatusEvent{
			RequestID: requestID,
			StepOrder: step.Order,
			Task:      step.Task,
			State:     events.StepRunning,
		})

		started := time.Now()
		res, err := o.runStep(ctx, wf, step, prompt, sessionID, workDir, requestID, i == 0)
		if err != nil {
			o.publish(events.StepStatusEvent{
				RequestID: requestID,
				StepOrder: step.Order,
				Task:      step.Task,
				State:     events.StepError,
				Duration:  time.Since(started),
				Error:     err.Error(),
			})
			o.publish(events.RunFailedEvent{
				RequestID: requestID,
				Kind:      string(errdefs.KindOf(err)),
				Error:     err.Error(),
			})
			return nil, errdefs.Agent(fmt.Sprintf("step %d (%s) failed", step.Order, step.Task), err)
		}

		sessionID = res.SessionID
		messages = append(messages, res.Messages...)
		fmt.Fprintf(&trace, "## Step %d: %s\n\n%s\n\n", step.Order, step.Task, res.Text)

		o.publish(events.StepStatusEvent{
			RequestID: requestID,
			StepOrder: step.Order,
			Task:      step.Task,
			State:     events.StepComplete,
			Duration:  time.Since(started),
		})

		if i < len(steps)-1 {
			if err := o.pause(ctx); err != nil {
				return nil, err
			}
		}
	}

	synth, err := o.synthesize(ctx, prompt, sessionID, workDir)
	if err != nil {
		o.publish(events.RunFailedEvent{
			RequestID: requestID,
			Kind:      string(errdefs.KindOf(err)),
			Error:     err.Error(),
		})
		return nil, err
	}
	messages = append(messages, synth.Messages...)
	fmt.Fprintf(&trace, "## Synthesis\n\n%s\n", synth.Text)

	o.publish(events.RunCompletedEvent{RequestID: requestID, Answer: synth.Text})
	runLog.Info("run completed", "messages", len(messages))

	success = true
	return &RunResult{
		Answer:   synth.Text,
		WorkDir:  workDir,
		Trace:    trace.String(),
		Messages: messages,
	}, nil
}

// runStep executes one step in the run's session lineage.
func (o *Orchestrator) runStep(ctx context.Context, wf *model.Workflow, step model.Step, prompt, sessionID, workDir, requestID string, first bool) (*engine.Result, error) {
	names := connection.ResolveNames(step, wf)
	conns := o.connections.Load(ctx, names)

	available := availableTools(conns)
	allowed := connection.FilterTools(step, available, names)

	// The allow-list only restricts engine builtins directly; hosted
	// tools are restricted through gateway scoping instead. The step's
	// explicit disallow list applies on top, allow-listed or not.
	var disallowed []string
	if len(step.AllowedTools) > 0 {
		disallowed = connection.DisallowedBuiltins(step.AllowedTools)
	}
	disallowed = unionTools(disallowed, step.DisallowedTools)

	servers := o.gateways.ConfigForStep(ctx, wf, step.Order)

	res, err := o.engine.Execute(ctx, engine.Request{
		Prompt:          stepPrompt(step, prompt, allowed, first),
		SystemPrompt:    stepSystemPrompt(step),
		WorkDir:         workDir,
		SessionID:       sessionID,
		ForkSession:     sessionID != "",
		DisallowedTools: disallowed,
		Servers:         servers,
		OnMessage: func(msg engine.Message) {
			for _, tool := range msg.ToolCalls {
				o.publish(events.ProgressEvent{
					RequestID: requestID,
					Message:   "tool invoked",
					Tool:      tool,
				})
			}
		},
	})
	if err != nil {
		return nil, err
	}

	log.Debug("step finished",
		"workflow", wf.ID, "step", step.Order, "session", res.SessionID, "tools", len(allowed))
	return res, nil
}

// synthesize forks the final step's session for a tool-free closing
// call that answers the original request.
func (o *Orchestrator) synthesize(ctx context.Context, prompt, sessionID, workDir string) (*engine.Result, error) {
	res, err := o.engine.Execute(ctx, engine.Request{
		Prompt: "Using everything gathered so far, answer the original request directly, " +
			"without referencing steps or describing your process.\n\nOriginal request:\n" + prompt,
		WorkDir:         workDir,
		SessionID:       sessionID,
		ForkSession:     sessionID != "",
		DisallowedTools: connection.Builtins(),
	})
	if err != nil {
		return nil, errdefs.Agent("synthesis failed", err)
	}
	return res, nil
}

func (o *Orchestrator) pause(ctx context.Context) error {
	if o.opts.StepDelay <= 0 {
		return nil
	}
	t := time.NewTimer(o.opts.StepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) publish(e events.Eventer) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}

// stepSystemPrompt scopes the engine to exactly one step.
func stepSystemPrompt(step model.Step) string {
	var b strings.Builder
	b.WriteString("You are executing one step of a larger workflow.\n")
	fmt.Fprintf(&b, "Current step: %s\n", step.Task)
	if step.Guidance != "" {
		fmt.Fprintf(&b, "Guidance: %s\n", step.Guidance)
	}
	b.WriteString("Focus only on this step. Do not attempt later steps.")
	return b.String()
}

// stepPrompt builds the user prompt. The original request is included
// for the first step only; later steps inherit it through the session.
func stepPrompt(step model.Step, original string, allowed []string, first bool) string {
	var b strings.Builder
	if first {
		fmt.Fprintf(&b, "Original request:\n%s\n\n", original)
	}
	fmt.Fprintf(&b, "Execute this step now: %s\n", step.Task)
	if len(allowed) > 0 {
		fmt.Fprintf(&b, "\nTools available for this step: %s\n", strings.Join(allowed, ", "))
	}
	b.WriteString("\nOperate autonomously. Never pause for confirmation.")
	return b.String()
}

func stepTasks(steps []model.Step) []string {
	tasks := make([]string, len(steps))
	for i, s := range steps {
		tasks[i] = s.Task
	}
	return tasks
}

// unionTools merges b into a, preserving order and dropping duplicates.
func unionTools(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, name := range a {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, name := range b {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func availableTools(conns []model.Connection) []string {
	var out []string
	for _, c := range conns {
		out = append(out, c.Tools...)
	}
	return out
}
