package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calyptra/skillflow/internal/app"
	"github.com/calyptra/skillflow/internal/engine"
	"github.com/calyptra/skillflow/internal/events"
	"github.com/calyptra/skillflow/internal/model"
)

var (
	runWorkflowName string
	runShowTrace    bool
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Execute a request from the terminal",
	Long: `Execute a request once, from the terminal.

The prompt is classified against the registered workflows. On a match
the workflow runs step by step; otherwise the engine answers the prompt
in a single call.

Examples:
  skillflow run "summarize my unread mail"
  skillflow run --workflow "Email Digest" "focus on invoices"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runWorkflowName, "workflow", "w", "", "Run this workflow by name, skipping classification")
	runCmd.Flags().BoolVar(&runShowTrace, "trace", false, "Print the per-step trace after the answer")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	prompt := strings.Join(args, " ")

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("assemble services: %w", err)
	}
	defer a.Close()

	requestID := uuid.NewString()
	showProgress(a.Bus, cmd)

	wf, err := pickWorkflow(cmd, a, prompt)
	if err != nil {
		return err
	}

	if wf == nil {
		// Nothing matched: answer directly.
		res, err := a.Engine.Execute(ctx, engine.Request{Prompt: prompt})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Text)
		return nil
	}

	run, err := a.Orchestrator.Run(ctx, wf, prompt, requestID)
	if err != nil {
		return err
	}
	defer os.RemoveAll(run.WorkDir)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, run.Answer)
	if runShowTrace {
		fmt.Fprintln(out, "\n--- trace ---")
		fmt.Fprintln(out, run.Trace)
	}
	return nil
}

// pickWorkflow resolves the --workflow flag or classifies the prompt.
// A nil workflow with nil error means "answer without a workflow".
func pickWorkflow(cmd *cobra.Command, a *app.App, prompt string) (*model.Workflow, error) {
	ctx := cmd.Context()

	if runWorkflowName != "" {
		wfs, err := a.Store.ListWorkflows(ctx)
		if err != nil {
			return nil, err
		}
		for _, wf := range wfs {
			if strings.EqualFold(wf.Name, runWorkflowName) {
				return wf, nil
			}
		}
		return nil, fmt.Errorf("no workflow named %q is registered", runWorkflowName)
	}

	res := a.Classifier.Classify(ctx, prompt)
	if !res.Matched() {
		fmt.Fprintln(cmd.ErrOrStderr(), "No workflow matched; answering directly.")
		return nil, nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Matched workflow %q (%s confidence)\n", res.Workflow.Name, res.Confidence)
	return res.Workflow, nil
}

// showProgress prints step transitions to stderr while the run goes on.
func showProgress(bus *events.Bus, cmd *cobra.Command) {
	errOut := cmd.ErrOrStderr()
	bus.Subscribe(events.TypeStepStatus, func(e events.Event) {
		state, _ := e.Data["state"].(string)
		task, _ := e.Data["task"].(string)
		switch events.StepState(state) {
		case events.StepRunning:
			fmt.Fprintf(errOut, "→ %s\n", task)
		case events.StepComplete:
			fmt.Fprintf(errOut, "✓ %s\n", task)
		case events.StepError:
			fmt.Fprintf(errOut, "✗ %s: %v\n", task, e.Data["error"])
		}
	})
}
