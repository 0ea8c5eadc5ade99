package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/calyptra/skillflow/internal/app"
	"github.com/calyptra/skillflow/internal/model"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage registered workflows",
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workflows",
	RunE:  runWorkflowList,
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a workflow with its steps",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowShow,
}

var workflowLoadCmd = &cobra.Command{
	Use:   "load <file.yaml>",
	Short: "Register workflows from a YAML file",
	Long: `Register workflows from a YAML file.

The file holds one workflow or a list of workflows. Step gateways are
provisioned for every step that references externally-backed tools.

Example file:
  name: Email Digest
  description: Summarize unread mail into a daily digest
  connections: [gmail]
  steps:
    - order: 0
      task: Fetch unread messages from the inbox
      allowed_tools: [GMAIL__FETCH_EMAILS, Read]`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowLoad,
}

var workflowSyncCmd = &cobra.Command{
	Use:   "sync-gateways <id>",
	Short: "Reconcile a workflow's step gateways",
	Long: `Reconcile a workflow's step gateways with its current definition.

Recreates gateways for steps that reference externally-backed tools and
removes gateways for steps that no longer do.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowSync,
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowLoadCmd)
	workflowCmd.AddCommand(workflowSyncCmd)
}

func runWorkflowList(cmd *cobra.Command, args []string) error {
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	wfs, err := a.Store.ListWorkflows(cmd.Context())
	if err != nil {
		return err
	}
	if len(wfs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No workflows registered.")
		fmt.Fprintln(cmd.OutOrStdout(), "\nUse 'skillflow workflow load <file.yaml>' to register one.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTEPS\tDESCRIPTION")
	for _, wf := range wfs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", wf.ID, wf.Name, len(wf.Steps), wf.Description)
	}
	return w.Flush()
}

func runWorkflowShow(cmd *cobra.Command, args []string) error {
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	wf, err := a.Store.GetWorkflow(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", wf.Name, wf.ID)
	if wf.Description != "" {
		fmt.Fprintf(out, "  %s\n", wf.Description)
	}
	if len(wf.Connections) > 0 {
		fmt.Fprintf(out, "  Connections: %v\n", wf.Connections)
	}
	fmt.Fprintln(out, "  Steps:")
	for _, step := range wf.OrderedSteps() {
		fmt.Fprintf(out, "    %d. %s\n", step.Order, step.Task)
		if step.Guidance != "" {
			fmt.Fprintf(out, "       guidance: %s\n", step.Guidance)
		}
		if len(step.AllowedTools) > 0 {
			fmt.Fprintf(out, "       tools: %v\n", step.AllowedTools)
		}
	}
	return nil
}

func runWorkflowLoad(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read workflow file: %w", err)
	}

	wfs, err := decodeWorkflows(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	for _, wf := range wfs {
		if err := a.Store.SaveWorkflow(ctx, wf); err != nil {
			return fmt.Errorf("save workflow %q: %w", wf.Name, err)
		}
		a.Hooks.AfterCreate(ctx, wf)
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %q (%s, %d steps)\n", wf.Name, wf.ID, len(wf.Steps))
	}
	return nil
}

func runWorkflowSync(cmd *cobra.Command, args []string) error {
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	wf, err := a.Store.GetWorkflow(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	a.Hooks.AfterUpdate(cmd.Context(), wf)
	fmt.Fprintf(cmd.OutOrStdout(), "Reconciled step gateways for %q\n", wf.Name)
	return nil
}

// decodeWorkflows accepts a single workflow document or a list.
func decodeWorkflows(data []byte) ([]*model.Workflow, error) {
	var list []*model.Workflow
	if err := yaml.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return list, nil
	}

	var single model.Workflow
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []*model.Workflow{&single}, nil
}
