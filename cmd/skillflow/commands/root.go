package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calyptra/skillflow/internal/config"
	"github.com/calyptra/skillflow/internal/log"
)

var (
	cfg *config.Config

	// Global flags.
	verbose bool
	jsonLog bool
)

var rootCmd = &cobra.Command{
	Use:   "skillflow",
	Short: "Workflow execution for natural-language requests",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Long: `Skillflow routes natural-language requests onto registered multi-step
workflows and executes them step by step through an AI engine, with
tool access scoped per step.

Quick Start:
  skillflow run "summarize my unread mail"   One-shot request from the terminal
  skillflow serve                            Start the HTTP API
  skillflow workflow list                    Show registered workflows

Workflows are registered from YAML files with 'skillflow workflow load'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env first so its values are visible to config loading.
		if err := config.LoadDotEnvFromCwd(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .skillflow/.env: %v\n", err)
		}

		log.Configure(log.Options{
			Verbose: verbose,
			JSON:    jsonLog,
		})

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.UI.Verbose = true
		}

		log.Debug("initialized", "verbose", verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "Emit logs as JSON")
}

// Execute runs the root command with signal handling.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return rootCmd.ExecuteContext(ctx)
}
