package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/calyptra/skillflow/internal/app"
	"github.com/calyptra/skillflow/internal/connection"
)

var connectionCmd = &cobra.Command{
	Use:     "connection",
	Aliases: []string{"conn"},
	Short:   "Manage tool connections",
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered connections",
	RunE:  runConnectionList,
}

var connectionSyncCmd = &cobra.Command{
	Use:   "sync <name>",
	Short: "Probe a stdio connection and refresh its tool list",
	Long: `Probe a stdio connection and refresh its tool list.

Starts the connection's command, performs the protocol handshake, lists
its tools and stores the result. Hosted connections get their tools from
the platform instead and cannot be probed.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnectionSync,
}

func init() {
	rootCmd.AddCommand(connectionCmd)
	connectionCmd.AddCommand(connectionListCmd)
	connectionCmd.AddCommand(connectionSyncCmd)
}

func runConnectionList(cmd *cobra.Command, args []string) error {
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	conns, err := a.Store.ListConnections(cmd.Context())
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No connections registered.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tACTIVE\tKIND\tTOOLS")
	for _, c := range conns {
		kind := "stdio"
		if c.Hosted {
			kind = "hosted"
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%d\n", c.Name, c.Active, kind, len(c.Tools))
	}
	return w.Flush()
}

func runConnectionSync(cmd *cobra.Command, args []string) error {
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	conns, err := a.Store.GetConnectionsByNames(ctx, []string{args[0]})
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		return fmt.Errorf("no active connection named %q", args[0])
	}

	conn := conns[0]
	tools, err := connection.ProbeTools(ctx, conn)
	if err != nil {
		return fmt.Errorf("probe %q: %w", conn.Name, err)
	}

	conn.Tools = tools
	if err := a.Store.SaveConnection(ctx, &conn); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Connection %q exposes %d tools\n", conn.Name, len(tools))
	return nil
}
