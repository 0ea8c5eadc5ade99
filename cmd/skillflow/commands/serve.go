package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/calyptra/skillflow/internal/app"
	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server.

Endpoints:
  POST /api/requests              Submit a request (sync or async)
  GET  /api/requests/:id/stream   Follow run progress over SSE
  GET  /healthz                   Store and platform reachability`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("assemble services: %w", err)
	}
	defer a.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(a.Store, a.Platform, a.Classifier, a.Orchestrator, a.Engine, a.Bus, a.Streams)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
