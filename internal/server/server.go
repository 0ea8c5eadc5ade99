// Package server exposes the HTTP surface: request submission, run
// event streams and health.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/calyptra/skillflow/internal/engine"
	"github.com/calyptra/skillflow/internal/events"
	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/model"
	"github.com/calyptra/skillflow/internal/orchestrator"
	"github.com/calyptra/skillflow/internal/store"
)

// Classifier matches a prompt to a workflow.
type Classifier interface {
	Classify(ctx context.Context, prompt string) *model.ClassificationResult
}

// Runner executes a matched workflow.
type Runner interface {
	Run(ctx context.Context, wf *model.Workflow, prompt, requestID string) (*orchestrator.RunResult, error)
}

// Pinger reports reachability of an external collaborator.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server handles the HTTP API.
type Server struct {
	store      store.Store
	platform   Pinger
	classifier Classifier
	runner     Runner
	engine     engine.Engine
	bus        *events.Bus
	streams    *events.RunStreams
	echo       *echo.Echo
}

// New assembles the server and its routes.
func New(st store.Store, platform Pinger, cls Classifier, runner Runner, eng engine.Engine, bus *events.Bus, streams *events.RunStreams) *Server {
	s := &Server{
		store:      st,
		platform:   platform,
		classifier: cls,
		runner:     runner,
		engine:     eng,
		bus:        bus,
		streams:    streams,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.POST("/api/requests", s.handleSubmit)
	e.GET("/api/requests/:id/stream", s.handleStream)
	e.GET("/healthz", s.handleHealth)

	s.echo = e
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	log.Info("http server listening", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// errorPayload is the structured error body every endpoint returns.
type errorPayload struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok", "platform": "ok"}
	healthy := true

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		healthy = false
	}
	if s.platform != nil {
		if err := s.platform.Ping(ctx); err != nil {
			checks["platform"] = err.Error()
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{"status": checks})
}
