package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/calyptra/skillflow/internal/engine"
	"github.com/calyptra/skillflow/internal/errdefs"
	"github.com/calyptra/skillflow/internal/events"
	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/model"
)

// Submission modes. Default classifies, runs on a match and otherwise
// answers with one plain engine call.
const (
	ModeDefault      = ""
	ModeClassifier   = "classifier"
	ModeOrchestrator = "orchestrator"
)

type submitRequest struct {
	Prompt    string `json:"prompt"`
	Mode      string `json:"mode"`
	RequestID string `json:"request_id"`
	Async     bool   `json:"async"`
}

type submitResponse struct {
	RequestID  string           `json:"request_id"`
	Answer     string           `json:"answer,omitempty"`
	WorkflowID string           `json:"workflow_id,omitempty"`
	Workflow   string           `json:"workflow,omitempty"`
	Confidence model.Confidence `json:"confidence,omitempty"`
	Reasoning  string           `json:"reasoning,omitempty"`
	Status     string           `json:"status,omitempty"`
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorPayload{
			Error: "invalid request body", Kind: string(errdefs.KindValidation),
		})
	}
	if req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, errorPayload{
			Error: "prompt is required", Kind: string(errdefs.KindValidation),
		})
	}
	switch req.Mode {
	case ModeDefault, ModeClassifier, ModeOrchestrator:
	default:
		return c.JSON(http.StatusBadRequest, errorPayload{
			Error: fmt.Sprintf("unknown mode %q", req.Mode), Kind: string(errdefs.KindValidation),
		})
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	if req.Mode == ModeClassifier {
		res := s.classifier.Classify(c.Request().Context(), req.Prompt)
		return c.JSON(http.StatusOK, classificationResponse(requestID, res))
	}

	if req.Async {
		// The run outlives the submission request; progress is
		// observable on the stream endpoint.
		go func() {
			if _, err := s.execute(context.Background(), req, requestID); err != nil {
				log.Error("async run failed", "request", requestID, "error", err)
			}
		}()
		return c.JSON(http.StatusAccepted, submitResponse{RequestID: requestID, Status: "accepted"})
	}

	resp, err := s.execute(c.Request().Context(), req, requestID)
	if err != nil {
		return c.JSON(statusFor(err), errorPayload{
			Error:     err.Error(),
			Kind:      string(errdefs.KindOf(err)),
			RequestID: requestID,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// execute runs the classify-then-orchestrate path shared by sync and
// async submissions. The orchestrator publishes run events itself; the
// fallback and no-match paths publish their terminal events here so a
// stream attached to the request id always ends.
func (s *Server) execute(ctx context.Context, req submitRequest, requestID string) (*submitResponse, error) {
	res := s.classifier.Classify(ctx, req.Prompt)

	if !res.Matched() {
		if req.Mode == ModeOrchestrator {
			err := errdefs.Validation("no workflow matched the request")
			s.publishFailed(requestID, err)
			return nil, err
		}
		// Fallback: answer with a single plain engine call.
		out, err := s.engine.Execute(ctx, engine.Request{Prompt: req.Prompt})
		if err != nil {
			s.publishFailed(requestID, err)
			return nil, err
		}
		s.publish(events.RunCompletedEvent{RequestID: requestID, Answer: out.Text})
		return &submitResponse{
			RequestID:  requestID,
			Answer:     out.Text,
			Confidence: model.ConfidenceNone,
			Status:     "completed",
		}, nil
	}

	run, err := s.runner.Run(ctx, res.Workflow, req.Prompt, requestID)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(run.WorkDir)

	return &submitResponse{
		RequestID:  requestID,
		Answer:     run.Answer,
		WorkflowID: res.WorkflowID,
		Workflow:   res.Workflow.Name,
		Confidence: res.Confidence,
		Reasoning:  res.Reasoning,
		Status:     "completed",
	}, nil
}

func (s *Server) publish(e events.Eventer) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func (s *Server) publishFailed(requestID string, err error) {
	s.publish(events.RunFailedEvent{
		RequestID: requestID,
		Kind:      string(errdefs.KindOf(err)),
		Error:     err.Error(),
	})
}

func classificationResponse(requestID string, res *model.ClassificationResult) submitResponse {
	out := submitResponse{
		RequestID:  requestID,
		Confidence: res.Confidence,
		Reasoning:  res.Reasoning,
	}
	if res.Matched() {
		out.WorkflowID = res.WorkflowID
		out.Workflow = res.Workflow.Name
	}
	return out
}

func statusFor(err error) int {
	switch {
	case errdefs.IsValidation(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errdefs.IsGateway(err), errdefs.IsConnection(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// marshalEvent keeps SSE payloads one line.
func marshalEvent(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}
