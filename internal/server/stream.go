package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/calyptra/skillflow/internal/errdefs"
	"github.com/calyptra/skillflow/internal/events"
)

// handleStream serves run events over SSE. At most one listener per
// request id; attaching replaces any previous listener. The stream ends
// on a terminal run event or client disconnect.
func (s *Server) handleStream(c echo.Context) error {
	requestID := c.Param("id")
	if requestID == "" {
		return c.JSON(http.StatusBadRequest, errorPayload{
			Error: "request id is required", Kind: string(errdefs.KindValidation),
		})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ch := s.streams.Attach(requestID)
	defer s.streams.Detach(requestID)

	// First event on every stream, before any run events.
	fmt.Fprintf(res, "event: connection-established\ndata: %s\n\n", marshalEvent(map[string]any{
		"request_id": requestID,
	}))
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			fmt.Fprintf(res, "event: %s\ndata: %s\n\n", e.Type, marshalEvent(map[string]any{
				"request_id": e.RequestID,
				"timestamp":  e.Timestamp,
				"data":       e.Data,
			}))
			res.Flush()

			if e.Type == events.TypeRunCompleted || e.Type == events.TypeRunFailed {
				return nil
			}
		}
	}
}
