package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nullwave/polystep/internal/trace"
	"github.com/nullwave/polystep/pkg/api"
)

// handleAPIStep invokes an HTTP-triggered step directly and waits for its
// result, since the caller needs a response body. A fresh traceId is
// minted here: an API request is a flow origin
func (s *Server) handleAPIStep(step *api.Step) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, http.StatusBadRequest, "reading request body: %v", err)
			return
		}
		if len(body) == 0 {
			body = json.RawMessage("null")
		}

		event := api.Event{
			Topic:   api.Topic(step.Name()),
			Data:    body,
			TraceID: trace.New(),
			Flows:   step.Flows(),
		}

		result, err := s.executor.Run(c.Request.Context(), step, event)
		if err != nil {
			writeError(c, http.StatusInternalServerError, "%v", err)
			return
		}
		if result == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.Data(http.StatusOK, "application/json", result)
	}
}

// handleWebhook is a generic passthrough that translates an inbound
// request into an event on an externally-triggered topic. It schedules
// subscribers without waiting, since a webhook caller (typically a third
// party) has no use for the subscribers' results
func (s *Server) handleWebhook(c *gin.Context) {
	topic := api.Topic(c.Param("topic"))

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "reading request body: %v", err)
		return
	}
	if len(body) == 0 {
		body = json.RawMessage("null")
	}

	event := api.Event{
		Topic:   topic,
		Data:    body,
		TraceID: trace.New(),
	}

	if err := s.bus.Emit(c.Request.Context(), event, ""); err != nil {
		writeError(c, http.StatusInternalServerError, "%v", err)
		return
	}
	c.Status(http.StatusAccepted)
}
