package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nullwave/polystep/internal/registry"
	"github.com/nullwave/polystep/pkg/api"
)

type engineStateResponse struct {
	Steps   []*api.Step      `json:"steps"`
	Streams []api.StreamDecl `json:"streams"`
}

// handleEngineState surfaces the current registry snapshot: every
// loaded step plus every declared stream
func (s *Server) handleEngineState(c *gin.Context) {
	snap := s.registry.Snapshot()
	c.JSON(http.StatusOK, engineStateResponse{
		Steps:   snap.Steps(),
		Streams: snap.Streams(),
	})
}

type validationResponse struct {
	OK           bool              `json:"ok"`
	StepErrors   map[string]string `json:"stepErrors,omitempty"`
	OrphanTopics []api.Topic       `json:"orphanTopics,omitempty"`
}

// handleValidate runs a full batch validation over the currently loaded
// steps, surfacing duplicate names and orphan topics without requiring
// a reload
func (s *Server) handleValidate(c *gin.Context) {
	snap := s.registry.Snapshot()
	report := registry.Validate(snap.Steps(), nil)

	stepErrors := make(map[string]string, len(report.StepErrors))
	for name, err := range report.StepErrors {
		stepErrors[name] = err.Error()
	}

	status := http.StatusOK
	if !report.OK() {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, validationResponse{
		OK:           report.OK(),
		StepErrors:   stepErrors,
		OrphanTopics: report.OrphanTopics,
	})
}
