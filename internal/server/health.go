package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status    string `json:"status"`
	StepCount int    `json:"stepCount"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		StepCount: len(s.registry.Snapshot().Steps()),
	})
}

type stepHealth struct {
	Healthy bool   `json:"healthy"`
	Reason  string `json:"reason,omitempty"`
}

// handleStepsHealth reports, per loaded step, whether its runner command
// resolves on PATH
func (s *Server) handleStepsHealth(c *gin.Context) {
	out := make(map[string]stepHealth)
	for _, step := range s.registry.Snapshot().Steps() {
		out[step.Name()] = health(s.executor.CheckHealth(step))
	}
	c.JSON(http.StatusOK, out)
}

// handleStepHealth reports the health of a single loaded step by name
func (s *Server) handleStepHealth(c *gin.Context) {
	step, ok := s.registry.Snapshot().Step(c.Param("stepID"))
	if !ok {
		writeError(c, http.StatusNotFound, "step not found: %s", c.Param("stepID"))
		return
	}
	c.JSON(http.StatusOK, health(s.executor.CheckHealth(step)))
}

func health(err error) stepHealth {
	if err == nil {
		return stepHealth{Healthy: true}
	}
	return stepHealth{Healthy: false, Reason: err.Error()}
}
