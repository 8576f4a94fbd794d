// Package server exposes the host's HTTP surface: API-triggered step
// routes bound dynamically from the step registry, a generic webhook
// passthrough for externally-triggered topics, a WebSocket transport for
// stream subscriptions, and the /engine introspection routes.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/nullwave/polystep/internal/eventbus"
	"github.com/nullwave/polystep/internal/executor"
	"github.com/nullwave/polystep/internal/registry"
	"github.com/nullwave/polystep/internal/streamregistry"
	"github.com/nullwave/polystep/pkg/api"
)

// Server wires the registry, executor, event bus, and stream registry
// into a gin router
type Server struct {
	registry *registry.LockedData
	executor *executor.Executor
	bus      *eventbus.Bus
	streams  *streamregistry.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// New constructs a Server. Call Router to obtain the configured gin
// engine; API steps loaded into reg after that are still served
func New(reg *registry.LockedData, exec *executor.Executor, bus *eventbus.Bus, streams *streamregistry.Registry, logger *slog.Logger) *Server {
	return &Server{
		registry: reg,
		executor: exec,
		bus:      bus,
		streams:  streams,
		logger:   logger,
		clients:  make(map[*Client]struct{}),
	}
}

// Router builds the gin engine and binds one route per loaded API step,
// alongside the fixed health/webhook/engine/websocket routes. API steps
// loaded later are matched by method and exact path in the NoRoute
// handler
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(_ *gin.Context, _ *slog.Logger) *slog.Logger {
			return s.logger
		}),
	))
	router.Use(corsMiddleware())

	router.GET("/health", s.handleHealth)
	router.POST("/webhook/:topic", s.handleWebhook)

	eng := router.Group("/engine")
	eng.GET("", s.handleEngineState)
	eng.GET("/validate", s.handleValidate)
	eng.GET("/ws", s.handleWebSocket)
	eng.GET("/health", s.handleStepsHealth)
	eng.GET("/health/:stepID", s.handleStepHealth)

	s.bindAPISteps(router)
	router.NoRoute(s.handleLateAPIStep)

	return router
}

// handleLateAPIStep serves an API step added to the registry after Router
// ran, matching the request's method and exact path against the current
// snapshot
func (s *Server) handleLateAPIStep(c *gin.Context) {
	for _, step := range s.registry.Snapshot().Steps() {
		if step.Type == api.StepTypeAPI && string(step.API.Method) == c.Request.Method && step.API.Path == c.Request.URL.Path {
			s.handleAPIStep(step)(c)
			return
		}
	}
	writeError(c, http.StatusNotFound, "no route for %s %s", c.Request.Method, c.Request.URL.Path)
}

func (s *Server) bindAPISteps(router *gin.Engine) {
	for _, step := range s.registry.Snapshot().Steps() {
		if step.Type != api.StepTypeAPI {
			continue
		}
		step := step
		router.Handle(string(step.API.Method), step.API.Path, s.handleAPIStep(step))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, code int, format string, args ...any) {
	c.JSON(code, errorResponse{Error: fmt.Sprintf(format, args...)})
}
