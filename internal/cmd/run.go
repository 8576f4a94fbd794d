package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nullwave/polystep/internal/config"
	"github.com/nullwave/polystep/internal/cron"
	"github.com/nullwave/polystep/internal/eventbus"
	"github.com/nullwave/polystep/internal/executor"
	"github.com/nullwave/polystep/internal/loader"
	"github.com/nullwave/polystep/internal/registry"
	"github.com/nullwave/polystep/internal/server"
	"github.com/nullwave/polystep/internal/statestore"
	"github.com/nullwave/polystep/internal/streamregistry"
	"github.com/nullwave/polystep/pkg/api"
	"github.com/nullwave/polystep/pkg/obslog"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover steps and serve them over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runHost,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// host holds every long-lived dependency constructed for one `run`
// invocation, wired in two phases since the executor and event bus each
// depend on the other: the executor needs a Bus to forward worker
// emit() calls, the bus needs a Runner to invoke subscribers
type host struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *registry.LockedData
	state    statestore.Store
	streams  *streamregistry.Registry
	executor *executor.Executor
	bus      *eventbus.Bus
	cron     *cron.Trigger
	server   *server.Server
	http     *http.Server
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	h, err := newHost(cfg)
	if err != nil {
		return err
	}

	if err := h.loadSteps(); err != nil {
		return err
	}

	h.startServer()
	h.cron.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	<-quit

	return h.shutdown()
}

func newHost(cfg *config.Config) (*host, error) {
	level, ok := logLevels[cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}
	logger := obslog.NewWithLevel("polystep", os.Getenv("ENV"), cfg.LogFormat, level)

	state, err := statestore.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("constructing state store: %w", err)
	}

	reg := registry.New()
	for _, topic := range cfg.ExternalTopics {
		reg.DeclareExternalTopic(topic)
	}
	streams := streamregistry.New()
	exec := executor.New(cfg.Runners, state, streams, logger)
	bus := eventbus.New(reg, exec, logger)
	exec.SetEmitter(bus)

	return &host{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		state:    state,
		streams:  streams,
		executor: exec,
		bus:      bus,
		cron:     cron.New(exec, logger),
	}, nil
}

// loadSteps discovers every step and stream declaration under the
// configured steps directory, loads them into the registry and stream
// registry, and registers every cron-triggered step with the cron
// trigger
func (h *host) loadSteps() error {
	decls, declErrs := loader.DiscoverStreams(h.cfg.StepsDir)
	for _, err := range declErrs {
		h.logger.Warn("skipping stream declaration", obslog.Error(err))
	}
	for _, decl := range decls {
		if err := h.streams.Declare(decl); err != nil {
			h.logger.Warn("declaring stream", slog.String("stream", decl.Name), obslog.Error(err))
			continue
		}
		h.registry.DeclareStream(decl)
	}

	diffs, loadErrs := loader.LoadAll(h.cfg.StepsDir, h.registry)
	for _, err := range loadErrs {
		h.logger.Warn("skipping step", obslog.Error(err))
	}
	for _, diff := range diffs {
		h.logger.Info("steps loaded", slog.String("diff", diff.String()))
	}

	for _, step := range h.registry.Snapshot().Steps() {
		if step.Type != api.StepTypeCron {
			continue
		}
		if _, err := h.cron.Register(step); err != nil {
			return fmt.Errorf("registering cron step %s: %w", step.Name(), err)
		}
	}
	return nil
}

func (h *host) startServer() {
	h.server = server.New(h.registry, h.executor, h.bus, h.streams, h.logger)
	h.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", h.cfg.APIHost, h.cfg.APIPort),
		Handler: h.server.Router(),
	}

	go func() {
		h.logger.Info("HTTP server starting", slog.String("addr", h.http.Addr))
		if err := h.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", obslog.Error(err))
		}
	}()
}

func (h *host) shutdown() error {
	h.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ShutdownTimeout)
	defer cancel()

	var err error
	if shutdownErr := h.http.Shutdown(ctx); shutdownErr != nil {
		err = fmt.Errorf("HTTP shutdown: %w", shutdownErr)
	}

	cronCtx := h.cron.Stop()
	<-cronCtx.Done()

	h.logger.Info("shutdown complete")
	return err
}
