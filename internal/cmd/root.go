// Package cmd implements the polystep CLI: a cobra command tree wiring
// configuration, step discovery, and the executor/event-bus/server stack
// into the runnable host.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nullwave/polystep/internal/config"
)

var (
	stepsDir     string
	logLevel     string
	configFile   string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "polystep",
	Short: "polystep — polyglot step execution host",
	Long:  "polystep loads Python/Ruby/JS/TS step handlers, wires them into a topic event bus, and serves their API/webhook/stream surface over HTTP.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&stepsDir, "steps-dir", "", "directory containing *.step.<ext> handlers (overrides STEPS_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a project-level YAML config file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table or json")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig builds a Config by layering defaults, an optional
// project-level YAML file, environment variables, and persistent CLI
// flags, in that order of increasing precedence
func loadConfig() (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if stepsDir != "" {
		cfg.StepsDir = stepsDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}
