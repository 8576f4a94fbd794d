// Package config loads and validates runtime configuration for polystep:
// the API server, the state-store backend, and retry defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nullwave/polystep/pkg/api"
)

type (
	// Config holds configuration settings for the polystep runtime
	Config struct {
		// API server
		APIHost   string `yaml:"apiHost"`
		APIPort   int    `yaml:"apiPort"`
		LogLevel  string `yaml:"logLevel"`
		LogFormat string `yaml:"logFormat"`

		// State store
		Store StateStoreConfig `yaml:"store"`

		// Stream backend selection, read from the file and STREAM_* env
		// vars and validated when Adapter is set. The host always uses
		// the in-process stream registry and does not read this setting
		Streams StateStoreConfig `yaml:"streams"`

		// Retry defaults, read and validated here. Nothing in the host
		// applies them to steps
		Work api.WorkConfig `yaml:"work"`

		StepsDir        string        `yaml:"stepsDir"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

		Runners RunnersConfig `yaml:"runners"`

		// ExternalTopics lists topics with no in-process publisher — e.g.
		// ones only ever fed by a webhook — so the registry doesn't flag
		// their subscribers as orphaned
		ExternalTopics []api.Topic `yaml:"externalTopics"`
	}

	// RunnersConfig names the interpreter binaries used to launch each
	// step's handler, keyed by source file extension
	RunnersConfig struct {
		Python string `yaml:"python"`
		Ruby   string `yaml:"ruby"`
		Node   string `yaml:"node"`
	}

	// StateStoreConfig selects and parameterizes a state-store backend
	StateStoreConfig struct {
		Adapter  string        `yaml:"adapter"` // memory | file | remote
		Path     string        `yaml:"path"`    // file adapter only
		Host     string        `yaml:"host"`    // remote adapter only
		Port     int           `yaml:"port"`    // remote adapter only
		Password string        `yaml:"password"` // remote adapter only
		DB       int           `yaml:"db"`      // remote adapter only
		TTL      time.Duration `yaml:"ttl"`
	}
)

const (
	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultShutdownTimeout = 10 * time.Second
	DefaultStepsDir        = "./steps"

	DefaultRetryMaxRetries  = 3
	DefaultRetryBackoffMs   = 1000
	DefaultMaxRetryBackoff  = 60000
	DefaultRetryBackoffType = api.BackoffTypeExponential

	AdapterMemory = "memory"
	AdapterFile   = "file"
	AdapterRemote = "remote"

	DefaultRemotePort = 6379

	DefaultPythonCommand = "python3"
	DefaultRubyCommand   = "ruby"
	DefaultNodeCommand   = "node"
)

var (
	ErrInvalidAPIPort     = errors.New("invalid API port")
	ErrInvalidAdapter     = errors.New("invalid state store adapter")
	ErrFilePathRequired   = errors.New("file adapter requires a path")
	ErrRemoteHostRequired = errors.New("remote adapter requires a host")
	ErrInvalidBackoffType = errors.New("invalid retry backoff type")
)

var validAdapters = []string{AdapterMemory, AdapterFile, AdapterRemote}

// NewDefaultConfig creates a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:  DefaultAPIHost,
		APIPort:  DefaultAPIPort,
		LogLevel: "info",
		Store: StateStoreConfig{
			Adapter: AdapterMemory,
		},
		Work: api.WorkConfig{
			MaxRetries:   DefaultRetryMaxRetries,
			BackoffMs:    DefaultRetryBackoffMs,
			MaxBackoffMs: DefaultMaxRetryBackoff,
			BackoffType:  DefaultRetryBackoffType,
		},
		StepsDir:        DefaultStepsDir,
		ShutdownTimeout: DefaultShutdownTimeout,
		Runners: RunnersConfig{
			Python: DefaultPythonCommand,
			Ruby:   DefaultRubyCommand,
			Node:   DefaultNodeCommand,
		},
	}
}

// LoadFromFile reads a project-level YAML config file and overlays its
// values on top of whatever c already holds. A field absent from the
// document is left untouched, so this composes with
// NewDefaultConfig/LoadFromEnv
func (c *Config) LoadFromFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any numeric env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("API_HOST"); v != "" {
		c.APIHost = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("STEPS_DIR"); v != "" {
		c.StepsDir = v
	}
	if v := os.Getenv("RUNNER_PYTHON"); v != "" {
		c.Runners.Python = v
	}
	if v := os.Getenv("RUNNER_RUBY"); v != "" {
		c.Runners.Ruby = v
	}
	if v := os.Getenv("RUNNER_NODE"); v != "" {
		c.Runners.Node = v
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}

	loadStoreConfigFromEnv(&c.Store, "STATE")
	loadStoreConfigFromEnv(&c.Streams, "STREAM")

	if v := os.Getenv("RETRY_BACKOFF_TYPE"); v != "" {
		c.Work.BackoffType = v
	}
	if err := loadEnvInt("RETRY_MAX_RETRIES", &c.Work.MaxRetries, 0, 1000); err != nil {
		return err
	}
	if err := loadEnvInt64("RETRY_BACKOFF_MS", &c.Work.BackoffMs); err != nil {
		return err
	}
	if err := loadEnvInt64("RETRY_MAX_BACKOFF_MS", &c.Work.MaxBackoffMs); err != nil {
		return err
	}

	return nil
}

// Validate checks that all configuration values are coherent
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Streams.Adapter != "" {
		if err := c.Streams.Validate(); err != nil {
			return err
		}
	}
	if c.Work.BackoffType != "" && !isValidAdapterLike(c.Work.BackoffType,
		api.BackoffTypeFixed, api.BackoffTypeLinear, api.BackoffTypeExponential) {
		return fmt.Errorf("%w: %s", ErrInvalidBackoffType, c.Work.BackoffType)
	}
	return nil
}

// Validate checks a single backend selection
func (s StateStoreConfig) Validate() error {
	if !isValidAdapterLike(s.Adapter, validAdapters...) {
		return fmt.Errorf("%w: %s", ErrInvalidAdapter, s.Adapter)
	}
	switch s.Adapter {
	case AdapterFile:
		if s.Path == "" {
			return ErrFilePathRequired
		}
	case AdapterRemote:
		if s.Host == "" {
			return ErrRemoteHostRequired
		}
	}
	return nil
}

func isValidAdapterLike(v string, valid ...string) bool {
	for _, a := range valid {
		if v == a {
			return true
		}
	}
	return false
}

func loadStoreConfigFromEnv(s *StateStoreConfig, prefix string) {
	if v := os.Getenv(prefix + "_ADAPTER"); v != "" {
		s.Adapter = v
	}
	if v := os.Getenv(prefix + "_PATH"); v != "" {
		s.Path = v
	}
	if v := os.Getenv(prefix + "_HOST"); v != "" {
		s.Host = v
	}
	if v := os.Getenv(prefix + "_PASSWORD"); v != "" {
		s.Password = v
	}
	if v := os.Getenv(prefix + "_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			s.Port = p
		}
	}
	if v := os.Getenv(prefix + "_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			s.DB = db
		}
	}
	if v := os.Getenv(prefix + "_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			s.TTL = time.Duration(secs) * time.Second
		}
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]
func loadEnvInt(key string, dst *int, min, max int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	if n <= min || n > max {
		return fmt.Errorf("invalid %s: %d out of range (%d, %d]", key, n, min, max)
	}
	*dst = n
	return nil
}

func loadEnvInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = n
	return nil
}
