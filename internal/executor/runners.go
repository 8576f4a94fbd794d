package executor

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nullwave/polystep/internal/config"
	"github.com/nullwave/polystep/pkg/api"
)

// ErrUnsupportedExtension is returned when a step's file extension has no
// registered runner
var ErrUnsupportedExtension = errors.New("executor: unsupported step extension")

// ErrRunnerNotFound is returned when a step's runner command cannot be
// resolved on PATH
var ErrRunnerNotFound = errors.New("executor: runner not found")

// runnerSpec describes how to invoke a language runtime: the binary and
// any flags that must precede the runner bootstrap file
type runnerSpec struct {
	command      string
	runnerFlags  []string
	runnerFile   string
	isTypeScript bool
}

// selectRunner maps a step's source extension to the runtime that loads
// it. .ts sources are run through the same Node runner as .js with a
// source-transform pre-loader flag, per the worker ABI
func selectRunner(cfg config.RunnersConfig, stepFilePath string) (runnerSpec, error) {
	switch strings.ToLower(filepath.Ext(stepFilePath)) {
	case ".py":
		return runnerSpec{command: cfg.Python, runnerFile: "runner.py"}, nil
	case ".rb":
		return runnerSpec{command: cfg.Ruby, runnerFile: "runner.rb"}, nil
	case ".js":
		return runnerSpec{command: cfg.Node, runnerFile: "runner.js"}, nil
	case ".ts":
		return runnerSpec{
			command:      cfg.Node,
			runnerFlags:  []string{"--loader", "ts-node/esm"},
			runnerFile:   "runner.js",
			isTypeScript: true,
		}, nil
	default:
		return runnerSpec{}, fmt.Errorf("%w: %s", ErrUnsupportedExtension, stepFilePath)
	}
}

// args builds the full worker invocation ABI: command runnerArgs…
// runnerFile stepFilePath envelopeJSON
func (r runnerSpec) args(stepFilePath, envelopeJSON string) []string {
	out := make([]string, 0, len(r.runnerFlags)+3)
	out = append(out, r.runnerFlags...)
	out = append(out, r.runnerFile, stepFilePath, envelopeJSON)
	return out
}

// CheckHealth reports whether step's runner command resolves on PATH,
// without spawning it. NOOP steps are always healthy: they never run
func (e *Executor) CheckHealth(step *api.Step) error {
	if !step.Executable() {
		return nil
	}
	spec, err := selectRunner(e.runners, step.FilePath)
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(spec.command); err != nil {
		return fmt.Errorf("%w: %s", ErrRunnerNotFound, spec.command)
	}
	return nil
}
