// Package loader discovers step files on disk and feeds their parsed
// form into the step registry. Go cannot parse a Python/Ruby/JS/TS
// handler's exported config record directly, so each `<name>.step.<ext>`
// handler file is paired with a `<name>.step.json` sidecar manifest
// holding the same config shape the registry expects; the loader reads
// the manifest and attaches the handler's actual file path to it.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nullwave/polystep/internal/registry"
	"github.com/nullwave/polystep/pkg/api"
)

var (
	stepFilePattern   = regexp.MustCompile(`\.step\.(py|rb|js|ts)$`)
	streamFilePattern = regexp.MustCompile(`\.stream\.json$`)
)

// Discover walks dir for every `*.step.<ext>` handler file, loads its
// sidecar manifest, and returns the parsed steps in directory order.
// A handler file missing its manifest, or a manifest that fails
// Step.Validate, is reported as an error for that one file without
// aborting the rest of the walk
func Discover(dir string) ([]*api.Step, []error) {
	var steps []*api.Step
	var errs []error

	walkErr := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if entry.IsDir() || !stepFilePattern.MatchString(path) {
			return nil
		}

		step, loadErr := loadManifest(path)
		if loadErr != nil {
			errs = append(errs, loadErr)
			return nil
		}
		steps = append(steps, step)
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}

	return steps, errs
}

// LoadAll discovers every step under dir and loads each into reg,
// returning the cumulative diff across every add plus any per-file
// errors encountered along the way
func LoadAll(dir string, reg *registry.LockedData) ([]*registry.Diff, []error) {
	steps, errs := Discover(dir)

	var diffs []*registry.Diff
	for _, step := range steps {
		diff, err := reg.AddStep(step)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.FilePath, err))
			continue
		}
		diffs = append(diffs, diff)
	}
	return diffs, errs
}

// DiscoverStreams walks dir for every `*.stream.json` declaration file,
// distinct from a step's own sidecar manifest, and returns the parsed
// stream declarations in directory order
func DiscoverStreams(dir string) ([]api.StreamDecl, []error) {
	var decls []api.StreamDecl
	var errs []error

	walkErr := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if entry.IsDir() || !streamFilePattern.MatchString(path) {
			return nil
		}

		decl, loadErr := loadStreamDecl(path)
		if loadErr != nil {
			errs = append(errs, loadErr)
			return nil
		}
		decls = append(decls, decl)
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}

	return decls, errs
}

func loadStreamDecl(path string) (api.StreamDecl, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return api.StreamDecl{}, fmt.Errorf("%s: reading stream declaration: %w", path, err)
	}

	var decl api.StreamDecl
	if err := json.Unmarshal(raw, &decl); err != nil {
		return api.StreamDecl{}, fmt.Errorf("%s: parsing stream declaration: %w", path, err)
	}
	if err := decl.Validate(); err != nil {
		return api.StreamDecl{}, fmt.Errorf("%s: %w", path, err)
	}
	return decl, nil
}

func manifestPath(handlerPath string) string {
	ext := filepath.Ext(handlerPath)
	base := strings.TrimSuffix(handlerPath, ext)
	return base + ".json"
}

func loadManifest(handlerPath string) (*api.Step, error) {
	raw, err := os.ReadFile(manifestPath(handlerPath))
	if err != nil {
		return nil, fmt.Errorf("%s: reading manifest: %w", handlerPath, err)
	}

	var step api.Step
	if err := json.Unmarshal(raw, &step); err != nil {
		return nil, fmt.Errorf("%s: parsing manifest: %w", handlerPath, err)
	}
	step.FilePath = handlerPath

	if err := step.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", handlerPath, err)
	}
	return &step, nil
}
