package registry

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nullwave/polystep/pkg/api"
)

// checkSchemaWellFormed rejects a step whose declared bodySchema/
// inputSchema does not itself parse as a JSON Schema document. A step
// with no schema always passes
func checkSchemaWellFormed(step *api.Step) error {
	raw := step.Schema()
	if len(raw) == 0 {
		return nil
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw)); err != nil {
		return fmt.Errorf("malformed schema: %w", err)
	}
	return nil
}
