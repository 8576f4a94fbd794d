package streamregistry

import (
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation is returned from Set when data does not conform to
// the stream's declared schema
var ErrSchemaViolation = errors.New("streamregistry: item violates stream schema")

// compileSchema validates that decl.Schema, if present, is itself a
// well-formed JSON Schema document. A stream declared with no schema
// accepts any item
func compileSchema(raw []byte) (*gojsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("malformed stream schema: %w", err)
	}
	return schema, nil
}

// validateAgainst checks data against schema, a no-op when schema is nil
func validateAgainst(schema *gojsonschema.Schema, data []byte) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %v", ErrSchemaViolation, msgs)
	}
	return nil
}
