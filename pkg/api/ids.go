package api

import (
	"regexp"
	"strings"
)

type (
	// TraceID identifies a single end-to-end flow instance. Assigned once at
	// the originating trigger and propagated unchanged through every
	// downstream emission
	TraceID string

	// StepID identifies a loaded step by its sanitized name
	StepID string

	// Topic is the name of an event channel steps publish and subscribe to
	Topic string

	// FlowLabel is an arbitrary grouping label attached to a set of steps,
	// used for organization and trace tagging
	FlowLabel string
)

// InvalidIDChars matches characters not permitted in step and flow labels.
// Valid characters are: letters, digits, underscore, dot, hyphen, space
var InvalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\- ]`)

// SanitizeID lowercases an ID, strips invalid characters, replaces spaces
// with hyphens, and trims leading/trailing hyphens
func SanitizeID[T ~string](id T) T {
	lower := strings.ToLower(string(id))
	sanitized := InvalidIDChars.ReplaceAllString(lower, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	return T(strings.Trim(sanitized, "-"))
}
