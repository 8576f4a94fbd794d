package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nullwave/polystep/pkg/util"
)

type (
	// StepType discriminates the tagged Step config variant
	StepType string

	// HTTPMethod is a restricted set of methods an API step may bind to
	HTTPMethod string

	// EmitDecl is a declared outgoing topic, optionally labeled or marked
	// conditional (only emitted on some code paths, not validated as a
	// hard requirement by the registry)
	EmitDecl struct {
		Topic       Topic  `json:"topic"`
		Label       string `json:"label,omitempty"`
		Conditional bool   `json:"conditional,omitempty"`
	}

	// APIConfig is the config variant for an HTTP-triggered step
	APIConfig struct {
		Name       string          `json:"name"`
		Path       string          `json:"path"`
		Method     HTTPMethod      `json:"method"`
		Emits      []EmitDecl      `json:"emits,omitempty"`
		BodySchema json.RawMessage `json:"bodySchema,omitempty"`
		Middleware []string        `json:"middleware,omitempty"`
		Flows      []FlowLabel     `json:"flows,omitempty"`
		Streams    []string        `json:"streams,omitempty"`
	}

	// EventConfig is the config variant for a topic-triggered step
	EventConfig struct {
		Name        string          `json:"name"`
		Subscribes  []Topic         `json:"subscribes"`
		Emits       []EmitDecl      `json:"emits,omitempty"`
		InputSchema json.RawMessage `json:"inputSchema,omitempty"`
		Flows       []FlowLabel     `json:"flows,omitempty"`
		Streams     []string        `json:"streams,omitempty"`
	}

	// CronConfig is the config variant for a schedule-triggered step
	CronConfig struct {
		Name           string      `json:"name"`
		CronExpression string      `json:"cronExpression"`
		Emits          []EmitDecl  `json:"emits,omitempty"`
		Flows          []FlowLabel `json:"flows,omitempty"`
		Streams        []string    `json:"streams,omitempty"`
	}

	// NoopConfig participates only in the topology graph; it is never
	// executed by the step executor
	NoopConfig struct {
		Name              string      `json:"name"`
		VirtualEmits      []Topic     `json:"virtualEmits,omitempty"`
		VirtualSubscribes []Topic     `json:"virtualSubscribes,omitempty"`
		Flows             []FlowLabel `json:"flows,omitempty"`
	}

	// WorkConfig declares retry/backoff metadata. The executor never
	// enforces it; a host scheduler reads it to decide whether to retry
	// a failed invocation
	WorkConfig struct {
		MaxRetries   int    `json:"maxRetries,omitempty"`
		BackoffMs    int64  `json:"backoffMs,omitempty"`
		MaxBackoffMs int64  `json:"maxBackoffMs,omitempty"`
		BackoffType  string `json:"backoffType,omitempty"`
	}

	// Step is the immutable record held by the registry for one loaded
	// step file
	Step struct {
		FilePath string      `json:"filePath"`
		Version  string      `json:"version"`
		Type     StepType    `json:"type"`
		API      *APIConfig  `json:"api,omitempty"`
		Event    *EventConfig `json:"event,omitempty"`
		Cron     *CronConfig `json:"cron,omitempty"`
		Noop     *NoopConfig `json:"noop,omitempty"`
		Work     *WorkConfig `json:"workConfig,omitempty"`
	}
)

const (
	StepTypeAPI   StepType = "api"
	StepTypeEvent StepType = "event"
	StepTypeCron  StepType = "cron"
	StepTypeNoop  StepType = "noop"

	MethodGET     HTTPMethod = "GET"
	MethodPOST    HTTPMethod = "POST"
	MethodPUT     HTTPMethod = "PUT"
	MethodDELETE  HTTPMethod = "DELETE"
	MethodPATCH   HTTPMethod = "PATCH"
	MethodOPTIONS HTTPMethod = "OPTIONS"
	MethodHEAD    HTTPMethod = "HEAD"

	BackoffTypeFixed       = "fixed"
	BackoffTypeLinear      = "linear"
	BackoffTypeExponential = "exponential"
)

var (
	ErrStepNameEmpty       = errors.New("step name empty")
	ErrStepFilePathEmpty   = errors.New("step file path empty")
	ErrInvalidStepType     = errors.New("invalid step type")
	ErrAPIConfigRequired   = errors.New("api config required")
	ErrEventConfigRequired = errors.New("event config required")
	ErrCronConfigRequired  = errors.New("cron config required")
	ErrNoopConfigRequired  = errors.New("noop config required")
	ErrInvalidHTTPMethod   = errors.New("invalid http method")
	ErrEmptyTopic          = errors.New("topic must be non-empty")
	ErrEmptyCronExpr       = errors.New("cron expression empty")
	ErrNegativeBackoff     = errors.New("backoffMs cannot be negative")
	ErrMaxBackoffTooSmall  = errors.New("maxBackoffMs must be >= backoffMs")
	ErrInvalidBackoffType  = errors.New("invalid backoff type")
)

var (
	validStepTypes = util.SetOf(
		StepTypeAPI,
		StepTypeEvent,
		StepTypeCron,
		StepTypeNoop,
	)

	validHTTPMethods = util.SetOf(
		MethodGET, MethodPOST, MethodPUT, MethodDELETE,
		MethodPATCH, MethodOPTIONS, MethodHEAD,
	)

	validBackoffTypes = util.SetOf(
		BackoffTypeFixed,
		BackoffTypeLinear,
		BackoffTypeExponential,
	)
)

// Validate checks Step invariants: file path and name presence, exhaustive
// variant validation, non-empty topic strings, and work config sanity
func (s *Step) Validate() error {
	if s.FilePath == "" {
		return ErrStepFilePathEmpty
	}
	if !validStepTypes.Contains(s.Type) {
		return fmt.Errorf("%w: %s", ErrInvalidStepType, s.Type)
	}

	switch s.Type {
	case StepTypeAPI:
		if err := s.validateAPI(); err != nil {
			return err
		}
	case StepTypeEvent:
		if err := s.validateEvent(); err != nil {
			return err
		}
	case StepTypeCron:
		if err := s.validateCron(); err != nil {
			return err
		}
	case StepTypeNoop:
		if err := s.validateNoop(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStepType, s.Type)
	}

	return s.validateWorkConfig()
}

func (s *Step) validateAPI() error {
	if s.API == nil {
		return ErrAPIConfigRequired
	}
	if s.API.Name == "" {
		return ErrStepNameEmpty
	}
	if !validHTTPMethods.Contains(s.API.Method) {
		return fmt.Errorf("%w: %s", ErrInvalidHTTPMethod, s.API.Method)
	}
	return validateEmits(s.API.Emits)
}

func (s *Step) validateEvent() error {
	if s.Event == nil {
		return ErrEventConfigRequired
	}
	if s.Event.Name == "" {
		return ErrStepNameEmpty
	}
	for _, t := range s.Event.Subscribes {
		if t == "" {
			return ErrEmptyTopic
		}
	}
	return validateEmits(s.Event.Emits)
}

func (s *Step) validateCron() error {
	if s.Cron == nil {
		return ErrCronConfigRequired
	}
	if s.Cron.Name == "" {
		return ErrStepNameEmpty
	}
	if s.Cron.CronExpression == "" {
		return ErrEmptyCronExpr
	}
	return validateEmits(s.Cron.Emits)
}

func (s *Step) validateNoop() error {
	if s.Noop == nil {
		return ErrNoopConfigRequired
	}
	if s.Noop.Name == "" {
		return ErrStepNameEmpty
	}
	for _, t := range s.Noop.VirtualEmits {
		if t == "" {
			return ErrEmptyTopic
		}
	}
	for _, t := range s.Noop.VirtualSubscribes {
		if t == "" {
			return ErrEmptyTopic
		}
	}
	return nil
}

func validateEmits(emits []EmitDecl) error {
	for _, e := range emits {
		if e.Topic == "" {
			return ErrEmptyTopic
		}
	}
	return nil
}

func (s *Step) validateWorkConfig() error {
	if s.Work == nil {
		return nil
	}
	if s.Work.BackoffMs < 0 {
		return ErrNegativeBackoff
	}
	if s.Work.MaxBackoffMs != 0 && s.Work.MaxBackoffMs < s.Work.BackoffMs {
		return ErrMaxBackoffTooSmall
	}
	if s.Work.BackoffType != "" && !validBackoffTypes.Contains(s.Work.BackoffType) {
		return fmt.Errorf("%w: %s", ErrInvalidBackoffType, s.Work.BackoffType)
	}
	return nil
}

// Name returns the step's declared name, regardless of variant
func (s *Step) Name() string {
	switch s.Type {
	case StepTypeAPI:
		return s.API.Name
	case StepTypeEvent:
		return s.Event.Name
	case StepTypeCron:
		return s.Cron.Name
	case StepTypeNoop:
		return s.Noop.Name
	default:
		return ""
	}
}

// Subscribes returns the topics this step consumes, regardless of variant.
// API and cron steps are externally triggered and subscribe to nothing
func (s *Step) Subscribes() []Topic {
	switch s.Type {
	case StepTypeEvent:
		return s.Event.Subscribes
	case StepTypeNoop:
		return s.Noop.VirtualSubscribes
	default:
		return nil
	}
}

// Emits returns the topics this step may publish, regardless of variant
func (s *Step) Emits() []Topic {
	var decls []EmitDecl
	switch s.Type {
	case StepTypeAPI:
		decls = s.API.Emits
	case StepTypeEvent:
		decls = s.Event.Emits
	case StepTypeCron:
		decls = s.Cron.Emits
	case StepTypeNoop:
		topics := make([]Topic, len(s.Noop.VirtualEmits))
		copy(topics, s.Noop.VirtualEmits)
		return topics
	}
	topics := make([]Topic, len(decls))
	for i, d := range decls {
		topics[i] = d.Topic
	}
	return topics
}

// EmitsTopic reports whether topic appears in the step's declared emits
func (s *Step) EmitsTopic(topic Topic) bool {
	for _, t := range s.Emits() {
		if t == topic {
			return true
		}
	}
	return false
}

// Flows returns the flow labels this step is tagged with, regardless of
// variant
func (s *Step) Flows() []FlowLabel {
	switch s.Type {
	case StepTypeAPI:
		return s.API.Flows
	case StepTypeEvent:
		return s.Event.Flows
	case StepTypeCron:
		return s.Cron.Flows
	case StepTypeNoop:
		return s.Noop.Flows
	default:
		return nil
	}
}

// Streams returns the names of streams this step's envelope is given
// access to, regardless of variant. NOOP steps never execute and so
// never receive an envelope
func (s *Step) Streams() []string {
	switch s.Type {
	case StepTypeAPI:
		return s.API.Streams
	case StepTypeEvent:
		return s.Event.Streams
	case StepTypeCron:
		return s.Cron.Streams
	default:
		return nil
	}
}

// Schema returns the declared input-validation schema for this step, if
// any: bodySchema for an API step, inputSchema for an event step. Cron
// and noop steps never receive caller-supplied input and have none
func (s *Step) Schema() json.RawMessage {
	switch s.Type {
	case StepTypeAPI:
		return s.API.BodySchema
	case StepTypeEvent:
		return s.Event.InputSchema
	default:
		return nil
	}
}

// Executable reports whether the step spawns a runner. NOOP steps
// participate only in the topology graph
func (s *Step) Executable() bool {
	return s.Type != StepTypeNoop
}
