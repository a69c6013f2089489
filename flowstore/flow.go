package flowstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bubblelab/bubbleflow/credential"
	"github.com/bubblelab/bubbleflow/errors"
)

// Flow represents a BubbleFlow definition: generated TypeScript code
// plus the metadata the readiness engine validates against.
type Flow struct {
	// Identity
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Version for optimistic concurrency control
	Version int64 `json:"version"`

	// Generated TypeScript source for the flow
	Code string `json:"code,omitempty"`

	// InputSchema is the flow's declared input schema. It arrives from
	// the code generator either as a JSON object or as a serialized
	// string containing one; it is stored untouched and normalized at
	// validation time.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	// RequiredCredentials maps a bubble identity key (the bubble's
	// variable id, stringified) to the credential types that bubble
	// needs.
	RequiredCredentials map[string][]credential.Type `json:"required_credentials,omitempty"`

	// BubbleParameters maps a bubble identity key to its descriptor.
	BubbleParameters map[string]BubbleParameter `json:"bubble_parameters,omitempty"`

	// Runtime state
	RuntimeState RuntimeState `json:"runtime_state"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	StoppedAt    *time.Time   `json:"stopped_at,omitempty"`

	// Audit
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	CreatedBy    string    `json:"created_by,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// BubbleParameter describes one bubble in the flow's generated code.
//
// A bubble is either a design-time original or a clone: a runtime
// instantiation of an original at a specific call site (a loop body, a
// reused helper). Clones carry InvocationCallSiteKey and point back at
// the original through ClonedFromVariableID.
type BubbleParameter struct {
	VariableID            *int64         `json:"variableId"`
	BubbleName            string         `json:"bubbleName"`
	InvocationCallSiteKey string         `json:"invocationCallSiteKey,omitempty"`
	ClonedFromVariableID  *int64         `json:"clonedFromVariableId,omitempty"`
	Parameters            map[string]any `json:"parameters,omitempty"`
}

// IsClone reports whether this descriptor is a call-site instantiation
// rather than a design-time original.
func (b BubbleParameter) IsClone() bool {
	return b.InvocationCallSiteKey != ""
}

// RuntimeState represents the execution state of a flow
type RuntimeState string

// RuntimeState constants define the lifecycle states of a flow:
//   - StateIdle: Flow exists and is editable
//   - StateExecutable: Flow passed readiness validation
//   - StateRunning: Flow is executing
//   - StateError: Last execution failed
const (
	StateIdle       RuntimeState = "idle"
	StateExecutable RuntimeState = "executable"
	StateRunning    RuntimeState = "running"
	StateError      RuntimeState = "error"
)

// Validate checks structural validity of the flow definition
func (f *Flow) Validate() error {
	if f.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "Validate", "validation failed")
	}
	if f.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("flow name cannot be empty"), "flowstore", "Validate", "validation failed")
	}

	validStates := map[RuntimeState]bool{
		StateIdle:       true,
		StateExecutable: true,
		StateRunning:    true,
		StateError:      true,
	}
	if !validStates[f.RuntimeState] {
		return errors.WrapInvalid(
			fmt.Errorf("invalid runtime state: %s", string(f.RuntimeState)),
			"flowstore", "Validate", "runtime state validation failed")
	}

	// Validate bubble descriptors
	for key, bubble := range f.BubbleParameters {
		if bubble.BubbleName == "" {
			return errors.WrapInvalid(
				fmt.Errorf("bubble '%s' has empty name", key),
				"flowstore", "Validate", "bubble name validation failed")
		}
	}

	// Required-credential keys must reference a declared bubble
	for key := range f.RequiredCredentials {
		if _, ok := f.BubbleParameters[key]; !ok {
			return errors.WrapInvalid(
				fmt.Errorf("required credentials reference unknown bubble: %s", key),
				"flowstore", "Validate", "credential reference validation failed")
		}
	}

	return nil
}
