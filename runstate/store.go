// Package runstate tracks live, per-flow execution state: the inputs a
// user has typed, the credentials they have selected, and the
// running/validating flags. This state is mutable and owned by the UI
// session; the readiness engine only reads snapshots of it.
//
// The store is an explicit dependency handed to whoever needs it, not
// a package-level singleton. States are created on first access and
// kept for the life of the store so concurrently open flows do not
// interfere.
package runstate

import (
	"sync"

	"github.com/bubblelab/bubbleflow/credential"
)

// Store holds live execution state keyed by flow id.
type Store struct {
	mu    sync.RWMutex
	flows map[string]*FlowState
}

// NewStore creates an empty run-state store.
func NewStore() *Store {
	return &Store{
		flows: make(map[string]*FlowState),
	}
}

// Get returns the state for a flow, creating it on first access.
func (s *Store) Get(flowID string) *FlowState {
	s.mu.RLock()
	state, ok := s.flows[flowID]
	s.mu.RUnlock()
	if ok {
		return state
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.flows[flowID]; ok {
		return state
	}
	state = newFlowState()
	s.flows[flowID] = state
	return state
}

// FlowState is the live execution state for one flow.
type FlowState struct {
	mu sync.RWMutex

	executionInputs    map[string]any
	pendingCredentials map[string]map[credential.Type]int64
	isRunning          bool
	isValidating       bool
}

func newFlowState() *FlowState {
	return &FlowState{
		executionInputs:    make(map[string]any),
		pendingCredentials: make(map[string]map[credential.Type]int64),
	}
}

// SetInput records a user-entered value for one declared input field.
func (fs *FlowState) SetInput(name string, value any) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.executionInputs[name] = value
}

// ReplaceInputs swaps the whole input map, e.g. when the inputs panel
// submits its full form state.
func (fs *FlowState) ReplaceInputs(inputs map[string]any) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.executionInputs = make(map[string]any, len(inputs))
	for k, v := range inputs {
		fs.executionInputs[k] = v
	}
}

// Inputs returns a copy of the current execution inputs.
func (fs *FlowState) Inputs() map[string]any {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make(map[string]any, len(fs.executionInputs))
	for k, v := range fs.executionInputs {
		out[k] = v
	}
	return out
}

// SetCredential records a credential selection for one bubble and
// credential type. bubbleKey is the bubble's variable id, stringified.
func (fs *FlowState) SetCredential(bubbleKey string, credType credential.Type, credentialID int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	byType, ok := fs.pendingCredentials[bubbleKey]
	if !ok {
		byType = make(map[credential.Type]int64)
		fs.pendingCredentials[bubbleKey] = byType
	}
	byType[credType] = credentialID
}

// ClearCredential removes a credential selection.
func (fs *FlowState) ClearCredential(bubbleKey string, credType credential.Type) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if byType, ok := fs.pendingCredentials[bubbleKey]; ok {
		delete(byType, credType)
	}
}

// Credentials returns a copy of the current credential selections.
func (fs *FlowState) Credentials() map[string]map[credential.Type]int64 {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make(map[string]map[credential.Type]int64, len(fs.pendingCredentials))
	for bubbleKey, byType := range fs.pendingCredentials {
		inner := make(map[credential.Type]int64, len(byType))
		for credType, id := range byType {
			inner[credType] = id
		}
		out[bubbleKey] = inner
	}
	return out
}

// SetRunning marks the flow as executing (or not).
func (fs *FlowState) SetRunning(running bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.isRunning = running
}

// IsRunning reports whether the flow is currently executing.
func (fs *FlowState) IsRunning() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.isRunning
}

// SetValidating marks the flow as mid-validation (or not).
func (fs *FlowState) SetValidating(validating bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.isValidating = validating
}

// IsValidating reports whether a validation pass is in progress.
func (fs *FlowState) IsValidating() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.isValidating
}

// Snapshot is a point-in-time copy of a flow's live state, safe to
// read without further locking.
type Snapshot struct {
	ExecutionInputs    map[string]any                       `json:"execution_inputs"`
	PendingCredentials map[string]map[credential.Type]int64 `json:"pending_credentials"`
	IsRunning          bool                                 `json:"is_running"`
	IsValidating       bool                                 `json:"is_validating"`
}

// Snapshot returns a consistent copy of the whole state, taken under a
// single read lock.
func (fs *FlowState) Snapshot() Snapshot {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	inputs := make(map[string]any, len(fs.executionInputs))
	for k, v := range fs.executionInputs {
		inputs[k] = v
	}
	creds := make(map[string]map[credential.Type]int64, len(fs.pendingCredentials))
	for bubbleKey, byType := range fs.pendingCredentials {
		inner := make(map[credential.Type]int64, len(byType))
		for credType, id := range byType {
			inner[credType] = id
		}
		creds[bubbleKey] = inner
	}

	return Snapshot{
		ExecutionInputs:    inputs,
		PendingCredentials: creds,
		IsRunning:          fs.isRunning,
		IsValidating:       fs.isValidating,
	}
}
