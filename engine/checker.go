package flowengine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bubblelab/bubbleflow/credential"
	"github.com/bubblelab/bubbleflow/flowstore"
	"github.com/bubblelab/bubbleflow/metric"
	"github.com/bubblelab/bubbleflow/runstate"
)

// Reason strings surfaced to the UI. These are contract text: the
// frontend matches on them for tooltips and toasts.
const (
	reasonNoFlowSelected      = "No flow selected"
	reasonAlreadyExecuting    = "Already executing"
	reasonCurrentlyValidating = "Currently validating"
)

// ValidationResult is the readiness verdict for one check. Reasons are
// ordered; callers that show only the first reason rely on that order.
// BubbleVariableID points at the first bubble missing a credential so
// the graph view can scroll to it.
type ValidationResult struct {
	IsValid          bool     `json:"isValid"`
	Reasons          []string `json:"reasons"`
	BubbleVariableID string   `json:"bubbleVariableId,omitempty"`
}

func newResult() ValidationResult {
	return ValidationResult{IsValid: true, Reasons: []string{}}
}

func (r *ValidationResult) addReason(reason string) {
	r.Reasons = append(r.Reasons, reason)
	r.IsValid = false
}

// ValidationError reports a readiness verdict that blocked an operation.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("flow not ready: %s", strings.Join(e.Result.Reasons, "; "))
}

// Options carries optional state snapshots and transient-state flags
// for ValidateFlow. Nil Inputs or Credentials means "read the live
// per-flow state" instead of an explicit snapshot.
type Options struct {
	Inputs          map[string]any
	Credentials     map[string]map[credential.Type]int64
	CheckRunning    bool
	CheckValidating bool
}

// Checker evaluates flow readiness. It holds no per-flow state of its
// own; every check is a pure function of the flow definition plus one
// read from the live run-state store.
type Checker struct {
	states  *runstate.Store
	logger  *slog.Logger
	metrics *checkerMetrics
}

// NewChecker creates a readiness checker. A nil registry disables
// metrics.
func NewChecker(states *runstate.Store, logger *slog.Logger, registry *metric.MetricsRegistry) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		states:  states,
		logger:  logger,
		metrics: newCheckerMetrics(registry),
	}
}

// ValidateInputs checks the flow's declared required inputs against the
// candidate values. A nil inputs map reads the flow's live input state.
func (c *Checker) ValidateInputs(flowID string, flow *flowstore.Flow, inputs map[string]any) ValidationResult {
	start := time.Now()
	result := c.validateInputs(flowID, flow, inputs)
	c.metrics.recordCheck("inputs", result.IsValid, time.Since(start))
	return result
}

func (c *Checker) validateInputs(flowID string, flow *flowstore.Flow, inputs map[string]any) ValidationResult {
	result := newResult()

	if flowID == "" || flow == nil {
		result.addReason(reasonNoFlowSelected)
		c.metrics.recordReason("selection")
		return result
	}

	if inputs == nil {
		inputs = c.states.Get(flowID).Inputs()
	}
	inputs = stripFlattenedKeys(inputs)

	required := requiredFields(flow.InputSchema)
	for _, field := range required {
		value, ok := inputs[field]
		if !ok || value == "" {
			result.addReason("Missing required input: " + field)
			c.metrics.recordReason("input")
		}
	}

	c.logger.Debug("Input validation complete",
		"flow_id", flowID,
		"required", len(required),
		"missing", len(result.Reasons))

	return result
}

// ValidateCredentials checks each executable bubble instance's required
// credential types against the candidate selections. A nil selections
// map reads the flow's live credential state.
//
// Validation operates on instances, not definitions. An original bubble
// that has clones is a template and is skipped; each clone carries its
// own credential selection keyed by its variable id.
func (c *Checker) ValidateCredentials(
	flowID string,
	flow *flowstore.Flow,
	selections map[string]map[credential.Type]int64,
) ValidationResult {
	start := time.Now()
	result := c.validateCredentials(flowID, flow, selections)
	c.metrics.recordCheck("credentials", result.IsValid, time.Since(start))
	return result
}

func (c *Checker) validateCredentials(
	flowID string,
	flow *flowstore.Flow,
	selections map[string]map[credential.Type]int64,
) ValidationResult {
	result := newResult()

	if flowID == "" || flow == nil {
		result.addReason(reasonNoFlowSelected)
		c.metrics.recordReason("selection")
		return result
	}

	if selections == nil {
		selections = c.states.Get(flowID).Credentials()
	}

	for _, bubble := range classifyBubbles(flow.BubbleParameters) {
		if bubble.isTemplate() {
			continue
		}

		key := bubble.key()
		for _, credType := range flow.RequiredCredentials[key] {
			if !credential.RequiresSelection(credType) {
				continue
			}
			if _, selected := selections[key][credType]; selected {
				continue
			}

			reason := fmt.Sprintf("Missing %s for %s", credType, bubble.name)
			if bubble.kind == kindClone {
				reason += fmt.Sprintf(" (%s)", bubble.callSite)
			}
			result.addReason(reason)
			c.metrics.recordReason("credential")

			if result.BubbleVariableID == "" {
				result.BubbleVariableID = key
			}
		}
	}

	c.logger.Debug("Credential validation complete",
		"flow_id", flowID,
		"bubbles", len(flow.BubbleParameters),
		"missing", len(result.Reasons),
		"first_offender", result.BubbleVariableID)

	return result
}

// ValidateFlow composes the transient-state, input, and credential
// checks into one verdict. Reason order is fixed: selection guard,
// already executing, currently validating, missing inputs, missing
// credentials.
func (c *Checker) ValidateFlow(flowID string, flow *flowstore.Flow, opts Options) ValidationResult {
	start := time.Now()
	result := c.validateFlow(flowID, flow, opts)
	c.metrics.recordCheck("flow", result.IsValid, time.Since(start))
	return result
}

func (c *Checker) validateFlow(flowID string, flow *flowstore.Flow, opts Options) ValidationResult {
	result := newResult()

	if flowID == "" || flow == nil {
		result.addReason(reasonNoFlowSelected)
		c.metrics.recordReason("selection")
		return result
	}

	state := c.states.Get(flowID)
	if opts.CheckRunning && state.IsRunning() {
		result.addReason(reasonAlreadyExecuting)
		c.metrics.recordReason("transient")
	}
	if opts.CheckValidating && state.IsValidating() {
		result.addReason(reasonCurrentlyValidating)
		c.metrics.recordReason("transient")
	}

	inputResult := c.validateInputs(flowID, flow, opts.Inputs)
	result.Reasons = append(result.Reasons, inputResult.Reasons...)

	credResult := c.validateCredentials(flowID, flow, opts.Credentials)
	result.Reasons = append(result.Reasons, credResult.Reasons...)
	result.BubbleVariableID = credResult.BubbleVariableID

	result.IsValid = len(result.Reasons) == 0

	c.logger.Debug("Flow validation complete",
		"flow_id", flowID,
		"valid", result.IsValid,
		"reasons", len(result.Reasons))

	return result
}
