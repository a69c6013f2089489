package service

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bubblelab/bubbleflow/credential"
	flowengine "github.com/bubblelab/bubbleflow/engine"
	"github.com/bubblelab/bubbleflow/errors"
	"github.com/bubblelab/bubbleflow/flowstore"
	"github.com/bubblelab/bubbleflow/runstate"
)

// executionSubjectPrefix is where execution requests are published for
// the runner, suffixed with the flow id.
const executionSubjectPrefix = "bubbleflow.execution.request."

// FlowService provides the HTTP API for the visual flow builder: flow
// CRUD, the readiness checks that gate execution, live input and
// credential state, and the status stream.
type FlowService struct {
	*BaseService

	flowStore FlowStore
	runStates *runstate.Store
	checker   *flowengine.Checker
	hub       *statusHub

	executeLimiter *rate.Limiter
}

// NewFlowService creates a flow service from injected dependencies.
func NewFlowService(deps *Dependencies) (*FlowService, error) {
	if deps == nil || deps.FlowStore == nil {
		return nil, fmt.Errorf("flow service requires a flow store")
	}
	if deps.RunStates == nil {
		return nil, fmt.Errorf("flow service requires a run state store")
	}

	baseService := NewBaseService(
		"flow-builder",
		WithLogger(deps.Logger),
		WithMetrics(deps.MetricsRegistry),
		WithNATS(deps.NATSClient),
	)

	var limiter *rate.Limiter
	if deps.Config != nil && deps.Config.Server.ExecuteRateLimit > 0 {
		limiter = rate.NewLimiter(
			rate.Limit(deps.Config.Server.ExecuteRateLimit),
			deps.Config.Server.ExecuteBurst,
		)
	}

	service := &FlowService{
		BaseService:    baseService,
		flowStore:      deps.FlowStore,
		runStates:      deps.RunStates,
		checker:        flowengine.NewChecker(deps.RunStates, deps.Logger, deps.MetricsRegistry),
		hub:            newStatusHub(baseService.logger),
		executeLimiter: limiter,
	}

	return service, nil
}

// Checker returns the readiness checker the service gates execution with.
func (fs *FlowService) Checker() *flowengine.Checker {
	return fs.checker
}

// Stop disconnects stream clients and stops the base service.
func (fs *FlowService) Stop(timeout time.Duration) error {
	fs.hub.close()
	return fs.BaseService.Stop(timeout)
}

// RegisterHTTPHandlers registers HTTP endpoints for the flow service
func (fs *FlowService) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	// Flow CRUD endpoints
	// Note: Go 1.22+ ServeMux supports method and path patterns
	mux.HandleFunc("GET "+prefix+"flows", fs.instrument("list_flows", fs.handleListFlows))
	mux.HandleFunc("POST "+prefix+"flows", fs.instrument("create_flow", fs.handleCreateFlow))
	mux.HandleFunc("GET "+prefix+"flows/{id}", fs.instrument("get_flow", fs.handleGetFlow))
	mux.HandleFunc("PUT "+prefix+"flows/{id}", fs.instrument("update_flow", fs.handleUpdateFlow))
	mux.HandleFunc("DELETE "+prefix+"flows/{id}", fs.instrument("delete_flow", fs.handleDeleteFlow))

	// Readiness validation
	mux.HandleFunc("POST "+prefix+"flows/{id}/validate", fs.instrument("validate_flow", fs.handleValidateFlow))

	// Live execution state
	mux.HandleFunc("PUT "+prefix+"flows/{id}/inputs", fs.instrument("set_inputs", fs.handleSetInputs))
	mux.HandleFunc("PUT "+prefix+"flows/{id}/credentials", fs.instrument("set_credential", fs.handleSetCredential))
	mux.HandleFunc("GET "+prefix+"flows/{id}/runstate", fs.instrument("get_runstate", fs.handleGetRunState))

	// Execution lifecycle
	mux.HandleFunc("POST "+prefix+"flows/{id}/execute", fs.instrument("execute_flow", fs.handleExecuteFlow))
	mux.HandleFunc("POST "+prefix+"flows/{id}/execution/complete", fs.instrument("execution_complete", fs.handleExecutionComplete))

	// Service info and status stream. The stream handler stays
	// unwrapped: the websocket upgrade needs the raw ResponseWriter.
	mux.HandleFunc("GET "+prefix+"status", fs.instrument("service_status", fs.handleServiceStatus))
	mux.HandleFunc(prefix+"status/stream", fs.hub.serve)

	fs.logger.Info("Flow service HTTP handlers registered", "prefix", prefix)
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// handleListFlows returns all flows
func (fs *FlowService) handleListFlows(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()

	flows, err := fs.flowStore.List(r.Context())
	if err != nil {
		fs.logger.Error("Failed to list flows", "error", err)
		fs.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if flows == nil {
		flows = []*flowstore.Flow{}
	}

	fs.writeJSON(w, map[string]any{"flows": flows})
}

// handleCreateFlow creates a new flow
func (fs *FlowService) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()

	var flow flowstore.Flow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		fs.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Generate ID if not provided
	if flow.ID == "" {
		flow.ID = generateFlowID()
	}

	if err := fs.flowStore.Create(r.Context(), &flow); err != nil {
		if errors.IsInvalid(err) {
			fs.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.logger.Error("Failed to create flow", "flow_id", flow.ID, "error", err)
		fs.writeJSONError(w, "Failed to create flow", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(flow); err != nil {
		fs.logger.Error("Failed to encode flow response", "error", err)
	}
}

// handleGetFlow returns a single flow by ID
func (fs *FlowService) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()

	flow, err := fs.flowStore.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fs.writeJSONError(w, "Flow not found", http.StatusNotFound)
		return
	}

	fs.writeJSON(w, flow)
}

// handleUpdateFlow updates an existing flow
func (fs *FlowService) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()
	flowID := r.PathValue("id")

	var flow flowstore.Flow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		fs.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if flow.ID != "" && flow.ID != flowID {
		fs.writeJSONError(w, "ID mismatch", http.StatusBadRequest)
		return
	}
	flow.ID = flowID

	// Running flows are not editable.
	existingFlow, err := fs.flowStore.Get(r.Context(), flowID)
	if err != nil {
		if stderrors.Is(err, errors.ErrFlowNotFound) {
			fs.writeJSONError(w, "Flow not found", http.StatusNotFound)
			return
		}
		fs.logger.Error("Failed to get existing flow", "flow_id", flowID, "error", err)
		fs.writeJSONError(w, "Failed to get flow", http.StatusInternalServerError)
		return
	}
	if existingFlow.RuntimeState == flowstore.StateRunning {
		fs.writeJSONError(w, "Cannot modify running flow. Stop the flow first.", http.StatusConflict)
		return
	}

	if err := fs.flowStore.Update(r.Context(), &flow); err != nil {
		if strings.Contains(err.Error(), "conflict") {
			fs.writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		fs.logger.Error("Failed to update flow", "flow_id", flowID, "error", err)
		fs.writeJSONError(w, "Failed to update flow", http.StatusInternalServerError)
		return
	}

	fs.writeJSON(w, flow)
}

// handleDeleteFlow deletes a flow
func (fs *FlowService) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()

	if err := fs.flowStore.Delete(r.Context(), r.PathValue("id")); err != nil {
		fs.logger.Error("Failed to delete flow", "error", err)
		fs.writeJSONError(w, "Failed to delete flow", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleValidateFlow runs the readiness checks for a flow without
// executing it.
//
// Accepts an optional flow definition in the request body:
//   - If body provided, validates the provided flow (preview mode)
//   - If body empty, loads from KV and validates
//
// Query parameters check_running and check_validating enable the
// transient-state checks.
func (fs *FlowService) handleValidateFlow(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()
	flowID := r.PathValue("id")

	var flowToValidate *flowstore.Flow

	if r.ContentLength > 0 {
		fs.logger.Debug("Validating flow from request body", "flow_id", flowID)

		var flowFromRequest flowstore.Flow
		if err := json.NewDecoder(r.Body).Decode(&flowFromRequest); err != nil {
			fs.writeJSONError(w, fmt.Sprintf("Invalid JSON in request body: %v", err), http.StatusBadRequest)
			return
		}
		if flowFromRequest.ID != "" && flowFromRequest.ID != flowID {
			fs.writeJSONError(
				w,
				fmt.Sprintf("Flow ID mismatch: URL has '%s' but body has '%s'", flowID, flowFromRequest.ID),
				http.StatusBadRequest,
			)
			return
		}
		flowFromRequest.ID = flowID
		flowToValidate = &flowFromRequest
	} else {
		flow, err := fs.flowStore.Get(r.Context(), flowID)
		if err != nil {
			fs.writeJSONError(w, "Flow not found", http.StatusNotFound)
			return
		}
		flowToValidate = flow
	}

	state := fs.runStates.Get(flowID)
	state.SetValidating(true)
	defer state.SetValidating(false)

	opts := flowengine.Options{
		CheckRunning: r.URL.Query().Get("check_running") == "true",
	}
	result := fs.checker.ValidateFlow(flowID, flowToValidate, opts)

	fs.logger.Debug("Readiness check complete",
		"flow_id", flowID,
		"valid", result.IsValid,
		"reason_count", len(result.Reasons))

	fs.writeJSON(w, map[string]any{
		"validation_result": result,
		"schema_warnings":   flowengine.LintInputSchema(flowToValidate.InputSchema),
	})
}

// handleSetInputs replaces the flow's live execution inputs and returns
// the resulting input verdict.
func (fs *FlowService) handleSetInputs(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()
	flowID := r.PathValue("id")

	var inputs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		fs.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	flow, err := fs.flowStore.Get(r.Context(), flowID)
	if err != nil {
		fs.writeJSONError(w, "Flow not found", http.StatusNotFound)
		return
	}

	fs.runStates.Get(flowID).ReplaceInputs(inputs)

	result := fs.checker.ValidateInputs(flowID, flow, nil)
	fs.writeJSON(w, map[string]any{"validation_result": result})
}

// credentialSelection is the payload for a credential pick. A null
// credential_id clears the selection.
type credentialSelection struct {
	BubbleVariableID string          `json:"bubbleVariableId"`
	CredentialType   credential.Type `json:"credentialType"`
	CredentialID     *int64          `json:"credentialId"`
}

// handleSetCredential records or clears one credential selection and
// returns the resulting credential verdict.
func (fs *FlowService) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()
	flowID := r.PathValue("id")

	var selection credentialSelection
	if err := json.NewDecoder(r.Body).Decode(&selection); err != nil {
		fs.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if selection.BubbleVariableID == "" || selection.CredentialType == "" {
		fs.writeJSONError(w, "bubbleVariableId and credentialType are required", http.StatusBadRequest)
		return
	}

	flow, err := fs.flowStore.Get(r.Context(), flowID)
	if err != nil {
		fs.writeJSONError(w, "Flow not found", http.StatusNotFound)
		return
	}

	state := fs.runStates.Get(flowID)
	if selection.CredentialID == nil {
		state.ClearCredential(selection.BubbleVariableID, selection.CredentialType)
	} else {
		state.SetCredential(selection.BubbleVariableID, selection.CredentialType, *selection.CredentialID)
	}

	result := fs.checker.ValidateCredentials(flowID, flow, nil)
	fs.writeJSON(w, map[string]any{"validation_result": result})
}

// handleGetRunState returns the flow's live execution state snapshot.
func (fs *FlowService) handleGetRunState(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()
	flowID := r.PathValue("id")

	flow, err := fs.flowStore.Get(r.Context(), flowID)
	if err != nil {
		fs.writeJSONError(w, "Flow not found", http.StatusNotFound)
		return
	}

	fs.writeJSON(w, map[string]any{
		"flow_id":       flowID,
		"runtime_state": flow.RuntimeState,
		"state":         fs.runStates.Get(flowID).Snapshot(),
	})
}

// handleExecuteFlow starts a flow run, gated on the readiness verdict.
func (fs *FlowService) handleExecuteFlow(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()
	flowID := r.PathValue("id")

	if fs.executeLimiter != nil && !fs.executeLimiter.Allow() {
		fs.writeJSONError(w, "Too many execution requests", http.StatusTooManyRequests)
		return
	}

	flow, err := fs.flowStore.Get(r.Context(), flowID)
	if err != nil {
		fs.writeJSONError(w, "Flow not found", http.StatusNotFound)
		return
	}

	result := fs.checker.ValidateFlow(flowID, flow, flowengine.Options{
		CheckRunning:    true,
		CheckValidating: true,
	})
	if !result.IsValid {
		if fs.metricsRegistry != nil {
			fs.metricsRegistry.CoreMetrics().RecordFlowExecution("blocked")
		}
		validationErr := &flowengine.ValidationError{Result: result}
		fs.logger.Info("Execution blocked", "flow_id", flowID, "error", validationErr)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "Flow is not ready to execute",
			"validation_result": result,
		})
		return
	}

	state := fs.runStates.Get(flowID)
	state.SetRunning(true)

	if err := fs.flowStore.SetRuntimeState(r.Context(), flowID, flowstore.StateRunning); err != nil {
		state.SetRunning(false)
		fs.logger.Error("Failed to persist running state", "flow_id", flowID, "error", err)
		fs.writeJSONError(w, "Failed to start execution", http.StatusInternalServerError)
		return
	}

	if fs.metricsRegistry != nil {
		fs.metricsRegistry.CoreMetrics().RecordFlowExecution("started")
		fs.metricsRegistry.CoreMetrics().FlowsRunning.Inc()
	}
	fs.dispatchExecution(r, flowID, flow, state)
	fs.hub.broadcast(StatusEvent{
		FlowID:    flowID,
		State:     string(flowstore.StateRunning),
		Timestamp: time.Now(),
	})
	fs.logger.Info("Flow execution started", "flow_id", flowID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"flow_id": flowID,
		"state":   flowstore.StateRunning,
	})
}

// executionRequest is the message handed to the execution runtime over
// NATS when a flow passes its readiness check.
type executionRequest struct {
	FlowID      string         `json:"flow_id"`
	Code        string         `json:"code"`
	Inputs      map[string]any `json:"inputs"`
	RequestedAt time.Time      `json:"requested_at"`
}

// dispatchExecution publishes the execution request for the runner. The
// runner reports back through the completion endpoint, which also
// recovers the running flag if dispatch never reached a runner.
func (fs *FlowService) dispatchExecution(r *http.Request, flowID string, flow *flowstore.Flow, state *runstate.FlowState) {
	if fs.nats == nil {
		return
	}

	payload, err := json.Marshal(executionRequest{
		FlowID:      flowID,
		Code:        flow.Code,
		Inputs:      state.Inputs(),
		RequestedAt: time.Now(),
	})
	if err != nil {
		fs.logger.Error("Failed to encode execution request", "flow_id", flowID, "error", err)
		return
	}

	subject := executionSubjectPrefix + flowID
	if err := fs.nats.Publish(r.Context(), subject, payload); err != nil {
		fs.logger.Error("Failed to dispatch execution request",
			"flow_id", flowID,
			"subject", subject,
			"error", err)
		if fs.metricsRegistry != nil {
			fs.metricsRegistry.CoreMetrics().RecordError(fs.name, "execution_dispatch")
		}
	}
}

// executionOutcome is the payload reported by the execution runtime
// when a run finishes.
type executionOutcome struct {
	Status string `json:"status"` // completed or failed
}

// handleExecutionComplete marks a run as finished and releases the
// running flag.
func (fs *FlowService) handleExecutionComplete(w http.ResponseWriter, r *http.Request) {
	fs.RecordActivity()
	flowID := r.PathValue("id")

	outcome := executionOutcome{Status: "completed"}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
			fs.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	nextState := flowstore.StateIdle
	switch outcome.Status {
	case "completed", "":
		outcome.Status = "completed"
	case "failed":
		nextState = flowstore.StateError
	default:
		fs.writeJSONError(w, fmt.Sprintf("Unknown outcome status %q", outcome.Status), http.StatusBadRequest)
		return
	}

	state := fs.runStates.Get(flowID)
	state.SetRunning(false)

	if err := fs.flowStore.SetRuntimeState(r.Context(), flowID, nextState); err != nil {
		if stderrors.Is(err, errors.ErrFlowNotFound) {
			fs.writeJSONError(w, "Flow not found", http.StatusNotFound)
			return
		}
		fs.logger.Error("Failed to persist final state", "flow_id", flowID, "error", err)
		fs.writeJSONError(w, "Failed to record execution outcome", http.StatusInternalServerError)
		return
	}

	if fs.metricsRegistry != nil {
		fs.metricsRegistry.CoreMetrics().RecordFlowExecution(outcome.Status)
		fs.metricsRegistry.CoreMetrics().FlowsRunning.Dec()
	}
	fs.hub.broadcast(StatusEvent{
		FlowID:    flowID,
		State:     string(nextState),
		Timestamp: time.Now(),
	})
	fs.logger.Info("Flow execution finished", "flow_id", flowID, "status", outcome.Status)

	fs.writeJSON(w, map[string]any{
		"flow_id": flowID,
		"state":   nextState,
	})
}

// handleServiceStatus returns the service's runtime information.
func (fs *FlowService) handleServiceStatus(w http.ResponseWriter, _ *http.Request) {
	info := fs.Info()
	fs.writeJSON(w, map[string]any{
		"service":        info,
		"stream_clients": fs.hub.clientCount(),
	})
}

// statusWriter captures the response status code for request metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument wraps a handler to record request counts and latency per
// route.
func (fs *FlowService) instrument(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fs.metricsRegistry == nil {
			handler(w, r)
			return
		}

		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler(writer, r)

		core := fs.metricsRegistry.CoreMetrics()
		core.RecordHTTPRequest(route, strconv.Itoa(writer.status))
		core.RecordRequestDuration(route, time.Since(start))
	}
}

// writeJSON writes a JSON response and logs encoding errors
func (fs *FlowService) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fs.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeJSONError writes an error response in JSON format
func (fs *FlowService) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		fs.logger.Error("Failed to encode error response", "error", err, "message", message)
	}
}

// generateFlowID generates a unique flow ID
func generateFlowID() string {
	return uuid.New().String()
}
