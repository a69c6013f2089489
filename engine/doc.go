// Package flowengine decides whether a flow is ready to execute.
//
// # Overview
//
// The flowengine package reconciles a flow's declared requirements (the
// input schema's required fields and the per-bubble required-credentials
// map) against the user-entered state held in the runstate store, and
// produces a single readiness verdict with an ordered reason list. The
// verdict gates execution: the flow service refuses to start a run while
// the verdict is invalid.
//
// # Architecture
//
//	┌─────────────┐
//	│ FlowService │ (service/flow_service.go)
//	└──────┬──────┘
//	       │ ValidateFlow(flowID, flow, opts)
//	       ▼
//	┌─────────────┐     Reads       ┌──────────────┐
//	│   Checker   │ ───────────────>│ runstate.Store│
//	│             │                 └──────────────┘
//	│ - inputs    │
//	│ - creds     │     Reads       ┌──────────────┐
//	│ - state     │ ───────────────>│ flowstore.Flow│
//	└──────┬──────┘                 └──────────────┘
//	       │
//	       ▼
//	 ValidationResult{isValid, reasons, bubbleVariableId}
//
// # Checks
//
// ValidateFlow accumulates reasons in a fixed order: selection guard,
// transient state (already running, already validating), missing required
// inputs in schema-declared order, missing credentials in bubble order.
// Callers that surface only the first reason therefore show the most
// actionable one.
//
// Credential validation operates on bubble instances, not definitions. A
// bubble definition that has been cloned to one or more call sites is a
// template: its clones carry the real credential requirements, and the
// template itself is skipped so the same missing credential is not
// reported once per clone plus once for the original.
//
// # Error handling
//
// The checker never returns an error for expected conditions. Missing
// flows, fields, and credentials are reasons inside the result. A schema
// that fails to parse is treated as declaring no constraints; a data
// quality problem elsewhere must not block execution.
package flowengine
