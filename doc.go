// Package bubbleflow provides the flow validation and execution-readiness
// engine behind a node-based visual flow editor.
//
// # Philosophy: Readiness Before Execution
//
// BubbleFlow answers one question continuously: "can this flow run right
// now?" A flow is a graph of bubbles (nodes). Each bubble may declare
// required inputs through a JSON Schema and required credentials through a
// per-bubble credential map. The engine evaluates those requirements
// against live per-flow state and produces a deterministic verdict with
// human-readable reasons the editor surfaces verbatim.
//
// BubbleFlow MUST NOT contain:
//   - Flow execution itself (running bubbles, moving data between them)
//   - Credential storage or secret material (only selections by ID)
//   - Bubble implementations (scrapers, notifiers, model calls)
//
// Execution belongs to a separate runner that consumes the readiness
// verdict and reports outcomes back through the completion endpoint.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          HTTP Service               │  Flow CRUD, validation,
//	│   (service.FlowService)             │  execute gate, status stream
//	└─────────────────────────────────────┘
//	           ↓ validates via
//	┌─────────────────────────────────────┐
//	│        Readiness Checker            │  Input checks, credential
//	│     (flowengine.Checker)            │  checks, verdict assembly
//	└─────────────────────────────────────┘
//	           ↓ reads
//	┌──────────────────┐  ┌──────────────────┐
//	│  Flow Store      │  │  Runtime State   │
//	│  (NATS KV)       │  │  (in-memory)     │
//	└──────────────────┘  └──────────────────┘
//
// Flow definitions persist in a NATS JetStream key-value bucket so every
// instance sees the same flows. Runtime state (collected inputs, credential
// selections, running and validating flags) is per-instance and in-memory:
// it describes what this editor session has gathered so far, not durable
// configuration.
//
// # Verdict Contract
//
// Validation produces a ValidationResult with an overall boolean, an
// ordered reason list, and an optional pointer to the first bubble whose
// credentials are unsatisfied. Reason strings are stable contract text:
// frontends match on them to drive UI prompts, so they never change
// wording between releases. Checks always run in the same order, so the
// same flow and state yield byte-identical verdicts.
//
// # Packages
//
//   - engine: readiness checker, schema parsing, bubble classification
//   - flowstore: NATS KV persistence for flow definitions
//   - runstate: in-memory per-flow runtime state
//   - credential: credential type taxonomy and selection rules
//   - service: HTTP API, WebSocket status stream, service lifecycle
//   - natsclient: managed NATS connection with reconnect handling
//   - metric: Prometheus registry and metrics endpoint
//   - config: YAML/JSON configuration with validation
//   - errors: classified errors with HTTP status mapping
package bubbleflow
