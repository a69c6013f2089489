// Package flowstore persists BubbleFlow definitions in NATS JetStream
// KV with optimistic concurrency control.
//
// A Flow bundles the generated TypeScript code with the metadata the
// readiness engine consumes: the declared input schema, the per-bubble
// required-credentials map, and the bubble descriptor graph. All of it
// is owned by the code generator; this package only stores and
// retrieves it.
//
// Concurrency model: Update uses version-check-then-put for editor
// saves (a stale editor should fail loudly), while SetRuntimeState
// uses a CAS retry loop because runtime transitions race with saves
// and with each other and must not be lost.
//
// Bubble descriptors distinguish design-time originals from clones.
// A bubble written once in source can be instantiated several times at
// runtime (inside a loop, a reused helper); each instantiation is a
// clone with its own call-site key and its own credential needs. See
// the engine package for how validation treats the two.
package flowstore
