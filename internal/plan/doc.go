// Package plan resolves a validated BackendConfig into a concrete execution
// plan before any model is loaded:
//
//   - parallelism.go: replica count and contiguous device-window assignment,
//     with conflict detection (InsufficientDevices, unsupported combinations).
//   - budget.go: per-device memory/swap propagation and the advisory
//     concurrency estimate.
//   - errors.go: planning error types and predicates.
//
// All functions are pure and safe for concurrent use.
package plan
