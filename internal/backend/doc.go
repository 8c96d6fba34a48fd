// Package backend owns the execution surface behind a resolved plan. It is
// structured into small files by concern:
//
//   - backend.go: Engine, EngineInitializer, Factory, SamplingOptions.
//   - registry.go: name->factory registry; the backend is picked once at
//     startup, never branched on per call.
//   - handle.go: Handle construction (concurrent replica init with rollback),
//     order-preserving batch dispatch, teardown, status views.
//   - errors.go: error types and predicates (IsReplicaInitFailed,
//     IsEngineUnavailable, IsDependencyUnavailable).
//   - sim.go: in-process echo engine for tests and dry runs.
//   - vllm.go: one vLLM server process per replica, pinned to its device
//     window via CUDA_VISIBLE_DEVICES.
//
// Build tags and runtimes:
//
//   - In-process llama: uses the go-llama.cpp binding, enabled with
//     `-tags=llama` (llama.go). A no-CGO stub compiles otherwise
//     (llama_stub.go) whose factory fails fast at selection time.
package backend
