package backend

import "fmt"

// replicaInitError wraps a failed replica initialization with its index.
// It is returned only after already-initialized replicas have been torn down.
type replicaInitError struct {
	replica int
	cause   error
}

func (e replicaInitError) Error() string {
	return fmt.Sprintf("replica %d initialization failed: %v", e.replica, e.cause)
}

func (e replicaInitError) Unwrap() error { return e.cause }

// ErrReplicaInit constructs a replicaInitError.
func ErrReplicaInit(replica int, cause error) error {
	return replicaInitError{replica: replica, cause: cause}
}

// IsReplicaInitFailed reports whether err indicates a failed replica startup.
func IsReplicaInitFailed(err error) bool {
	_, ok := err.(replicaInitError)
	return ok
}

// engineUnavailableError signals a generate call routed to a replica whose
// engine was never initialized. Fatal for the call, not for the handle:
// retrying a failed accelerator initialization rarely self-heals.
type engineUnavailableError struct{ replica int }

func (e engineUnavailableError) Error() string {
	return fmt.Sprintf("engine unavailable for replica %d", e.replica)
}

// ErrEngineUnavailable constructs an engineUnavailableError.
func ErrEngineUnavailable(replica int) error { return engineUnavailableError{replica: replica} }

// IsEngineUnavailable reports whether err indicates a missing replica engine.
func IsEngineUnavailable(err error) bool {
	_, ok := err.(engineUnavailableError)
	return ok
}

// dependencyUnavailableError signals a backend whose runtime dependency is
// not present in this build or on this host (e.g. llama support without the
// 'llama' build tag), so callers can distinguish it from a planning bug.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}
