//go:build !llama

package backend

// This file provides a no-CGO stub for the llama backend. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real backend lives in llama.go (tagged 'llama').

import (
	"evald/internal/config"
	"evald/internal/plan"
)

// llamaBuilt indicates whether this binary carries real llama support.
var llamaBuilt = false

func llamaFactory(cfg config.BackendConfig, budget plan.ResourceBudget) (EngineInitializer, error) {
	// Fail fast at selection time rather than pretending to initialize.
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
