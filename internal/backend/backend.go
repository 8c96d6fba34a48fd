package backend

import (
	"context"

	"evald/internal/config"
	"evald/internal/device"
	"evald/internal/plan"
)

// SamplingOptions captures generation parameters passed through to engines.
type SamplingOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        int64    `json:"seed,omitempty"`
}

// Engine is one live model replica. Implementations own whatever the replica
// needs (a process, a cgo context, a remote connection) and release it in
// Close. Generate must return exactly one completion per prompt, in order.
type Engine interface {
	Generate(ctx context.Context, prompts []string, opts SamplingOptions) ([]string, error)
	Close() error
}

// EngineInitializer turns a replica's device window into a live Engine.
// It is the injected capability that keeps planning code off the hardware:
// everything up to Init is testable without accelerators.
type EngineInitializer interface {
	Init(ctx context.Context, replica int, devices []device.ID) (Engine, error)
}

// Factory builds an initializer for a validated config and budget. Factories
// validate backend-specific preconditions (e.g. required environment) here,
// before any replica is started.
type Factory func(cfg config.BackendConfig, budget plan.ResourceBudget) (EngineInitializer, error)
