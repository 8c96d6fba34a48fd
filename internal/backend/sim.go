package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"evald/internal/config"
	"evald/internal/device"
	"evald/internal/plan"
)

// SimName selects the in-process simulator backend. It echoes prompts back
// as completions, which keeps dry runs and tests deterministic without any
// accelerator or external process.
const SimName = "sim"

func simFactory(cfg config.BackendConfig, budget plan.ResourceBudget) (EngineInitializer, error) {
	return &simInitializer{cfg: cfg}, nil
}

type simInitializer struct {
	cfg config.BackendConfig
}

func (si *simInitializer) Init(ctx context.Context, replica int, devices []device.ID) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &simEngine{replica: replica, devices: append([]device.ID(nil), devices...)}, nil
}

type simEngine struct {
	mu      sync.Mutex
	closed  bool
	replica int
	devices []device.ID
}

func (e *simEngine) Generate(ctx context.Context, prompts []string, opts SamplingOptions) ([]string, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errors.New("sim engine is closed")
	}
	out := make([]string, len(prompts))
	for i, p := range prompts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out[i] = echoCompletion(p, opts.MaxTokens)
	}
	return out, nil
}

func (e *simEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("sim engine for replica %d already closed", e.replica)
	}
	e.closed = true
	return nil
}

// echoCompletion mirrors the prompt, truncated to maxTokens whitespace
// tokens when set. Echoing keeps output↔input correspondence checkable.
func echoCompletion(prompt string, maxTokens int) string {
	if maxTokens <= 0 {
		return prompt
	}
	fields := strings.Fields(prompt)
	if len(fields) <= maxTokens {
		return prompt
	}
	return strings.Join(fields[:maxTokens], " ")
}
