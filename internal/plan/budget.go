package plan

import "evald/internal/config"

// Baselines for the advisory concurrency estimate. The token capacity is a
// rough per-device KV-cache budget at full memory utilisation; engines know
// the real number, this layer does not.
const (
	baseTokensPerDevice   = 1 << 19
	assumedModelLenTokens = 4096
)

// ResourceBudget carries the per-device memory settings through to engine
// construction plus an advisory concurrency estimate. Computed once per
// config, immutable thereafter.
type ResourceBudget struct {
	GPUMemoryUtilisation float64
	SwapSpaceGiB         int
	// MaxConcurrentSeqs is an informational estimate only. The inference
	// engine enforces the real limit; this layer does not control it.
	MaxConcurrentSeqs int
}

// Budget derives the resource budget for a validated config and plan.
// gpu_memory_utilisation and swap_space pass through unchanged: they are
// per-device settings, independent of replica count. Pure arithmetic, no
// failure modes of its own.
func Budget(cfg config.BackendConfig, p ParallelismPlan) ResourceBudget {
	maxLen := cfg.MaxModelLength
	if maxLen <= 0 {
		maxLen = assumedModelLenTokens
	}
	tokens := cfg.GPUMemoryUtilisation * float64(baseTokensPerDevice) * float64(p.DevicesPerReplica)
	seqs := int(tokens / float64(maxLen))
	if seqs < 0 {
		seqs = 0
	}
	return ResourceBudget{
		GPUMemoryUtilisation: cfg.GPUMemoryUtilisation,
		SwapSpaceGiB:         cfg.SwapSpaceGiB,
		MaxConcurrentSeqs:    seqs,
	}
}
