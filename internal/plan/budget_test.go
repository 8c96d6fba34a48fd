package plan

import (
	"strconv"
	"testing"

	"evald/internal/config"
	"evald/internal/device"
)

func planFor(t *testing.T, cfg config.BackendConfig, devices int) ParallelismPlan {
	t.Helper()
	p, err := Parallelism(cfg, device.FromCount(devices))
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	return p
}

func TestBudgetPropagatesSettings(t *testing.T) {
	cfg := cfgWith(t, map[string]string{"gpu_memory_utilisation": "0.5", "swap_space": "8", "data_parallel_size": "2"})
	b := Budget(cfg, planFor(t, cfg, 2))
	if b.GPUMemoryUtilisation != 0.5 {
		t.Fatalf("utilisation not propagated: %v", b.GPUMemoryUtilisation)
	}
	if b.SwapSpaceGiB != 8 {
		t.Fatalf("swap space not propagated: %d", b.SwapSpaceGiB)
	}
}

func TestBudgetEstimateNonNegative(t *testing.T) {
	cfg := cfgWith(t, map[string]string{"gpu_memory_utilisation": "0.01", "max_model_length": "1000000"})
	b := Budget(cfg, planFor(t, cfg, 1))
	if b.MaxConcurrentSeqs < 0 {
		t.Fatalf("estimate must be non-negative, got %d", b.MaxConcurrentSeqs)
	}
}

// The advisory estimate only has to scale monotonically with memory
// utilisation; its absolute value belongs to the engine, not this layer.
func TestBudgetMonotonicInUtilisation(t *testing.T) {
	prev := -1
	for _, u := range []string{"0.1", "0.3", "0.5", "0.7", "0.9", "1.0"} {
		cfg := cfgWith(t, map[string]string{"gpu_memory_utilisation": u})
		b := Budget(cfg, planFor(t, cfg, 1))
		if b.MaxConcurrentSeqs < prev {
			t.Fatalf("estimate decreased at utilisation %s: %d < %d", u, b.MaxConcurrentSeqs, prev)
		}
		prev = b.MaxConcurrentSeqs
	}
}

func TestBudgetScalesWithReplicaWidth(t *testing.T) {
	narrow := cfgWith(t, map[string]string{"tensor_parallel_size": "1"})
	wide := cfgWith(t, map[string]string{"tensor_parallel_size": "4"})
	bn := Budget(narrow, planFor(t, narrow, 4))
	bw := Budget(wide, planFor(t, wide, 4))
	if bw.MaxConcurrentSeqs < bn.MaxConcurrentSeqs {
		t.Fatalf("wider replica should not shrink the estimate: %d < %d", bw.MaxConcurrentSeqs, bn.MaxConcurrentSeqs)
	}
}

func TestBudgetUsesConfiguredModelLength(t *testing.T) {
	short := cfgWith(t, map[string]string{"max_model_length": "512"})
	long := cfgWith(t, map[string]string{"max_model_length": strconv.Itoa(512 * 16)})
	bs := Budget(short, planFor(t, short, 1))
	bl := Budget(long, planFor(t, long, 1))
	if bs.MaxConcurrentSeqs <= bl.MaxConcurrentSeqs {
		t.Fatalf("shorter sequences should fit more concurrency: %d <= %d", bs.MaxConcurrentSeqs, bl.MaxConcurrentSeqs)
	}
}
