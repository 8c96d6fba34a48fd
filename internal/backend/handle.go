package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"evald/internal/config"
	"evald/internal/device"
	"evald/internal/plan"
	"evald/pkg/types"
)

// Handle is the immutable execution plan plus the generate surface the
// evaluation runner calls. It owns one engine per replica; the plan and
// budget never change after construction, only engine-internal state does.
type Handle struct {
	name      string
	cfg       config.BackendConfig
	plan      plan.ParallelismPlan
	budget    plan.ResourceBudget
	engines   []Engine
	startTime time.Time
}

// New constructs a Handle by initializing one engine per replica through
// init. Replica initialization has no cross-replica data dependency and runs
// concurrently; the call blocks until every replica is ready or one has
// failed. On failure, replicas that did initialize are closed before the
// error propagates, so no half-constructed state leaks.
func New(ctx context.Context, name string, cfg config.BackendConfig, p plan.ParallelismPlan, budget plan.ResourceBudget, init EngineInitializer) (*Handle, error) {
	engines := make([]Engine, len(p.Replicas))
	errs := make([]error, len(p.Replicas))
	var wg sync.WaitGroup
	for i := range p.Replicas {
		wg.Add(1)
		go func(i int, r plan.Replica) {
			defer wg.Done()
			eng, err := init.Init(ctx, r.Index, r.Devices)
			if err != nil {
				errs[i] = err
				return
			}
			engines[i] = eng
		}(i, p.Replicas[i])
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			for _, eng := range engines {
				if eng != nil {
					_ = eng.Close()
				}
			}
			return nil, ErrReplicaInit(i, err)
		}
	}
	return &Handle{
		name:      name,
		cfg:       cfg,
		plan:      p,
		budget:    budget,
		engines:   engines,
		startTime: time.Now(),
	}, nil
}

// NewFromEngines assembles a Handle around already-live engines, one per
// replica in plan order. A nil slot marks a replica whose engine never
// initialized; Generate calls touching it fail with EngineUnavailable while
// the rest of the handle stays usable.
func NewFromEngines(name string, cfg config.BackendConfig, p plan.ParallelismPlan, budget plan.ResourceBudget, engines []Engine) (*Handle, error) {
	if len(engines) != len(p.Replicas) {
		return nil, fmt.Errorf("engine count %d does not match replica count %d", len(engines), len(p.Replicas))
	}
	return &Handle{
		name:      name,
		cfg:       cfg,
		plan:      p,
		budget:    budget,
		engines:   append([]Engine(nil), engines...),
		startTime: time.Now(),
	}, nil
}

// Backend returns the backend name this handle was built from.
func (h *Handle) Backend() string { return h.name }

// Config returns the immutable backend configuration.
func (h *Handle) Config() config.BackendConfig { return h.cfg }

// Plan returns the resolved parallelism plan.
func (h *Handle) Plan() plan.ParallelismPlan { return h.plan }

// Budget returns the resolved resource budget.
func (h *Handle) Budget() plan.ResourceBudget { return h.budget }

// Ready reports whether every replica has a live engine.
func (h *Handle) Ready() bool {
	for _, eng := range h.engines {
		if eng == nil {
			return false
		}
	}
	return len(h.engines) > 0
}

// Generate distributes prompts over replicas in contiguous chunks and
// returns completions in prompt order regardless of replica dispatch order.
// A replica without an engine fails the affected call with EngineUnavailable;
// other calls (and other replicas) are unaffected.
func (h *Handle) Generate(ctx context.Context, prompts []string, opts SamplingOptions) ([]string, error) {
	if len(prompts) == 0 {
		return []string{}, nil
	}
	// Caller cancellation is honored up to dispatch; after that a chunk
	// runs to completion or failure inside its engine.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks := h.chunk(len(prompts))
	// Check availability before dispatching anything.
	for _, c := range chunks {
		if h.engines[c.replica] == nil {
			return nil, ErrEngineUnavailable(c.replica)
		}
	}

	out := make([]string, len(prompts))
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for ci, c := range chunks {
		wg.Add(1)
		go func(ci int, c chunkAssignment) {
			defer wg.Done()
			completions, err := h.engines[c.replica].Generate(ctx, prompts[c.start:c.end], opts)
			if err != nil {
				errs[ci] = fmt.Errorf("replica %d: %w", c.replica, err)
				return
			}
			if len(completions) != c.end-c.start {
				errs[ci] = fmt.Errorf("replica %d returned %d completions for %d prompts", c.replica, len(completions), c.end-c.start)
				return
			}
			copy(out[c.start:c.end], completions)
		}(ci, c)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// chunkAssignment maps a contiguous prompt range to one replica.
type chunkAssignment struct {
	replica    int
	start, end int
}

// chunk splits n prompts into at most NumReplicas contiguous ranges.
// Contiguity keeps reassembly a plain copy into the output slice.
func (h *Handle) chunk(n int) []chunkAssignment {
	replicas := len(h.engines)
	size := (n + replicas - 1) / replicas
	var out []chunkAssignment
	for i := 0; i < replicas && i*size < n; i++ {
		start := i * size
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, chunkAssignment{replica: i, start: start, end: end})
	}
	return out
}

// Close releases all replica engines together. The first close error wins;
// remaining engines are still closed.
func (h *Handle) Close() error {
	var first error
	for _, eng := range h.engines {
		if eng == nil {
			continue
		}
		if err := eng.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PlanView renders the resolved plan for the HTTP surface and dry runs.
func (h *Handle) PlanView() types.PlanResponse {
	resp := types.PlanResponse{
		Backend:              h.name,
		Pretrained:           h.cfg.Pretrained,
		DevicesPerReplica:    h.plan.DevicesPerReplica,
		IdleDevices:          device.Ints(h.plan.Idle),
		GPUMemoryUtilisation: h.budget.GPUMemoryUtilisation,
		SwapSpaceGiB:         h.budget.SwapSpaceGiB,
		MaxConcurrentSeqs:    h.budget.MaxConcurrentSeqs,
	}
	resp.Replicas = make([]types.ReplicaView, len(h.plan.Replicas))
	for i, r := range h.plan.Replicas {
		resp.Replicas[i] = types.ReplicaView{Index: r.Index, Devices: device.Ints(r.Devices)}
	}
	return resp
}

// Status builds the /status response.
func (h *Handle) Status() types.StatusResponse {
	resp := types.StatusResponse{
		Backend:        h.name,
		Pretrained:     h.cfg.Pretrained,
		Replicas:       make([]types.ReplicaStatus, len(h.plan.Replicas)),
		IdleDevices:    device.Ints(h.plan.Idle),
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	for i, r := range h.plan.Replicas {
		state := "ready"
		if h.engines[i] == nil {
			state = "unavailable"
		}
		resp.Replicas[i] = types.ReplicaStatus{
			Index:   r.Index,
			Devices: device.Ints(r.Devices),
			State:   state,
		}
	}
	return resp
}
