package plan

import (
	"evald/internal/config"
	"evald/internal/device"
)

// Replica is one independently addressable model instance and the contiguous
// device window it owns exclusively for the lifetime of the plan.
type Replica struct {
	Index   int
	Devices []device.ID
}

// ParallelismPlan is the resolved replica layout. Immutable once computed.
// Replica windows partition the used prefix of the visible listing exactly:
// no device is shared between replicas and none inside the prefix is skipped.
type ParallelismPlan struct {
	Replicas          []Replica
	DevicesPerReplica int
	// Idle lists visible devices not claimed by any replica. Non-fatal;
	// callers may warn about undersubscription.
	Idle []device.ID
}

// NumReplicas returns the data-parallel replica count.
func (p ParallelismPlan) NumReplicas() int { return len(p.Replicas) }

// Parallelism derives the replica layout for cfg over the ordered visible
// device listing. Replica i owns visible[i*dpr : (i+1)*dpr) where dpr is
// tensor_parallel_size * pipeline_parallel_size; the assignment is
// deterministic in the order devices appear, never randomized.
func Parallelism(cfg config.BackendConfig, visible []device.ID) (ParallelismPlan, error) {
	tp, dp, pp := cfg.TensorParallelSize, cfg.DataParallelSize, cfg.PipelineParallelSize

	// Pipeline stages cannot be combined with independent replicas: the
	// packing of stages across replica windows is undefined, so reject
	// rather than guess a heuristic.
	if pp > 1 && dp > 1 {
		return ParallelismPlan{}, ErrUnsupportedParallelism(
			"pipeline_parallel_size > 1 cannot be combined with data_parallel_size > 1")
	}

	perReplica := tp * pp
	required := perReplica * dp
	if required > len(visible) {
		return ParallelismPlan{}, ErrInsufficientDevices(required, len(visible))
	}

	replicas := make([]Replica, dp)
	for i := 0; i < dp; i++ {
		window := visible[i*perReplica : (i+1)*perReplica]
		replicas[i] = Replica{Index: i, Devices: append([]device.ID(nil), window...)}
	}
	var idle []device.ID
	if required < len(visible) {
		idle = append([]device.ID(nil), visible[required:]...)
	}
	return ParallelismPlan{Replicas: replicas, DevicesPerReplica: perReplica, Idle: idle}, nil
}
