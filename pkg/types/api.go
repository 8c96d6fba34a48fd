package types

// GenerateRequest is the payload for POST /generate.
type GenerateRequest struct {
	// Prompts to complete, in order. Completions come back in the same order.
	// example: ["Write a haiku about the ocean."]
	Prompts []string `json:"prompts"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Maximum number of new tokens to generate per prompt.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Optional stop sequences.
	// example: ["\n\n","END"]
	Stop []string `json:"stop,omitempty"`
	// Random seed; 0 or omitted uses the configured backend seed.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}

// GenerateResponse is returned by POST /generate.
type GenerateResponse struct {
	// One completion per prompt, same order as the request.
	Completions []string `json:"completions"`
}

// ReplicaView describes one replica's device assignment in a resolved plan.
type ReplicaView struct {
	// Replica index.
	// example: 0
	Index int `json:"index" example:"0"`
	// Device ids this replica owns exclusively.
	// example: [0,1,2,3]
	Devices []int `json:"devices"`
}

// PlanResponse is returned by GET /plan: the resolved execution plan.
type PlanResponse struct {
	// Selected backend name.
	// example: vllm
	Backend string `json:"backend" example:"vllm"`
	// Model identifier the plan was resolved for.
	// example: org/model
	Pretrained string `json:"pretrained" example:"org/model"`
	// Replica layout.
	Replicas []ReplicaView `json:"replicas"`
	// Devices each replica spans (tensor x pipeline parallelism).
	// example: 4
	DevicesPerReplica int `json:"devices_per_replica" example:"4"`
	// Visible devices left idle by the plan (undersubscription warning).
	IdleDevices []int `json:"idle_devices,omitempty"`
	// Fraction of device memory the engine may use.
	// example: 0.9
	GPUMemoryUtilisation float64 `json:"gpu_memory_utilisation" example:"0.9"`
	// Host swap space reserved per device, GiB.
	// example: 4
	SwapSpaceGiB int `json:"swap_space_gib" example:"4"`
	// Advisory estimate of concurrent sequences per replica. Informational
	// only; the engine enforces the real limit.
	// example: 115
	MaxConcurrentSeqs int `json:"max_concurrent_seqs" example:"115"`
}

// ReplicaStatus summarizes one replica for /status.
type ReplicaStatus struct {
	// Replica index.
	// example: 0
	Index int `json:"index" example:"0"`
	// Device ids owned by this replica.
	Devices []int `json:"devices"`
	// Engine state: ready or unavailable.
	// example: ready
	State string `json:"state" example:"ready"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Selected backend name.
	// example: sim
	Backend string `json:"backend" example:"sim"`
	// Model identifier being served.
	// example: org/model
	Pretrained string `json:"pretrained" example:"org/model"`
	// Per-replica states.
	Replicas []ReplicaStatus `json:"replicas"`
	// Idle visible devices, if any.
	IdleDevices []int `json:"idle_devices,omitempty"`
	// Uptime of the handle in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: prompts are required
	Error string `json:"error" example:"prompts are required"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
