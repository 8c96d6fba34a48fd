package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"evald/internal/config"
	"evald/internal/device"
	"evald/internal/plan"
)

// VLLMName selects the vLLM backend: one OpenAI-compatible vLLM server is
// spawned per replica, pinned to the replica's device window.
const VLLMName = "vllm"

// EnvWorkerMultiprocMethod must be set to "spawn" by the caller before
// process startup when running multiple replicas; vLLM's worker orchestration
// misbehaves under the fork start method. This layer only checks the
// precondition, it never mutates the environment.
const EnvWorkerMultiprocMethod = "VLLM_WORKER_MULTIPROC_METHOD"

const (
	vllmDefaultBin   = "vllm"
	vllmReadyTimeout = 120 * time.Second
)

func vllmFactory(cfg config.BackendConfig, budget plan.ResourceBudget) (EngineInitializer, error) {
	if cfg.DataParallelSize > 1 && os.Getenv(EnvWorkerMultiprocMethod) != "spawn" {
		return nil, fmt.Errorf("%s=spawn must be set before startup when data_parallel_size > 1", EnvWorkerMultiprocMethod)
	}
	bin := os.Getenv("EVALD_VLLM_BIN")
	if bin == "" {
		bin = vllmDefaultBin
	}
	// Timeout intentionally 0: every call carries a context deadline.
	return &vllmInitializer{
		cfg:    cfg,
		budget: budget,
		bin:    bin,
		host:   "127.0.0.1",
		client: &http.Client{Timeout: 0},
	}, nil
}

type vllmInitializer struct {
	cfg    config.BackendConfig
	budget plan.ResourceBudget
	bin    string
	host   string
	client *http.Client
}

// Init spawns a vLLM server for one replica and waits for readiness.
// The replica's device window is handed to the process via
// CUDA_VISIBLE_DEVICES so the engine only ever sees its own devices.
func (vi *vllmInitializer) Init(ctx context.Context, replica int, devices []device.ID) (Engine, error) {
	port, err := pickFreePort(vi.host)
	if err != nil {
		return nil, err
	}
	baseURL := fmt.Sprintf("http://%s:%d", vi.host, port)

	args := vi.serveArgs(port)
	cmd := exec.Command(vi.bin, args...)
	cmd.Env = append(os.Environ(), "CUDA_VISIBLE_DEVICES="+device.CSV(devices))
	// Keep a stderr tail in memory; included on failure for diagnostics.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start vllm server: %w", err)
	}

	// Early-exit watcher: surface a non-zero exit before readiness.
	waitErrCh := make(chan error, 1)
	go func() { waitErrCh <- cmd.Wait() }()

	deadline := time.Now().Add(vllmReadyTimeout)
	for {
		if err := ctx.Err(); err != nil {
			stopProcess(cmd)
			return nil, err
		}
		if time.Now().After(deadline) {
			stopProcess(cmd)
			return nil, fmt.Errorf("vllm server for replica %d not ready in time: %s", replica, baseURL)
		}
		select {
		case werr := <-waitErrCh:
			tail := stderr.String()
			if len(tail) > 4096 {
				tail = tail[len(tail)-4096:]
			}
			if werr != nil {
				return nil, fmt.Errorf("vllm server exited early: %v; stderr tail: %s", werr, tail)
			}
			return nil, fmt.Errorf("vllm server exited before ready: %s", baseURL)
		default:
		}
		if vi.isHealthy(baseURL, 1*time.Second) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return &vllmEngine{
		model:   vi.cfg.Pretrained,
		baseURL: baseURL,
		client:  vi.client,
		cmd:     cmd,
		waitCh:  waitErrCh,
	}, nil
}

// serveArgs maps the validated config and budget onto vLLM's flag surface.
// Only per-replica settings appear here; data parallelism is realized by
// spawning multiple servers, not by a vLLM flag.
func (vi *vllmInitializer) serveArgs(port int) []string {
	cfg := vi.cfg
	args := []string{
		"serve", cfg.Pretrained,
		"--host", vi.host,
		"--port", strconv.Itoa(port),
		"--tensor-parallel-size", strconv.Itoa(cfg.TensorParallelSize),
		"--gpu-memory-utilization", strconv.FormatFloat(vi.budget.GPUMemoryUtilisation, 'g', -1, 64),
		"--swap-space", strconv.Itoa(vi.budget.SwapSpaceGiB),
		"--seed", strconv.FormatInt(cfg.Seed, 10),
	}
	if cfg.PipelineParallelSize > 1 {
		args = append(args, "--pipeline-parallel-size", strconv.Itoa(cfg.PipelineParallelSize))
	}
	if cfg.Dtype != config.DtypeDefault {
		args = append(args, "--dtype", string(cfg.Dtype))
	}
	if cfg.Revision != "" {
		args = append(args, "--revision", cfg.Revision)
	}
	if cfg.MaxModelLength > 0 {
		args = append(args, "--max-model-len", strconv.Itoa(cfg.MaxModelLength))
	}
	if cfg.TrustRemoteCode {
		args = append(args, "--trust-remote-code")
	}
	return args
}

// isHealthy checks whether the server at baseURL answers /v1/models.
func (vi *vllmInitializer) isHealthy(baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := vi.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type vllmEngine struct {
	model   string
	baseURL string
	client  *http.Client
	cmd     *exec.Cmd
	waitCh  chan error
}

type vllmCompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        int64    `json:"seed,omitempty"`
}

type vllmCompletionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (e *vllmEngine) Generate(ctx context.Context, prompts []string, opts SamplingOptions) ([]string, error) {
	out := make([]string, len(prompts))
	for i, p := range prompts {
		text, err := e.complete(ctx, p, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		out[i] = text
	}
	return out, nil
}

func (e *vllmEngine) complete(ctx context.Context, prompt string, opts SamplingOptions) (string, error) {
	payload := vllmCompletionRequest{
		Model:       e.model,
		Prompt:      prompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		TopK:        opts.TopK,
		Stop:        opts.Stop,
		Seed:        opts.Seed,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("vllm server http error: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var msg vllmCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", fmt.Errorf("decode vllm response: %w", err)
	}
	if len(msg.Choices) == 0 {
		return "", fmt.Errorf("vllm server returned no choices")
	}
	return msg.Choices[0].Text, nil
}

// Close terminates this replica's server: SIGTERM first, kill after a grace
// period.
func (e *vllmEngine) Close() error {
	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}
	_ = e.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-e.waitCh:
	case <-time.After(2 * time.Second):
		_ = e.cmd.Process.Kill()
		<-e.waitCh
	}
	e.cmd = nil
	return nil
}

func stopProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	go func() {
		time.Sleep(2 * time.Second)
		_ = cmd.Process.Kill()
	}()
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", host+":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr := l.Addr().String()
	lastColon := strings.LastIndex(addr, ":")
	if lastColon < 0 {
		return 0, fmt.Errorf("unexpected addr: %s", addr)
	}
	return strconv.Atoi(addr[lastColon+1:])
}
