package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"evald/internal/config"
	"evald/internal/device"
	"evald/internal/plan"
)

func testConfig(t *testing.T, extra map[string]string) config.BackendConfig {
	t.Helper()
	raw := map[string]string{"pretrained": "m"}
	for k, v := range extra {
		raw[k] = v
	}
	cfg, err := config.ParseModelArgs(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cfg
}

func testPlan(t *testing.T, cfg config.BackendConfig, devices int) (plan.ParallelismPlan, plan.ResourceBudget) {
	t.Helper()
	p, err := plan.Parallelism(cfg, device.FromCount(devices))
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	return p, plan.Budget(cfg, p)
}

// fakeEngine tags completions with its replica index so dispatch is observable.
type fakeEngine struct {
	replica int
	mu      sync.Mutex
	closed  bool
	calls   int
	delay   time.Duration
	fail    error
}

func (f *fakeEngine) Generate(ctx context.Context, prompts []string, opts SamplingOptions) ([]string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([]string, len(prompts))
	for i, p := range prompts {
		out[i] = fmt.Sprintf("r%d:%s", f.replica, p)
	}
	return out, nil
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeInitializer builds fakeEngines, optionally failing a chosen replica.
type fakeInitializer struct {
	mu          sync.Mutex
	failReplica int // -1 = never fail
	built       []*fakeEngine
}

func (fi *fakeInitializer) Init(ctx context.Context, replica int, devices []device.ID) (Engine, error) {
	if replica == fi.failReplica {
		return nil, errors.New("device went away")
	}
	eng := &fakeEngine{replica: replica}
	fi.mu.Lock()
	fi.built = append(fi.built, eng)
	fi.mu.Unlock()
	return eng, nil
}

func TestNewInitializesEveryReplica(t *testing.T) {
	cfg := testConfig(t, map[string]string{"data_parallel_size": "3"})
	p, b := testPlan(t, cfg, 3)
	fi := &fakeInitializer{failReplica: -1}
	h, err := New(context.Background(), SimName, cfg, p, b, fi)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Close()
	if !h.Ready() {
		t.Fatalf("handle should be ready")
	}
	if len(fi.built) != 3 {
		t.Fatalf("expected 3 engines, built %d", len(fi.built))
	}
}

func TestNewRollsBackOnReplicaFailure(t *testing.T) {
	cfg := testConfig(t, map[string]string{"data_parallel_size": "4"})
	p, b := testPlan(t, cfg, 4)
	fi := &fakeInitializer{failReplica: 2}
	_, err := New(context.Background(), SimName, cfg, p, b, fi)
	if err == nil || !IsReplicaInitFailed(err) {
		t.Fatalf("expected replica init failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "replica 2") {
		t.Fatalf("error should carry the replica index: %v", err)
	}
	// Replicas that did initialize must have been torn down.
	for _, eng := range fi.built {
		eng.mu.Lock()
		closed := eng.closed
		eng.mu.Unlock()
		if !closed {
			t.Fatalf("replica %d engine leaked after rollback", eng.replica)
		}
	}
}

func TestGeneratePreservesOrder(t *testing.T) {
	cfg := testConfig(t, map[string]string{"data_parallel_size": "3"})
	p, b := testPlan(t, cfg, 3)
	// Replica 0 is slow so a naive append-on-arrival would scramble output.
	engines := []Engine{
		&fakeEngine{replica: 0, delay: 30 * time.Millisecond},
		&fakeEngine{replica: 1},
		&fakeEngine{replica: 2},
	}
	h, err := NewFromEngines(SimName, cfg, p, b, engines)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	prompts := []string{"p0", "p1", "p2", "p3", "p4", "p5"}
	out, err := h.Generate(context.Background(), prompts, SamplingOptions{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(out) != len(prompts) {
		t.Fatalf("got %d completions for %d prompts", len(out), len(prompts))
	}
	for i, c := range out {
		if !strings.HasSuffix(c, ":"+prompts[i]) {
			t.Fatalf("completion %d = %q does not correspond to prompt %q", i, c, prompts[i])
		}
	}
}

func TestGenerateSpreadsAcrossReplicas(t *testing.T) {
	cfg := testConfig(t, map[string]string{"data_parallel_size": "2"})
	p, b := testPlan(t, cfg, 2)
	e0 := &fakeEngine{replica: 0}
	e1 := &fakeEngine{replica: 1}
	h, err := NewFromEngines(SimName, cfg, p, b, []Engine{e0, e1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := h.Generate(context.Background(), []string{"a", "b", "c", "d"}, SamplingOptions{}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if e0.calls != 1 || e1.calls != 1 {
		t.Fatalf("expected both replicas dispatched, calls=%d/%d", e0.calls, e1.calls)
	}
}

func TestGenerateSmallBatchSkipsIdleReplicas(t *testing.T) {
	cfg := testConfig(t, map[string]string{"data_parallel_size": "4"})
	p, b := testPlan(t, cfg, 4)
	engines := []Engine{&fakeEngine{replica: 0}, nil, nil, nil}
	h, err := NewFromEngines(SimName, cfg, p, b, engines)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// One prompt fits in replica 0's chunk; the nil replicas are not touched.
	out, err := h.Generate(context.Background(), []string{"only"}, SamplingOptions{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out[0] != "r0:only" {
		t.Fatalf("unexpected completion %q", out[0])
	}
}

func TestGenerateEngineUnavailable(t *testing.T) {
	cfg := testConfig(t, map[string]string{"data_parallel_size": "2"})
	p, b := testPlan(t, cfg, 2)
	h, err := NewFromEngines(SimName, cfg, p, b, []Engine{&fakeEngine{replica: 0}, nil})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if h.Ready() {
		t.Fatalf("handle with a dead replica must not be ready")
	}
	_, err = h.Generate(context.Background(), []string{"a", "b", "c", "d"}, SamplingOptions{})
	if err == nil || !IsEngineUnavailable(err) {
		t.Fatalf("expected engine unavailable, got %v", err)
	}
	// The live replica still serves batches that fit inside its chunk.
	if _, err := h.Generate(context.Background(), []string{"a"}, SamplingOptions{}); err != nil {
		t.Fatalf("live replica should keep serving: %v", err)
	}
}

func TestGenerateEmptyBatch(t *testing.T) {
	cfg := testConfig(t, nil)
	p, b := testPlan(t, cfg, 1)
	h, err := NewFromEngines(SimName, cfg, p, b, []Engine{&fakeEngine{replica: 0}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := h.Generate(context.Background(), nil, SamplingOptions{})
	if err != nil || len(out) != 0 {
		t.Fatalf("empty batch: out=%v err=%v", out, err)
	}
}

func TestGenerateCancelledBeforeDispatch(t *testing.T) {
	cfg := testConfig(t, nil)
	p, b := testPlan(t, cfg, 1)
	eng := &fakeEngine{replica: 0}
	h, err := NewFromEngines(SimName, cfg, p, b, []Engine{eng})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Generate(ctx, []string{"a"}, SamplingOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if eng.calls != 0 {
		t.Fatalf("engine dispatched after cancellation")
	}
}

func TestGenerateReplicaErrorWins(t *testing.T) {
	cfg := testConfig(t, map[string]string{"data_parallel_size": "2"})
	p, b := testPlan(t, cfg, 2)
	bad := &fakeEngine{replica: 1, fail: errors.New("cuda OOM")}
	h, err := NewFromEngines(SimName, cfg, p, b, []Engine{&fakeEngine{replica: 0}, bad})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = h.Generate(context.Background(), []string{"a", "b"}, SamplingOptions{})
	if err == nil || !strings.Contains(err.Error(), "replica 1") {
		t.Fatalf("expected replica 1 error, got %v", err)
	}
}

func TestNewFromEnginesLengthMismatch(t *testing.T) {
	cfg := testConfig(t, map[string]string{"data_parallel_size": "2"})
	p, b := testPlan(t, cfg, 2)
	if _, err := NewFromEngines(SimName, cfg, p, b, []Engine{&fakeEngine{}}); err == nil {
		t.Fatalf("expected length mismatch error")
	}
}

func TestCloseClosesAllEngines(t *testing.T) {
	cfg := testConfig(t, map[string]string{"data_parallel_size": "2"})
	p, b := testPlan(t, cfg, 2)
	e0 := &fakeEngine{replica: 0}
	e1 := &fakeEngine{replica: 1}
	h, err := NewFromEngines(SimName, cfg, p, b, []Engine{e0, e1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !e0.closed || !e1.closed {
		t.Fatalf("engines not closed: %v %v", e0.closed, e1.closed)
	}
}

func TestStatusReflectsReplicaStates(t *testing.T) {
	cfg := testConfig(t, map[string]string{"data_parallel_size": "2"})
	p, b := testPlan(t, cfg, 2)
	h, err := NewFromEngines(VLLMName, cfg, p, b, []Engine{&fakeEngine{replica: 0}, nil})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	st := h.Status()
	if st.Backend != VLLMName || len(st.Replicas) != 2 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Replicas[0].State != "ready" || st.Replicas[1].State != "unavailable" {
		t.Fatalf("replica states %+v", st.Replicas)
	}
}

func TestPlanViewMatchesPlan(t *testing.T) {
	cfg := testConfig(t, map[string]string{"tensor_parallel_size": "2"})
	p, b := testPlan(t, cfg, 5)
	h, err := NewFromEngines(SimName, cfg, p, b, []Engine{&fakeEngine{replica: 0}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	v := h.PlanView()
	if v.DevicesPerReplica != 2 || len(v.Replicas) != 1 {
		t.Fatalf("unexpected view %+v", v)
	}
	if len(v.IdleDevices) != 3 {
		t.Fatalf("idle devices %v", v.IdleDevices)
	}
	if v.MaxConcurrentSeqs != b.MaxConcurrentSeqs {
		t.Fatalf("budget not propagated to view")
	}
}
