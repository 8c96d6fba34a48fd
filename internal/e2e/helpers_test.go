package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"evald/internal/backend"
	"evald/internal/config"
	"evald/internal/device"
	"evald/internal/httpapi"
	"evald/internal/plan"
)

// newSimServer resolves the given model args over deviceCount visible
// devices, constructs a sim backend handle and serves the HTTP API on an
// httptest server.
func newSimServer(t *testing.T, args map[string]string, deviceCount int) (*httptest.Server, *backend.Handle) {
	t.Helper()
	cfg, err := config.ParseModelArgs(args)
	if err != nil {
		t.Fatalf("parse model args: %v", err)
	}
	visible := device.FromCount(deviceCount)
	p, err := plan.Parallelism(cfg, visible)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	budget := plan.Budget(cfg, p)
	factory, err := backend.Builtin().Get(backend.SimName)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	init, err := factory(cfg, budget)
	if err != nil {
		t.Fatalf("initializer: %v", err)
	}
	h, err := backend.New(context.Background(), backend.SimName, cfg, p, budget, init)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	srv := httptest.NewServer(httpapi.NewMux(h))
	t.Cleanup(srv.Close)
	return srv, h
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}
