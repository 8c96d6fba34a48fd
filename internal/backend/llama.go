//go:build llama

package backend

import (
	"context"
	"errors"
	"fmt"

	llama "github.com/go-skynet/go-llama.cpp"

	"evald/internal/common/fsutil"
	"evald/internal/config"
	"evald/internal/device"
	"evald/internal/plan"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

func llamaFactory(cfg config.BackendConfig, budget plan.ResourceBudget) (EngineInitializer, error) {
	// llama.cpp loads a whole model into one process; it cannot shard
	// weights across a multi-device replica window.
	if cfg.TensorParallelSize > 1 || cfg.PipelineParallelSize > 1 {
		return nil, ErrDependencyUnavailable("llama backend does not support tensor or pipeline parallelism")
	}
	return &llamaInitializer{cfg: cfg}, nil
}

type llamaInitializer struct {
	cfg config.BackendConfig
}

func (li *llamaInitializer) Init(ctx context.Context, replica int, devices []device.ID) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctxSize := li.cfg.MaxModelLength
	if ctxSize <= 0 {
		ctxSize = 2048
	}
	modelPath, err := fsutil.ExpandHome(li.cfg.Pretrained)
	if err != nil {
		return nil, err
	}
	if !fsutil.PathExists(modelPath) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	m, err := llama.New(modelPath, llama.SetContext(ctxSize))
	if err != nil {
		return nil, fmt.Errorf("load model for replica %d: %w", replica, err)
	}
	return &llamaEngine{model: m, seed: li.cfg.Seed}, nil
}

type llamaEngine struct {
	model *llama.LLama
	seed  int64
}

func (e *llamaEngine) Generate(ctx context.Context, prompts []string, opts SamplingOptions) ([]string, error) {
	if e.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	out := make([]string, len(prompts))
	for i, p := range prompts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := e.model.Predict(p, e.predictOptions(opts)...)
		if err != nil {
			return nil, err
		}
		out[i] = text
	}
	return out, nil
}

func (e *llamaEngine) predictOptions(opts SamplingOptions) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(maxInt(1, opts.MaxTokens)),
	}
	if opts.Temperature > 0 {
		po = append(po, llama.SetTemperature(float32(opts.Temperature)))
	}
	if opts.TopP > 0 {
		po = append(po, llama.SetTopP(float32(opts.TopP)))
	}
	if opts.TopK > 0 {
		po = append(po, llama.SetTopK(opts.TopK))
	}
	seed := opts.Seed
	if seed == 0 {
		seed = e.seed
	}
	if seed != 0 {
		po = append(po, llama.SetSeed(int(seed)))
	}
	if len(opts.Stop) > 0 {
		po = append(po, llama.SetStopWords(opts.Stop...))
	}
	return po
}

func (e *llamaEngine) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
