package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Dtype is the numeric precision requested for model weights.
type Dtype string

const (
	DtypeDefault  Dtype = "default"
	DtypeFloat16  Dtype = "float16"
	DtypeBFloat16 Dtype = "bfloat16"
	DtypeFloat32  Dtype = "float32"
)

// Defaults for every optional model-args key. The defaults themselves must
// satisfy the documented range constraints (covered by tests).
const (
	DefaultGPUMemoryUtilisation = 0.9
	DefaultRevision             = "main"
	DefaultTensorParallelSize   = 1
	DefaultDataParallelSize     = 1
	DefaultPipelineParallelSize = 1
	DefaultSwapSpaceGiB         = 4
	DefaultSeed                 = 1234
)

// BackendConfig is the validated, typed form of the flat model-args mapping.
// It is constructed only by ParseModelArgs and treated as immutable by all
// downstream planning stages.
type BackendConfig struct {
	Pretrained           string
	Revision             string
	Dtype                Dtype
	GPUMemoryUtilisation float64
	TensorParallelSize   int
	DataParallelSize     int
	PipelineParallelSize int
	// MaxModelLength is 0 when unset, meaning "infer from the model".
	MaxModelLength int
	SwapSpaceGiB   int
	Seed           int64
	TrustRemoteCode bool
	AddSpecialTokens bool
	// MultichoiceContinuationsStartSpace controls whether a leading space is
	// forced on continuation choices during multichoice evaluation.
	MultichoiceContinuationsStartSpace bool
}

// ParseModelArgs coerces and validates a flat string mapping (as split from
// the CLI's comma-separated key=value string) into a BackendConfig. It is a
// pure function: no defaults are read from the environment and the input map
// is not mutated. Unknown keys fail instead of being silently ignored, so a
// typo cannot masquerade as "option left at default".
func ParseModelArgs(raw map[string]string) (BackendConfig, error) {
	cfg := BackendConfig{
		Revision:             DefaultRevision,
		Dtype:                DtypeDefault,
		GPUMemoryUtilisation: DefaultGPUMemoryUtilisation,
		TensorParallelSize:   DefaultTensorParallelSize,
		DataParallelSize:     DefaultDataParallelSize,
		PipelineParallelSize: DefaultPipelineParallelSize,
		SwapSpaceGiB:         DefaultSwapSpaceGiB,
		Seed:                 DefaultSeed,
		TrustRemoteCode:      false,
		AddSpecialTokens:     true,
		MultichoiceContinuationsStartSpace: true,
	}

	for key, val := range raw {
		switch key {
		case "pretrained":
			cfg.Pretrained = val
		case "revision":
			cfg.Revision = val
		case "dtype":
			d, err := parseDtype(key, val)
			if err != nil {
				return BackendConfig{}, err
			}
			cfg.Dtype = d
		case "gpu_memory_utilisation":
			f, err := parseFloatOpt(key, val)
			if err != nil {
				return BackendConfig{}, err
			}
			if f <= 0 || f > 1 {
				return BackendConfig{}, ErrOutOfRangeOption(key, val, "in (0, 1]")
			}
			cfg.GPUMemoryUtilisation = f
		case "tensor_parallel_size":
			n, err := parsePositiveInt(key, val)
			if err != nil {
				return BackendConfig{}, err
			}
			cfg.TensorParallelSize = n
		case "data_parallel_size":
			n, err := parsePositiveInt(key, val)
			if err != nil {
				return BackendConfig{}, err
			}
			cfg.DataParallelSize = n
		case "pipeline_parallel_size":
			n, err := parsePositiveInt(key, val)
			if err != nil {
				return BackendConfig{}, err
			}
			cfg.PipelineParallelSize = n
		case "max_model_length":
			n, err := parsePositiveInt(key, val)
			if err != nil {
				return BackendConfig{}, err
			}
			cfg.MaxModelLength = n
		case "swap_space":
			n, err := parseIntOpt(key, val)
			if err != nil {
				return BackendConfig{}, err
			}
			if n < 0 {
				return BackendConfig{}, ErrOutOfRangeOption(key, val, ">= 0")
			}
			cfg.SwapSpaceGiB = n
		case "seed":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return BackendConfig{}, ErrInvalidOptionValue(key, val, "integer")
			}
			cfg.Seed = n
		case "trust_remote_code":
			b, err := parseBoolOpt(key, val)
			if err != nil {
				return BackendConfig{}, err
			}
			cfg.TrustRemoteCode = b
		case "add_special_tokens":
			b, err := parseBoolOpt(key, val)
			if err != nil {
				return BackendConfig{}, err
			}
			cfg.AddSpecialTokens = b
		case "multichoice_continuations_start_space":
			b, err := parseBoolOpt(key, val)
			if err != nil {
				return BackendConfig{}, err
			}
			cfg.MultichoiceContinuationsStartSpace = b
		default:
			return BackendConfig{}, ErrUnrecognizedOption(key)
		}
	}

	if strings.TrimSpace(cfg.Pretrained) == "" {
		return BackendConfig{}, ErrOutOfRangeOption("pretrained", cfg.Pretrained, "non-empty")
	}
	return cfg, nil
}

// Args re-emits the canonical flat mapping for this config. Parsing the
// result yields an identical BackendConfig, which keeps ParseModelArgs
// idempotent over its own output. max_model_length stays absent when unset
// so "infer from the model" round-trips.
func (c BackendConfig) Args() map[string]string {
	out := map[string]string{
		"pretrained":             c.Pretrained,
		"revision":               c.Revision,
		"dtype":                  string(c.Dtype),
		"gpu_memory_utilisation": strconv.FormatFloat(c.GPUMemoryUtilisation, 'g', -1, 64),
		"tensor_parallel_size":   strconv.Itoa(c.TensorParallelSize),
		"data_parallel_size":     strconv.Itoa(c.DataParallelSize),
		"pipeline_parallel_size": strconv.Itoa(c.PipelineParallelSize),
		"swap_space":             strconv.Itoa(c.SwapSpaceGiB),
		"seed":                   strconv.FormatInt(c.Seed, 10),
		"trust_remote_code":      strconv.FormatBool(c.TrustRemoteCode),
		"add_special_tokens":     strconv.FormatBool(c.AddSpecialTokens),
		"multichoice_continuations_start_space": strconv.FormatBool(c.MultichoiceContinuationsStartSpace),
	}
	if c.MaxModelLength > 0 {
		out["max_model_length"] = strconv.Itoa(c.MaxModelLength)
	}
	return out
}

func parseDtype(key, val string) (Dtype, error) {
	switch Dtype(val) {
	case DtypeDefault, DtypeFloat16, DtypeBFloat16, DtypeFloat32:
		return Dtype(val), nil
	}
	return "", ErrInvalidOptionValue(key, val, "one of default|float16|bfloat16|float32")
}

func parseFloatOpt(key, val string) (float64, error) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, ErrInvalidOptionValue(key, val, "float")
	}
	return f, nil
}

func parseIntOpt(key, val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, ErrInvalidOptionValue(key, val, "integer")
	}
	return n, nil
}

func parsePositiveInt(key, val string) (int, error) {
	n, err := parseIntOpt(key, val)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, ErrOutOfRangeOption(key, val, ">= 1")
	}
	return n, nil
}

// OptionTable returns the documented option surface as "name type default"
// rows for help output. Order matches the documentation.
func OptionTable() []string {
	return []string{
		"pretrained                             string   (required)",
		"gpu_memory_utilisation                 float    " + strconv.FormatFloat(DefaultGPUMemoryUtilisation, 'g', -1, 64),
		"revision                               string   " + DefaultRevision,
		"dtype                                  enum     " + string(DtypeDefault),
		"tensor_parallel_size                   int      " + strconv.Itoa(DefaultTensorParallelSize),
		"data_parallel_size                     int      " + strconv.Itoa(DefaultDataParallelSize),
		"pipeline_parallel_size                 int      " + strconv.Itoa(DefaultPipelineParallelSize),
		fmt.Sprintf("max_model_length                       int      %s", "(inferred)"),
		"swap_space                             int      " + strconv.Itoa(DefaultSwapSpaceGiB),
		"seed                                   int      " + strconv.Itoa(DefaultSeed),
		"trust_remote_code                      bool     false",
		"add_special_tokens                     bool     true",
		"multichoice_continuations_start_space  bool     true",
	}
}

func parseBoolOpt(key, val string) (bool, error) {
	switch strings.ToLower(val) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, ErrInvalidOptionValue(key, val, "bool")
}
