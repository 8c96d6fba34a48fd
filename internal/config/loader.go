package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"evald/internal/common/fsutil"
)

// Config holds daemon-level runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by flag defaults in main.
// Model args stay in their flat key=value form here; typed validation is
// ParseModelArgs' job.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	Backend   string `json:"backend" yaml:"backend" toml:"backend"`
	Devices   int    `json:"devices" yaml:"devices" toml:"devices"`
	ModelArgs string `json:"model_args" yaml:"model_args" toml:"model_args"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
