// Package config loads the runtime configuration file.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
)

// Config is the root of nms.yaml.
type Config struct {
	Log    Log    `yaml:"log"`
	Dev    Dev    `yaml:"dev"`
	Engine Engine `yaml:"engine"`
	Script Script `yaml:"script"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Dev holds developer switches.
type Dev struct {
	// Console selects human-readable log output.
	Console bool `yaml:"console"`
	// DevMode enables debug logging regardless of Log.Level.
	DevMode bool `yaml:"dev_mode"`
}

// Engine configures stub generation and hooking.
type Engine struct {
	// FaultPolicy is "substitute" or "trap".
	FaultPolicy string `yaml:"fault_policy"`
	// NearAlloc places relays within rel32 reach of hooked functions.
	NearAlloc bool `yaml:"near_alloc"`
	// DefaultConv applies to signatures without an explicit convention.
	DefaultConv string `yaml:"default_conv"`
}

// Script configures the WebAssembly script runtime.
type Script struct {
	// MemoryLimitPages caps guest memory in 64KiB pages; 0 keeps the
	// runtime default.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		Log:    Log{Level: "info"},
		Engine: Engine{FaultPolicy: "substitute", NearAlloc: true, DefaultConv: "host"},
		Script: Script{MemoryLimitPages: 256},
	}
}

// Load reads path. A missing file is created with defaults. Environment
// variables NMS_LOG_LEVEL, NMS_FAULT_POLICY and NMS_DEFAULT_CONV override
// the file.
func Load(path string) (*Config, error) {
	var cfg *Config

	//nolint:gosec // G304: path is chosen by the operator.
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		cfg = Default()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	default:
		cfg = Default()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse "+path)
		}
	}

	mergeEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		//nolint:gosec // G301: directory needs standard permissions for traversal
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "create config directory")
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "marshal config")
	}
	//nolint:gosec // G306: config file is not sensitive
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "write "+path)
	}
	return nil
}

func mergeEnv(cfg *Config) {
	if v := os.Getenv("NMS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NMS_FAULT_POLICY"); v != "" {
		cfg.Engine.FaultPolicy = v
	}
	if v := os.Getenv("NMS_DEFAULT_CONV"); v != "" {
		cfg.Engine.DefaultConv = v
	}
}

// Validate rejects unknown levels, policies and conventions.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level)
	}
	switch strings.ToLower(c.Engine.FaultPolicy) {
	case "", "substitute", "trap":
	default:
		return invalid("engine.fault_policy", c.Engine.FaultPolicy)
	}
	if _, err := abi.ParseConvention(c.Engine.DefaultConv); err != nil {
		return invalid("engine.default_conv", c.Engine.DefaultConv)
	}
	return nil
}

// Convention returns the parsed default convention.
func (c *Config) Convention() abi.Convention {
	conv, err := abi.ParseConvention(c.Engine.DefaultConv)
	if err != nil {
		return abi.Host()
	}
	return conv
}

func invalid(field, value string) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Path(strings.Split(field, ".")...).
		Value(value).
		Detail("unsupported %s %q", field, value).
		Build()
}
