package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/capability"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/transport"
)

// Prefix is the environment variable prefix, e.g. WASMBRIDGE_LOGGING_LEVEL.
const Prefix = "WASMBRIDGE"

// Config holds the bridge configuration.
type Config struct {
	Engine     EngineConfig  `yaml:"engine"`
	Fetch      FetchConfig   `yaml:"fetch"`
	Logging    LogConfig     `yaml:"logging"`
	Loop       LoopConfig    `yaml:"loop"`
	Metrics    MetricsConfig `yaml:"metrics"`
	Entrypoint string        `envconfig:"ENTRYPOINT" default:"$invokeMain" yaml:"entrypoint"`
}

// EngineConfig configures compilation and memory.
type EngineConfig struct {
	CacheDir         string `envconfig:"CACHE_DIR" yaml:"cache_dir"`
	MemoryLimitPages uint32 `envconfig:"MEMORY_LIMIT_PAGES" default:"0" yaml:"memory_limit_pages"`
	MaxModuleSize    int64  `envconfig:"MAX_MODULE_SIZE" default:"268435456" yaml:"max_module_size"`
}

// FetchConfig configures the HTTP client used for modules and fetch.
type FetchConfig struct {
	RetryMax          int           `envconfig:"RETRY_MAX" default:"3" yaml:"retry_max"`
	RetryWaitMin      time.Duration `envconfig:"RETRY_WAIT_MIN" default:"500ms" yaml:"retry_wait_min"`
	RetryWaitMax      time.Duration `envconfig:"RETRY_WAIT_MAX" default:"10s" yaml:"retry_wait_max"`
	Timeout           time.Duration `envconfig:"TIMEOUT" default:"30s" yaml:"timeout"`
	RequestsPerSecond float64       `envconfig:"RPS" default:"0" yaml:"requests_per_second"`
	UserAgent         string        `envconfig:"USER_AGENT" default:"wasm-bridge/1.0" yaml:"user_agent"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"DEV" default:"false" yaml:"development"`
}

// LoopConfig bounds a run of the event loop.
type LoopConfig struct {
	// RunTimeout bounds InvokeMain including the loop drain. Zero disables it.
	RunTimeout     time.Duration `envconfig:"RUN_TIMEOUT" default:"0" yaml:"run_timeout"`
	RegexpTimeout  time.Duration `envconfig:"REGEXP_TIMEOUT" default:"1s" yaml:"regexp_timeout"`
	DisableNetwork bool          `envconfig:"DISABLE_NETWORK" default:"false" yaml:"disable_network"`
}

// MetricsConfig configures the Prometheus endpoint of the CLI.
type MetricsConfig struct {
	Addr string `envconfig:"ADDR" yaml:"addr"`
}

// Load reads the environment and then overlays the YAML file at path when
// path is not empty. Keys present in the file win over the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "environment")
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "open "+path)
		}
		defer f.Close()
		if err := cfg.Overlay(f); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Overlay decodes YAML from r on top of c.
func (c *Config) Overlay(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "read config")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse config")
	}
	return nil
}

// Validate checks value ranges and the log level.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("logging.level: %v", err))
	}
	if c.Fetch.RetryMax < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "fetch.retry_max must not be negative")
	}
	if c.Fetch.RetryWaitMin > c.Fetch.RetryWaitMax {
		return errors.InvalidInput(errors.PhaseConfig, "fetch.retry_wait_min exceeds fetch.retry_wait_max")
	}
	if c.Engine.MaxModuleSize < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "engine.max_module_size must not be negative")
	}
	if c.Entrypoint == "" {
		return errors.InvalidInput(errors.PhaseConfig, "entrypoint must not be empty")
	}
	return nil
}

// Logger builds a zap logger for the configured level and mode.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Transport returns the HTTP client options.
func (c *Config) Transport(log *zap.Logger) transport.Options {
	return transport.Options{
		Logger:            log,
		RetryMax:          c.Fetch.RetryMax,
		RetryWaitMin:      c.Fetch.RetryWaitMin,
		RetryWaitMax:      c.Fetch.RetryWaitMax,
		Timeout:           c.Fetch.Timeout,
		RequestsPerSecond: c.Fetch.RequestsPerSecond,
		UserAgent:         c.Fetch.UserAgent,
	}
}

// Runtime returns the runtime configuration. client serves module downloads
// and the fetch capability; with DisableNetwork set, fetch rejects.
func (c *Config) Runtime(client *transport.Client, output io.Writer) *runtime.Config {
	caps := capability.Options{
		Output:        output,
		Client:        client,
		RegexpTimeout: c.Loop.RegexpTimeout,
		FetchTimeout:  c.Fetch.Timeout,
	}
	if c.Loop.DisableNetwork {
		caps.Client = nil
	}
	return &runtime.Config{
		Engine: engine.Config{
			CacheDir:           c.Engine.CacheDir,
			MemoryLimitPages:   c.Engine.MemoryLimitPages,
			CloseOnContextDone: c.Loop.RunTimeout > 0,
		},
		Capabilities:  caps,
		MaxModuleSize: c.Engine.MaxModuleSize,
		Entrypoint:    c.Entrypoint,
	}
}
