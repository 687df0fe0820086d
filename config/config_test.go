package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/transport"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		Engine: EngineConfig{MaxModuleSize: 256 << 20},
		Fetch: FetchConfig{
			RetryMax:     3,
			RetryWaitMin: 500 * time.Millisecond,
			RetryWaitMax: 10 * time.Second,
			Timeout:      30 * time.Second,
			UserAgent:    "wasm-bridge/1.0",
		},
		Logging:    LogConfig{Level: "info"},
		Loop:       LoopConfig{RegexpTimeout: time.Second},
		Entrypoint: "$invokeMain",
	}
	if diff := cmp.Diff(want, *cfg); diff != "" {
		t.Errorf("defaults (-want +got):\n%s", diff)
	}
}

func TestLoadEnvironmentAndFile(t *testing.T) {
	t.Setenv("WASMBRIDGE_FETCH_RETRY_MAX", "7")
	t.Setenv("WASMBRIDGE_LOGGING_LEVEL", "debug")
	t.Setenv("WASMBRIDGE_ENGINE_MEMORY_LIMIT_PAGES", "256")

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	file := strings.Join([]string{
		"logging:",
		"  level: warn",
		"  development: true",
		"loop:",
		"  disable_network: true",
		"entrypoint: main",
	}, "\n")
	if err := os.WriteFile(path, []byte(file), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	got := []any{cfg.Fetch.RetryMax, cfg.Engine.MemoryLimitPages, cfg.Logging.Level, cfg.Logging.Development, cfg.Loop.DisableNetwork, cfg.Entrypoint}
	want := []any{7, uint32(256), "warn", true, true, "main"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged config (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"bad env number", map[string]string{"WASMBRIDGE_FETCH_RETRY_MAX": "many"}, ""},
		{"bad level", map[string]string{"WASMBRIDGE_LOGGING_LEVEL": "loud"}, ""},
		{"inverted waits", map[string]string{"WASMBRIDGE_FETCH_RETRY_WAIT_MIN": "1m"}, ""},
		{"bad yaml", nil, "logging: [\n"},
		{"empty entrypoint", nil, "entrypoint: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = filepath.Join(t.TempDir(), "c.yaml")
				if err := os.WriteFile(path, []byte(tt.file), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			_, err := Load(path)
			var be *bridgeerrors.Error
			if !errors.As(err, &be) || be.Phase != bridgeerrors.PhaseConfig {
				t.Errorf("err = %v, want config error", err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestConversions(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Loop.RunTimeout = time.Second
	cfg.Loop.DisableNetwork = true

	if _, err := cfg.Logger(); err != nil {
		t.Fatal(err)
	}
	topts := cfg.Transport(nil)
	if topts.RetryMax != 3 || topts.UserAgent != "wasm-bridge/1.0" {
		t.Errorf("transport options = %+v", topts)
	}

	rc := cfg.Runtime(transport.NewClient(topts), nil)
	if rc.Capabilities.Client != nil {
		t.Error("fetch client should be dropped when the network is disabled")
	}
	if !rc.Engine.CloseOnContextDone || rc.Entrypoint != "$invokeMain" || rc.MaxModuleSize != 256<<20 {
		t.Errorf("runtime config = %+v", rc)
	}
}
