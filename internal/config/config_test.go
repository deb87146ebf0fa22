package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/torosent/echobench/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	loader := config.NewLoader()

	cfg, err := loader.Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(cfg.Servers, []string{"coroutine"}) {
		t.Errorf("Servers = %v, want [coroutine]", cfg.Servers)
	}
	if cfg.Address() != "127.0.0.1:8080" {
		t.Errorf("Address() = %q, want 127.0.0.1:8080", cfg.Address())
	}
	if !reflect.DeepEqual(cfg.Clients, []int{10}) {
		t.Errorf("Clients = %v, want [10]", cfg.Clients)
	}
	if cfg.MessageLength != 512 {
		t.Errorf("MessageLength = %d, want 512", cfg.MessageLength)
	}
	if cfg.Messages != 100 {
		t.Errorf("Messages = %d, want 100", cfg.Messages)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %s, want 10s", cfg.Timeout)
	}
	if cfg.Mode != config.ModeInProcess {
		t.Errorf("Mode = %q, want inprocess", cfg.Mode)
	}
	if cfg.StartupTimeout != 10*time.Second || cfg.WarmUp != time.Second || cfg.StopGrace != 5*time.Second {
		t.Errorf("lifecycle defaults = %s/%s/%s", cfg.StartupTimeout, cfg.WarmUp, cfg.StopGrace)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suite.yaml")
	if err := os.WriteFile(path, []byte(`
servers: [coroutine, epoll]
host: 127.0.0.1
port: 9090
clients: [1000, 2000, 5000]
message_length: 256
duration: 30s
cooldown: 2s
output: results.yaml
thresholds:
  - "throughput:min > 1000"
tracing:
  endpoint: localhost:4318
  protocol: http
  insecure: true
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(cfg.Servers, []string{"coroutine", "epoll"}) {
		t.Errorf("Servers = %v", cfg.Servers)
	}
	if !reflect.DeepEqual(cfg.Clients, []int{1000, 2000, 5000}) {
		t.Errorf("Clients = %v", cfg.Clients)
	}
	if cfg.Duration != 30*time.Second {
		t.Errorf("Duration = %s, want 30s", cfg.Duration)
	}
	if cfg.Messages != 0 {
		t.Errorf("Messages = %d, want 0 when only duration is configured", cfg.Messages)
	}
	if cfg.Cooldown != 2*time.Second {
		t.Errorf("Cooldown = %s, want 2s", cfg.Cooldown)
	}
	if cfg.Output != "results.yaml" {
		t.Errorf("Output = %q", cfg.Output)
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if cfg.Tracing.Protocol != "http" || !cfg.Tracing.Insecure || cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoadConfigFileJSONWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suite.json")
	if err := os.WriteFile(path, []byte(`{
		"targets": [
			{"name": "custom", "command": ["./echo", "-p", "7000"], "dir": "build", "address": "127.0.0.1:7000"}
		],
		"clients": [10, 50],
		"messages": 20
	}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--clients", "5", "--duration", "1s"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Servers) != 0 {
		t.Errorf("Servers = %v, want none when custom targets are configured", cfg.Servers)
	}
	if !reflect.DeepEqual(cfg.Clients, []int{5}) {
		t.Errorf("Clients = %v, want flag override [5]", cfg.Clients)
	}
	if cfg.Messages != 20 {
		t.Errorf("Messages = %d, want explicit 20 kept", cfg.Messages)
	}
	targets := cfg.ResolvedTargets()
	if len(targets) != 1 || targets[0].Address != "127.0.0.1:7000" || targets[0].Dir != "build" {
		t.Errorf("ResolvedTargets() = %+v", targets)
	}
}

func TestLoadExternalModeDefaultsDuration(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--mode", "external"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Duration != 30*time.Second {
		t.Errorf("Duration = %s, want 30s", cfg.Duration)
	}
	if strings.Join(cfg.BenchCommand, " ") != "cargo run --release --" || cfg.BenchDir != "rust_echo_bench" {
		t.Errorf("bench defaults = %q in %q", cfg.BenchCommand, cfg.BenchDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("Load() expected error for missing config file")
	}
}

func TestResolvedTargetsBuiltins(t *testing.T) {
	cfg := config.Config{Servers: []string{"coroutine", "epoll"}, Host: "127.0.0.1", Port: 8080}
	targets := cfg.ResolvedTargets()
	if len(targets) != 2 {
		t.Fatalf("len = %d, want 2", len(targets))
	}
	co := targets[0]
	if co.Name != "coroutine_echo" || co.Command[0] != "./simple_tcp" || co.Dir != filepath.Join("coroutine_echo", "build") {
		t.Errorf("coroutine target = %+v", co)
	}
	if targets[1].Command[0] != "./epoll_echo" || targets[1].Address != "127.0.0.1:8080" {
		t.Errorf("epoll target = %+v", targets[1])
	}
}

func validConfig() config.Config {
	return config.Config{
		Servers:       []string{"coroutine"},
		Host:          "127.0.0.1",
		Port:          8080,
		Clients:       []int{10},
		MessageLength: 512,
		Messages:      100,
		Mode:          config.ModeInProcess,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"no targets", func(c *config.Config) { c.Servers = nil }, "at least one server or target"},
		{"unknown server", func(c *config.Config) { c.Servers = []string{"iouring"} }, "unknown server"},
		{"empty clients", func(c *config.Config) { c.Clients = nil }, "clients must list"},
		{"zero clients", func(c *config.Config) { c.Clients = []int{10, 0} }, "clients[1]"},
		{"zero payload", func(c *config.Config) { c.MessageLength = 0 }, "message_length"},
		{"no bound", func(c *config.Config) { c.Messages = 0 }, "either messages or duration"},
		{"bad port", func(c *config.Config) { c.Port = 70000 }, "port"},
		{"negative timeout", func(c *config.Config) { c.Timeout = -time.Second }, "timeout must be >= 0"},
		{"bad arrival", func(c *config.Config) { c.Arrival.Model = "bursty" }, "arrival model"},
		{"bad mode", func(c *config.Config) { c.Mode = "cluster" }, "mode"},
		{"external without command", func(c *config.Config) {
			c.Mode = config.ModeExternal
			c.Duration = time.Second
		}, "bench_command"},
		{"bad output", func(c *config.Config) { c.Output = "results.csv" }, "output"},
		{"dashboard with json", func(c *config.Config) {
			c.Dashboard = true
			c.JSONOutput = true
		}, "dashboard and json_output"},
		{"bad log level", func(c *config.Config) { c.LogLevel = "trace" }, "log_level"},
		{"bad sample rate", func(c *config.Config) { c.Tracing.SampleRate = 2 }, "sample_rate"},
		{"target without command", func(c *config.Config) {
			c.Targets = []config.TargetConfig{{Name: "x"}}
		}, "command is required"},
		{"duplicate target", func(c *config.Config) {
			c.Targets = []config.TargetConfig{
				{Name: "x", Command: []string{"./a"}},
				{Name: "X", Command: []string{"./b"}},
			}
		}, "duplicate name"},
		{"bad target address", func(c *config.Config) {
			c.Targets = []config.TargetConfig{{Name: "x", Command: []string{"./a"}, Address: "nope"}}
		}, "host:port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want it to mention %q", err.Error(), tt.want)
			}
			if len(verr.Issues()) == 0 {
				t.Errorf("Issues() is empty")
			}
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
