package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	ModeInProcess Mode = "inprocess"
	ModeExternal  Mode = "external"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type Config struct {
	Servers        []string       `mapstructure:"servers"`
	Targets        []TargetConfig `mapstructure:"targets"`
	Host           string         `mapstructure:"host"`
	Port           int            `mapstructure:"port"`
	Clients        []int          `mapstructure:"clients"`
	MessageLength  int            `mapstructure:"message_length"`
	Messages       int            `mapstructure:"messages"`
	Duration       time.Duration  `mapstructure:"duration"`
	Timeout        time.Duration  `mapstructure:"timeout"`
	DialTimeout    time.Duration  `mapstructure:"dial_timeout"`
	StartRate      int            `mapstructure:"start_rate"`
	Arrival        ArrivalConfig  `mapstructure:"arrival"`
	StartupTimeout time.Duration  `mapstructure:"startup_timeout"`
	WarmUp         time.Duration  `mapstructure:"warmup"`
	StopGrace      time.Duration  `mapstructure:"stop_grace"`
	Cooldown       time.Duration  `mapstructure:"cooldown"`
	Mode           Mode           `mapstructure:"mode"`
	BenchCommand   []string       `mapstructure:"bench_command"`
	BenchDir       string         `mapstructure:"bench_dir"`
	JSONOutput     bool           `mapstructure:"json_output"`
	Dashboard      bool           `mapstructure:"dashboard"`
	Output         string         `mapstructure:"output"`
	HTMLOutput     string         `mapstructure:"html_output"`
	Thresholds     []string       `mapstructure:"thresholds"`
	LogLevel       string         `mapstructure:"log_level"`
	LogErrors      bool           `mapstructure:"log_errors"`
	LockDir        string         `mapstructure:"lock_dir"`
	Tracing        TracingConfig  `mapstructure:"tracing"`
	ConfigFile     string         `mapstructure:"-"`
}

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// TargetConfig describes a server under test. Command is an argv list run
// from Dir; Address defaults to host:port.
type TargetConfig struct {
	Name    string   `mapstructure:"name"`
	Command []string `mapstructure:"command"`
	Dir     string   `mapstructure:"dir"`
	Address string   `mapstructure:"address"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
}

// Enabled reports whether an exporter endpoint is configured, either
// directly or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// builtinServers are the echo servers shipped next to the harness.
var builtinServers = map[string]TargetConfig{
	"coroutine": {Name: "coroutine_echo", Command: []string{"./simple_tcp"}, Dir: filepath.Join("coroutine_echo", "build")},
	"epoll":     {Name: "epoll_echo", Command: []string{"./epoll_echo"}, Dir: filepath.Join("epoll_echo", "build")},
}

// BuiltinServerNames lists the accepted values of the servers option.
func BuiltinServerNames() []string {
	return []string{"coroutine", "epoll"}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ResolvedTargets expands built-in server names and fills default
// addresses, preserving declaration order: servers first, then targets.
func (c Config) ResolvedTargets() []TargetConfig {
	out := make([]TargetConfig, 0, len(c.Servers)+len(c.Targets))
	for _, name := range c.Servers {
		tc, ok := builtinServers[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		tc.Command = append([]string(nil), tc.Command...)
		tc.Address = c.Address()
		out = append(out, tc)
	}
	for _, tc := range c.Targets {
		if strings.TrimSpace(tc.Address) == "" {
			tc.Address = c.Address()
		}
		out = append(out, tc)
	}
	return out
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if len(c.Servers) == 0 && len(c.Targets) == 0 {
		issues = append(issues, "at least one server or target is required (use --help for usage information)")
	}
	for _, name := range c.Servers {
		if _, ok := builtinServers[strings.ToLower(strings.TrimSpace(name))]; !ok {
			issues = append(issues, fmt.Sprintf("servers: unknown server %q (want one of %s)", name, strings.Join(BuiltinServerNames(), ", ")))
		}
	}
	issues = append(issues, validateTargets(c.Targets)...)

	if strings.TrimSpace(c.Host) == "" {
		issues = append(issues, "host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		issues = append(issues, "port must be between 1 and 65535")
	}

	if len(c.Clients) == 0 {
		issues = append(issues, "clients must list at least one concurrency level")
	}
	for idx, n := range c.Clients {
		if n < 1 {
			issues = append(issues, fmt.Sprintf("clients[%d]: must be >= 1", idx))
		}
	}
	if c.MessageLength < 1 {
		issues = append(issues, "message_length must be >= 1")
	}
	if c.Messages < 0 {
		issues = append(issues, "messages must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.Messages == 0 && c.Duration == 0 {
		issues = append(issues, "either messages or duration must be set")
	}
	if c.StartRate < 0 {
		issues = append(issues, "start_rate must be >= 0")
	}

	durations := []struct {
		name string
		val  time.Duration
	}{
		{"timeout", c.Timeout},
		{"dial_timeout", c.DialTimeout},
		{"startup_timeout", c.StartupTimeout},
		{"warmup", c.WarmUp},
		{"stop_grace", c.StopGrace},
		{"cooldown", c.Cooldown},
	}
	for _, d := range durations {
		if d.val < 0 {
			issues = append(issues, fmt.Sprintf("%s must be >= 0", d.name))
		}
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)

	switch c.Mode {
	case ModeInProcess:
	case ModeExternal:
		if len(c.BenchCommand) == 0 {
			issues = append(issues, "bench_command is required in external mode")
		}
		if c.Duration <= 0 {
			issues = append(issues, "duration must be > 0 in external mode")
		}
	default:
		issues = append(issues, fmt.Sprintf("mode: must be 'inprocess' or 'external', got %q", c.Mode))
	}

	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json_output cannot be combined")
	}

	if c.Output != "" {
		switch strings.ToLower(filepath.Ext(c.Output)) {
		case ".json", ".yaml", ".yml":
		default:
			issues = append(issues, fmt.Sprintf("output: unsupported file extension %q (use .json, .yaml or .yml)", filepath.Ext(c.Output)))
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log_level: must be debug, info, warn or error, got %q", c.LogLevel))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	for _, n := range c.Clients {
		if n > 5000 {
			fmt.Fprintf(os.Stderr, "WARNING: %d concurrent clients may exceed the open file limit; check ulimit -n.\n", n)
			break
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateTargets(targets []TargetConfig) []string {
	var issues []string
	seenNames := map[string]int{}
	for idx, tc := range targets {
		name := strings.TrimSpace(tc.Name)
		if name == "" {
			issues = append(issues, fmt.Sprintf("targets[%d]: name is required", idx))
		} else {
			key := strings.ToLower(name)
			if prev, ok := seenNames[key]; ok {
				issues = append(issues, fmt.Sprintf("targets[%d]: duplicate name also defined at index %d", idx, prev))
			} else {
				seenNames[key] = idx
			}
		}
		if len(tc.Command) == 0 {
			issues = append(issues, fmt.Sprintf("targets[%d]: command is required", idx))
		}
		if addr := strings.TrimSpace(tc.Address); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				issues = append(issues, fmt.Sprintf("targets[%d]: address %q is not host:port", idx, addr))
			}
		}
	}
	return issues
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateTracingConfig(tc TracingConfig) []string {
	var issues []string
	switch strings.ToLower(tc.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", tc.Protocol))
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", tc.SampleRate))
	}
	return issues
}
