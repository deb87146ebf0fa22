package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const defaultExternalDuration = 30 * time.Second

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := &Config{
		Host:           "127.0.0.1",
		Port:           8080,
		Clients:        []int{10},
		MessageLength:  512,
		Messages:       100,
		Timeout:        10 * time.Second,
		DialTimeout:    5 * time.Second,
		Arrival:        ArrivalConfig{Model: ArrivalModelUniform},
		StartupTimeout: 10 * time.Second,
		WarmUp:         time.Second,
		StopGrace:      5 * time.Second,
		Mode:           ModeInProcess,
		BenchCommand:   []string{"cargo", "run", "--release", "--"},
		BenchDir:       "rust_echo_bench",
		LogLevel:       "info",
		Tracing:        TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		ConfigFile:     configPath,
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	_, messagesInFile := lookupSetting(settings, "messages")
	messagesExplicit := messagesInFile || flagSet.Changed("messages")
	if cfg.Duration > 0 && !messagesExplicit {
		cfg.Messages = 0
	}
	if cfg.Mode == ModeExternal && cfg.Duration == 0 {
		cfg.Duration = defaultExternalDuration
	}
	if len(cfg.Servers) == 0 && len(cfg.Targets) == 0 {
		cfg.Servers = []string{"coroutine"}
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "servers", "server_type", "server-type"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("servers: %w", err)
		}
		cfg.Servers = normalizeNames(val)
	}

	if raw, ok := lookupSetting(settings, "targets"); ok {
		targets, err := parseTargets(raw)
		if err != nil {
			return fmt.Errorf("targets: %w", err)
		}
		cfg.Targets = targets
	}

	if raw, ok := lookupSetting(settings, "host"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("host: %w", err)
		}
		cfg.Host = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Port = val
	}

	if raw, ok := lookupSetting(settings, "clients"); ok {
		val, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("clients: %w", err)
		}
		cfg.Clients = val
	}

	if raw, ok := lookupSetting(settings, "messagelength", "message_length", "message-length"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("message_length: %w", err)
		}
		cfg.MessageLength = val
	}

	if raw, ok := lookupSetting(settings, "messages"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("messages: %w", err)
		}
		cfg.Messages = val
	}

	durations := []struct {
		keys []string
		dst  *time.Duration
	}{
		{[]string{"duration"}, &cfg.Duration},
		{[]string{"timeout"}, &cfg.Timeout},
		{[]string{"dialtimeout", "dial_timeout", "dial-timeout"}, &cfg.DialTimeout},
		{[]string{"startuptimeout", "startup_timeout", "startup-timeout"}, &cfg.StartupTimeout},
		{[]string{"warmup", "warm_up", "warm-up"}, &cfg.WarmUp},
		{[]string{"stopgrace", "stop_grace", "stop-grace"}, &cfg.StopGrace},
		{[]string{"cooldown"}, &cfg.Cooldown},
	}
	for _, d := range durations {
		if raw, ok := lookupSetting(settings, d.keys...); ok {
			dur, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.keys[len(d.keys)/2], err)
			}
			*d.dst = dur
		}
	}

	if raw, ok := lookupSetting(settings, "startrate", "start_rate", "start-rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("start_rate: %w", err)
		}
		cfg.StartRate = val
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	} else if raw, ok := lookupSetting(settings, "arrivalmodel", "arrival_model", "arrival-model"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrivalModel: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	}

	if raw, ok := lookupSetting(settings, "lockdir", "lock_dir", "lock-dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("lock_dir: %w", err)
		}
		cfg.LockDir = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "mode"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("mode: %w", err)
		}
		cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "benchcommand", "bench_command", "bench-command"); ok {
		val, err := asCommand(raw)
		if err != nil {
			return fmt.Errorf("bench_command: %w", err)
		}
		cfg.BenchCommand = val
	}

	if raw, ok := lookupSetting(settings, "benchdir", "bench_dir", "bench-dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("bench_dir: %w", err)
		}
		cfg.BenchDir = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "htmloutput", "html_output", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("htmlOutput: %w", err)
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}

	if raw, ok := lookupSetting(settings, "logerrors", "log_errors", "log-errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("logErrors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tc, err := parseTracingConfig(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tc
	}

	return nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	if value == nil {
		return ArrivalConfig{}, nil
	}
	switch v := value.(type) {
	case string:
		model := strings.ToLower(strings.TrimSpace(v))
		if model == "" {
			return ArrivalConfig{}, nil
		}
		return ArrivalConfig{Model: ArrivalModel(model)}, nil
	default:
		entry, err := toStringKeyMap(value)
		if err != nil {
			return ArrivalConfig{}, err
		}
		if raw, ok := lookupSetting(entry, "model"); ok {
			val, err := asString(raw)
			if err != nil {
				return ArrivalConfig{}, fmt.Errorf("model: %w", err)
			}
			return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(val)))}, nil
		}
		return ArrivalConfig{}, fmt.Errorf("model field is required")
	}
}

func parseTargets(value interface{}) ([]TargetConfig, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	targets := make([]TargetConfig, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		tc, err := buildTarget(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		targets = append(targets, tc)
	}
	return targets, nil
}

func buildTarget(settings map[string]interface{}) (TargetConfig, error) {
	var tc TargetConfig
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TargetConfig{}, fmt.Errorf("name: %w", err)
		}
		tc.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "command"); ok {
		val, err := asCommand(raw)
		if err != nil {
			return TargetConfig{}, fmt.Errorf("command: %w", err)
		}
		tc.Command = val
	}
	if raw, ok := lookupSetting(settings, "dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return TargetConfig{}, fmt.Errorf("dir: %w", err)
		}
		tc.Dir = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "address"); ok {
		val, err := asString(raw)
		if err != nil {
			return TargetConfig{}, fmt.Errorf("address: %w", err)
		}
		tc.Address = strings.TrimSpace(val)
	}
	return tc, nil
}

func parseTracingConfig(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tc := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = strings.TrimSpace(val)
	}
	return tc, nil
}
