package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "echobench",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Targets
	flags.StringSliceP("servers", "s", nil, "Built-in echo servers to benchmark (coroutine, epoll)")
	flags.String("server-type", "", "Single built-in echo server to benchmark (coroutine or epoll)")
	flags.String("host", "127.0.0.1", "Host the echo servers listen on")
	flags.IntP("port", "p", 8080, "Port the echo servers listen on")

	// Workload
	flags.IntSliceP("clients", "c", []int{10}, "Concurrency levels to run, one cell per level (e.g. 10,50,100)")
	flags.IntP("message-length", "l", 512, "Payload size in bytes")
	flags.IntP("messages", "n", 100, "Exchanges per client (0 means bounded by --duration)")
	flags.DurationP("duration", "d", 0, "Run each cell for this long instead of a fixed message count")
	flags.Duration("timeout", 10*time.Second, "Per read/write deadline")
	flags.Duration("dial-timeout", 5*time.Second, "Connect timeout per client")
	flags.Int("start-rate", 0, "Client sessions started per second (0 starts all at once)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model used when pacing session starts (uniform or poisson)")

	// Target lifecycle
	flags.Duration("startup-timeout", 10*time.Second, "How long to probe a started server before giving up (0 uses a fixed --warmup)")
	flags.Duration("warmup", time.Second, "Fixed wait after start when probing is disabled")
	flags.Duration("stop-grace", 5*time.Second, "Wait after SIGTERM before killing a server")
	flags.Duration("cooldown", 0, "Pause between cells")
	flags.String("lock-dir", "", "Directory for per-address lock files (default: system temp dir)")

	// Load source
	flags.String("mode", string(ModeInProcess), "Load source: 'inprocess' or 'external'")
	flags.String("bench-command", "", "External benchmark command (external mode)")
	flags.String("bench-dir", "", "Working directory of the external benchmark command")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("dashboard", false, "Show a live terminal dashboard while the suite runs")
	flags.StringP("output", "o", "", "Save results to a .json or .yaml file")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.StringSlice("threshold", nil, "Assertions checked against every cell (repeatable, e.g. 'latency:p99 < 5')")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("log-errors", false, "Log each failed client session to stderr")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of cells traced (0.0 to 1.0)")
	flags.String("tracing-service-name", "", "Service name reported with spans")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("servers") {
		val, err := fs.GetStringSlice("servers")
		if err != nil {
			return err
		}
		cfg.Servers = normalizeNames(val)
	}
	if fs.Changed("server-type") {
		val, err := fs.GetString("server-type")
		if err != nil {
			return err
		}
		cfg.Servers = normalizeNames([]string{val})
	}
	if fs.Changed("host") {
		val, err := fs.GetString("host")
		if err != nil {
			return err
		}
		cfg.Host = strings.TrimSpace(val)
	}
	if fs.Changed("port") {
		val, err := fs.GetInt("port")
		if err != nil {
			return err
		}
		cfg.Port = val
	}
	if fs.Changed("clients") {
		val, err := fs.GetIntSlice("clients")
		if err != nil {
			return err
		}
		cfg.Clients = val
	}
	if fs.Changed("message-length") {
		val, err := fs.GetInt("message-length")
		if err != nil {
			return err
		}
		cfg.MessageLength = val
	}
	if fs.Changed("messages") {
		val, err := fs.GetInt("messages")
		if err != nil {
			return err
		}
		cfg.Messages = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("dial-timeout") {
		val, err := fs.GetDuration("dial-timeout")
		if err != nil {
			return err
		}
		cfg.DialTimeout = val
	}
	if fs.Changed("start-rate") {
		val, err := fs.GetInt("start-rate")
		if err != nil {
			return err
		}
		cfg.StartRate = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("startup-timeout") {
		val, err := fs.GetDuration("startup-timeout")
		if err != nil {
			return err
		}
		cfg.StartupTimeout = val
	}
	if fs.Changed("warmup") {
		val, err := fs.GetDuration("warmup")
		if err != nil {
			return err
		}
		cfg.WarmUp = val
	}
	if fs.Changed("stop-grace") {
		val, err := fs.GetDuration("stop-grace")
		if err != nil {
			return err
		}
		cfg.StopGrace = val
	}
	if fs.Changed("cooldown") {
		val, err := fs.GetDuration("cooldown")
		if err != nil {
			return err
		}
		cfg.Cooldown = val
	}
	if fs.Changed("lock-dir") {
		val, err := fs.GetString("lock-dir")
		if err != nil {
			return err
		}
		cfg.LockDir = strings.TrimSpace(val)
	}
	if fs.Changed("mode") {
		val, err := fs.GetString("mode")
		if err != nil {
			return err
		}
		cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("bench-command") {
		val, err := fs.GetString("bench-command")
		if err != nil {
			return err
		}
		cfg.BenchCommand = strings.Fields(val)
	}
	if fs.Changed("bench-dir") {
		val, err := fs.GetString("bench-dir")
		if err != nil {
			return err
		}
		cfg.BenchDir = strings.TrimSpace(val)
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = strings.TrimSpace(val)
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}

	return nil
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
