package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/torosent/echobench/internal/benchtool"
	"github.com/torosent/echobench/internal/config"
	"github.com/torosent/echobench/internal/dashboard"
	"github.com/torosent/echobench/internal/loadgen"
	"github.com/torosent/echobench/internal/output"
	"github.com/torosent/echobench/internal/report"
	"github.com/torosent/echobench/internal/suite"
	"github.com/torosent/echobench/internal/target"
	"github.com/torosent/echobench/internal/threshold"
	"github.com/torosent/echobench/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// ErrThresholdsFailed is returned when at least one threshold did not hold.
var ErrThresholdsFailed = errors.New("thresholds failed")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logWriter := stderr
	if cfg.Dashboard {
		// The dashboard owns the terminal; failures still reach the report.
		logWriter = io.Discard
	}
	logger := newLogger(cfg.LogLevel, logWriter)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	targets := toTargetSpecs(cfg.ResolvedTargets())
	tp, err := tracing.Init(ctx, cfg.Tracing, runAttributes(cfg, targets))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	var targetOutput io.Writer = io.Discard
	if strings.EqualFold(cfg.LogLevel, "debug") && !cfg.Dashboard {
		targetOutput = stderr
	}
	manager := target.New(target.Options{
		WarmUp:       cfg.WarmUp,
		ProbeTimeout: cfg.StartupTimeout,
		GracePeriod:  cfg.StopGrace,
		Output:       targetOutput,
		Logger:       logger,
	})

	opts := suite.Options{
		Targets:  targets,
		Levels:   cfg.Clients,
		Launcher: suite.ManagerLauncher{Manager: manager},
		Workload: workloadFromConfig(cfg),
		Cooldown: cfg.Cooldown,
		LockDir:  cfg.LockDir,
		Tracer:   tp.SuiteTracer(),
		Logger:   logger,
	}

	var (
		progress *output.ProgressReporter
		source   dashboard.ProgressSource
	)
	switch cfg.Mode {
	case config.ModeExternal:
		opts.Driver = &suite.ExternalDriver{
			Tool:     &benchtool.Tool{Command: cfg.BenchCommand, Dir: cfg.BenchDir, Logger: logger},
			Duration: cfg.Duration,
			Length:   cfg.MessageLength,
		}
	default:
		genOpts := loadgen.Options{
			StartRate:    cfg.StartRate,
			ArrivalModel: toLoadgenArrivalModel(cfg.Arrival.Model),
			Session:      suite.TracedSession(tp.SessionTracer(), nil),
		}
		if cfg.LogErrors {
			genOpts.OnResult = suite.FailureLogger(logger)
		}
		gen := loadgen.New(genOpts)
		opts.Driver = &suite.InProcessDriver{
			Generator: gen,
			Config: loadgen.RunConfig{
				PayloadSize: cfg.MessageLength,
				Messages:    cfg.Messages,
				Duration:    cfg.Duration,
				Timeout:     cfg.Timeout,
				DialTimeout: cfg.DialTimeout,
			},
		}
		source = gen
		if !cfg.JSONOutput && !cfg.Dashboard {
			progress = output.NewProgressReporter(gen, progressInterval, stdout)
			opts.OnCellStart = progress.SetCell
		}
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(source, runInfo(cfg, opts.Targets), cancel)
		if err != nil {
			return err
		}
		opts.OnCellStart = dash.SetCell
		opts.OnCellDone = dash.CellDone
	}

	runner, err := suite.New(opts)
	if err != nil {
		if dash != nil {
			dash.Stop()
		}
		return err
	}

	if progress != nil {
		progress.Start()
	}
	if dash != nil {
		dash.Start()
	}
	rep, runErr := runner.Run(ctx)
	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
	}
	if rep == nil {
		return runErr
	}

	thresholdResults := threshold.NewEvaluator(thresholds).EvaluateReport(rep)
	if err := writeResults(cfg, rep, thresholdResults, stdout); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if len(thresholdResults) > 0 {
		printThresholdResults(stdout, thresholdResults)
		if !threshold.AllPassed(thresholdResults) {
			return ErrThresholdsFailed
		}
	}
	return nil
}

func writeResults(cfg *config.Config, rep *report.Report, thresholdResults []threshold.CellResult, stdout io.Writer) error {
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, rep); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, rep)
	}

	if cfg.Output != "" {
		if err := output.SaveResults(cfg.Output, rep); err != nil {
			return err
		}
	}

	if cfg.HTMLOutput != "" {
		f, err := os.Create(cfg.HTMLOutput)
		if err != nil {
			return fmt.Errorf("create html report: %w", err)
		}
		if err := output.GenerateHTMLReport(f, rep, thresholdResults); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write html report: %w", err)
		}
	}
	return nil
}

func printThresholdResults(w io.Writer, cells []threshold.CellResult) {
	fmt.Fprintln(w, "\nThresholds:")
	for _, cell := range cells {
		for _, r := range cell.Results {
			fmt.Fprintf(w, "  %s @ %d: %s\n", cell.Target, cell.Concurrency, r.Message)
		}
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func toTargetSpecs(targets []config.TargetConfig) []target.Spec {
	specs := make([]target.Spec, len(targets))
	for i, tc := range targets {
		specs[i] = target.Spec{
			Name:    tc.Name,
			Command: tc.Command,
			Dir:     tc.Dir,
			Address: tc.Address,
		}
	}
	return specs
}

func toLoadgenArrivalModel(model config.ArrivalModel) loadgen.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return loadgen.ArrivalModelPoisson
	default:
		return loadgen.ArrivalModelUniform
	}
}

func targetNames(targets []target.Spec) []string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name
	}
	return names
}

func runInfo(cfg *config.Config, targets []target.Spec) dashboard.RunInfo {
	return dashboard.RunInfo{
		Mode:          string(cfg.Mode),
		Targets:       targetNames(targets),
		Levels:        cfg.Clients,
		MessageLength: cfg.MessageLength,
		Messages:      cfg.Messages,
		Duration:      cfg.Duration,
		ConfigFile:    cfg.ConfigFile,
	}
}

func runAttributes(cfg *config.Config, targets []target.Spec) tracing.RunAttributes {
	return tracing.RunAttributes{
		Mode:          string(cfg.Mode),
		MessageLength: cfg.MessageLength,
		Targets:       targetNames(targets),
		Levels:        cfg.Clients,
	}
}

func workloadFromConfig(cfg *config.Config) report.Workload {
	return report.Workload{
		Mode:          string(cfg.Mode),
		MessageLength: cfg.MessageLength,
		Messages:      cfg.Messages,
		Duration:      cfg.Duration,
		Timeout:       cfg.Timeout,
	}
}
