package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/echobench/internal/metrics"
	"github.com/torosent/echobench/internal/report"
	"github.com/torosent/echobench/internal/target"
	"github.com/torosent/echobench/internal/tracing"
)

var (
	// ErrNoTargets is returned by New when the matrix has no targets.
	ErrNoTargets = errors.New("suite: no targets configured")
	// ErrNoLevels is returned by New when the matrix has no concurrency levels.
	ErrNoLevels = errors.New("suite: no concurrency levels configured")
	// ErrNoTargetStarted is returned with the report when every cell failed to launch.
	ErrNoTargetStarted = errors.New("suite: no target could be started")
)

// Options configure a Runner.
type Options struct {
	Targets  []target.Spec
	Levels   []int
	Launcher Launcher
	Driver   LoadDriver
	Workload report.Workload
	Cooldown time.Duration // pause between cells
	LockDir  string        // directory for per-address lock files (default os.TempDir)
	Tracer   trace.Tracer
	Logger   *slog.Logger

	OnCellStart func(target string, concurrency int)
	OnCellDone  func(report.Cell)
}

// Runner executes the comparison matrix sequentially.
type Runner struct {
	opt Options
}

// New validates the matrix. Construction errors are fatal for the suite.
func New(opt Options) (*Runner, error) {
	if len(opt.Targets) == 0 {
		return nil, ErrNoTargets
	}
	if len(opt.Levels) == 0 {
		return nil, ErrNoLevels
	}
	for _, lvl := range opt.Levels {
		if lvl < 1 {
			return nil, fmt.Errorf("suite: concurrency level must be >= 1, got %d", lvl)
		}
	}
	if opt.Launcher == nil {
		return nil, errors.New("suite: launcher is required")
	}
	if opt.Driver == nil {
		return nil, errors.New("suite: load driver is required")
	}
	if opt.Tracer == nil {
		opt.Tracer = noop.NewTracerProvider().Tracer("echobench")
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{opt: opt}, nil
}

// Run executes every (target, level) cell in declaration order and returns
// the report. Cell failures are recorded, not returned. When ctx is
// cancelled the matrix stops after the current cell and the partial report
// is returned with ctx.Err().
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	addresses := make([]string, 0, len(r.opt.Targets))
	for _, t := range r.opt.Targets {
		addresses = append(addresses, t.Address)
	}
	locks, err := acquireAddressLocks(r.opt.LockDir, addresses)
	if err != nil {
		return nil, err
	}
	defer locks.release()

	rep := report.New(r.opt.Workload)
	r.opt.Logger.InfoContext(ctx, "suite started",
		slog.String("run_id", rep.RunID),
		slog.Int("targets", len(r.opt.Targets)),
		slog.Any("levels", r.opt.Levels),
	)

	total := len(r.opt.Targets) * len(r.opt.Levels)
	done := 0
	for _, spec := range r.opt.Targets {
		for _, level := range r.opt.Levels {
			if err := ctx.Err(); err != nil {
				rep.Finish()
				return rep, err
			}
			r.runCell(ctx, rep, spec, level)
			done++
			if done < total && r.opt.Cooldown > 0 {
				if err := sleepCtx(ctx, r.opt.Cooldown); err != nil {
					rep.Finish()
					return rep, err
				}
			}
		}
	}
	rep.Finish()

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if rep.AllFailedAt(report.StageLaunch) {
		return rep, ErrNoTargetStarted
	}
	return rep, ctx.Err()
}

func (r *Runner) runCell(ctx context.Context, rep *report.Report, spec target.Spec, level int) {
	logger := r.opt.Logger.With(slog.String("target", spec.Name), slog.Int("clients", level))
	if r.opt.OnCellStart != nil {
		r.opt.OnCellStart(spec.Name, level)
	}

	ctx, span := tracing.StartCellSpan(ctx, r.opt.Tracer, spec.Name, level)
	m, stage, err := r.cell(ctx, logger, spec, level)
	if err != nil {
		logger.Error("cell failed", slog.String("stage", stage), slog.String("error", err.Error()))
		rep.AddFailure(spec.Name, level, stage, err)
		tracing.EndSpan(span, err, attribute.String("echobench.stage", stage))
	} else {
		logger.Info("cell finished",
			slog.Float64("throughput", m.Throughput),
			slog.Int64("successes", m.TotalSuccesses),
			slog.Int("failed_sessions", m.FailedSessions),
		)
		rep.AddMetrics(spec.Name, level, m)
		tracing.EndSpan(span, nil, attribute.Float64("echobench.throughput", m.Throughput))
	}

	if r.opt.OnCellDone != nil {
		cells := rep.Cells
		r.opt.OnCellDone(cells[len(cells)-1])
	}
}

// cell runs one launch/load/stop cycle. The target is stopped before
// cell returns whatever happened during load.
func (r *Runner) cell(ctx context.Context, logger *slog.Logger, spec target.Spec, level int) (metrics.RunMetrics, string, error) {
	proc, err := r.opt.Launcher.Launch(ctx, spec)
	if err != nil {
		return metrics.RunMetrics{}, report.StageLaunch, err
	}
	defer func() {
		if err := proc.Stop(context.Background()); err != nil {
			logger.Warn("failed to stop target", slog.String("error", err.Error()))
		}
	}()

	m, err := r.opt.Driver.Drive(ctx, spec.Address, level)
	if err != nil {
		if metrics.IsDegenerate(err) {
			return m, report.StageAggregate, err
		}
		return m, report.StageLoad, err
	}
	return m, "", nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
