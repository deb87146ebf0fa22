package suite

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/echobench/internal/benchtool"
	"github.com/torosent/echobench/internal/loadgen"
	"github.com/torosent/echobench/internal/metrics"
	"github.com/torosent/echobench/internal/session"
	"github.com/torosent/echobench/internal/tracing"
)

// LoadDriver produces the metrics of one cell. A *metrics.DegenerateRunError
// marks a run that finished but produced no usable throughput; any other
// error means the load itself failed.
type LoadDriver interface {
	Drive(ctx context.Context, address string, concurrency int) (metrics.RunMetrics, error)
}

// InProcessDriver runs the echo clients inside this process.
type InProcessDriver struct {
	Generator *loadgen.Generator
	Config    loadgen.RunConfig // Concurrency is replaced per cell
}

func (d *InProcessDriver) Drive(ctx context.Context, address string, concurrency int) (metrics.RunMetrics, error) {
	cfg := d.Config
	cfg.Concurrency = concurrency
	results, err := d.Generator.Run(ctx, cfg, address)
	if err != nil {
		return metrics.RunMetrics{}, err
	}
	return metrics.Aggregate(results)
}

// ExternalDriver delegates load to an external benchmark tool.
type ExternalDriver struct {
	Tool     *benchtool.Tool
	Duration time.Duration
	Length   int
}

func (d *ExternalDriver) Drive(ctx context.Context, address string, concurrency int) (metrics.RunMetrics, error) {
	res, err := d.Tool.Run(ctx, benchtool.Params{
		Address:  address,
		Clients:  concurrency,
		Duration: d.Duration,
		Length:   d.Length,
	})
	if err != nil {
		return metrics.RunMetrics{}, err
	}
	return externalMetrics(res, concurrency, d.Duration)
}

// externalMetrics maps the tool summary onto RunMetrics. Throughput is the
// tool's own figure; elapsed time is the configured duration.
func externalMetrics(res benchtool.Result, concurrency int, duration time.Duration) (metrics.RunMetrics, error) {
	m := metrics.RunMetrics{
		Sessions:       concurrency,
		TotalSuccesses: res.Responses,
		Elapsed:        duration,
		ElapsedMs:      float64(duration) / float64(time.Millisecond),
		Throughput:     float64(res.RequestsPerSecond),
	}
	if duration <= 0 || res.Responses <= 0 {
		return m, &metrics.DegenerateRunError{Sessions: concurrency, Successes: res.Responses, Elapsed: duration}
	}
	m.MeanLatencyMs = duration.Seconds() / float64(res.Responses) * 1000
	return m, nil
}

// TracedSession wraps next so every session gets its own client span,
// parented to the cell span carried by ctx.
func TracedSession(tracer trace.Tracer, next loadgen.SessionFunc) loadgen.SessionFunc {
	if next == nil {
		next = session.Run
	}
	return func(ctx context.Context, opt session.Options) session.Result {
		ctx, span := tracing.StartSessionSpan(ctx, tracer, opt.Address)
		res := next(ctx, opt)
		tracing.EndSpan(span, res.Err,
			attribute.Int64("echobench.successes", res.Successes),
			attribute.Int64("echobench.mismatches", res.Mismatches),
			attribute.Int64("echobench.elapsed_us", res.Elapsed.Microseconds()),
		)
		return res
	}
}

// FailureLogger returns a result hook that logs every failed session.
func FailureLogger(logger *slog.Logger) func(session.Result) {
	return func(res session.Result) {
		if !res.Failed() {
			return
		}
		logger.Warn("client session failed",
			slog.String("kind", metrics.FailureLabel(res.Err)),
			slog.Int64("successes", res.Successes),
			slog.Duration("elapsed", res.Elapsed),
			slog.String("error", res.Err.Error()),
		)
	}
}
