// Package tracing provides OpenTelemetry initialization and span helpers for suite cells and client sessions.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/echobench/internal/config"
)

const (
	defaultServiceName = "echobench"

	// Instrumentation scopes of cell spans and session spans.
	SuiteScope   = "github.com/torosent/echobench/internal/suite"
	SessionScope = "github.com/torosent/echobench/internal/session"
)

// RunAttributes describe the suite being traced. They are placed on the
// resource, so every exported span carries them.
type RunAttributes struct {
	Mode          string
	MessageLength int
	Targets       []string
	Levels        []int
}

func (r RunAttributes) keyValues() []attribute.KeyValue {
	kvs := []attribute.KeyValue{
		attribute.String("echobench.mode", r.Mode),
		attribute.Int("echobench.message_length", r.MessageLength),
	}
	if len(r.Targets) > 0 {
		kvs = append(kvs, attribute.StringSlice("echobench.targets", r.Targets))
	}
	if len(r.Levels) > 0 {
		kvs = append(kvs, attribute.IntSlice("echobench.levels", r.Levels))
	}
	return kvs
}

// Provider owns the SDK TracerProvider and hands out per-scope tracers.
// The zero value and a nil *Provider are disabled and produce no-op spans.
type Provider struct {
	tp      *sdktrace.TracerProvider
	suite   trace.Tracer
	session trace.Tracer
}

// Init exports spans over OTLP when an endpoint is configured (directly or
// through OTEL_EXPORTER_OTLP_ENDPOINT) and returns a disabled provider
// otherwise.
func Init(ctx context.Context, cfg config.TracingConfig, run RunAttributes) (*Provider, error) {
	endpoint := resolveEndpoint(cfg)
	if endpoint == "" {
		return &Provider{}, nil
	}

	sampler, err := newSampler(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, resolveServiceName(cfg), run)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	return NewProvider(tp), nil
}

// NewProvider wraps an existing SDK provider.
func NewProvider(tp *sdktrace.TracerProvider) *Provider {
	if tp == nil {
		return &Provider{}
	}
	return &Provider{
		tp:      tp,
		suite:   tp.Tracer(SuiteScope),
		session: tp.Tracer(SessionScope),
	}
}

// SuiteTracer starts cell spans.
func (p *Provider) SuiteTracer() trace.Tracer {
	if p == nil || p.suite == nil {
		return noop.NewTracerProvider().Tracer(SuiteScope)
	}
	return p.suite
}

// SessionTracer starts one client span per echo session.
func (p *Provider) SessionTracer() trace.Tracer {
	if p == nil || p.session == nil {
		return noop.NewTracerProvider().Tracer(SessionScope)
	}
	return p.session
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// Shutdown flushes pending spans and shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func resolveEndpoint(cfg config.TracingConfig) string {
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		return endpoint
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

func resolveServiceName(cfg config.TracingConfig) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		return name
	}
	return defaultServiceName
}

func newResource(ctx context.Context, serviceName string, run RunAttributes) (*resource.Resource, error) {
	attrs := append([]attribute.KeyValue{semconv.ServiceName(serviceName)}, run.keyValues()...)
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// newSampler samples whole cells: sessions follow their cell's decision.
func newSampler(rate float64) (sdktrace.Sampler, error) {
	var root sdktrace.Sampler
	switch {
	case rate < 0 || rate > 1:
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", rate)
	case rate == 0:
		root = sdktrace.NeverSample()
	case rate == 1:
		root = sdktrace.AlwaysSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root), nil
}

func newExporter(ctx context.Context, cfg config.TracingConfig, endpoint string) (sdktrace.SpanExporter, error) {
	switch protocol := strings.ToLower(cfg.Protocol); protocol {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}
