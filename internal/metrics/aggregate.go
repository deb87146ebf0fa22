package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/torosent/echobench/internal/session"
)

// RunMetrics is the reduction of every session result of one cell.
type RunMetrics struct {
	Sessions       int           `json:"sessions" yaml:"sessions"`
	FailedSessions int           `json:"failed_sessions" yaml:"failed_sessions"`
	TotalSuccesses int64         `json:"total_successes" yaml:"total_successes"`
	Mismatches     int64         `json:"mismatches" yaml:"mismatches"`
	BytesSent      int64         `json:"bytes_sent" yaml:"bytes_sent"`
	BytesReceived  int64         `json:"bytes_received" yaml:"bytes_received"`
	Elapsed        time.Duration `json:"-" yaml:"-"`
	Throughput     float64       `json:"throughput" yaml:"throughput"`

	// JSON-friendly millisecond fields.
	ElapsedMs     float64        `json:"elapsed_ms" yaml:"elapsed_ms"`
	MeanLatencyMs float64        `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64        `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64        `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs  float64        `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	MaxLatencyMs  float64        `json:"max_latency_ms" yaml:"max_latency_ms"`
	Failures      map[string]int `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// FailureRate is the share of sessions that ended early.
func (m RunMetrics) FailureRate() float64 {
	if m.Sessions == 0 {
		return 0
	}
	return float64(m.FailedSessions) / float64(m.Sessions)
}

// DegenerateRunError reports a cell whose throughput is undefined.
type DegenerateRunError struct {
	Sessions  int
	Successes int64
	Elapsed   time.Duration
}

func (e *DegenerateRunError) Error() string {
	switch {
	case e.Sessions == 0:
		return "degenerate run: no session results"
	case e.Elapsed <= 0:
		return fmt.Sprintf("degenerate run: zero elapsed time across %d sessions", e.Sessions)
	default:
		return fmt.Sprintf("degenerate run: %d successful messages in %s across %d sessions", e.Successes, e.Elapsed, e.Sessions)
	}
}

// Aggregate reduces session results into run metrics. The total elapsed
// time is the slowest session's elapsed time, so throughput is measured
// against the full wall-clock span of the load. Results may arrive in any
// order. When throughput is undefined the partially filled metrics are
// returned together with a *DegenerateRunError.
func Aggregate(results []session.Result) (RunMetrics, error) {
	m := RunMetrics{Sessions: len(results)}
	if len(results) == 0 {
		return m, &DegenerateRunError{}
	}

	hist := session.NewLatencyHistogram(session.MaxTrackedLatency)
	failures := make(map[string]int)
	for _, res := range results {
		m.TotalSuccesses += res.Successes
		m.Mismatches += res.Mismatches
		m.BytesSent += res.BytesSent
		m.BytesReceived += res.BytesReceived
		if res.Elapsed > m.Elapsed {
			m.Elapsed = res.Elapsed
		}
		if res.Latencies != nil {
			hist.Merge(res.Latencies)
		}
		if res.Err != nil {
			m.FailedSessions++
			failures[FailureLabel(res.Err)]++
		}
	}
	if len(failures) > 0 {
		m.Failures = failures
	}
	m.ElapsedMs = float64(m.Elapsed) / float64(time.Millisecond)

	if hist.TotalCount() > 0 {
		m.P50LatencyMs = usToMs(hist.ValueAtQuantile(50))
		m.P90LatencyMs = usToMs(hist.ValueAtQuantile(90))
		m.P99LatencyMs = usToMs(hist.ValueAtQuantile(99))
		m.MaxLatencyMs = usToMs(hist.Max())
	}

	if m.Elapsed <= 0 || m.TotalSuccesses <= 0 {
		return m, &DegenerateRunError{
			Sessions:  m.Sessions,
			Successes: m.TotalSuccesses,
			Elapsed:   m.Elapsed,
		}
	}

	m.Throughput = float64(m.TotalSuccesses) / m.Elapsed.Seconds()
	m.MeanLatencyMs = m.Elapsed.Seconds() / float64(m.TotalSuccesses) * 1000
	return m, nil
}

// IsDegenerate reports whether err is a *DegenerateRunError.
func IsDegenerate(err error) bool {
	var degenerate *DegenerateRunError
	return errors.As(err, &degenerate)
}

func usToMs(us int64) float64 {
	return float64(us) / 1000
}
