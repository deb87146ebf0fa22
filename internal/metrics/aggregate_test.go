package metrics_test

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/torosent/echobench/internal/metrics"
	"github.com/torosent/echobench/internal/session"
)

func result(successes int64, elapsed time.Duration, err error) session.Result {
	h := session.NewLatencyHistogram(10 * time.Second)
	if successes > 0 {
		per := elapsed.Microseconds() / successes
		if per < 1 {
			per = 1
		}
		for i := int64(0); i < successes; i++ {
			_ = h.RecordValue(per)
		}
	}
	return session.Result{Successes: successes, Elapsed: elapsed, Latencies: h, Err: err}
}

func TestAggregateSumsAndTakesMaxElapsed(t *testing.T) {
	results := []session.Result{
		result(100, 1*time.Second, nil),
		result(100, 2*time.Second, nil),
		result(50, 500*time.Millisecond, nil),
	}

	m, err := metrics.Aggregate(results)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if m.TotalSuccesses != 250 {
		t.Errorf("expected 250 successes, got %d", m.TotalSuccesses)
	}
	if m.Elapsed != 2*time.Second {
		t.Errorf("expected elapsed 2s, got %s", m.Elapsed)
	}
	if m.Throughput != 125 {
		t.Errorf("expected throughput 125/s, got %f", m.Throughput)
	}
	if math.Abs(m.MeanLatencyMs-8) > 1e-9 {
		t.Errorf("expected mean latency 8ms, got %f", m.MeanLatencyMs)
	}
	if m.Sessions != 3 || m.FailedSessions != 0 {
		t.Errorf("unexpected session counts: %d/%d", m.Sessions, m.FailedSessions)
	}
	if m.P50LatencyMs <= 0 || m.P99LatencyMs < m.P50LatencyMs {
		t.Errorf("unexpected percentiles: p50=%f p99=%f", m.P50LatencyMs, m.P99LatencyMs)
	}
}

// TestAggregateOneTimedOutSession covers one session failing after 3
// successes while four others finish 100 messages each.
func TestAggregateOneTimedOutSession(t *testing.T) {
	timeout := &session.TimeoutFailure{Op: "read", Err: errors.New("i/o timeout")}

	t.Run("failed session is slowest", func(t *testing.T) {
		results := []session.Result{
			result(100, 400*time.Millisecond, nil),
			result(100, 410*time.Millisecond, nil),
			result(3, 900*time.Millisecond, timeout),
			result(100, 420*time.Millisecond, nil),
			result(100, 430*time.Millisecond, nil),
		}
		m, err := metrics.Aggregate(results)
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		if m.TotalSuccesses != 403 {
			t.Fatalf("expected 403 successes, got %d", m.TotalSuccesses)
		}
		if m.Elapsed != 900*time.Millisecond {
			t.Fatalf("expected failed session elapsed 900ms, got %s", m.Elapsed)
		}
		if m.FailedSessions != 1 || m.Failures["Read timeout"] != 1 {
			t.Fatalf("expected one read timeout, got %v", m.Failures)
		}
	})

	t.Run("successful session is slowest", func(t *testing.T) {
		results := []session.Result{
			result(100, 400*time.Millisecond, nil),
			result(3, 150*time.Millisecond, timeout),
			result(100, 700*time.Millisecond, nil),
			result(100, 420*time.Millisecond, nil),
			result(100, 430*time.Millisecond, nil),
		}
		m, err := metrics.Aggregate(results)
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		if m.TotalSuccesses != 403 {
			t.Fatalf("expected 403 successes, got %d", m.TotalSuccesses)
		}
		if m.Elapsed != 700*time.Millisecond {
			t.Fatalf("expected slowest successful session 700ms, got %s", m.Elapsed)
		}
	})
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	results := []session.Result{
		result(10, 100*time.Millisecond, nil),
		result(20, 300*time.Millisecond, nil),
		result(5, 50*time.Millisecond, &session.ShortReadError{Got: 1, Want: 8}),
		result(30, 250*time.Millisecond, nil),
		result(0, 10*time.Millisecond, &session.ConnectError{Address: "x", Err: errors.New("refused")}),
	}
	want, err := metrics.Aggregate(results)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]session.Result(nil), results...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, err := metrics.Aggregate(shuffled)
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("permutation changed metrics:\n got %+v\nwant %+v", got, want)
		}
	}
}

// TestAggregateAllConnectionsRefused covers a target that never accepts.
func TestAggregateAllConnectionsRefused(t *testing.T) {
	refused := &session.ConnectError{Address: "127.0.0.1:1", Err: errors.New("connection refused")}
	results := make([]session.Result, 4)
	for i := range results {
		results[i] = result(0, time.Millisecond, refused)
	}

	m, err := metrics.Aggregate(results)
	var degenerate *metrics.DegenerateRunError
	if !errors.As(err, &degenerate) {
		t.Fatalf("expected DegenerateRunError, got %v", err)
	}
	if !metrics.IsDegenerate(err) {
		t.Fatalf("IsDegenerate() = false")
	}
	if m.Failures["Connection failed"] != 4 {
		t.Fatalf("expected 4 connection failures, got %v", m.Failures)
	}
	if math.IsInf(m.Throughput, 0) || math.IsNaN(m.Throughput) || m.Throughput != 0 {
		t.Fatalf("throughput must stay zero, got %f", m.Throughput)
	}
}

func TestAggregateZeroElapsed(t *testing.T) {
	_, err := metrics.Aggregate([]session.Result{
		{Successes: 10},
		{Successes: 5},
	})
	var degenerate *metrics.DegenerateRunError
	if !errors.As(err, &degenerate) {
		t.Fatalf("expected DegenerateRunError, got %v", err)
	}
	if degenerate.Elapsed != 0 || degenerate.Successes != 15 {
		t.Fatalf("unexpected degenerate details: %+v", degenerate)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	_, err := metrics.Aggregate(nil)
	if !metrics.IsDegenerate(err) {
		t.Fatalf("expected DegenerateRunError for empty input, got %v", err)
	}
}

func TestAggregateSuccessesNeverExceedOfferedLoad(t *testing.T) {
	const clients, perClient = 8, 25
	results := make([]session.Result, clients)
	for i := range results {
		results[i] = result(int64(perClient-i), time.Duration(i+1)*time.Millisecond, nil)
	}
	m, err := metrics.Aggregate(results)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if m.TotalSuccesses > clients*perClient {
		t.Fatalf("successes %d exceed offered load %d", m.TotalSuccesses, clients*perClient)
	}
}

func TestRunMetricsJSONSchema(t *testing.T) {
	m, err := metrics.Aggregate([]session.Result{result(10, 100*time.Millisecond, nil)})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, field := range []string{"sessions", "total_successes", "elapsed_ms", "throughput", "mean_latency_ms", "p99_latency_ms"} {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
	if _, ok := parsed["failures"]; ok {
		t.Errorf("failures should be omitted when empty")
	}
}

func TestFailureRate(t *testing.T) {
	m := metrics.RunMetrics{Sessions: 4, FailedSessions: 1}
	if m.FailureRate() != 0.25 {
		t.Fatalf("expected 0.25, got %f", m.FailureRate())
	}
	if (metrics.RunMetrics{}).FailureRate() != 0 {
		t.Fatalf("expected 0 for empty metrics")
	}
}
