package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/echobench/internal/metrics"
	"github.com/torosent/echobench/internal/report"
)

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // "throughput", "latency" or "failures"
	Aggregate string  // e.g. "rate", "p99", "mean", "count"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// CellResult holds the threshold outcomes of one report cell.
type CellResult struct {
	Target      string
	Concurrency int
	Results     []Result
}

// Passed reports whether every threshold held for the cell.
func (c CellResult) Passed() bool {
	for _, r := range c.Results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the metrics of one cell.
func (e *Evaluator) Evaluate(m metrics.RunMetrics) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, m))
	}
	return results
}

// EvaluateReport checks every cell that produced metrics. Failed cells are
// reported by the suite itself and are not evaluated.
func (e *Evaluator) EvaluateReport(rep *report.Report) []CellResult {
	if len(e.thresholds) == 0 || rep == nil {
		return nil
	}
	cells := rep.Succeeded()
	out := make([]CellResult, 0, len(cells))
	for _, c := range cells {
		out = append(out, CellResult{
			Target:      c.Target,
			Concurrency: c.Concurrency,
			Results:     e.Evaluate(*c.Metrics),
		})
	}
	return out
}

// AllPassed reports whether every cell passed.
func AllPassed(cells []CellResult) bool {
	for _, c := range cells {
		if !c.Passed() {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, m metrics.RunMetrics) Result {
	actual, err := extractMetricValue(t, m)
	if err != nil {
		return Result{
			Threshold: t,
			Actual:    0,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "throughput:rate > 50000"   (successful messages per second; "min" is an alias)
// - "throughput:count > 1000"   (successful messages)
// - "latency:p99 < 5"           (exchange latency percentile in ms)
// - "latency:mean < 2"          (elapsed/successes in ms)
// - "latency:max < 100"         (slowest exchange in ms)
// - "failures:rate < 0.01"      (share of failed sessions)
// - "failures:count == 0"       (failed sessions)
// - "failures:mismatches == 0"  (echoes that differed from the payload)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'latency:p99 < 5')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	aggregates, ok := validAggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: throughput, latency, failures)", metric)
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if !contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

var (
	validAggregates = map[string][]string{
		"throughput": {"rate", "min", "count"},
		"latency":    {"p50", "p90", "p99", "mean", "avg", "max"},
		"failures":   {"count", "rate", "mismatches"},
	}
	validOperators = []string{"<", "<=", ">", ">=", "=="}
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, m metrics.RunMetrics) (float64, error) {
	switch t.Metric {
	case "throughput":
		switch t.Aggregate {
		case "rate", "min":
			return m.Throughput, nil
		case "count":
			return float64(m.TotalSuccesses), nil
		}
	case "latency":
		switch t.Aggregate {
		case "p50":
			return m.P50LatencyMs, nil
		case "p90":
			return m.P90LatencyMs, nil
		case "p99":
			return m.P99LatencyMs, nil
		case "mean", "avg":
			return m.MeanLatencyMs, nil
		case "max":
			return m.MaxLatencyMs, nil
		}
	case "failures":
		switch t.Aggregate {
		case "count":
			return float64(m.FailedSessions), nil
		case "rate":
			return m.FailureRate(), nil
		case "mismatches":
			return float64(m.Mismatches), nil
		}
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
	return 0, fmt.Errorf("unsupported aggregate %q for %s", t.Aggregate, t.Metric)
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
