package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/torosent/echobench/internal/metrics"
	"github.com/torosent/echobench/internal/report"
)

// PrintReport outputs a human-readable summary of every cell.
func PrintReport(w io.Writer, rep *report.Report) {
	fmt.Fprintln(w, "\n--- Echo Benchmark Results ---")
	fmt.Fprintf(w, "Run ID:            %s\n", rep.RunID)
	fmt.Fprintf(w, "Mode:              %s\n", rep.Workload.Mode)
	fmt.Fprintf(w, "Message length:    %d bytes\n", rep.Workload.MessageLength)
	switch {
	case rep.Workload.Messages > 0:
		fmt.Fprintf(w, "Workload:          %d messages per client\n", rep.Workload.Messages)
	case rep.Workload.Duration > 0:
		fmt.Fprintf(w, "Workload:          %s per client\n", rep.Workload.Duration)
	}
	if !rep.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Wall time:         %s\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	}

	if succeeded := rep.Succeeded(); len(succeeded) > 0 {
		fmt.Fprintln(w, "\nThroughput:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  TARGET\tCLIENTS\tMSG/S\tMEAN(ms)\tP50(ms)\tP99(ms)\tFAILED SESSIONS")
		for _, c := range succeeded {
			m := c.Metrics
			fmt.Fprintf(tw, "  %s\t%d\t%.2f\t%.3f\t%.3f\t%.3f\t%d/%d\n",
				c.Target, c.Concurrency, m.Throughput, m.MeanLatencyMs,
				m.P50LatencyMs, m.P99LatencyMs, m.FailedSessions, m.Sessions)
		}
		_ = tw.Flush()
	}

	if failed := rep.Failures(); len(failed) > 0 {
		fmt.Fprintln(w, "\nFailed cells:")
		for _, c := range failed {
			fmt.Fprintf(w, "  - %s @ %d clients [%s]: %s\n", c.Target, c.Concurrency, c.Failure.Stage, c.Failure.Error)
		}
	}

	writeSessionFailures(w, rep)
}

// writeSessionFailures lists per-cell session failure kinds, most frequent first.
func writeSessionFailures(w io.Writer, rep *report.Report) {
	header := false
	for _, c := range rep.Succeeded() {
		rows := metrics.FlattenFailures(c.Metrics.Failures)
		if len(rows) == 0 {
			continue
		}
		if !header {
			fmt.Fprintln(w, "\nSession failures:")
			header = true
		}
		fmt.Fprintf(w, "  %s @ %d clients:\n", c.Target, c.Concurrency)
		for _, row := range rows {
			fmt.Fprintf(w, "    %s: %d\n", row.Label, row.Count)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, rep *report.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// SaveResults writes rep to path as JSON or YAML depending on the file
// extension. Concurrent writers are serialized through path + ".lock".
func SaveResults(path string, rep *report.Report) error {
	encode, err := encoderFor(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create results directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock results file: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	if err := encode(f, rep); err != nil {
		f.Close()
		return fmt.Errorf("write results: %w", err)
	}
	return f.Close()
}

func encoderFor(path string) (func(io.Writer, *report.Report) error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return PrintJSONReport, nil
	case ".yaml", ".yml":
		return func(w io.Writer, rep *report.Report) error {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(rep); err != nil {
				return err
			}
			return enc.Close()
		}, nil
	default:
		return nil, fmt.Errorf("unsupported results format %q (use .json, .yaml or .yml)", filepath.Ext(path))
	}
}
