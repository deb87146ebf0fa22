// Package benchtool drives an external echo benchmark binary and parses
// its summary.
package benchtool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Params are appended to the tool's argv as --address/--number/--duration/--length.
type Params struct {
	Address  string
	Clients  int
	Duration time.Duration
	Length   int
}

// Result holds the figures the tool prints on completion.
type Result struct {
	RequestsPerSecond int64 `json:"requests_per_second" yaml:"requests_per_second"`
	Requests          int64 `json:"requests" yaml:"requests"`
	Responses         int64 `json:"responses" yaml:"responses"`
}

// ExecutionError reports a tool that could not be run or exited non-zero.
type ExecutionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("benchmark tool failed (exit %d): %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("benchmark tool failed (exit %d): %v\nstderr: %s", e.ExitCode, e.Err, stderr)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ParseError lists the summary fields absent from the tool output.
type ParseError struct {
	Missing []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("benchmark output missing %s", strings.Join(e.Missing, ", "))
}

var (
	speedPattern     = regexp.MustCompile(`Speed: (\d+) request/sec`)
	requestsPattern  = regexp.MustCompile(`Requests: (\d+)`)
	responsesPattern = regexp.MustCompile(`Responses: (\d+)`)
)

// Tool is an external benchmark command such as `cargo run --release --`.
type Tool struct {
	Command []string
	Dir     string
	Logger  *slog.Logger
}

// Run executes the tool once with params and parses its stdout. Failures
// are not retried.
func (t *Tool) Run(ctx context.Context, params Params) (Result, error) {
	if len(t.Command) == 0 {
		return Result{}, &ExecutionError{ExitCode: -1, Err: errors.New("empty bench command")}
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	args := make([]string, 0, len(t.Command)+7)
	args = append(args, t.Command[1:]...)
	args = append(args, Args(params)...)

	cmd := exec.CommandContext(ctx, t.Command[0], args...)
	cmd.Dir = t.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Info("starting benchmark tool",
		slog.Any("command", append([]string{t.Command[0]}, args...)),
		slog.String("dir", t.Dir),
	)
	wallStart := time.Now()

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return Result{}, &ExecutionError{ExitCode: exitCode, Stderr: stderr.String(), Err: err}
	}

	logger.Info("benchmark tool finished", slog.Duration("wall_time", time.Since(wallStart)))

	res, err := ParseOutput(stdout.String())
	if err != nil {
		return Result{}, fmt.Errorf("parse benchmark output: %w\nstdout: %s", err, stdout.String())
	}
	return res, nil
}

// Args renders params in the tool's flag syntax. Duration is whole seconds,
// rounded up so sub-second runs are not passed as zero.
func Args(p Params) []string {
	secs := int64(math.Ceil(p.Duration.Seconds()))
	return []string{
		"--address", p.Address,
		"--number", strconv.Itoa(p.Clients),
		"--duration", strconv.FormatInt(secs, 10),
		"--length", strconv.Itoa(p.Length),
	}
}

// ParseOutput extracts the Speed, Requests and Responses lines.
func ParseOutput(out string) (Result, error) {
	var (
		res     Result
		missing []string
	)
	fields := []struct {
		name    string
		pattern *regexp.Regexp
		dst     *int64
	}{
		{"Speed", speedPattern, &res.RequestsPerSecond},
		{"Requests", requestsPattern, &res.Requests},
		{"Responses", responsesPattern, &res.Responses},
	}
	for _, f := range fields {
		m := f.pattern.FindStringSubmatch(out)
		if m == nil {
			missing = append(missing, f.name)
			continue
		}
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			missing = append(missing, f.name)
			continue
		}
		*f.dst = v
	}
	if len(missing) > 0 {
		return Result{}, &ParseError{Missing: missing}
	}
	return res, nil
}
