package benchtool_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/torosent/echobench/internal/benchtool"
)

const sampleOutput = `Benchmarking: 127.0.0.1:8080
50 clients, running 512 bytes, 30 sec.

Speed: 84211 request/sec, 84211 response/sec
Requests: 2526330
Responses: 2526330
`

// TestHelperProcess is re-executed by Tool tests as a fake benchmark binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	switch os.Getenv("HELPER_MODE") {
	case "fail":
		fmt.Fprintln(os.Stderr, "connection refused")
		os.Exit(101)
	case "garbage":
		fmt.Println("nothing useful here")
	default:
		fmt.Fprintf(os.Stdout, "args: %s\n", strings.Join(args, " "))
		fmt.Print(sampleOutput)
	}
	os.Exit(0)
}

func helperTool(t *testing.T, mode string) *benchtool.Tool {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("HELPER_MODE", mode)
	return &benchtool.Tool{Command: []string{os.Args[0], "-test.run=TestHelperProcess", "--"}}
}

func TestParseOutput(t *testing.T) {
	res, err := benchtool.ParseOutput(sampleOutput)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := benchtool.Result{RequestsPerSecond: 84211, Requests: 2526330, Responses: 2526330}
	if res != want {
		t.Fatalf("got %+v, want %+v", res, want)
	}
}

func TestParseOutputMissingFields(t *testing.T) {
	_, err := benchtool.ParseOutput("Speed: 10 request/sec\n")
	var parseErr *benchtool.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %T (%v)", err, err)
	}
	if strings.Join(parseErr.Missing, ",") != "Requests,Responses" {
		t.Fatalf("unexpected missing fields: %v", parseErr.Missing)
	}
}

func TestArgs(t *testing.T) {
	got := benchtool.Args(benchtool.Params{
		Address:  "127.0.0.1:8080",
		Clients:  50,
		Duration: 1500 * time.Millisecond,
		Length:   512,
	})
	want := "--address 127.0.0.1:8080 --number 50 --duration 2 --length 512"
	if strings.Join(got, " ") != want {
		t.Fatalf("got %q, want %q", strings.Join(got, " "), want)
	}
}

func TestRunAppendsFlagsAndParses(t *testing.T) {
	tool := helperTool(t, "ok")
	res, err := tool.Run(context.Background(), benchtool.Params{
		Address: "127.0.0.1:9000", Clients: 4, Duration: time.Second, Length: 64,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.RequestsPerSecond != 84211 || res.Responses != 2526330 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	tool := helperTool(t, "fail")
	_, err := tool.Run(context.Background(), benchtool.Params{Address: "x", Clients: 1, Duration: time.Second, Length: 1})
	var execErr *benchtool.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %T (%v)", err, err)
	}
	if execErr.ExitCode != 101 {
		t.Fatalf("expected exit 101, got %d", execErr.ExitCode)
	}
	if !strings.Contains(execErr.Stderr, "connection refused") {
		t.Fatalf("stderr not captured: %q", execErr.Stderr)
	}
}

func TestRunUnparseableOutput(t *testing.T) {
	tool := helperTool(t, "garbage")
	_, err := tool.Run(context.Background(), benchtool.Params{Address: "x", Clients: 1, Duration: time.Second, Length: 1})
	var parseErr *benchtool.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %T (%v)", err, err)
	}
	if len(parseErr.Missing) != 3 {
		t.Fatalf("expected all three fields missing, got %v", parseErr.Missing)
	}
}

func TestRunMissingBinary(t *testing.T) {
	tool := &benchtool.Tool{Command: []string{"/nonexistent/echo-bench"}}
	_, err := tool.Run(context.Background(), benchtool.Params{Address: "x", Clients: 1, Duration: time.Second, Length: 1})
	var execErr *benchtool.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %T (%v)", err, err)
	}
}
