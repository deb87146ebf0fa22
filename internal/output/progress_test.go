package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/echobench/internal/loadgen"
)

type staticProgress loadgen.Progress

func (s staticProgress) Progress() loadgen.Progress { return loadgen.Progress(s) }

// syncBuffer guards a bytes.Buffer written by the reporter goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressLine(t *testing.T) {
	src := staticProgress{Concurrency: 10, Started: 10, Completed: 4, Failed: 1, Successes: 400, Elapsed: 2 * time.Second}
	reporter := NewProgressReporter(src, time.Hour, nil)
	reporter.SetCell("coroutine", 10)

	line := reporter.line()
	for _, want := range []string{"[coroutine @ 10]", "10/10 started", "4 done", "1 failed", "Messages: 400", "200.0 msg/s"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}

func TestProgressReporterBasic(t *testing.T) {
	reporter := NewProgressReporter(staticProgress{}, 100*time.Millisecond, nil)
	if reporter == nil {
		t.Fatal("Expected non-nil reporter")
	}
	// Stop before Start is a no-op.
	reporter.Stop()
}

func TestProgressReporterFormatting(t *testing.T) {
	var buf syncBuffer
	reporter := NewProgressReporter(staticProgress{Concurrency: 2, Started: 2}, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(100 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	if !strings.Contains(buf.String(), "Sessions: 2/2 started") {
		t.Errorf("expected progress line, got %q", buf.String())
	}
}

func TestProgressReporterReadsGenerator(t *testing.T) {
	// The generator satisfies ProgressSource directly.
	var _ ProgressSource = loadgen.New(loadgen.Options{})
}
