package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/echobench/internal/loadgen"
)

// ProgressSource exposes counters of the cell in flight.
type ProgressSource interface {
	Progress() loadgen.Progress
}

// ProgressReporter displays real-time progress of the running cell.
type ProgressReporter struct {
	source   ProgressSource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32

	mu    sync.Mutex
	label string
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source ProgressSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// SetCell names the cell shown in front of the counters.
func (p *ProgressReporter) SetCell(target string, concurrency int) {
	p.mu.Lock()
	p.label = fmt.Sprintf("%s @ %d", target, concurrency)
	p.mu.Unlock()
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the status line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	p.mu.Lock()
	label := p.label
	p.mu.Unlock()

	prog := p.source.Progress()
	line := "\r"
	if label != "" {
		line += "[" + label + "] "
	}
	line += fmt.Sprintf("Sessions: %d/%d started | %d done | %d failed | Messages: %d",
		prog.Started, prog.Concurrency, prog.Completed, prog.Failed, prog.Successes)
	if secs := prog.Elapsed.Seconds(); secs > 0 {
		line += fmt.Sprintf(" | %.1f msg/s", float64(prog.Successes)/secs)
	}
	return line
}
