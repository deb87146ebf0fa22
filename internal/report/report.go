// Package report holds the results of a comparison suite: one cell per
// (target, concurrency) pair, in the order the cells ran.
package report

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/echobench/internal/metrics"
)

// Failure stages.
const (
	StageLaunch    = "launch"
	StageLoad      = "load"
	StageAggregate = "aggregate"
)

// Workload records the parameters every cell ran with.
type Workload struct {
	Mode          string        `json:"mode" yaml:"mode"`
	MessageLength int           `json:"message_length" yaml:"message_length"`
	Messages      int           `json:"messages,omitempty" yaml:"messages,omitempty"`
	Duration      time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
}

// Failure explains why a cell has no metrics.
type Failure struct {
	Stage string `json:"stage" yaml:"stage"`
	Error string `json:"error" yaml:"error"`
}

// Cell is the outcome for one target at one concurrency level. Exactly one
// of Metrics and Failure is set.
type Cell struct {
	Target      string              `json:"target" yaml:"target"`
	Concurrency int                 `json:"concurrency" yaml:"concurrency"`
	Metrics     *metrics.RunMetrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Failure     *Failure            `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// Failed reports whether the cell recorded a failure.
func (c Cell) Failed() bool {
	return c.Failure != nil
}

// Point is one throughput sample in a per-target series.
type Point struct {
	Concurrency int     `json:"concurrency"`
	Throughput  float64 `json:"throughput"`
}

// Series is the throughput curve of one target.
type Series struct {
	Target string  `json:"target"`
	Points []Point `json:"points"`
}

// Report is the full comparison result.
type Report struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Workload   Workload  `json:"workload" yaml:"workload"`
	Cells      []Cell    `json:"cells" yaml:"cells"`

	mu sync.Mutex
}

// New starts an empty report stamped with a fresh run ID.
func New(workload Workload) *Report {
	now := time.Now()
	return &Report{
		RunID:     ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		StartedAt: now.UTC(),
		Workload:  workload,
		Cells:     []Cell{},
	}
}

// AddMetrics appends a successful cell.
func (r *Report) AddMetrics(target string, concurrency int, m metrics.RunMetrics) {
	r.add(Cell{Target: target, Concurrency: concurrency, Metrics: &m})
}

// AddFailure appends a failed cell.
func (r *Report) AddFailure(target string, concurrency int, stage string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	r.add(Cell{Target: target, Concurrency: concurrency, Failure: &Failure{Stage: stage, Error: msg}})
}

func (r *Report) add(c Cell) {
	r.mu.Lock()
	r.Cells = append(r.Cells, c)
	r.mu.Unlock()
}

// Finish stamps the completion time.
func (r *Report) Finish() {
	r.mu.Lock()
	r.FinishedAt = time.Now().UTC()
	r.mu.Unlock()
}

// Targets returns target names in first-seen order.
func (r *Report) Targets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var names []string
	for _, c := range r.Cells {
		if !seen[c.Target] {
			seen[c.Target] = true
			names = append(names, c.Target)
		}
	}
	return names
}

// Series returns each target's successful cells as (concurrency,
// throughput) points sorted by concurrency. Failed cells are skipped.
func (r *Report) Series() []Series {
	targets := r.Targets()

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Series, 0, len(targets))
	for _, name := range targets {
		s := Series{Target: name, Points: []Point{}}
		for _, c := range r.Cells {
			if c.Target != name || c.Metrics == nil {
				continue
			}
			s.Points = append(s.Points, Point{Concurrency: c.Concurrency, Throughput: c.Metrics.Throughput})
		}
		sort.SliceStable(s.Points, func(i, j int) bool {
			return s.Points[i].Concurrency < s.Points[j].Concurrency
		})
		out = append(out, s)
	}
	return out
}

// Failures returns the failed cells in run order.
func (r *Report) Failures() []Cell {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Cell
	for _, c := range r.Cells {
		if c.Failed() {
			out = append(out, c)
		}
	}
	return out
}

// Succeeded returns the cells that carry metrics.
func (r *Report) Succeeded() []Cell {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Cell
	for _, c := range r.Cells {
		if c.Metrics != nil {
			out = append(out, c)
		}
	}
	return out
}

// AllFailedAt reports whether the report has cells and every one failed at stage.
func (r *Report) AllFailedAt(stage string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Cells) == 0 {
		return false
	}
	for _, c := range r.Cells {
		if c.Failure == nil || c.Failure.Stage != stage {
			return false
		}
	}
	return true
}
