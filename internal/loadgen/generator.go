package loadgen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/echobench/internal/session"
)

// Progress is a point-in-time view of a running cell.
type Progress struct {
	Concurrency int
	Started     int64
	Completed   int64
	Failed      int64
	Successes   int64 // matched echoes so far, counted per exchange
	Elapsed     time.Duration
}

// Generator launches one session per client and joins on all of them.
type Generator struct {
	opt Options

	concurrency atomic.Int64
	started     atomic.Int64
	completed   atomic.Int64
	failed      atomic.Int64
	successes   atomic.Int64
	startedAt   atomic.Int64
}

func New(opt Options) *Generator {
	opt.normalize()
	return &Generator{opt: opt}
}

// Run executes cfg.Concurrency sessions concurrently against address and
// returns once every session has reported. Each session contributes
// exactly one result; order is unspecified.
func (g *Generator) Run(ctx context.Context, cfg RunConfig, address string) ([]session.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g.reset(cfg.Concurrency)

	payload := session.NewPayload(cfg.PayloadSize)
	sessionOpts := session.Options{
		Address:     address,
		Payload:     payload,
		Messages:    cfg.Messages,
		Duration:    cfg.Duration,
		Timeout:     cfg.Timeout,
		DialTimeout: cfg.DialTimeout,
		OnExchange:  g.recordExchange,
	}

	// Sessions hand results to a single collector; nothing else touches the slice.
	resultsCh := make(chan session.Result, cfg.Concurrency)
	results := make([]session.Result, 0, cfg.Concurrency)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for res := range resultsCh {
			g.completed.Add(1)
			if res.Failed() {
				g.failed.Add(1)
			}
			if g.opt.OnResult != nil {
				g.opt.OnResult(res)
			}
			results = append(results, res)
		}
	}()

	arrival := newArrivalController(g.opt)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		if arrival != nil {
			if err := arrival.Wait(ctx); err != nil {
				// Sessions that never started still report exactly once.
				resultsCh <- session.Result{Err: err}
				continue
			}
		}
		g.started.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			resultsCh <- g.opt.Session(ctx, sessionOpts)
		}()
	}
	wg.Wait()
	close(resultsCh)
	<-collected

	return results, nil
}

// recordExchange counts successful echoes as they happen so Progress
// reflects a live rate rather than jumping when sessions finish.
func (g *Generator) recordExchange(ok bool) {
	if ok {
		g.successes.Add(1)
	}
}

// Progress reports counters for the run in flight (or the last finished run).
func (g *Generator) Progress() Progress {
	p := Progress{
		Concurrency: int(g.concurrency.Load()),
		Started:     g.started.Load(),
		Completed:   g.completed.Load(),
		Failed:      g.failed.Load(),
		Successes:   g.successes.Load(),
	}
	if start := g.startedAt.Load(); start > 0 {
		p.Elapsed = time.Since(time.Unix(0, start))
	}
	return p
}

func (g *Generator) reset(concurrency int) {
	g.concurrency.Store(int64(concurrency))
	g.started.Store(0)
	g.completed.Store(0)
	g.failed.Store(0)
	g.successes.Store(0)
	g.startedAt.Store(time.Now().UnixNano())
}
