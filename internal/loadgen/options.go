package loadgen

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/echobench/internal/session"
)

// ArrivalModel selects how session starts are spaced when StartRate is set.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// RunConfig is one cell of the test matrix.
type RunConfig struct {
	Concurrency int           // number of simultaneous client sessions
	PayloadSize int           // bytes per message
	Messages    int           // messages per client (0 means bounded by Duration)
	Duration    time.Duration // per-client wall-clock bound when Messages is 0
	Timeout     time.Duration // per read/write deadline
	DialTimeout time.Duration // connect timeout
}

// Validate reports configurations that cannot start a single session.
func (c RunConfig) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.PayloadSize < 1 {
		return fmt.Errorf("payload size must be >= 1, got %d", c.PayloadSize)
	}
	if c.Messages < 0 {
		return fmt.Errorf("messages must be >= 0, got %d", c.Messages)
	}
	if c.Messages == 0 && c.Duration <= 0 {
		return fmt.Errorf("either messages or duration must be set")
	}
	return nil
}

// SessionFunc executes one client session.
type SessionFunc func(ctx context.Context, opt session.Options) session.Result

// Options configure the Generator.
type Options struct {
	StartRate      int                         // session starts per second (0 means all at once)
	ArrivalModel   ArrivalModel                // spacing of session starts
	RandomSeed     int64                       // seed for the Poisson sampler
	PoissonSampler func() float64              // optional injection for tests
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	Session        SessionFunc                 // optional injection for tests
	OnResult       func(session.Result)        // called once per finished session from the collector goroutine
}

func (o *Options) normalize() {
	if o.StartRate < 0 {
		o.StartRate = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
	if o.Session == nil {
		o.Session = session.Run
	}
}
