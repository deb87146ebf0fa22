package loadgen

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestPoissonArrivalNextDelayUsesSampler(t *testing.T) {
	ctrl := newPoissonArrival(200, func() float64 { return 1 })
	delay := ctrl.nextDelay()
	expected := time.Second / 200
	if delay != expected {
		t.Fatalf("expected delay %s, got %s", expected, delay)
	}
}

func TestPoissonArrivalWaitCancelledContext(t *testing.T) {
	ctrl := newPoissonArrival(0.000001, func() float64 { return 1 })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Wait(ctx); err == nil {
		t.Fatalf("expected context error when cancelled")
	}
}

func TestPoissonArrivalNegativeRateDisablesPacing(t *testing.T) {
	ctrl := newPoissonArrival(-5, func() float64 { return 1 })
	if delay := ctrl.nextDelay(); delay != 0 {
		t.Fatalf("expected no delay for a negative rate, got %s", delay)
	}
}

func TestNewArrivalControllerUsesStartRate(t *testing.T) {
	opt := Options{StartRate: 40, ArrivalModel: ArrivalModelPoisson, PoissonSampler: func() float64 { return 2 }}
	opt.normalize()
	ctrl, ok := newArrivalController(opt).(*poissonArrival)
	if !ok {
		t.Fatalf("expected poisson controller")
	}
	if delay := ctrl.nextDelay(); delay != 50*time.Millisecond {
		t.Fatalf("expected 50ms delay, got %s", delay)
	}

	var gotRPS int
	opt = Options{StartRate: 25, LimiterFactory: func(rps int) *rate.Limiter {
		gotRPS = rps
		return rate.NewLimiter(rate.Limit(rps), 1)
	}}
	opt.normalize()
	uni, ok := newArrivalController(opt).(*uniformArrival)
	if !ok {
		t.Fatalf("expected uniform controller")
	}
	if gotRPS != 25 || uni.limiter.Limit() != 25 {
		t.Fatalf("expected limiter at 25/s, factory got %d and limit %v", gotRPS, uni.limiter.Limit())
	}
}

func TestNewArrivalControllerDisabledWithoutRate(t *testing.T) {
	opt := Options{}
	opt.normalize()
	if ctrl := newArrivalController(opt); ctrl != nil {
		t.Fatalf("expected nil controller when StartRate is 0, got %T", ctrl)
	}
}

func TestNewArrivalControllerSelectsModel(t *testing.T) {
	opt := Options{StartRate: 10, ArrivalModel: ArrivalModelPoisson, PoissonSampler: func() float64 { return 1 }}
	opt.normalize()
	if _, ok := newArrivalController(opt).(*poissonArrival); !ok {
		t.Fatalf("expected poisson controller")
	}

	opt = Options{StartRate: 10}
	opt.normalize()
	if _, ok := newArrivalController(opt).(*uniformArrival); !ok {
		t.Fatalf("expected uniform controller")
	}
}

func TestOptionsNormalize(t *testing.T) {
	o := Options{StartRate: -5}
	o.normalize()
	if o.StartRate != 0 {
		t.Errorf("StartRate = %d, want 0", o.StartRate)
	}
	if o.ArrivalModel != ArrivalModelUniform {
		t.Errorf("ArrivalModel = %q, want %q", o.ArrivalModel, ArrivalModelUniform)
	}
	if o.RandomSeed == 0 {
		t.Error("RandomSeed should be non-zero")
	}
	if o.LimiterFactory == nil || o.Session == nil {
		t.Error("LimiterFactory and Session should be set")
	}
}
