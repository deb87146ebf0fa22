// Package loadgen drives one cell of an echo benchmark: N concurrent
// client sessions against a single target address.
//
// # Basic Usage
//
//	gen := loadgen.New(loadgen.Options{})
//	results, err := gen.Run(ctx, loadgen.RunConfig{
//		Concurrency: 100,
//		PayloadSize: 512,
//		Messages:    100,
//		Timeout:     5 * time.Second,
//	}, "127.0.0.1:8080")
//
// [Generator.Run] starts one goroutine per session and returns only after
// every session has finished; partial result sets are never returned.
// Sessions send their results over a channel to a single collector, so no
// two goroutines ever append to the same slice.
//
// # Start Pacing
//
// Thousands of simultaneous connects can overflow a target's accept
// backlog. [Options.StartRate] spaces session starts:
//   - [ArrivalModelUniform]: fixed intervals via a token bucket
//   - [ArrivalModelPoisson]: exponentially distributed gaps
//
// # Progress
//
// [Generator.Progress] may be polled from another goroutine while a run is
// in flight; counters are updated atomically by the generator only.
// Successes are counted per exchange, so a duration-bound cell shows a
// live message rate long before any session returns.
package loadgen
