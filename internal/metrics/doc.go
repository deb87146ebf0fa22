// Package metrics reduces per-session echo results into run-level figures.
//
// # Aggregation
//
// [Aggregate] is a pure reduction over one cell's session results:
//
//	m, err := metrics.Aggregate(results)
//	if metrics.IsDegenerate(err) {
//		// zero elapsed time or zero successes: throughput is undefined
//	}
//
// The reduction uses only sums, a maximum, and histogram merges, so the
// order in which sessions finished never changes the outcome.
//
// # Elapsed Time Policy
//
// A run is not finished until its slowest session finishes. The total
// elapsed time is therefore the maximum of the per-session elapsed times,
// and throughput is computed against that span rather than an average.
//
// # Latency
//
// Each session records exchange latencies into its own HDR histogram. The
// aggregator merges them to report P50, P90, P99, and max latency in
// addition to the mean (elapsed / successes).
//
// # Failures
//
// Sessions that ended early are grouped by [FailureLabel], e.g.
// "Connection failed" or "Read timeout", and exposed in
// [RunMetrics.Failures]. [FlattenFailures] orders them for display.
package metrics
