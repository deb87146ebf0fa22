// Package suite runs the comparison matrix: every target at every
// concurrency level, one cell at a time.
//
// A cell starts a fresh target process, drives load against it, reduces the
// results, and always stops the process before the next cell begins. A
// failure at any stage is recorded in the report as a failed cell and the
// matrix continues; only construction problems and a busy target address
// abort the whole run.
//
//	runner, err := suite.New(suite.Options{
//		Targets:  specs,
//		Levels:   []int{10, 50, 100},
//		Launcher: suite.ManagerLauncher{Manager: target.New(target.Options{})},
//		Driver:   &suite.InProcessDriver{Generator: gen, Config: runCfg},
//	})
//	rep, err := runner.Run(ctx)
package suite
