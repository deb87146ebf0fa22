// Package target starts and stops echo server processes under test.
//
// A target is launched from a discrete argv in its working directory (no
// shell). [Manager.Start] returns only after the target accepts TCP
// connections, probing its address with exponential backoff, or after a
// fixed warm-up when no probe budget is configured. [Handle.Stop] sends
// SIGTERM and escalates to SIGKILL once the grace period runs out.
package target
