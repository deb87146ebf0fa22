// Package session runs a single echo client against a target.
//
// A session opens exactly one TCP connection and repeats a fixed exchange:
// write the whole payload, then read back exactly len(payload) bytes. An
// exchange counts as successful only when the echoed bytes equal the
// payload. Every write and read carries its own deadline, so a hung target
// ends the session with a [TimeoutFailure] instead of blocking forever.
//
//	res := session.Run(ctx, session.Options{
//		Address:  "127.0.0.1:8080",
//		Payload:  session.NewPayload(512),
//		Messages: 100,
//		Timeout:  5 * time.Second,
//	})
//
// Failures never escape as panics: [Run] returns the successes gathered
// before the failure together with the reason in [Result.Err]. Sessions
// share no state with each other; each owns its connection, buffer, and
// latency histogram.
package session
