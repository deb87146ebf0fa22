package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultDialTimeout = 5 * time.Second
	payloadByte        = 'X'

	// MaxTrackedLatency bounds every latency histogram.
	MaxTrackedLatency = time.Minute
	minTrackedLatency = time.Millisecond
	latencySigFigs    = 2
)

// Options configure a single client session.
type Options struct {
	Address     string        // host:port of the echo target
	Payload     []byte        // bytes sent per exchange; the echo must match exactly
	Messages    int           // exchanges to perform (0 means bounded by Duration)
	Duration    time.Duration // wall-clock bound when Messages is 0
	Timeout     time.Duration // per read/write deadline
	DialTimeout time.Duration // connect timeout
	Dialer      Dialer        // optional injection for tests

	// OnExchange, when set, is called after every completed exchange with
	// whether the echo matched. It runs on the session goroutine.
	OnExchange func(ok bool)
}

// Dialer opens the session connection.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Result is the outcome of one session. Err is nil when the workload
// bound was reached without a fatal failure.
type Result struct {
	Successes     int64
	Mismatches    int64
	BytesSent     int64
	BytesReceived int64
	Elapsed       time.Duration
	Latencies     *hdrhistogram.Histogram
	Err           error
}

// Failed reports whether the session ended early.
func (r Result) Failed() bool {
	return r.Err != nil
}

// NewPayload returns size bytes of filler.
func NewPayload(size int) []byte {
	if size <= 0 {
		return nil
	}
	return bytes.Repeat([]byte{payloadByte}, size)
}

// NewLatencyHistogram tracks exchange latencies in microseconds from 1µs up
// to limit with 2 significant figures. limit is clamped to
// [1ms, MaxTrackedLatency].
func NewLatencyHistogram(limit time.Duration) *hdrhistogram.Histogram {
	if limit < minTrackedLatency {
		limit = minTrackedLatency
	}
	if limit > MaxTrackedLatency {
		limit = MaxTrackedLatency
	}
	return hdrhistogram.New(1, limit.Microseconds(), latencySigFigs)
}

// exchangeLimit is the longest an exchange can take: a write and a read,
// each under its own deadline.
func (o Options) exchangeLimit() time.Duration {
	return 2 * o.Timeout
}

func (o *Options) normalize() {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.Messages < 0 {
		o.Messages = 0
	}
	if o.Dialer == nil {
		o.Dialer = &net.Dialer{Timeout: o.DialTimeout}
	}
}

// Run opens one connection and performs send/receive exchanges until the
// workload bound is reached or an exchange fails. It never panics and
// always returns the counts gathered so far.
func Run(ctx context.Context, opt Options) Result {
	opt.normalize()
	res := Result{Latencies: NewLatencyHistogram(opt.exchangeLimit())}

	if len(opt.Payload) == 0 {
		res.Err = fmt.Errorf("session: empty payload")
		return res
	}
	if opt.Messages == 0 && opt.Duration <= 0 {
		res.Err = fmt.Errorf("session: either messages or duration must be set")
		return res
	}

	dialStart := time.Now()
	dialCtx, cancel := context.WithTimeout(ctx, opt.DialTimeout)
	conn, err := opt.Dialer.DialContext(dialCtx, "tcp", opt.Address)
	cancel()
	if err != nil {
		res.Elapsed = time.Since(dialStart)
		res.Err = &ConnectError{Address: opt.Address, Err: err}
		return res
	}
	defer conn.Close()

	// Closing the connection unblocks pending I/O when the suite is interrupted.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, len(opt.Payload))
	start := time.Now()
	var deadline time.Time
	if opt.Messages == 0 {
		deadline = start.Add(opt.Duration)
	}

	for n := 0; ; n++ {
		if opt.Messages > 0 && n >= opt.Messages {
			break
		}
		if opt.Messages == 0 && !time.Now().Before(deadline) {
			break
		}

		exchangeStart := time.Now()
		if err := exchange(conn, opt.Payload, buf, opt.Timeout, &res); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			res.Err = err
			break
		}
		recordLatency(res.Latencies, time.Since(exchangeStart))

		ok := bytes.Equal(buf, opt.Payload)
		if ok {
			res.Successes++
		} else {
			res.Mismatches++
		}
		if opt.OnExchange != nil {
			opt.OnExchange(ok)
		}
	}

	res.Elapsed = time.Since(start)
	return res
}

func exchange(conn net.Conn, payload, buf []byte, timeout time.Duration, res *Result) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	n, err := conn.Write(payload)
	res.BytesSent += int64(n)
	if err != nil {
		return classify("write", n, len(payload), err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return &IOError{Op: "read", Err: err}
	}
	n, err = io.ReadFull(conn, buf)
	res.BytesReceived += int64(n)
	if err != nil {
		return classify("read", n, len(buf), err)
	}
	return nil
}

func classify(op string, got, want int, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutFailure{Op: op, Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ShortReadError{Got: got, Want: want}
	}
	return &IOError{Op: op, Err: err}
}

func recordLatency(h *hdrhistogram.Histogram, latency time.Duration) {
	us := latency.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}
