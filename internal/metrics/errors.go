package metrics

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/torosent/echobench/internal/session"
)

// FailureLabel names why a session ended, for grouping in reports.
// Wrapped errors are unwrapped; anything outside the session failure
// taxonomy is reported as a generic session error.
func FailureLabel(err error) string {
	var (
		connErr  *session.ConnectError
		timeout  *session.TimeoutFailure
		short    *session.ShortReadError
		ioErr    *session.IOError
		netError net.Error
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Context deadline exceeded"
	case errors.As(err, &timeout):
		return opLabel(timeout.Op) + " timeout"
	case errors.As(err, &connErr):
		return "Connection failed"
	case errors.As(err, &short):
		return "Short read"
	case errors.As(err, &ioErr), errors.As(err, &netError):
		return "Socket error"
	default:
		return "Session error"
	}
}

func opLabel(op string) string {
	if op == "" {
		return "I/O"
	}
	return strings.ToUpper(op[:1]) + op[1:]
}
