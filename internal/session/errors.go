package session

import "fmt"

// ConnectError reports that the session never established its connection.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutFailure reports a send or receive that exceeded its deadline.
type TimeoutFailure struct {
	Op  string
	Err error
}

func (e *TimeoutFailure) Error() string {
	return fmt.Sprintf("%s timeout: %v", e.Op, e.Err)
}

func (e *TimeoutFailure) Unwrap() error { return e.Err }

// ShortReadError reports that the peer closed before a full echo arrived.
type ShortReadError struct {
	Got  int
	Want int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read: got %d of %d bytes", e.Got, e.Want)
}

// IOError wraps any other socket failure.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
