package harness

import "fmt"

// ConnError indicates the node's HTTP endpoint could not be reached.
// Pollers treat it as "not up yet" and retry; direct calls surface it
// as-is.
type ConnError struct {
	Addr string
	Err  error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("node %s unreachable: %v", e.Addr, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// Transient marks the error as retryable to the poller.
func (e *ConnError) Transient() bool { return true }

// StatusError indicates the node answered with a non-success HTTP status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Code)
}

// ProcessError indicates the server process could not be spawned or
// managed.
type ProcessError struct {
	Op  string
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %s: %v", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }
