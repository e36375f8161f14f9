// Package chaterr defines the error taxonomy shared by the transport adapters
// and the session orchestrator.
package chaterr

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotOpen is wrapped by TransportError when the channel cannot accept sends.
var ErrNotOpen = errors.New("not open")

// TransportError reports an unavailable or closed channel. It is retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotOpen builds the fail-fast error returned by Send on a closed channel.
func NotOpen(op string) *TransportError {
	return &TransportError{Op: op, Err: ErrNotOpen}
}

// ProtocolError reports a malformed or out-of-sequence inbound event.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// StageTimeout reports a pipeline stage that did not resolve within budget.
type StageTimeout struct {
	Stage   string
	Polls   int
	Elapsed time.Duration
}

func (e *StageTimeout) Error() string {
	return fmt.Sprintf("stage %s unresolved after %d polls (%s)", e.Stage, e.Polls, e.Elapsed.Round(time.Millisecond))
}

// ValidationError reports an action attempted from the wrong state or with an
// invalid payload. It never reaches the transport.
type ValidationError struct {
	Action string
	State  string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("%s not allowed in state %s", e.Action, e.State)
	}
	return fmt.Sprintf("invalid %s: %v", e.Action, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
