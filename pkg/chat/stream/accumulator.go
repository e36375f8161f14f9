package stream

import (
	"strings"

	"promochat/pkg/chat/message"
	"promochat/pkg/chaterr"
)

// Fragment is one incremental piece of output for a logical message.
type Fragment struct {
	Role    message.Role
	Text    string
	IsFinal bool
}

// Outcome describes what a fragment did to the log.
type Outcome int

const (
	Started Outcome = iota
	Extended
	Finalized
	Discarded
)

// Accumulator merges delta fragments into the streaming tail of a log.
// It holds no copy of the text; the log is the single source of truth.
type Accumulator struct {
	log       *message.Log
	sanitizer *Sanitizer
	sentinels map[string]struct{}
	role      message.Role
	active    bool
}

// NewAccumulator binds an accumulator to the log it mutates. Accumulated text
// equal to one of the sentinels is treated as a control-only terminator.
func NewAccumulator(log *message.Log, sanitizer *Sanitizer, sentinels []string) *Accumulator {
	set := make(map[string]struct{}, len(sentinels))
	for _, s := range sentinels {
		set[s] = struct{}{}
	}
	return &Accumulator{log: log, sanitizer: sanitizer, sentinels: set}
}

// Active reports whether a message is mid-stream.
func (a *Accumulator) Active() bool {
	return a.active
}

// Feed applies one fragment. A fragment for another role while a stream is
// open force-finalizes the open stream and returns a ProtocolError alongside
// the outcome of the new fragment; the error is informational.
func (a *Accumulator) Feed(f Fragment) (Outcome, error) {
	var protoErr error
	if a.active && f.Role != a.role {
		protoErr = &chaterr.ProtocolError{Reason: "concurrent stream (" + string(a.role) + " open, got " + string(f.Role) + ")"}
		a.Finalize()
	}

	text := a.sanitizer.Clean(f.Text)
	if !a.active {
		if _, err := a.log.AppendStreaming(f.Role, text); err != nil {
			return Discarded, &chaterr.ProtocolError{Reason: "start stream", Err: err}
		}
		a.role = f.Role
		a.active = true
		if !f.IsFinal {
			return Started, protoErr
		}
		return a.Finalize(), protoErr
	}

	if err := a.log.ExtendTail(text); err != nil {
		a.active = false
		return Discarded, &chaterr.ProtocolError{Reason: "extend stream", Err: err}
	}
	if f.IsFinal {
		return a.Finalize(), protoErr
	}
	return Extended, protoErr
}

// Finalize closes the open stream, if any. Empty or sentinel text removes the
// message; anything else is sealed as final content.
func (a *Accumulator) Finalize() Outcome {
	if !a.active {
		return Discarded
	}
	a.active = false

	tail, ok := a.log.Tail()
	if !ok || !tail.Streaming {
		return Discarded
	}
	trimmed := strings.TrimSpace(tail.Text)
	if _, sentinel := a.sentinels[trimmed]; trimmed == "" || sentinel {
		_ = a.log.DropTail()
		return Discarded
	}
	_ = a.log.SealTail()
	return Finalized
}

// Reset forgets the open stream without touching the log. Used after the log
// itself has been cleared.
func (a *Accumulator) Reset() {
	a.active = false
	a.role = ""
}
