package message

import (
	"errors"
	"fmt"
	"time"
)

// Role identifies who authored a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
)

// ParseRole maps a wire role to a Role. The original backend used "model"
// for assistant turns in some payloads.
func ParseRole(raw string) (Role, error) {
	switch raw {
	case "user":
		return RoleUser, nil
	case "system":
		return RoleSystem, nil
	case "assistant", "model":
		return RoleAssistant, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Message is one entry of the conversation log.
type Message struct {
	Sequence  int       `json:"sequence"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Streaming bool      `json:"streaming"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrStreamOpen   = errors.New("tail message is still streaming")
	ErrNoStreamTail = errors.New("no streaming message at the tail")
)

// Log is the ordered, append-only conversation log. It is not safe for
// concurrent use; the orchestrator serializes every access.
type Log struct {
	entries []Message
	now     func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append adds a finished message at the tail.
func (l *Log) Append(role Role, text string) (Message, error) {
	return l.push(role, text, false)
}

// AppendStreaming adds a message that will keep receiving fragments.
func (l *Log) AppendStreaming(role Role, text string) (Message, error) {
	return l.push(role, text, true)
}

func (l *Log) push(role Role, text string, streaming bool) (Message, error) {
	if l.streamingTail() {
		return Message{}, ErrStreamOpen
	}
	m := Message{
		Sequence:  len(l.entries),
		Role:      role,
		Text:      text,
		Streaming: streaming,
		CreatedAt: l.now(),
	}
	l.entries = append(l.entries, m)
	return m, nil
}

// ExtendTail appends text to the streaming tail message.
func (l *Log) ExtendTail(text string) error {
	if !l.streamingTail() {
		return ErrNoStreamTail
	}
	l.entries[len(l.entries)-1].Text += text
	return nil
}

// SealTail marks the streaming tail as final.
func (l *Log) SealTail() error {
	if !l.streamingTail() {
		return ErrNoStreamTail
	}
	l.entries[len(l.entries)-1].Streaming = false
	return nil
}

// DropTail removes the streaming tail message.
func (l *Log) DropTail() error {
	if !l.streamingTail() {
		return ErrNoStreamTail
	}
	l.entries = l.entries[:len(l.entries)-1]
	return nil
}

// Tail returns the last message, if any.
func (l *Log) Tail() (Message, bool) {
	if len(l.entries) == 0 {
		return Message{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Reset discards every entry.
func (l *Log) Reset() {
	l.entries = nil
}

func (l *Log) Len() int {
	return len(l.entries)
}

// Snapshot returns a copy safe to hand to readers outside the orchestrator.
func (l *Log) Snapshot() []Message {
	out := make([]Message, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) streamingTail() bool {
	return len(l.entries) > 0 && l.entries[len(l.entries)-1].Streaming
}
