package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogStreamingTail(t *testing.T) {
	l := NewLog()
	_, err := l.Append(RoleSystem, "greeting")
	require.NoError(t, err)

	m, err := l.AppendStreaming(RoleAssistant, "he")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Sequence)

	_, err = l.Append(RoleUser, "interrupt")
	assert.ErrorIs(t, err, ErrStreamOpen)
	_, err = l.AppendStreaming(RoleAssistant, "second")
	assert.ErrorIs(t, err, ErrStreamOpen)

	require.NoError(t, l.ExtendTail("llo"))
	require.NoError(t, l.SealTail())

	tail, ok := l.Tail()
	require.True(t, ok)
	assert.Equal(t, "hello", tail.Text)
	assert.False(t, tail.Streaming)

	assert.ErrorIs(t, l.ExtendTail("x"), ErrNoStreamTail)
	assert.ErrorIs(t, l.DropTail(), ErrNoStreamTail)
	assert.Equal(t, 2, l.Len())
}

func TestLogDropTailAndReset(t *testing.T) {
	l := NewLog()
	_, _ = l.Append(RoleSystem, "greeting")
	_, _ = l.AppendStreaming(RoleAssistant, "")

	require.NoError(t, l.DropTail())
	assert.Equal(t, 1, l.Len())

	snap := l.Snapshot()
	snap[0].Text = "mutated"
	tail, _ := l.Tail()
	assert.Equal(t, "greeting", tail.Text)

	l.Reset()
	assert.Equal(t, 0, l.Len())
	_, ok := l.Tail()
	assert.False(t, ok)
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw  string
		want Role
		ok   bool
	}{
		{"user", RoleUser, true},
		{"system", RoleSystem, true},
		{"assistant", RoleAssistant, true},
		{"model", RoleAssistant, true},
		{"follow_up_question", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseRole(tt.raw)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
