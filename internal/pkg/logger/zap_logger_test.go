package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	l := NewIsolatedLogger(path, true)

	l.Debug("Test", "first", nil)
	l.Info("Test", "second", map[string]interface{}{"n": 2})
	l.Warn("Test", "third", nil)
	l.Info("Other", "fourth", nil)
	require.NoError(t, l.Sync())

	tests := []struct {
		name  string
		level string
		limit int
		want  []string
	}{
		{name: "all levels newest first", level: "", limit: 10, want: []string{"fourth", "third", "second", "first"}},
		{name: "limit keeps the newest", level: "", limit: 2, want: []string{"fourth", "third"}},
		{name: "level filter", level: "INFO", limit: 10, want: []string{"fourth", "second"}},
		{name: "no match", level: "ERROR", limit: 10, want: []string{}},
		{name: "zero limit", level: "", limit: 0, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := l.Tail(tt.level, tt.limit)
			require.NoError(t, err)
			got := []string{}
			for _, e := range entries {
				got = append(got, e.Message)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	entries, err := l.Tail("INFO", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Other", entries[0].Module)
}

func TestTailMissingFile(t *testing.T) {
	l := &ZapLogger{logger: NewNopLogger().logger, filePath: filepath.Join(t.TempDir(), "missing.log")}
	entries, err := l.Tail("", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = NewNopLogger().Tail("", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
