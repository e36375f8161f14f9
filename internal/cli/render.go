package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"promochat/pkg/chat/message"
	"promochat/pkg/chat/orchestrator"
	"promochat/pkg/chat/status"

	"github.com/fatih/color"
)

var (
	userColor      = color.New(color.FgGreen, color.Bold)
	assistantColor = color.New(color.FgCyan)
	systemColor    = color.New(color.FgYellow)
	activityColor  = color.New(color.FgHiBlack)
	errorColor     = color.New(color.FgRed)
)

// Renderer prints the conversation incrementally from successive snapshots.
// A streaming tail is printed as it grows.
type Renderer struct {
	out          io.Writer
	showActivity bool

	printed    int
	streamed   int
	lastAt     time.Time
	lastStatus status.View
	session    string
}

func NewRenderer(out io.Writer, showActivity bool) *Renderer {
	return &Renderer{out: out, showActivity: showActivity}
}

func (r *Renderer) Render(s orchestrator.Snapshot) {
	if len(s.Messages) < r.printed || (r.session != "" && s.SessionID != "" && s.SessionID != r.session) {
		fmt.Fprintln(r.out, activityColor.Sprint("──────── new conversation ────────"))
		r.printed, r.streamed = 0, 0
		r.lastAt = time.Time{}
	}
	if s.SessionID != "" {
		r.session = s.SessionID
	}

	if r.showActivity {
		for _, a := range s.Activity {
			if !a.At.After(r.lastAt) {
				continue
			}
			r.lastAt = a.At
			line := "· " + a.Title
			if a.Elapsed != "" {
				line += " (" + a.Elapsed + "s)"
			}
			fmt.Fprintln(r.out, activityColor.Sprint(line))
		}
	}

	for r.printed < len(s.Messages) {
		m := s.Messages[r.printed]
		if r.streamed == 0 {
			fmt.Fprint(r.out, prefix(m.Role))
		}
		if r.streamed < len(m.Text) {
			fmt.Fprint(r.out, colorFor(m.Role).Sprint(m.Text[r.streamed:]))
		}
		if m.Streaming {
			r.streamed = len(m.Text)
			break
		}
		fmt.Fprintln(r.out)
		r.printed++
		r.streamed = 0
	}

	if s.Status != r.lastStatus {
		r.lastStatus = s.Status
		if r.streamed == 0 {
			fmt.Fprintln(r.out, activityColor.Sprint(StatusLine(s.Status)))
		}
	}
}

// StatusLine summarises the projected status in one line.
func StatusLine(v status.View) string {
	mark := func(done bool) string {
		if done {
			return "✓"
		}
		return "…"
	}
	parts := []string{
		"analysis " + mark(v.AnalysisDone),
		"search " + mark(v.SearchDone),
		"result " + mark(v.ResultDone),
	}
	state := "ready"
	switch {
	case v.Failed:
		state = "failed"
	case v.Busy:
		state = "working"
	}
	return "[" + state + "] " + strings.Join(parts, " · ")
}

// Errorf prints a client-side error line.
func (r *Renderer) Errorf(format string, args ...any) {
	fmt.Fprintln(r.out, errorColor.Sprintf(format, args...))
}

func prefix(role message.Role) string {
	switch role {
	case message.RoleUser:
		return userColor.Sprint("you› ")
	case message.RoleAssistant:
		return assistantColor.Sprint("bot› ")
	}
	return systemColor.Sprint("sys› ")
}

func colorFor(role message.Role) *color.Color {
	switch role {
	case message.RoleUser:
		return userColor
	case message.RoleAssistant:
		return assistantColor
	}
	return systemColor
}

func colorForLevel(level string) *color.Color {
	switch level {
	case "ERROR", "DPANIC", "PANIC", "FATAL":
		return errorColor
	case "WARN":
		return systemColor
	case "DEBUG":
		return activityColor
	}
	return color.New(color.Reset)
}
