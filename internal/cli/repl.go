package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"promochat/pkg/chat/orchestrator"
	"promochat/pkg/chaterr"
)

// Session is the part of the orchestrator the REPL drives.
type Session interface {
	CreateSession(ctx context.Context) error
	SubmitUserMessage(ctx context.Context, text string) error
	RefreshStage(ctx context.Context) error
	Snapshot() orchestrator.Snapshot
}

const helpText = `commands:
  /new      start a new conversation
  /refresh  ask the backend for the current stage once
  /status   show the status line
  /help     show this help
  /quit     leave`

// REPL reads lines from in until EOF, /quit or ctx is done.
type REPL struct {
	session  Session
	renderer *Renderer
	out      io.Writer
}

func NewREPL(session Session, renderer *Renderer, out io.Writer) *REPL {
	return &REPL{session: session, renderer: renderer, out: out}
}

func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := r.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// handle executes one input line and reports whether the user asked to quit.
func (r *REPL) handle(ctx context.Context, line string) bool {
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		r.println(helpText)
		return false
	case "/status":
		r.println(StatusLine(r.session.Snapshot().Status))
		return false
	case "/new":
		r.report(r.session.CreateSession(ctx))
		return false
	case "/refresh":
		r.report(r.session.RefreshStage(ctx))
		return false
	}
	if strings.HasPrefix(line, "/") {
		r.renderer.Errorf("unknown command %s, try /help", line)
		return false
	}
	r.report(r.session.SubmitUserMessage(ctx, line))
	return false
}

func (r *REPL) report(err error) {
	if err == nil {
		return
	}
	var verr *chaterr.ValidationError
	switch {
	case errors.As(err, &verr):
		r.renderer.Errorf("not now: %s", verr.Error())
	case errors.Is(err, orchestrator.ErrDisposed), errors.Is(err, context.Canceled):
	default:
		r.renderer.Errorf("error: %v", err)
	}
}

func (r *REPL) println(s string) {
	io.WriteString(r.out, s+"\n")
}
