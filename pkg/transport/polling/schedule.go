package polling

import (
	"context"
	"sync/atomic"
	"time"

	"promochat/pkg/chat/state"
	"promochat/pkg/chaterr"
	"promochat/pkg/events"
	"promochat/pkg/transport"
)

type pollTask struct {
	sessionID string
	stage     state.Stage
	cancel    context.CancelFunc
	done      chan struct{}
}

type pollResult struct {
	result events.StageResult
	err    error
}

// RescheduleFor replaces the active poll task with one for the given stage.
func (a *Adapter) RescheduleFor(sessionID string, stage state.Stage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopTaskLocked()
	if a.status != transport.StatusOpen {
		return
	}
	if _, err := endpointFor(stage); err != nil {
		a.logger.Error(module, "Cannot poll stage", map[string]interface{}{"stage": stage, "error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(a.ctx)
	task := &pollTask{sessionID: sessionID, stage: stage, cancel: cancel, done: make(chan struct{})}
	a.task = task

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(task.done)
		a.run(ctx, task)
	}()
	a.logger.Debug(module, "Poll task scheduled", map[string]interface{}{"session_id": sessionID, "stage": stage})
}

func (a *Adapter) CancelSchedule() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTaskLocked()
}

// stopTaskLocked cancels the active task and waits for its loop to exit.
// Requests already on the wire finish on their own and are dropped.
func (a *Adapter) stopTaskLocked() {
	if a.task == nil {
		return
	}
	a.task.cancel()
	<-a.task.done
	a.task = nil
}

func (a *Adapter) run(ctx context.Context, task *pollTask) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	var (
		started  = time.Now()
		inFlight atomic.Bool
		results  = make(chan pollResult, 1)
		running  int
		failures int
	)

	emit := func(ev events.Event) {
		if ctx.Err() == nil {
			a.Emit(ev)
		}
	}
	timeout := func() {
		err := &chaterr.StageTimeout{Stage: string(task.stage), Polls: running, Elapsed: time.Since(started)}
		a.logger.Warn(module, "Stage timed out", map[string]interface{}{"session_id": task.sessionID, "error": err.Error()})
		emit(events.StageTimeout{
			Meta:    transport.NewMeta(task.sessionID, ""),
			Stage:   task.stage,
			Polls:   running,
			Elapsed: err.Elapsed,
		})
	}
	poll := func() {
		// At most one status request per stage; a busy tick is skipped.
		if !inFlight.CompareAndSwap(false, true) {
			return
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			res, err := a.pollOnce(task.sessionID, task.stage)
			select {
			case results <- pollResult{result: res, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if a.cfg.StageBudget > 0 && time.Since(started) > a.cfg.StageBudget {
				timeout()
				return
			}
			poll()

		case r := <-results:
			inFlight.Store(false)
			if r.err != nil {
				failures++
				a.logger.Debug(module, "Status request failed", map[string]interface{}{
					"stage": task.stage, "failures": failures, "error": r.err.Error(),
				})
				if failures > a.cfg.MaxPollErrors {
					emit(events.TransportFailure{
						Meta: transport.NewMeta(task.sessionID, ""),
						Err:  &chaterr.TransportError{Op: "poll " + string(task.stage), Err: r.err},
					})
					return
				}
				continue
			}
			failures = 0

			if r.result.Outcome == events.OutcomeRunning {
				running++
				if a.cfg.MaxPolls > 0 && running >= a.cfg.MaxPolls {
					timeout()
					return
				}
				continue
			}

			r.result.Meta = transport.NewMeta(task.sessionID, "")
			emit(r.result)
			return
		}
	}
}
