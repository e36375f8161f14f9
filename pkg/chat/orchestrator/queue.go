package orchestrator

import (
	"context"
	"sync"
)

type job func()

// queue is an unbounded FIFO drained by a single goroutine. Pushing never
// blocks, so transport callbacks and timers can enqueue from any goroutine.
type queue struct {
	mu    sync.Mutex
	items []job
	wake  chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) push(j job) {
	q.mu.Lock()
	q.items = append(q.items, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) take() []job {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// run executes jobs in push order until ctx is done.
func (q *queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
			for _, j := range q.take() {
				if ctx.Err() != nil {
					return
				}
				j()
			}
		}
	}
}
