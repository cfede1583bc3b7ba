package task

import (
	"context"
	"fmt"
	"runtime/debug"
)

// execRequest carries a promoted task to a worker along with its
// execution context and resolved callable.
type execRequest struct {
	t   *Task
	ctx context.Context
	fn  Func
}

// worker consumes promoted tasks and feeds their outcomes back into the
// queue's state machine. Workers run in parallel with each other and
// with the dispatch coordinator; the coordinator never promotes more
// tasks than there are free slots, so a worker is always available.
func (q *TaskQueue) worker(id int) {
	defer q.wg.Done()

	q.logger.Debug("starting worker", "worker_id", id)
	for {
		select {
		case <-q.ctx.Done():
			q.logger.Debug("stopping worker", "worker_id", id)
			return
		case req := <-q.execCh:
			q.execute(req)
		}
	}
}

// execute runs one task body, converting panics into task failures so a
// broken callable never takes down the pool.
func (q *TaskQueue) execute(req execRequest) {
	defer func() {
		if p := recover(); p != nil {
			q.logger.Error("task panicked",
				"task_id", req.t.ID(),
				"method", req.t.Method(),
				"panic", p)
			q.onExecuted(req.t, nil, fmt.Errorf("task panicked: %v", p), string(debug.Stack()))
		}
	}()

	result, err := req.fn(req.ctx, req.t)
	q.onExecuted(req.t, result, err, "")
}
