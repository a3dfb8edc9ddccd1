package lsp

import "sync"

// TaskQueue is the FIFO of pending Tasks the preprocessor publishes and the
// typechecker coordinator consumes. Unlike internal/errqueue's queue (which
// is drained by polling), the coordinator blocks waiting for work, so this
// type uses a condition variable over "queue non-empty or terminated"
// (spec §5 "The coordinator suspends on the task queue mutex with a
// condition predicate").
type TaskQueue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	tasks      []Task
	terminated bool
}

// NewTaskQueue returns an empty, live TaskQueue.
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues t and wakes one waiting consumer.
func (q *TaskQueue) Push(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return
	}
	q.tasks = append(q.tasks, t)
	q.cond.Signal()
}

// Pop blocks until a task is available or the queue is terminated, in
// which case it returns (nil, false).
func (q *TaskQueue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 && !q.terminated {
		q.cond.Wait()
	}
	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

// Len reports the number of tasks currently queued.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Terminate stops the queue: pending Pop calls and all future ones return
// (nil, false). Idempotent.
func (q *TaskQueue) Terminate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.terminated = true
	q.cond.Broadcast()
}
