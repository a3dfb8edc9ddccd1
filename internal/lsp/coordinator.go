package lsp

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// WorkerPool runs data-parallel pipeline stages (indexing, resolving,
// inference) bounded to a fixed worker count, the same "checkout a slot,
// release it when done" shape as
// _examples/aclements-go-misc/gopool.BuildletPool.Checkout/Checkin, ported
// from a hand-rolled channel-of-tokens to golang.org/x/sync/errgroup's
// SetLimit plus a semaphore.Weighted for callers that need to checkout a
// slot outside of an errgroup.Group's own Go call (e.g. the coordinator
// reserving capacity before deciding how to split a batch of files).
type WorkerPool struct {
	limit int
	sem   *semaphore.Weighted
}

// NewWorkerPool returns a pool bounded to limit concurrent workers. limit
// <= 0 means "unbounded" (errgroup.Group's default with no SetLimit call).
func NewWorkerPool(limit int) *WorkerPool {
	wp := &WorkerPool{limit: limit}
	if limit > 0 {
		wp.sem = semaphore.NewWeighted(int64(limit))
	}
	return wp
}

// Run executes fn(file) for every file in files, bounded to the pool's
// worker limit, stopping at the first error (errgroup semantics) unless
// ctx is already canceled, in which case Run returns ctx.Err() immediately
// without starting any worker.
func (wp *WorkerPool) Run(ctx context.Context, files []string, fn func(ctx context.Context, file string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	if wp.limit > 0 {
		g.SetLimit(wp.limit)
	}
	for _, f := range files {
		f := f
		g.Go(func() error { return fn(gctx, f) })
	}
	return g.Wait()
}

// Checkout reserves one worker slot outside of Run, for callers (e.g. the
// slow-path typecheck itself while it iterates files one at a time and
// needs to call WasTypecheckingCanceled between each) that want pool
// backpressure without handing the whole loop to errgroup.
func (wp *WorkerPool) Checkout(ctx context.Context) (release func(), err error) {
	if wp.sem == nil {
		return func() {}, nil
	}
	if err := wp.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { wp.sem.Release(1) }, nil
}

// Coordinator is the typechecker-thread role of spec §4.5: it consumes
// Tasks from a TaskQueue, runs each through Preprocess -> Index -> Run up
// to its FinalPhase, and for tasks that need the full pipeline, drives them
// through the epoch manager and preemption manager so a slow path can be
// canceled or briefly paused for a fast preemption task.
type Coordinator struct {
	Queue     *TaskQueue
	Epoch     *EpochManager
	Preempt   *PreemptionManager
	Pool      *WorkerPool
	indexer   interface{} // opaque project state handle passed to CanPreempt/NeedsMultithreading
}

// NewCoordinator wires a Coordinator from its collaborators. indexer is
// passed through unmodified to every Task's capability queries.
func NewCoordinator(queue *TaskQueue, epoch *EpochManager, preempt *PreemptionManager, pool *WorkerPool, indexer interface{}) *Coordinator {
	return &Coordinator{Queue: queue, Epoch: epoch, Preempt: preempt, Pool: pool, indexer: indexer}
}

// RunLoop pops tasks until the queue is terminated, driving each through
// its declared FinalPhase. This is meant to run on the single long-lived
// typechecker thread (spec §5 "one typechecker thread that owns the worker
// pool").
func (c *Coordinator) RunLoop(ctx context.Context) error {
	for {
		task, ok := c.Queue.Pop()
		if !ok {
			return nil
		}
		if err := c.runTask(ctx, task); err != nil {
			return err
		}
	}
}

func (c *Coordinator) runTask(ctx context.Context, task Task) error {
	if err := task.Preprocess(); err != nil {
		return err
	}
	if task.FinalPhase() == PhasePreprocess {
		return nil
	}
	if err := task.Index(); err != nil {
		return err
	}
	if task.FinalPhase() == PhaseIndex {
		return nil
	}

	if !task.NeedsMultithreading(c.indexer) {
		return task.Run()
	}

	// The slow path: hold a reader lock on the typecheck mutex for the
	// whole of task.Run. A scheduled preemption task gets writer access
	// only after Run returns and the lock is released; the lock is not
	// released at intermediate safe points.
	release, err := c.Preempt.LockPreemption(ctx)
	if err != nil {
		return err
	}
	defer release()
	return task.Run()
}

// RunPreemptionCheck makes one attempt to run a scheduled preemption task,
// swapping the error queue for a fresh one for the task's duration via
// swap. ran is false if no task was scheduled.
func (c *Coordinator) RunPreemptionCheck(ctx context.Context, swap func() (restore func())) (ran bool, err error) {
	return c.Preempt.TryRunScheduledPreemptionTask(ctx, swap)
}
