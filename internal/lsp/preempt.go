package lsp

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// writerWeight is the full weight of the typecheck semaphore. A slow-path
// worker acquires 1 of writerWeight while running (the "reader" side of
// spec §4.5.3's "typecheck mutex"); tryRunScheduledPreemptionTask acquires
// the full weight, which cannot succeed until every worker has released,
// giving it exclusive "writer" access. golang.org/x/sync/semaphore has no
// native reader/writer mode; weighting readers at 1 and the writer at the
// full capacity is the standard way to emulate one with a single weighted
// semaphore, and is the only member of the x/sync family that fits this
// shape (errgroup has no acquire-then-release-on-demand primitive).
const writerWeight = 1 << 20

// PreemptTask is a short unit of work that may run on the typechecker
// thread in the middle of an in-flight, not-yet-canceled slow path.
type PreemptTask interface {
	Run()
}

// PreemptionManager implements spec §4.5.3. epoch is the same
// *EpochManager the coordinator uses for slow-path cancellation; scheduling
// a preemption task is only legal while a slow path is running and has not
// already been canceled, a decision made atomically with the epoch state
// via EpochManager.WithLock.
type PreemptionManager struct {
	epoch *EpochManager
	sem   *semaphore.Weighted

	mu        sync.Mutex
	scheduled PreemptTask
	token     uint64 // bumped whenever scheduled changes, for TryCancelPreemption
}

// NewPreemptionManager returns a manager guarding slow-path workers
// registered via the returned manager's LockPreemption against preemption
// tasks scheduled via TrySchedulePreemptionTask.
func NewPreemptionManager(epoch *EpochManager) *PreemptionManager {
	return &PreemptionManager{epoch: epoch, sem: semaphore.NewWeighted(writerWeight)}
}

// TrySchedulePreemptionTask stores task to run at the next safe point, iff
// a slow path is running, has not been canceled, and no task is already
// scheduled. Called from the preprocessor thread.
func (p *PreemptionManager) TrySchedulePreemptionTask(task PreemptTask) bool {
	return p.epoch.WithLock(func(st TypecheckingStatus) bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		if st.SlowPathRunning && !st.SlowPathWasCanceled && p.scheduled == nil {
			p.scheduled = task
			p.token++
			return true
		}
		return false
	})
}

// TryCancelPreemption cancels a scheduled-but-not-yet-run preemption task
// if token still identifies the currently scheduled one (i.e. it has not
// already started running via TryRunScheduledPreemptionTask, which clears
// scheduled before releasing its caller).
func (p *PreemptionManager) TryCancelPreemption(token uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scheduled != nil && p.token == token {
		p.scheduled = nil
		return true
	}
	return false
}

// SwapQueue holds a value, such as the error queue, that a preemption task
// swaps out for a fresh instance and restores afterward (spec §4.5.3's
// "swap a fresh error queue in ... restore the error queue").
type SwapQueue[T any] struct {
	mu      sync.Mutex
	current T
}

// NewSwapQueue wraps an initial queue value.
func NewSwapQueue[T any](initial T) *SwapQueue[T] { return &SwapQueue[T]{current: initial} }

// Swap installs next and returns the previous value.
func (s *SwapQueue[T]) Swap(next T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	s.current = next
	return prev
}

// Current returns the currently installed value.
func (s *SwapQueue[T]) Current() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// TryRunScheduledPreemptionTask runs the scheduled task, if any, under
// exclusive ("writer") access to the typecheck mutex: every slow-path
// worker holding a LockPreemption reader lock must have released first.
// swapQueue takes no arguments: it is called immediately before running
// the task to install a fresh queue, and is expected to restore the prior
// value when the returned restore func is invoked; callers typically pass
// a closure over a *SwapQueue. Returns false if nothing was scheduled.
func (p *PreemptionManager) TryRunScheduledPreemptionTask(ctx context.Context, swapQueue func() (restore func())) (bool, error) {
	p.mu.Lock()
	task := p.scheduled
	p.mu.Unlock()
	if task == nil {
		return false, nil
	}

	if err := p.sem.Acquire(ctx, writerWeight); err != nil {
		return false, err
	}
	defer p.sem.Release(writerWeight)

	p.mu.Lock()
	task = p.scheduled
	p.scheduled = nil
	p.mu.Unlock()
	if task == nil {
		return false, nil
	}

	restore := swapQueue()
	defer restore()
	task.Run()
	return true, nil
}

// LockPreemption acquires the typecheck mutex in reader mode: a slow-path
// worker holds this while doing CPU-bound work, and must call the returned
// release func periodically (spec §5 "Suspension points": "the typecheck
// mutex when acquiring in reader mode") so a scheduled preemption task
// actually gets a chance to acquire writer access.
func (p *PreemptionManager) LockPreemption(ctx context.Context) (release func(), err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	released := false
	return func() {
		if !released {
			released = true
			p.sem.Release(1)
		}
	}, nil
}
