// Package lsp implements the LSP concurrency core (C8, C9): the
// preprocessor/typechecker/indexer pipeline, its cancelable slow-path
// typecheck, and the preemptible worker pool that runs it.
package lsp

import "sync"

// Epoch identifies a client-visible state of the workspace. Slow paths
// commit epochs; fast paths never advance lastCommitted on their own
// (spec §4.5.2, GLOSSARY "Epoch").
type Epoch uint32

// TypecheckingStatus is the atomic snapshot of the epoch manager's three
// counters, computed under its single mutex (spec §3 "TypecheckingStatus",
// Design Notes §9: "treat the atomic triple plus one mutex as a single
// protected state").
type TypecheckingStatus struct {
	SlowPathRunning      bool
	SlowPathWasCanceled  bool
	Epoch                Epoch
}

// EpochManager guards the three counters of spec §4.5.2. All three fields
// are protected by mu; the teacher's own cancellation idiom (interp's
// atomic run-id bumped by stop(), compared against the run-id a frame was
// started with) is the model for wasCanceled's compare-and-bump shape, but
// here the comparison must be linearized against startCommitEpoch and
// tryCommitEpoch rather than left as a bare atomic, since the spec's
// invariants span all three counters at once.
type EpochManager struct {
	mu sync.Mutex

	currentlyProcessing Epoch
	invalidator         Epoch
	lastCommitted       Epoch
}

// NewEpochManager returns a manager with all three counters at epoch 0.
func NewEpochManager() *EpochManager {
	return &EpochManager{}
}

// StartCommitEpoch begins processing e on the typechecker thread. Requires
// e to differ from both the last committed epoch and the epoch currently
// being processed; violating this is a programming error in the caller
// (the coordinator never starts two slow paths at once), reported via panic
// rather than a returned error since the condition is only ever caused by a
// bug in this package's own caller, not by anything a workspace edit could
// trigger.
func (m *EpochManager) StartCommitEpoch(e Epoch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e == m.lastCommitted || e == m.currentlyProcessing {
		panic("lsp: StartCommitEpoch called with an epoch already current or committed")
	}
	m.currentlyProcessing = e
	m.invalidator = e
}

// TryCancelSlowPath asks the in-flight slow path (if any) to cancel in
// favor of newEpoch, called from the preprocessor thread. Returns true iff
// a slow path was actually running and is now marked for cancellation.
func (m *EpochManager) TryCancelSlowPath(newEpoch Epoch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentlyProcessing == m.lastCommitted {
		return false
	}
	m.invalidator = newEpoch
	return true
}

// WasTypecheckingCanceled reports whether the epoch currently being
// processed has since been invalidated. Workers poll this cheaply and
// often at safe points (spec §4.5.2, §5 "Suspension points").
func (m *EpochManager) WasTypecheckingCanceled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentlyProcessing != m.invalidator
}

// Status returns a consistent snapshot of all three counters at once,
// never exposing them individually (Design Notes §9).
func (m *EpochManager) Status() TypecheckingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return TypecheckingStatus{
		SlowPathRunning:     m.currentlyProcessing != m.lastCommitted,
		SlowPathWasCanceled: m.currentlyProcessing != m.invalidator,
		Epoch:               m.currentlyProcessing,
	}
}

// LastCommittedEpoch returns the most recently committed epoch.
func (m *EpochManager) LastCommittedEpoch() Epoch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCommitted
}

// WithLock runs fn with a consistent snapshot of the three counters while
// holding the epoch mutex, returning fn's result. The preemption manager
// uses this to make its "is a slow path running and not yet canceled"
// decision atomically with the epoch state, per spec §4.5.3's "under the
// epoch lock" — without exposing the individual counters (Design Notes §9).
func (m *EpochManager) WithLock(fn func(TypecheckingStatus) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(TypecheckingStatus{
		SlowPathRunning:     m.currentlyProcessing != m.lastCommitted,
		SlowPathWasCanceled: m.currentlyProcessing != m.invalidator,
		Epoch:               m.currentlyProcessing,
	})
}

// TryCommitEpoch runs typecheck. Unless isCancelable, that is all it does:
// it returns true and leaves all three counters unchanged. When
// isCancelable, typecheck runs without holding the mutex (so
// WasTypecheckingCanceled stays cheap for the duration); afterward, under
// the mutex, e is promoted to lastCommitted only if it was never
// invalidated, and rolled back to lastCommitted otherwise, matching spec
// §4.5.2 exactly.
func (m *EpochManager) TryCommitEpoch(e Epoch, isCancelable bool, typecheck func()) bool {
	if !isCancelable {
		typecheck()
		return true
	}

	typecheck()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentlyProcessing == m.invalidator {
		m.lastCommitted = e
		return true
	}
	m.currentlyProcessing = m.lastCommitted
	m.invalidator = m.lastCommitted
	return false
}
