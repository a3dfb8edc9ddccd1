package lsp

// Phase is one of the three stages a Task passes through (spec §4.5.1).
type Phase uint8

const (
	PhasePreprocess Phase = iota
	PhaseIndex
	PhaseRun
)

// Task is one unit of work flowing through the preprocessor / indexer /
// typechecker pipeline. A task whose FinalPhase is earlier than PhaseRun is
// discarded after that phase runs (e.g. a pure preprocessing task that
// turns out to need no indexing).
type Task interface {
	// FinalPhase reports the last phase this task actually needs to run.
	FinalPhase() Phase

	// CanPreempt reports whether this task may interrupt an in-progress
	// slow-path typecheck. indexer is an opaque handle to whatever
	// project-wide state the task needs to consult to decide (e.g. "is
	// this file even part of the currently loaded workspace").
	CanPreempt(indexer interface{}) bool

	// NeedsMultithreading reports whether this task must own the worker
	// pool exclusively while it runs (the slow path always does).
	NeedsMultithreading(indexer interface{}) bool

	// Preprocess, Index, and Run implement the three phases. Run is only
	// called if FinalPhase is PhaseRun; Index only if FinalPhase is
	// PhaseIndex or PhaseRun.
	Preprocess() error
	Index() error
	Run() error
}

// BaseTask provides no-op Preprocess/Index/Run and FinalPhase/CanPreempt/
// NeedsMultithreading defaults, so concrete tasks only implement what they
// need — mirroring the teacher's own small-interface, embed-and-override
// idiom (e.g. Options embedding defaults that opt fills in).
type BaseTask struct {
	Final               Phase
	Preemptible         bool
	WantsMultithreading bool
}

func (b BaseTask) FinalPhase() Phase                             { return b.Final }
func (b BaseTask) CanPreempt(interface{}) bool                   { return b.Preemptible }
func (b BaseTask) NeedsMultithreading(interface{}) bool          { return b.WantsMultithreading }
func (b BaseTask) Preprocess() error                              { return nil }
func (b BaseTask) Index() error                                   { return nil }
func (b BaseTask) Run() error                                     { return nil }

// RunFunc adapts a plain function into a Task whose only real work happens
// in Run, for simple fast-path/preemption tasks that don't need a distinct
// index phase (e.g. a hover or definition request).
type RunFunc struct {
	BaseTask
	Fn func() error
}

func (r RunFunc) Run() error { return r.Fn() }
