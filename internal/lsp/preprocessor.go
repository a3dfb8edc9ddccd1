package lsp

import (
	"sync"
	"sync/atomic"
)

// WorkspaceEditTask is the Go counterpart of SorbetWorkspaceEditTask (spec
// §4.5.1): it indexes its merged edits into a FileUpdates, decides fast vs.
// slow via DecideFastPath, then runs the fast path directly or the slow
// path (cancelable, preemptible) under the coordinator's preemption lock.
type WorkspaceEditTask struct {
	BaseTask

	Updates FileUpdates

	// EditCount is the count the caller passes to NewWorkspaceEditTask
	// (Server.handleEdit passes the number of files in the update). No
	// code in this package reads it; the mergedEdits counter is computed
	// by Preprocessor.Flush.
	EditCount int

	runFast func(FileUpdates) error
	runSlow func(FileUpdates) (committed bool, err error)
}

// NewWorkspaceEditTask returns a task that will run fast or slow according
// to updates.CanTakeFastPath, already decided by the preprocessor before
// construction.
func NewWorkspaceEditTask(updates FileUpdates, editCount int, runFast func(FileUpdates) error, runSlow func(FileUpdates) (bool, error)) *WorkspaceEditTask {
	t := &WorkspaceEditTask{
		Updates:   updates,
		EditCount: editCount,
		runFast:   runFast,
		runSlow:   runSlow,
	}
	t.Final = PhaseRun
	t.Preemptible = !updates.CanTakeFastPath // only the slow path is preemptible-against
	t.WantsMultithreading = !updates.CanTakeFastPath
	return t
}

func (t *WorkspaceEditTask) Run() error {
	if t.Updates.CanTakeFastPath {
		return t.runFast(t.Updates)
	}
	committed, err := t.runSlow(t.Updates)
	t.Updates.CanceledSlowPath = !committed
	return err
}

// Counters accumulates the small set of named counters the LSP pipeline
// reports, e.g. "lsp.messages.processed/sorbet.mergedEdits" (spec §8 S6).
// One Counters is shared across the preprocessor and coordinator; Add is
// safe for concurrent use.
type Counters struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewCounters returns an empty Counters.
func NewCounters() *Counters { return &Counters{values: map[string]int64{}} }

// Add increments name by delta.
func (c *Counters) Add(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = map[string]int64{}
	}
	c.values[name] += delta
}

// Get returns the current value of name.
func (c *Counters) Get(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

// PendingEdit is one raw per-file edit observed by the preprocessor before
// merging, e.g. from textDocument/didChange or a watchman notification.
type PendingEdit struct {
	Path    string
	Content string
}

// Preprocessor dequeues raw edits, merges consecutive edits to the same
// file (spec §4.5.1: "merges consecutive edits to the same file before
// they hit the task queue"), and publishes WorkspaceEditTasks onto Out.
// It also owns the open-document set and the per-file ErrorStatus table
// diagnostics publishing checks against (spec §4.5.5).
type Preprocessor struct {
	Out      *TaskQueue
	Counters *Counters

	mu          sync.Mutex
	pending     map[string][]PendingEdit // path -> edits not yet flushed to a task
	openDocs    map[string]bool
	nextEpoch   Epoch
	errStatus   map[string]ErrorStatus
	shadowStatus map[string]ErrorStatus // uncommitted, merged on TryCommitEpoch success
}

// NewPreprocessor returns a Preprocessor publishing tasks onto out.
func NewPreprocessor(out *TaskQueue, counters *Counters) *Preprocessor {
	return &Preprocessor{
		Out:          out,
		Counters:     counters,
		pending:      map[string][]PendingEdit{},
		openDocs:     map[string]bool{},
		errStatus:    map[string]ErrorStatus{},
		shadowStatus: map[string]ErrorStatus{},
	}
}

// MergeEdit folds e into the in-flight merge buffer for its path. Call this
// for every raw didChange/watchman notification as it's dequeued; call
// Flush once the preprocessor decides the current batch is done (e.g. the
// raw message queue has drained), which is when merged edits actually
// become one WorkspaceEditTask, preserving arrival order per file (spec §5
// "Ordering guarantees").
func (p *Preprocessor) MergeEdit(e PendingEdit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[e.Path] = append(p.pending[e.Path], e)
}

// Flush turns every path's merge buffer into file updates, constructs a
// WorkspaceEditTask via build, and pushes it onto Out. If nothing is
// pending, Flush is a no-op. The "lsp.messages.processed/sorbet.mergedEdits"
// counter is incremented by (editCount-1) per path with more than one
// merged edit (spec §8 S6: three edits to one file -> +2).
func (p *Preprocessor) Flush(build func(merged []FileUpdate) *WorkspaceEditTask) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	var merged []FileUpdate
	totalEdits := 0
	for path, edits := range p.pending {
		totalEdits += len(edits)
		if len(edits) > 1 {
			p.Counters.Add("lsp.messages.processed/sorbet.mergedEdits", int64(len(edits)-1))
		}
		last := edits[len(edits)-1]
		merged = append(merged, FileUpdate{Path: path, Content: last.Content})
	}
	p.pending = map[string][]PendingEdit{}
	p.mu.Unlock()

	task := build(merged)
	if task == nil {
		return
	}
	p.Out.Push(task)
}

// OpenDocument / CloseDocument track textDocument/didOpen and didClose.
func (p *Preprocessor) OpenDocument(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openDocs[path] = true
}

func (p *Preprocessor) CloseDocument(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.openDocs, path)
}

func (p *Preprocessor) IsOpen(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openDocs[path]
}

// ErrorStatus tracks a file's diagnostics publication state (spec §4.5.5).
type ErrorStatus struct {
	LastReportedEpoch Epoch
	HasErrors         bool
}

// ShouldPublish reports whether diagnostics for path at currentEpoch
// carrying hasErrors should actually be pushed to the client, per §4.5.5's
// two conditions.
func (p *Preprocessor) ShouldPublish(path string, currentEpoch Epoch, hasErrors bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, ok := p.errStatus[path]
	if ok && currentEpoch < prev.LastReportedEpoch {
		return false
	}
	return hasErrors || (ok && prev.HasErrors)
}

// RecordPublished records that diagnostics for path were published at
// epoch e with the given error state, both to the shadow table (always)
// and, if committed is true, to the committed table directly.
func (p *Preprocessor) RecordPublished(path string, e Epoch, hasErrors, committed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := ErrorStatus{LastReportedEpoch: e, HasErrors: hasErrors}
	p.shadowStatus[path] = status
	if committed {
		p.errStatus[path] = status
	}
}

// MergeShadowOnCommit copies every shadow status into the committed table,
// called by the coordinator only after EpochManager.TryCommitEpoch returns
// true for the epoch those shadow statuses were recorded against (spec
// §4.5.5 "merged into the committed table only on tryCommitEpoch success").
func (p *Preprocessor) MergeShadowOnCommit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for path, status := range p.shadowStatus {
		p.errStatus[path] = status
	}
	p.shadowStatus = map[string]ErrorStatus{}
}

// AllocateEpoch returns a fresh, monotonically increasing epoch for a new
// batch of changes.
func (p *Preprocessor) AllocateEpoch() Epoch {
	return Epoch(atomic.AddUint32((*uint32)(&p.nextEpoch), 1))
}
