// Package errqueue implements the thread-safe error pipeline (C6): a
// multi-producer, single-consumer queue of diagnostics and query
// responses, file-scoped flush barriers, and the emission/autocorrect
// ordering rules of spec §4.3.
package errqueue

import (
	"sort"
	"sync/atomic"

	"github.com/sorbet-go/checker/internal/fatal"
	"github.com/sorbet-go/checker/internal/loc"
	"github.com/sorbet-go/checker/internal/query"
)

// MessageKind tags a Message's role in the pipeline.
type MessageKind uint8

const (
	MessageError MessageKind = iota
	MessageFlush
	MessageQueryResponse
)

// Message is one item enqueued by a producer. Flush/FlushQueryResponses
// consume the kinds they care about and ignore the rest.
type Message struct {
	Kind     MessageKind
	File     loc.FileRef
	Text     string
	Critical bool
	Silenced bool
	Response query.Response
}

// Queue is the multi-producer, single-consumer error/query-response
// pipeline. Pushes may come from any goroutine; DrainFlushed/DrainAll
// must only ever be called from the single designated consumer. The
// runtime check (the Go stand-in for the source's checkOwned ENFORCE,
// since Go has no public thread-identity API to compare against) only
// detects two drains that overlap in time; drains made one after another
// from different goroutines are not detected.
type Queue struct {
	q queue[Message]

	nonSilencedCount atomic.Int64
	silencedCount    atomic.Int64

	collected map[loc.FileRef][]Message
	draining  atomic.Bool
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{collected: make(map[loc.FileRef][]Message)}
}

func (eq *Queue) enterDrain() {
	fatal.Enforce(eq.draining.CompareAndSwap(false, true), "errqueue: concurrent drain calls from more than one consumer")
}

func (eq *Queue) exitDrain() { eq.draining.Store(false) }

// Push enqueues a diagnostic tagged with the file it primarily concerns.
// A silenced error still counts toward the silenced counter but is never
// rendered.
func (eq *Queue) Push(file loc.FileRef, text string, critical, silenced bool) {
	if silenced {
		eq.silencedCount.Add(1)
	} else {
		eq.nonSilencedCount.Add(1)
	}
	eq.q.push(Message{Kind: MessageError, File: file, Text: text, Critical: critical, Silenced: silenced})
}

// PushQueryResponse enqueues r, routed through the same queue as
// diagnostics per spec §4.4.
func (eq *Queue) PushQueryResponse(r query.Response) {
	eq.q.push(Message{Kind: MessageQueryResponse, Response: r})
}

// MarkFileForFlushing emits a barrier: every message already enqueued
// for file on this goroutine is guaranteed to appear in the next drain
// caused by this barrier.
func (eq *Queue) MarkFileForFlushing(file loc.FileRef) {
	eq.q.push(Message{Kind: MessageFlush, File: file})
}

func (eq *Queue) collectForFile(file loc.FileRef, out []Message) []Message {
	msgs, ok := eq.collected[file]
	if !ok {
		return out
	}
	out = append(out, msgs...)
	delete(eq.collected, file)
	return out
}

func (eq *Queue) drainFlushedLocked() []Message {
	var out []Message
	for _, msg := range eq.q.drainAll() {
		if msg.Kind == MessageFlush {
			out = eq.collectForFile(msg.File, out)
			out = eq.collectForFile(loc.FileRef(0), out)
		} else {
			eq.collected[msg.File] = append(eq.collected[msg.File], msg)
		}
	}
	return out
}

// DrainFlushed returns every message belonging to a file whose barrier
// has been observed, in enqueue order per file.
func (eq *Queue) DrainFlushed() []Message {
	eq.enterDrain()
	defer eq.exitDrain()
	return eq.drainFlushedLocked()
}

// DrainAll returns everything queued, flushed or not, clearing the
// queue entirely.
func (eq *Queue) DrainAll() []Message {
	eq.enterDrain()
	defer eq.exitDrain()
	out := eq.drainFlushedLocked()
	for file, msgs := range eq.collected {
		out = append(out, msgs...)
		delete(eq.collected, file)
	}
	return out
}

// NonSilencedCount returns the number of non-silenced errors pushed so
// far.
func (eq *Queue) NonSilencedCount() int64 { return eq.nonSilencedCount.Load() }

// SilencedCount returns the number of silenced errors pushed so far.
func (eq *Queue) SilencedCount() int64 { return eq.silencedCount.Load() }

// Diagnostic is one rendered, ordered diagnostic emitted by Flush.
type Diagnostic struct {
	File     loc.FileRef
	Text     string
	Critical bool
}

// Flush partitions drained messages by isCritical, printing critical
// first while preserving intra-file order within each partition (§4.3
// "Ordering on emission").
func Flush(msgs []Message) []Diagnostic {
	var critical, rest []Diagnostic
	for _, m := range msgs {
		if m.Kind != MessageError || m.Silenced {
			continue
		}
		d := Diagnostic{File: m.File, Text: m.Text, Critical: m.Critical}
		if m.Critical {
			critical = append(critical, d)
		} else {
			rest = append(rest, d)
		}
	}
	return append(critical, rest...)
}

// FlushQueryResponses sorts the query.Response-kind messages drained
// from the queue by (span length asc, beginPos asc, endPos asc,
// kind-specificity desc), per §4.3. The sort is stable.
func FlushQueryResponses(msgs []Message) []query.Response {
	var responses []query.Response
	for _, m := range msgs {
		if m.Kind == MessageQueryResponse {
			responses = append(responses, m.Response)
		}
	}
	sort.SliceStable(responses, func(i, j int) bool {
		a, b := responses[i], responses[j]
		spanA, spanB := a.Loc.End-a.Loc.Begin, b.Loc.End-b.Loc.Begin
		if spanA != spanB {
			return spanA < spanB
		}
		if a.Loc.Begin != b.Loc.Begin {
			return a.Loc.Begin < b.Loc.Begin
		}
		if a.Loc.End != b.Loc.End {
			return a.Loc.End < b.Loc.End
		}
		return a.Kind.Specificity() > b.Kind.Specificity()
	})
	return responses
}

// normalizeEdits merges adjacent zero-width insertions at the same
// position, in insertion order, before ApplyEdits sorts and applies
// them (§4.3 "pre-normalize").
func normalizeEdits(edits []query.Edit) []query.Edit {
	var out []query.Edit
	for _, e := range edits {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.File == e.File && last.Begin == last.End && e.Begin == e.End && last.Begin == e.Begin {
				last.Text += e.Text
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// ApplyEdits applies autocorrect edits to sources (file -> content),
// returning the new content per file. Overlap resolution keeps, among any
// set of overlapping edits, the one that comes first in ascending
// (file, beginPos) order (§3 "overlapping edits are dropped after the
// first"; §8 S3): edits are walked in that order to decide which ones survive, tracking
// the spans already claimed. The surviving edits are then spliced into
// each file from the end backward (descending beginPos), since applying
// earlier-in-file edits first would invalidate the byte offsets of edits
// still to come.
func ApplyEdits(sources map[loc.FileRef]string, edits []query.Edit) map[loc.FileRef]string {
	edits = normalizeEdits(edits)

	ascending := make([]query.Edit, len(edits))
	copy(ascending, edits)
	sort.SliceStable(ascending, func(i, j int) bool {
		if ascending[i].File != ascending[j].File {
			return ascending[i].File < ascending[j].File
		}
		return ascending[i].Begin < ascending[j].Begin
	})

	var survivors []query.Edit
	claimed := map[loc.FileRef][][2]int{}
	for _, e := range ascending {
		overlaps := false
		for _, span := range claimed[e.File] {
			if e.Begin < span[1] && span[0] < e.End {
				overlaps = true
				break
			}
			if e.Begin == e.End && e.Begin >= span[0] && e.Begin <= span[1] {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		claimed[e.File] = append(claimed[e.File], [2]int{e.Begin, e.End})
		survivors = append(survivors, e)
	}

	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].File != survivors[j].File {
			return survivors[i].File > survivors[j].File
		}
		return survivors[i].Begin > survivors[j].Begin
	})

	out := make(map[loc.FileRef]string, len(sources))
	for f, s := range sources {
		out[f] = s
	}

	for _, e := range survivors {
		content, ok := out[e.File]
		if !ok {
			continue
		}
		if e.Begin < 0 || e.End > len(content) || e.Begin > e.End {
			continue
		}
		out[e.File] = content[:e.Begin] + e.Text + content[e.End:]
	}
	return out
}
