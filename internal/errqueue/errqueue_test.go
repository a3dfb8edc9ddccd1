package errqueue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sorbet-go/checker/internal/loc"
	"github.com/sorbet-go/checker/internal/query"
)

func TestDrainFlushedOnlyReturnsFlushedFiles(t *testing.T) {
	q := New()
	const fileA, fileB loc.FileRef = 1, 2

	q.Push(fileA, "a error", false, false)
	q.Push(fileB, "b error", false, false)
	q.MarkFileForFlushing(fileA)

	msgs := q.DrainFlushed()
	require.Len(t, msgs, 1)
	require.Equal(t, "a error", msgs[0].Text)

	q.MarkFileForFlushing(fileB)
	msgs = q.DrainFlushed()
	require.Len(t, msgs, 1)
	require.Equal(t, "b error", msgs[0].Text)
}

func TestSilencedPushesNeverAppearInFlush(t *testing.T) {
	q := New()
	const file loc.FileRef = 1

	q.Push(file, "visible", false, false)
	q.Push(file, "hidden", false, true)
	q.MarkFileForFlushing(file)

	diags := Flush(q.DrainFlushed())
	require.Len(t, diags, 1)
	require.Equal(t, "visible", diags[0].Text)
	require.Equal(t, int64(1), q.NonSilencedCount())
	require.Equal(t, int64(1), q.SilencedCount())
}

func TestFlushOrdersCriticalBeforeRest(t *testing.T) {
	q := New()
	const file loc.FileRef = 1

	q.Push(file, "normal1", false, false)
	q.Push(file, "critical1", true, false)
	q.Push(file, "normal2", false, false)
	q.Push(file, "critical2", true, false)
	q.MarkFileForFlushing(file)

	diags := Flush(q.DrainFlushed())
	require.Equal(t, []string{"critical1", "critical2", "normal1", "normal2"}, []string{
		diags[0].Text, diags[1].Text, diags[2].Text, diags[3].Text,
	})
}

func TestDrainAllReturnsEverythingIncludingUnflushed(t *testing.T) {
	q := New()
	const file loc.FileRef = 1
	q.Push(file, "unflushed", false, false)

	msgs := q.DrainAll()
	require.Len(t, msgs, 1)
	require.Equal(t, "unflushed", msgs[0].Text)
}

func TestFlushQueryResponsesOrdersBySpanThenPosition(t *testing.T) {
	q := New()
	q.PushQueryResponse(query.Response{
		Kind: query.ResponseIdent,
		Loc:  loc.Loc{Offsets: loc.Offsets{Begin: 10, End: 30}},
	})
	q.PushQueryResponse(query.Response{
		Kind: query.ResponseDefinition,
		Loc:  loc.Loc{Offsets: loc.Offsets{Begin: 5, End: 10}},
	})
	q.PushQueryResponse(query.Response{
		Kind: query.ResponseIdent,
		Loc:  loc.Loc{Offsets: loc.Offsets{Begin: 0, End: 5}},
	})

	responses := FlushQueryResponses(q.DrainAll())
	require.Len(t, responses, 3)
	require.Equal(t, 0, responses[0].Loc.Begin)
	require.Equal(t, 5, responses[1].Loc.Begin)
	require.Equal(t, 10, responses[2].Loc.Begin)
}

func TestApplyEditsSkipsOverlapping(t *testing.T) {
	const file loc.FileRef = 1
	sources := map[loc.FileRef]string{file: "hello world"}
	edits := []query.Edit{
		{File: file, Begin: 0, End: 5, Text: "HELLO"},
		{File: file, Begin: 2, End: 7, Text: "XXXXX"}, // overlaps the first, must be skipped
	}
	out := ApplyEdits(sources, edits)
	require.Equal(t, "HELLO world", out[file])
}

func TestApplyEditsMergesAdjacentZeroWidthInsertions(t *testing.T) {
	const file loc.FileRef = 1
	sources := map[loc.FileRef]string{file: "ab"}
	edits := []query.Edit{
		{File: file, Begin: 1, End: 1, Text: "1"},
		{File: file, Begin: 1, End: 1, Text: "2"},
	}
	out := ApplyEdits(sources, edits)
	require.Equal(t, "a12b", out[file])
}
