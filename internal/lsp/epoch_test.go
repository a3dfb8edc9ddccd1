package lsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEpochManagerCommitAdvancesLastCommitted(t *testing.T) {
	m := NewEpochManager()
	ran := false
	ok := m.TryCommitEpoch(1, true, func() { ran = true })
	require.True(t, ok)
	require.True(t, ran)
	require.Equal(t, Epoch(1), m.LastCommittedEpoch())
}

func TestEpochManagerTryCancelSlowPathRequiresInFlightCommit(t *testing.T) {
	m := NewEpochManager()
	require.False(t, m.TryCancelSlowPath(2), "no commit in flight, nothing to cancel")

	m.StartCommitEpoch(5)
	require.True(t, m.TryCancelSlowPath(6))
	require.True(t, m.WasTypecheckingCanceled())
}

func TestEpochManagerCancelableCommitObservesCancellation(t *testing.T) {
	m := NewEpochManager()
	m.StartCommitEpoch(1)
	require.True(t, m.TryCancelSlowPath(2))

	ran := false
	ok := m.TryCommitEpoch(1, true, func() { ran = true })
	require.False(t, ok, "a canceled cancelable commit must not be promoted to lastCommitted")
	require.True(t, ran, "typecheck itself still runs; only the commit is rolled back")
	require.NotEqual(t, Epoch(1), m.LastCommittedEpoch())
}

func TestEpochManagerNonCancelableCommitIgnoresCancellation(t *testing.T) {
	m := NewEpochManager()
	m.StartCommitEpoch(1)
	m.TryCancelSlowPath(2)

	ran := false
	ok := m.TryCommitEpoch(1, false, func() { ran = true })
	require.True(t, ok, "a non-cancelable commit (fast path) always succeeds")
	require.True(t, ran)
}

func TestEpochManagerStartCommitEpochPanicsOnReuse(t *testing.T) {
	m := NewEpochManager()
	m.TryCommitEpoch(1, true, func() {})
	require.Panics(t, func() { m.StartCommitEpoch(1) }, "starting a commit for an already-committed epoch is a caller bug")
}
