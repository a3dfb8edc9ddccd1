package lsp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingTask struct{ n int }

func (t *countingTask) Run() { t.n++ }

func TestTrySchedulePreemptionTaskRequiresRunningUncanceledSlowPath(t *testing.T) {
	epoch := NewEpochManager()
	pm := NewPreemptionManager(epoch)

	task := &countingTask{}
	require.False(t, pm.TrySchedulePreemptionTask(task), "no slow path running yet")

	epoch.StartCommitEpoch(1)
	require.True(t, pm.TrySchedulePreemptionTask(task))

	another := &countingTask{}
	require.False(t, pm.TrySchedulePreemptionTask(another), "a task is already scheduled")
}

func TestTrySchedulePreemptionTaskRejectsCanceledSlowPath(t *testing.T) {
	epoch := NewEpochManager()
	pm := NewPreemptionManager(epoch)

	epoch.StartCommitEpoch(1)
	epoch.TryCancelSlowPath(2)

	require.False(t, pm.TrySchedulePreemptionTask(&countingTask{}))
}

func TestTryRunScheduledPreemptionTaskRunsUnderExclusiveAccess(t *testing.T) {
	epoch := NewEpochManager()
	pm := NewPreemptionManager(epoch)
	epoch.StartCommitEpoch(1)

	release, err := pm.LockPreemption(context.Background())
	require.NoError(t, err)

	task := &countingTask{}
	require.True(t, pm.TrySchedulePreemptionTask(task))

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	ran, err := pm.TryRunScheduledPreemptionTask(ctx, func() func() { return func() {} })
	require.Error(t, err, "writer access can't be acquired while a reader holds the lock")
	require.False(t, ran)

	release()
	ran, err = pm.TryRunScheduledPreemptionTask(context.Background(), func() func() { return func() {} })
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, task.n)
}

func TestTryRunScheduledPreemptionTaskSwapsQueueAroundRun(t *testing.T) {
	epoch := NewEpochManager()
	pm := NewPreemptionManager(epoch)
	epoch.StartCommitEpoch(1)

	sq := NewSwapQueue("original")
	require.True(t, pm.TrySchedulePreemptionTask(&countingTask{}))

	var seenDuringRun string
	_, err := pm.TryRunScheduledPreemptionTask(context.Background(), func() func() {
		prev := sq.Swap("fresh")
		seenDuringRun = sq.Current()
		return func() { sq.Swap(prev) }
	})
	require.NoError(t, err)
	require.Equal(t, "fresh", seenDuringRun)
	require.Equal(t, "original", sq.Current(), "restore must put the prior value back")
}

func TestTryCancelPreemptionOnlyCancelsMatchingToken(t *testing.T) {
	epoch := NewEpochManager()
	pm := NewPreemptionManager(epoch)
	epoch.StartCommitEpoch(1)

	require.True(t, pm.TrySchedulePreemptionTask(&countingTask{}))
	require.False(t, pm.TryCancelPreemption(999), "stale token must not cancel")
	require.True(t, pm.TryCancelPreemption(pm.token))
	require.False(t, pm.TryCancelPreemption(pm.token), "already canceled, nothing left to cancel")
}
