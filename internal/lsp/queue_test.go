package lsp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskQueuePopBlocksUntilPush(t *testing.T) {
	q := NewTaskQueue()
	done := make(chan Task, 1)
	go func() {
		task, ok := q.Pop()
		require.True(t, ok)
		done <- task
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	want := &RunFunc{Fn: func() error { return nil }}
	q.Push(want)

	select {
	case got := <-done:
		require.Same(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("Pop never woke up after Push")
	}
}

func TestTaskQueueTerminateWakesAllWaiters(t *testing.T) {
	q := NewTaskQueue()
	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, ok := q.Pop()
			results <- ok
		}()
	}
	time.Sleep(20 * time.Millisecond)
	q.Terminate()

	for i := 0; i < 3; i++ {
		select {
		case ok := <-results:
			require.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("a waiter never woke up after Terminate")
		}
	}
}

func TestTaskQueuePushAfterTerminateIsDropped(t *testing.T) {
	q := NewTaskQueue()
	q.Terminate()
	q.Push(RunFunc{})
	require.Equal(t, 0, q.Len())
}

func TestTaskQueueFIFOOrder(t *testing.T) {
	q := NewTaskQueue()
	order := []int{}
	for i := 0; i < 3; i++ {
		i := i
		q.Push(RunFunc{Fn: func() error { order = append(order, i); return nil }})
	}
	for i := 0; i < 3; i++ {
		task, ok := q.Pop()
		require.True(t, ok)
		require.NoError(t, task.Run())
	}
	require.Equal(t, []int{0, 1, 2}, order)
}
