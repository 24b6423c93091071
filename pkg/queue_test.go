package timetagger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrder(t *testing.T) {
	q := newQueue[int]()
	for i := 0; i < 5; i++ {
		q.push(i)
	}
	assert.Equal(t, 5, q.len())

	v, ok := q.tryPop()
	require.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, []int{1, 2, 3, 4}, q.popAll())

	_, ok = q.tryPop()
	assert.False(t, ok)
	assert.Empty(t, q.popAll())
}

func TestQueueWaitTimeout(t *testing.T) {
	q := newQueue[int]()
	start := time.Now()
	assert.Empty(t, q.wait(20*time.Millisecond, nil))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueueWaitWakesOnPush(t *testing.T) {
	q := newQueue[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.push(7)
	}()
	assert.Equal(t, []int{7}, q.wait(0, nil))
}

func TestQueueWaitEndsOnDone(t *testing.T) {
	q := newQueue[int]()
	done := make(chan struct{})
	close(done)
	assert.Empty(t, q.wait(0, done))

	q.push(1)
	assert.Equal(t, []int{1}, q.wait(0, done), "queued items are still returned")
}

func TestLifecycleTransitions(t *testing.T) {
	lc := newLifecycle()
	assert.False(t, lc.transitionReadout(ReadoutStopping, ReadoutActive))
	assert.True(t, lc.transitionReadout(ReadoutStarting, ReadoutIdle))

	go lc.setReadout(ReadoutActive)
	_, r := lc.waitUntil(func(_ WorkerState, r ReadoutState) bool { return r == ReadoutActive })
	assert.Equal(t, ReadoutActive, r)

	assert.True(t, lc.transitionWorker(WorkerStarting, WorkerStopped))
	w, _ := lc.states()
	assert.Equal(t, WorkerStarting, w)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "Running", WorkerRunning.String())
	assert.Equal(t, "Stopping", WorkerStopping.String())
	assert.Equal(t, "Active", ReadoutActive.String())
	assert.Equal(t, "Unknown", ReadoutState(42).String())
}
