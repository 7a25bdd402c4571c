package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventWaitAllAlreadySatisfied checks the synchronous, non-blocking
// path of EventWait directly: when the requested bits are already set,
// the wait returns immediately, and EventClearOnExit clears only the
// bits it matched.
func TestEventWaitAllAlreadySatisfied(t *testing.T) {
	k := NewKernel(DefaultConfig(), NopLogger())
	g, err := k.CreateEventGroup("g")
	require.NoError(t, err)

	task, err := k.TaskCreate("owner", 0, noopEntry, nil)
	require.NoError(t, err)

	k.EventSetFlags(task, g, 0b0111)

	matched, err := k.EventWait(task, g, 0b0011, EventWaitAll|EventClearOnExit, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0b0011), matched)
	assert.Equal(t, uint32(0b0100), k.EventGetFlags(g), "only the matched bits are cleared")
}

// TestEventWaitAllNotYetSatisfiedTimesOut confirms EventWait's non-
// blocking poll (timeout 0) reports ErrTimeout rather than waiting when
// the predicate isn't met, matching SemaphoreTake/QueueReceive's own
// timeout==0 convention.
func TestEventWaitAllNotYetSatisfiedTimesOut(t *testing.T) {
	k := NewKernel(DefaultConfig(), NopLogger())
	g, err := k.CreateEventGroup("g")
	require.NoError(t, err)

	task, err := k.TaskCreate("owner", 0, noopEntry, nil)
	require.NoError(t, err)

	k.EventSetFlags(task, g, 0b0001)

	_, err = k.EventWait(task, g, 0b0011, EventWaitAll, 0)
	assert.ErrorIs(t, err, ErrTimeout)
}

// TestEventWaitAllWaitAndClear drives an all-bits-with-clear wait end to
// end through the real goroutine-backed dispatch loop: W waits for
// both bit 0 and bit 1 with EventClearOnExit; Setter raises bit 0 alone
// first (not enough to satisfy WaitAll, so W stays blocked), then bit 1,
// which completes the predicate and must clear both matched bits
// atomically with waking W.
func TestEventWaitAllWaitAndClear(t *testing.T) {
	k := NewKernel(DefaultConfig(), NopLogger())
	g, err := k.CreateEventGroup("g")
	require.NoError(t, err)

	var matched uint32
	var waitErr error
	waiterTask, err := k.TaskCreate("W", 1, func(arg any) {
		self := k.CurrentTask()
		matched, waitErr = k.EventWait(self, g, 0b0011, EventWaitAll|EventClearOnExit, MaxTimeout)
	}, nil)
	require.NoError(t, err)

	setterTask, err := k.TaskCreate("Setter", 2, func(arg any) {
		self := k.CurrentTask()
		k.TaskDelay(self, 2)
		k.EventSetFlags(self, g, 0b0001)
		k.TaskDelay(self, 2)
		k.EventSetFlags(self, g, 0b0010)
	}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- k.Start() }()

	require.Eventually(t, func() bool {
		return waiterTask.State() == StateTerminated && setterTask.State() == StateTerminated
	}, 2*time.Second, time.Millisecond)

	assert.NoError(t, waitErr)
	assert.Equal(t, uint32(0b0011), matched)
	assert.Equal(t, uint32(0), k.EventGetFlags(g), "both matched bits were cleared on exit")

	k.Stop()
	<-done
}

// TestEventSetFlagsDoesNotWakeUnsatisfiedWaiter exercises the bookkeeping
// side of EventSetFlags directly: a waiter parked on a predicate that
// still isn't met after the set must stay Blocked.
func TestEventSetFlagsDoesNotWakeUnsatisfiedWaiter(t *testing.T) {
	k := NewKernel(DefaultConfig(), NopLogger())
	g, err := k.CreateEventGroup("g")
	require.NoError(t, err)

	waiter, err := k.TaskCreate("waiter", 0, noopEntry, nil)
	require.NoError(t, err)

	k.mu.Lock()
	k.ready[waiter.priority].Remove(waiter)
	waiter.eventWait = eventWait{wanted: 0b0011, options: EventWaitAll}
	k.blockCurrentLocked(waiter, BlockEvent, g, MaxTimeout)
	k.mu.Unlock()

	k.EventSetFlags(nil, g, 0b0001)
	assert.Equal(t, StateBlocked, waiter.State(), "one of two required bits is not enough to wake an AllBits waiter")

	k.EventSetFlags(nil, g, 0b0010)
	assert.Equal(t, StateReady, waiter.State())
}
