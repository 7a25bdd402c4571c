package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMutexPriorityInheritance drives the textbook priority-inversion
// scenario end to end through the real goroutine-backed dispatch loop (the
// uncontended MutexLock fast path used to seed L's ownership is safe to
// call directly; the contended path that blocks H is not, since it parks
// on the calling task's own resumeCh — see context.go's calling
// convention — so this test must let the scheduler actually run it).
//
// L (priority 5) locks the mutex first. Med (priority 3) represents
// unrelated work that would otherwise starve L without inheritance. H
// (priority 1) then blocks on the same mutex, boosting L to its own
// priority for the duration of the hold; once L releases, ownership
// passes directly to H and L's priority reverts.
func TestMutexPriorityInheritance(t *testing.T) {
	k := NewKernel(DefaultConfig(), NopLogger())
	mx, err := k.CreateMutex("bus")
	require.NoError(t, err)

	// Task entry functions run on their own goroutines, where testify's
	// require/assert must not be called (t.FailNow must only run on the
	// test's own goroutine) — H's entry stashes any unexpected error here
	// for the test goroutine to check once it has finished. L's own
	// MutexUnlock call parks mid-call once H preempts it and only returns
	// after H terminates and L is redispatched, so the test does not wait
	// on L's completion.
	var hErr error

	lTask, err := k.TaskCreate("L", 5, func(arg any) {
		self := k.CurrentTask()
		k.MutexLock(self, mx, MaxTimeout)
		k.TaskDelay(self, 50)
		k.MutexUnlock(self, mx)
	}, nil)
	require.NoError(t, err)

	_, err = k.TaskCreate("Med", 3, func(arg any) {
		self := k.CurrentTask()
		k.TaskDelay(self, 1000)
	}, nil)
	require.NoError(t, err)

	hTask, err := k.TaskCreate("H", 1, func(arg any) {
		self := k.CurrentTask()
		k.TaskDelay(self, 3)
		hErr = k.MutexLock(self, mx, MaxTimeout)
		if hErr == nil {
			hErr = k.MutexUnlock(self, mx)
		}
	}, nil)
	require.NoError(t, err)

	// Unpaced ticks would run the whole boost window (tick 3 to tick 50)
	// faster than one 1ms poll below; pacing at the tick period keeps L
	// boosted for roughly half a second.
	k.SetRealTimePacing(true)

	done := make(chan error, 1)
	go func() { done <- k.Start() }()

	require.Eventually(t, func() bool {
		return k.TaskGetPriority(lTask) == hTask.OriginalPriority()
	}, 2*time.Second, time.Millisecond, "L's priority must be boosted to H's while H waits")

	require.Eventually(t, func() bool {
		return hTask.State() == StateTerminated
	}, 2*time.Second, time.Millisecond, "H must eventually acquire and release the mutex")

	assert.Equal(t, lTask.OriginalPriority(), k.TaskGetPriority(lTask),
		"L's priority must be restored once it releases the mutex")
	assert.False(t, k.MutexIsLocked(mx))
	assert.NoError(t, hErr)

	k.Stop()
	<-done
}
