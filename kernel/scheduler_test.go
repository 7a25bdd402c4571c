package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopEntry(arg any) {}

// TestThreeTaskFIFOPriorityPreemption drives the classic three-task
// preemption shape directly through the bookkeeping-only ContextSwitch,
// per the note atop scheduler.go: B is Running, A is Blocked on a
// semaphore and gets handed the unit directly (the same unblockLocked a
// real SemaphoreGive would call), and the next context switch must pick
// A over C even though C is Ready the whole time.
func TestThreeTaskFIFOPriorityPreemption(t *testing.T) {
	k := NewKernel(DefaultConfig(), NopLogger())
	k.runState = Running

	taskA, err := k.TaskCreate("A", 0, noopEntry, nil)
	require.NoError(t, err)
	taskB, err := k.TaskCreate("B", 1, noopEntry, nil)
	require.NoError(t, err)
	taskC, err := k.TaskCreate("C", 2, noopEntry, nil)
	require.NoError(t, err)

	k.mu.Lock()
	k.ready[taskB.priority].Remove(taskB)
	taskB.state = StateRunning
	taskB.stats.LastStartTime = k.clock.Now()
	k.current = taskB

	k.ready[taskA.priority].Remove(taskA)
	sem := &Semaphore{Name: "sem", max: 1}
	k.blockCurrentLocked(taskA, BlockSemaphore, sem, MaxTimeout)
	k.unblockLocked(taskA)
	k.mu.Unlock()

	k.ContextSwitch()
	assert.Same(t, taskA, k.current)
	assert.Equal(t, StateRunning, taskA.State())
	assert.Equal(t, StateReady, taskB.State())
	assert.Equal(t, StateReady, taskC.State())

	k.mu.Lock()
	k.blockCurrentLocked(taskA, BlockDelay, nil, 5)
	k.mu.Unlock()
	k.ContextSwitch()
	assert.Same(t, taskB, k.current)
}

// TestRoundRobinRotation checks slice-driven rotation: two equal-priority
// tasks with a two-tick slice rotate A,A,B,B,A,A,B,B,... under repeated
// ticks, using tickLocked directly so no goroutine dispatch is involved.
func TestRoundRobinRotation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyRoundRobin
	cfg.DefaultSlice = 2
	k := NewKernel(cfg, NopLogger())
	k.runState = Running
	k.current = k.idle

	taskA, err := k.TaskCreate("A", 3, noopEntry, nil)
	require.NoError(t, err)
	taskB, err := k.TaskCreate("B", 3, noopEntry, nil)
	require.NoError(t, err)
	_ = taskB

	k.ContextSwitch()
	require.Same(t, taskA, k.current)

	want := []string{"A", "A", "B", "B", "A", "A", "B", "B"}
	var got []string
	for i := 0; i < len(want); i++ {
		got = append(got, k.current.Name)
		k.mu.Lock()
		k.tickLocked()
		k.mu.Unlock()
	}
	assert.Equal(t, want, got)
}

// TestPriorityPolicyAlwaysPicksHighestReady exercises the plain-priority
// lookup shared by PolicyPriority and PolicyRMS: the head of the
// lowest-numbered non-empty ready queue always wins, regardless of
// arrival order.
func TestPriorityPolicyAlwaysPicksHighestReady(t *testing.T) {
	k := NewKernel(DefaultConfig(), NopLogger())
	k.runState = Running
	k.current = k.idle

	low, err := k.TaskCreate("low", 10, noopEntry, nil)
	require.NoError(t, err)
	_, err = k.TaskCreate("mid", 5, noopEntry, nil)
	require.NoError(t, err)
	high, err := k.TaskCreate("high", 1, noopEntry, nil)
	require.NoError(t, err)

	k.ContextSwitch()
	assert.Same(t, high, k.current)

	k.mu.Lock()
	k.blockCurrentLocked(high, BlockDelay, nil, 1)
	k.mu.Unlock()
	k.ContextSwitch()
	assert.Equal(t, "mid", k.current.Name)

	k.mu.Lock()
	k.blockCurrentLocked(k.current, BlockDelay, nil, 1)
	k.mu.Unlock()
	k.ContextSwitch()
	assert.Same(t, low, k.current)
}

// TestEDFPicksEarliestAbsoluteDeadline checks the EDF branch of
// nextTaskLocked in isolation: among ready periodic tasks, the one with
// the nearer absolute_deadline wins even if its priority number is
// higher (lower urgency under plain priority rules).
func TestEDFPicksEarliestAbsoluteDeadline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = PolicyEDF
	k := NewKernel(cfg, NopLogger())
	k.runState = Running
	k.current = k.idle

	urgent, err := k.TaskCreate("urgent", 8, noopEntry, nil)
	require.NoError(t, err)
	require.NoError(t, k.TaskSetPeriodic(urgent, 50, 10))

	lazy, err := k.TaskCreate("lazy", 1, noopEntry, nil)
	require.NoError(t, err)
	require.NoError(t, k.TaskSetPeriodic(lazy, 50, 40))

	k.ContextSwitch()
	assert.Same(t, urgent, k.current, "nearer absolute deadline wins over a lower priority number")
}

// TestSchedulerLockDefersSwitch verifies the Lock/Unlock pair: a switch
// requested while locked is recorded but not applied until the matching
// Unlock brings the nesting depth back to zero.
func TestSchedulerLockDefersSwitch(t *testing.T) {
	k := NewKernel(DefaultConfig(), NopLogger())
	k.runState = Running
	k.current = k.idle

	task, err := k.TaskCreate("T", 4, noopEntry, nil)
	require.NoError(t, err)

	// Drive the lock/pendingSwitch bookkeeping directly rather than
	// through the real Lock/Unlock pair: Unlock's own deferred replay
	// engages the goroutine handoff machinery, which blocks until a
	// dispatched task hands control back to idle — appropriate for the
	// live substrate, but more machinery than this test needs to pin down
	// the pendingSwitch invariant itself.
	k.Lock()
	k.mu.Lock()
	k.contextSwitchLocked()
	pending := k.pendingSwitch
	k.mu.Unlock()
	assert.True(t, pending, "a switch attempted while locked must be deferred")
	assert.Same(t, k.idle, k.current, "switch must not apply while the scheduler lock is held")

	atomicAdd(&k.schedLockDepth, -1)
	k.mu.Lock()
	k.pendingSwitch = false
	k.contextSwitchLocked()
	k.mu.Unlock()
	assert.Same(t, task, k.current, "deferred switch applies once the lock depth returns to zero")
}

// TestPreemptedTaskRequeuesAheadOfEqualPrioritySiblings pins down where a
// preempted task lands in its ready list: at the front, so losing the CPU
// to a higher-priority arrival doesn't also cost it its turn against
// equal-priority siblings. Only an expired round-robin slice sends a task
// to the back.
func TestPreemptedTaskRequeuesAheadOfEqualPrioritySiblings(t *testing.T) {
	k := NewKernel(DefaultConfig(), NopLogger())
	k.runState = Running
	k.current = k.idle

	taskA, err := k.TaskCreate("A", 2, noopEntry, nil)
	require.NoError(t, err)
	taskB, err := k.TaskCreate("B", 2, noopEntry, nil)
	require.NoError(t, err)

	k.ContextSwitch()
	require.Same(t, taskA, k.current)

	taskC, err := k.TaskCreate("C", 1, noopEntry, nil)
	require.NoError(t, err)
	k.ContextSwitch()
	require.Same(t, taskC, k.current, "the higher-priority arrival preempts A")

	k.mu.Lock()
	k.blockCurrentLocked(taskC, BlockDelay, nil, 5)
	k.mu.Unlock()
	k.ContextSwitch()
	assert.Same(t, taskA, k.current, "the preempted task resumes before its equal-priority sibling")
	assert.Equal(t, StateReady, taskB.State())
}

// TestPeriodicReleaseOfIPCBlockedTaskReportsTimeout checks what a forced
// periodic release does to a task still parked on a primitive: it leaves
// Blocked (and, with idle current, the release's context switch dispatches
// it straight to Running), but its wait reports as timed out rather than
// satisfied — being yanked off a semaphore by the period boundary is not
// an acquisition.
func TestPeriodicReleaseOfIPCBlockedTaskReportsTimeout(t *testing.T) {
	k := NewKernel(DefaultConfig(), NopLogger())
	k.runState = Running
	k.current = k.idle

	sem, err := k.CreateSemaphore("s", 0, 1)
	require.NoError(t, err)
	task, err := k.TaskCreate("P", 5, noopEntry, nil)
	require.NoError(t, err)
	require.NoError(t, k.TaskSetPeriodic(task, 10, 5))

	k.mu.Lock()
	k.ready[task.priority].Remove(task)
	k.blockCurrentLocked(task, BlockSemaphore, sem, MaxTimeout)
	k.mu.Unlock()

	for i := 0; i < 10; i++ {
		k.mu.Lock()
		k.tickLocked()
		k.mu.Unlock()
	}

	assert.Equal(t, StateRunning, task.State())
	assert.Equal(t, BlockNone, task.BlockReason())
	assert.ErrorIs(t, k.waitOutcome(task), ErrTimeout)
}
