package kernel

import "time"

// A traditional single-core RTOS switches contexts by saving and
// restoring register state with a non-local jump into the target task's
// stack. Go has no way to save an arbitrary call stack, but it has
// something better suited to the same idea: a goroutine already owns a
// real, independently resumable stack. This file gives every Task a
// goroutine blocked on a private channel in place of a saved register
// set, and a single "driver" goroutine in place of the bare-metal idle
// loop that jumps into whichever task runs first.
//
// Calling convention every method in this file relies on: a kernel
// mutation (Tick, requestSwitch, cooperate) is only ever invoked either by
// the driver loop while idle is current, or by a task's own goroutine
// acting on itself. That invariant is what lets performHandoff below know,
// without any extra bookkeeping, exactly which goroutine is the one that
// needs to park.

// newIdleTask builds the sentinel idle task: priority below every real
// task, no entry function, no goroutine. Dispatching it is equivalent to
// returning control to the driver loop rather than resuming any code.
func (k *Kernel) newIdleTask() *Task {
	return &Task{
		Name:             "idle",
		state:            StateRunning,
		priority:         IdlePriority,
		originalPriority: IdlePriority,
		started:          true,
	}
}

// spawnTaskGoroutine launches t's dedicated goroutine, parked immediately
// on resumeCh until the scheduler first dispatches it — a fresh context
// that enters the entry function only once something switches to it.
func (k *Kernel) spawnTaskGoroutine(t *Task) {
	t.resumeCh = make(chan struct{})
	go k.taskMain(t)
}

// taskMain is the task wrapper: park until first resumed, run the entry
// function to completion (or until it's asked to terminate early), then
// report termination to the scheduler and hand control onward forever.
func (k *Kernel) taskMain(t *Task) {
	<-t.resumeCh
	naturalTermination := !t.terminate
	if naturalTermination && t.entry != nil {
		t.entry(t.arg)
	}
	k.mu.Lock()
	t.state = StateTerminated
	k.removeFromAnyListLocked(t)
	// TaskDelete already accounts for a task deleted before its first
	// dispatch (api.go increments TasksDeleted itself before waking this
	// goroutine); only a task reaching the end of its own entry function
	// is counted here, or the stat double-counts deleted-but-never-run
	// tasks.
	if naturalTermination {
		k.stats.TasksDeleted++
	}
	k.log.Infow("task terminated", "task", t.Name)
	k.contextSwitchLocked()
	prev, next := t, k.handoffNext
	handing := k.handoffPending
	k.handoffPending = false
	stopped := k.runState != Running
	k.mu.Unlock()
	if handing {
		k.performHandoff(prev, next)
	} else if stopped {
		// Stop arrived while this task held the CPU: the switch protocol
		// no-ops once the scheduler leaves Running, so hand control back
		// to the driver loop directly or Start would never observe the
		// stop and return.
		k.performHandoff(t, k.idle)
	}
	<-t.resumeCh // a terminated task never runs again; park forever
}

// removeFromAnyListLocked detaches t from whichever queue it currently
// belongs to without needing the caller to know which one. Used when a
// task terminates or is deleted out of Ready/Blocked/Suspended.
func (k *Kernel) removeFromAnyListLocked(t *Task) {
	if !t.linked() {
		return
	}
	switch {
	case t.blockReason != BlockNone || t.state == StateBlocked:
		k.blocked.Remove(t)
	case t.state == StateSuspended:
		k.suspended.Remove(t)
	default:
		k.ready[t.priority].Remove(t)
	}
}

// cooperate is called by a task's own goroutine to voluntarily give up the
// CPU without changing its own state first — Yield's case: self stays
// Running until the switch protocol requeues it to Ready.
func (k *Kernel) cooperate(self *Task) {
	k.cooperateWithAction(self, func() {})
}

// cooperateWithAction is the general form behind every point where the
// calling task's own goroutine gives up the CPU: Yield, Delay,
// a blocking IPC wait, or a task suspending itself. apply runs under the
// lock first and is responsible for self's own state transition and queue
// placement (or, for Yield, is a no-op and lets the switch protocol's own
// "requeue the running task" step handle it). Once apply returns, the
// normal context-switch protocol selects a replacement and, if that's
// someone else, hands off to them and parks self's goroutine until a
// future dispatch resumes it.
func (k *Kernel) cooperateWithAction(self *Task, apply func()) {
	k.mu.Lock()
	apply()
	k.contextSwitchLocked()
	pending := k.handoffPending
	prev, next := k.handoffPrev, k.handoffNext
	k.handoffPending = false
	k.mu.Unlock()
	if !pending {
		return
	}
	k.performHandoff(prev, next)
	<-self.resumeCh
}

// yieldIfPreempted is called after an operation that might have made some
// other task ready — Give, Unlock, SetFlags, Send/Receive's rendezvous
// side. If self is the calling task's own dispatched goroutine and the
// resulting context-switch decision replaces it, self parks exactly like
// a voluntary Yield would, just triggered as a side effect instead of a
// direct call. If self is nil (the caller is the driver loop or
// out-of-task administrative code, e.g. deleting an object from a test),
// this only performs the bookkeeping switch — there is no goroutine to
// park.
func (k *Kernel) yieldIfPreempted(self *Task) {
	if self == nil || self == k.idle {
		k.requestSwitch()
		return
	}
	k.cooperateWithAction(self, func() {})
}

// syncDispatch is the driver-loop/external-caller counterpart to
// cooperate: used after Tick()/requestSwitch() run their locked
// bookkeeping from outside any task's own goroutine (the driver loop
// itself, or a test calling Tick directly with no dispatched goroutines).
// If those calls recorded a handoff, it's replayed here; if nothing is
// dispatched (pure bookkeeping tests), this is a no-op.
func (k *Kernel) syncDispatch() {
	k.mu.Lock()
	pending := k.handoffPending
	prev, next := k.handoffPrev, k.handoffNext
	k.handoffPending = false
	k.mu.Unlock()
	if !pending {
		return
	}
	k.performHandoff(prev, next)
}

// performHandoff does the actual goroutine-level work: wake next (unless
// it's idle, which has no goroutine). When prev is idle/nil the blocking
// side is the driver loop itself, which waits on driverCh until control
// comes back to idle. When prev is a real task, performHandoff does not
// park it — it only signals driverCh if next is idle — and the caller
// parks prev's goroutine on its own resumeCh afterwards.
func (k *Kernel) performHandoff(prev, next *Task) {
	if next != k.idle && next.started {
		next.resumeCh <- struct{}{}
	}
	if prev == nil || prev == k.idle {
		if next != k.idle {
			<-k.driverCh
		}
		return
	}
	if next == k.idle {
		k.driverCh <- struct{}{}
	}
}

// driverLoop is the outer supervisor: the Go analogue of the bare-metal
// idle loop that halts waiting for the next timer interrupt. It owns
// advancing the clock (Tick) entirely by itself, which is only sound
// because it only ever runs while idle is current — the moment a real
// task is dispatched, this goroutine blocks on driverCh until that task
// (transitively, through however many direct task-to-task handoffs happen
// in between) cooperates its way back to idle.
func (k *Kernel) driverLoop() {
	for {
		k.mu.Lock()
		running := k.runState == Running
		k.mu.Unlock()
		if !running {
			return
		}
		// Tick's own syncDispatch blocks internally until control returns
		// to idle, however many task-to-task handoffs that took along the
		// way, so by the time this call returns the driver genuinely holds
		// the CPU again.
		k.Tick()
		if k.realTimePacing {
			time.Sleep(time.Duration(k.cfg.TickPeriodMS) * time.Millisecond)
		}
	}
}

// SetRealTimePacing controls whether the driver loop sleeps one tick
// period of real wall-clock time between ticks while idle. Tests and
// fast-forward simulation want this off (the default); the CLI's live
// demo turns it on so a human can watch ticks go by at a human pace.
func (k *Kernel) SetRealTimePacing(on bool) {
	k.mu.Lock()
	k.realTimePacing = on
	k.mu.Unlock()
}

// Start transitions the scheduler to Running and begins driving ticks.
// The calling goroutine becomes the tick driver for as long as the
// scheduler runs: Start blocks and returns only once Stop takes effect,
// the Go shape of a scheduler that owns the thread of control outright.
func (k *Kernel) Start() error {
	k.mu.Lock()
	if k.runState == Running {
		k.mu.Unlock()
		return newErr(KindStateError, "Start", "scheduler already running")
	}
	k.runState = Running
	k.started = true
	k.current = k.idle
	// Dispatch whatever was already made Ready by TaskCreate before Start
	// was called, rather than leaving the CPU with idle until some later
	// tick/IPC event happens to call contextSwitchLocked itself.
	k.contextSwitchLocked()
	pending := k.handoffPending
	prev, next := k.handoffPrev, k.handoffNext
	k.handoffPending = false
	k.mu.Unlock()
	if pending {
		k.performHandoff(prev, next)
	}
	k.log.Info("scheduler started")
	k.driverLoop()
	return nil
}

// Stop requests the scheduler to halt. Cooperative by nature: if a real
// task currently holds the CPU, Stop takes effect the next time control
// returns to the driver loop (when that task's chain of handoffs reaches
// idle), mirroring the fact that nothing here can forcibly preempt a
// running task.
func (k *Kernel) Stop() {
	k.mu.Lock()
	k.runState = Stopped
	k.mu.Unlock()
	k.log.Info("scheduler stop requested")
}
