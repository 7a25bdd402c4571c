package kernel

// This file implements the scheduler bookkeeping: ready/blocked/suspended
// queue management, next-task selection under all four policies, the
// context-switch protocol, and the per-tick handler.
//
// Every method here assumes k.mu is already held by the caller (the
// "Locked" suffix marks that explicitly) with two exceptions: the public
// ContextSwitch wrapper, pure bookkeeping that lets a test drive a
// scheduling decision directly without any goroutine handoff, and Tick,
// which replays any switch it decides on as a real goroutine handoff via
// syncDispatch. The dispatch loop in context.go calls the same Locked
// bookkeeping internally and layers the actual goroutine handoff on top
// once it decides who won.

// addReadyLocked enqueues t onto its priority's ready list and marks it
// Ready. t must not already be linked into any list.
func (k *Kernel) addReadyLocked(t *Task) {
	t.state = StateReady
	k.ready[t.priority].PushBack(t)
}

// allTasksLocked returns every non-idle task the kernel knows about, for
// the periodic-release sweep in tickLocked. Order is unspecified.
func (k *Kernel) allTasksLocked() []*Task {
	out := make([]*Task, 0, len(k.tasksByID))
	for _, t := range k.tasksByID {
		out = append(out, t)
	}
	return out
}

// nextTaskLocked selects a task per the active policy, falling back to
// idle when nothing is ready. Priority/RMS/EDF peek the head without
// mutating any queue; round-robin additionally rotates its list as a
// visible side effect of selection. Callers that intend to actually
// dispatch the result must unlink it themselves.
func (k *Kernel) nextTaskLocked() *Task {
	k.stats.SchedulerInvocations++

	if atomicLoadInt32(&k.schedLockDepth) > 0 && k.current != nil && k.current.state == StateRunning {
		return k.current
	}

	switch k.policy {
	case PolicyRoundRobin:
		for i := range k.ready {
			if !k.ready[i].Empty() {
				t := k.ready[i].Front()
				k.ready[i].Remove(t)
				k.ready[i].PushBack(t)
				return t
			}
		}
	case PolicyEDF:
		var earliest *Task
		for i := range k.ready {
			k.ready[i].ForEach(func(t *Task) {
				if t.period == 0 {
					return
				}
				if earliest == nil ||
					t.absoluteDeadline < earliest.absoluteDeadline ||
					(t.absoluteDeadline == earliest.absoluteDeadline && t.priority < earliest.priority) {
					earliest = t
				}
			})
		}
		if earliest != nil {
			return earliest
		}
		for i := range k.ready {
			if !k.ready[i].Empty() {
				return k.ready[i].Front()
			}
		}
	default: // PolicyPriority, PolicyRMS — RMS trusts the caller to have
		// assigned priorities inversely proportional to period; selection
		// itself is identical to plain priority lookup.
		for i := range k.ready {
			if !k.ready[i].Empty() {
				return k.ready[i].Front()
			}
		}
	}

	return k.idle
}

// requeueRunningLocked puts the previously-current task back wherever its
// new state dictates. Called only when prev was genuinely Running.
func (k *Kernel) requeueRunningLocked(prev *Task) {
	now := k.clock.Now()
	runtime := now - prev.stats.LastStartTime
	prev.stats.TotalRuntime += runtime
	if runtime > prev.stats.MaxExecBurst {
		prev.stats.MaxExecBurst = runtime
	}

	if prev == k.idle {
		return
	}
	prev.state = StateReady
	// An expired round-robin slice sends the task to the back of its
	// level with a fresh slice; any other reason to lose the CPU (a
	// higher-priority task became ready, a voluntary yield) requeues at
	// the front so it is re-picked before equal-priority siblings.
	if k.policy == PolicyRoundRobin && prev.timeSliceCount == 0 {
		prev.timeSliceCount = prev.timeSlice
		k.ready[prev.priority].PushBack(prev)
		return
	}
	k.ready[prev.priority].PushFront(prev)
}

// bindRunningLocked marks next as the new current/Running task and removes
// it from whatever ready list it was peeked from (round-robin already
// rotated it there; priority/RMS/EDF have not removed it yet).
func (k *Kernel) bindRunningLocked(next *Task) {
	if next != k.idle {
		k.ready[next.priority].Remove(next)
		next.state = StateRunning
		next.stats.LastStartTime = k.clock.Now()
		next.stats.Activations++
		// Marks next eligible for an actual resumeCh send in
		// performHandoff. Set here, before the lock is released, so it is
		// already true by the time the handoff runs — this is what lets
		// TaskDelete's own pre-dispatch wake (api.go) distinguish "never
		// picked by the scheduler yet" (started == false, nobody will ever
		// signal resumeCh on its own) from "has run before."
		next.started = true
	}
	k.current = next
}

// ContextSwitch performs the context-switch protocol as pure bookkeeping:
// it is safe to call directly, e.g. from a test pinning down a scheduling
// decision, since it only updates queues/current/stats and never touches
// a goroutine. The goroutine-backed dispatch loop in context.go wraps
// this with the actual handoff.
func (k *Kernel) ContextSwitch() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.contextSwitchLocked()
}

func (k *Kernel) contextSwitchLocked() {
	if k.runState != Running {
		return
	}
	if atomicLoadInt32(&k.schedLockDepth) > 0 {
		k.pendingSwitch = true
		return
	}
	next := k.nextTaskLocked()
	if next == k.current {
		return
	}
	prev := k.current
	if prev != nil && prev.state == StateRunning {
		k.requeueRunningLocked(prev)
	}
	k.bindRunningLocked(next)
	k.stats.ContextSwitches++
	k.log.Debugw("context switch", "to", next.Name)

	k.handoffPending = true
	k.handoffPrev = prev
	k.handoffNext = next
}

// requestSwitch is the entry point used by Unlock and by IPC primitives
// (give/set/put) after making a task ready: it asks for a switch, which
// silently no-ops while the scheduler lock is held — the deferred request
// is recorded in pendingSwitch and replayed by Unlock.
func (k *Kernel) requestSwitch() {
	k.mu.Lock()
	k.contextSwitchLocked()
	k.mu.Unlock()
	k.syncDispatch()
}

// blockCurrentLocked moves the running task t out of Running into Blocked
// with the given reason/object. t must be the current task and must not
// be idle. timeout arms the tick handler's expiry sweep: MaxTimeout means
// wait forever (delayUntil left at zero, the sweep's "armed" sentinel),
// anything else is an absolute tick deadline relative to now.
func (k *Kernel) blockCurrentLocked(t *Task, reason BlockReason, obj any, timeout Ticks) {
	now := k.clock.Now()
	runtime := now - t.stats.LastStartTime
	t.stats.TotalRuntime += runtime
	if runtime > t.stats.MaxExecBurst {
		t.stats.MaxExecBurst = runtime
	}
	t.blockReason = reason
	t.blockObject = obj
	t.timedOut = false
	if timeout == MaxTimeout {
		t.delayUntil = 0
	} else {
		t.delayUntil = now + timeout
	}
	t.state = StateBlocked
	k.blocked.PushBack(t)
}

// unblockLocked reverses blockCurrentLocked: the task rejoins its ready
// list. It is a no-op if t is not presently Blocked — callers that raced
// to wake an already-woken waiter are common with IPC broadcast-style
// wakeups.
func (k *Kernel) unblockLocked(t *Task) {
	if t.state != StateBlocked {
		return
	}
	t.blockReason = BlockNone
	t.blockObject = nil
	t.delayUntil = 0
	k.blocked.Remove(t)
	k.addReadyLocked(t)
}

// suspendLocked moves t into Suspended from whatever state it was in,
// including Running (a task suspending itself): in that case it is not
// linked into any list yet, so there is nothing to unlink, only runtime
// stats to close out before the switch protocol takes over.
func (k *Kernel) suspendLocked(t *Task) {
	switch t.state {
	case StateReady:
		k.ready[t.priority].Remove(t)
	case StateBlocked:
		k.blocked.Remove(t)
		k.clearBlockLocked(t)
	case StateRunning:
		now := k.clock.Now()
		runtime := now - t.stats.LastStartTime
		t.stats.TotalRuntime += runtime
		if runtime > t.stats.MaxExecBurst {
			t.stats.MaxExecBurst = runtime
		}
	}
	t.state = StateSuspended
	k.suspended.PushBack(t)
}

// clearBlockLocked wipes t's block bookkeeping when it leaves Blocked by
// any path other than its wait being satisfied: a wait cut short without
// the predicate holding reports as a timeout, never as an acquisition
// (invariant 6 — block_reason None on resume is the success signal).
func (k *Kernel) clearBlockLocked(t *Task) {
	if t.blockReason != BlockNone && t.blockReason != BlockDelay {
		t.timedOut = true
	}
	t.blockReason = BlockNone
	t.blockObject = nil
	t.delayUntil = 0
}

// resumeLocked moves t out of Suspended back to Ready.
func (k *Kernel) resumeLocked(t *Task) {
	if t.state != StateSuspended {
		return
	}
	k.suspended.Remove(t)
	k.addReadyLocked(t)
}

// releaseToReadyLocked is used by the periodic-release sweep in tickLocked
// to pull a Blocked-or-Suspended periodic task straight back to Ready.
func (k *Kernel) releaseToReadyLocked(t *Task) {
	switch t.state {
	case StateBlocked:
		k.blocked.Remove(t)
		k.clearBlockLocked(t)
	case StateSuspended:
		k.suspended.Remove(t)
	default:
		return
	}
	k.addReadyLocked(t)
}

// Tick advances the clock by one and runs the per-tick handler: release
// expired delays, release periodic jobs (accounting deadline misses),
// decrement the current task's round-robin slice, and request a context
// switch if warranted. A no-op while the scheduler is Stopped; when it
// does switch, syncDispatch resumes the chosen task's goroutine and
// blocks until control returns to idle.
func (k *Kernel) Tick() {
	k.mu.Lock()
	k.tickLocked()
	k.mu.Unlock()
	k.syncDispatch()
}

func (k *Kernel) tickLocked() {
	if k.runState != Running {
		return
	}
	now := k.clock.Advance()
	k.stats.SystemTime = now
	if k.current == k.idle {
		k.stats.IdleTime++
	}

	// The expiry sweep covers every armed waiter, not just delays:
	// delayUntil == 0 is the "no timeout" sentinel left by
	// blockCurrentLocked for MaxTimeout, anything else is an absolute
	// deadline. A delay wakes normally; an IPC wait whose deadline
	// passed wakes with timedOut set so waitOutcome reports ErrTimeout
	// instead of success.
	madeReady := false
	var toWake []*Task
	k.blocked.ForEach(func(t *Task) {
		if t.blockReason == BlockNone {
			k.Halt("Tick", "blocked task "+t.Name+" has no block reason")
		}
		if t.delayUntil != 0 && now >= t.delayUntil {
			toWake = append(toWake, t)
		}
	})
	for _, t := range toWake {
		if t.blockReason != BlockDelay {
			t.timedOut = true
		}
		k.unblockLocked(t)
		madeReady = true
	}

	for _, t := range k.allTasksLocked() {
		if t.period == 0 || now < t.nextRelease {
			continue
		}
		if t.state != StateReady && t.state != StateRunning && now > t.absoluteDeadline {
			t.stats.DeadlineMisses++
			k.stats.DeadlineMisses++
			k.log.Warnw("periodic task missed deadline",
				"task", t.Name, "absolute_deadline", t.absoluteDeadline, "now", now)
		}
		// absolute_deadline must be pinned to the release that's happening
		// right now (old next_release + deadline) so the check above, run
		// at the *following* release, is still comparing against this
		// job's own due date rather than the job after it.
		t.absoluteDeadline = t.nextRelease + t.deadline
		t.nextRelease += t.period
		if t.state == StateBlocked || t.state == StateSuspended {
			k.releaseToReadyLocked(t)
			madeReady = true
		}
	}

	if k.policy == PolicyRoundRobin && k.current != nil && k.current != k.idle {
		if k.current.timeSliceCount > 0 {
			k.current.timeSliceCount--
		}
		if k.current.timeSliceCount == 0 {
			k.contextSwitchLocked()
			return
		}
	}

	if madeReady {
		k.contextSwitchLocked()
	}
}
