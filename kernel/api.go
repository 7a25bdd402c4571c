package kernel

import "github.com/google/uuid"

// This file is the public task control-plane surface: everything a
// workload actually calls, layered on top of the pure scheduler
// bookkeeping (scheduler.go) and the goroutine-backed dispatch substrate
// (context.go). All operations take the owning *Kernel explicitly; a
// *Task handle is only meaningful against the kernel that created it.

// TaskCreate allocates a new task, registers it with the scheduler in
// the Ready state, and spawns its backing goroutine parked until first
// dispatched. entry runs to completion on its own goroutine once the
// scheduler picks it; a task that returns from entry terminates.
func (k *Kernel) TaskCreate(name string, priority int, entry func(arg any), arg any) (*Task, error) {
	if name == "" || entry == nil {
		return nil, newErr(KindInvalidArgument, "TaskCreate", "nil entry or empty name")
	}
	if priority < 0 || priority >= k.cfg.PriorityLevels {
		return nil, newErr(KindInvalidArgument, "TaskCreate", "priority out of range")
	}

	k.mu.Lock()
	if len(k.tasksByID) >= k.cfg.MaxTasks {
		k.mu.Unlock()
		return nil, newErr(KindCapacityExhausted, "TaskCreate", "no free task slots")
	}
	if _, exists := k.tasksByName[name]; exists {
		k.mu.Unlock()
		return nil, newErr(KindInvalidArgument, "TaskCreate", "task name already in use")
	}

	t := &Task{
		ID:               uuid.New(),
		Name:             name,
		priority:         priority,
		originalPriority: priority,
		timeSlice:        k.cfg.DefaultSlice,
		timeSliceCount:   k.cfg.DefaultSlice,
		stack:            &simStack{size: k.cfg.DefaultStack, headroom: k.cfg.DefaultStack, canary: stackCanaryValue},
		entry:            entry,
		arg:              arg,
	}
	k.tasksByID[t.ID.String()] = t
	k.tasksByName[name] = t
	k.addReadyLocked(t)
	k.stats.TasksCreated++
	k.mu.Unlock()

	k.spawnTaskGoroutine(t)
	k.log.Infow("created task", "name", name, "priority", priority)
	return t, nil
}

// TaskDelete removes a task from the scheduler. Deleting the current
// task or the idle task is a state error — a task can only terminate
// itself by returning from its entry function.
func (k *Kernel) TaskDelete(t *Task) error {
	if t == nil {
		return newErr(KindInvalidArgument, "TaskDelete", "nil task")
	}
	k.mu.Lock()
	if t == k.current {
		k.mu.Unlock()
		return newErr(KindStateError, "TaskDelete", "cannot delete the current task")
	}
	if t == k.idle {
		k.mu.Unlock()
		return newErr(KindStateError, "TaskDelete", "cannot delete the idle task")
	}
	if _, ok := k.tasksByID[t.ID.String()]; !ok {
		k.mu.Unlock()
		return newErr(KindInvalidArgument, "TaskDelete", "unknown task")
	}
	k.removeFromAnyListLocked(t)
	delete(k.tasksByID, t.ID.String())
	delete(k.tasksByName, t.Name)
	t.terminate = true
	t.state = StateTerminated
	started := t.started
	k.stats.TasksDeleted++
	k.mu.Unlock()

	if !started {
		t.started = true
		t.resumeCh <- struct{}{} // wake taskMain so it observes terminate and parks forever
	}
	k.log.Infow("deleted task", "name", t.Name)
	return nil
}

// TaskSetPriority changes a task's priority and its baseline: unlike a
// mutex's temporary priority-inheritance boost, this permanently replaces
// the original priority too.
func (k *Kernel) TaskSetPriority(t *Task, priority int) error {
	if t == nil || priority < 0 || priority >= k.cfg.PriorityLevels {
		return newErr(KindInvalidArgument, "TaskSetPriority", "nil task or priority out of range")
	}
	k.mu.Lock()
	k.setPriorityLocked(t, priority)
	t.originalPriority = priority
	k.mu.Unlock()
	k.log.Infow("set task priority", "name", t.Name, "priority", priority)
	return nil
}

// TaskGetPriority returns t's current effective priority.
func (k *Kernel) TaskGetPriority(t *Task) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.priority
}

// TaskSuspend moves t to the Suspended state. Suspending one's own task
// (self == t) implies an immediate yield: the caller's goroutine parks
// until the task is made Ready again, by a later TaskResume or, for a
// periodic task, by its next periodic release; suspending any other task
// only affects when it's next eligible to run.
func (k *Kernel) TaskSuspend(self, t *Task) error {
	if t == nil {
		return newErr(KindInvalidArgument, "TaskSuspend", "nil task")
	}
	if t == k.idle {
		return newErr(KindStateError, "TaskSuspend", "cannot suspend the idle task")
	}
	if t == self {
		k.cooperateWithAction(self, func() {
			k.suspendLocked(t)
		})
		return nil
	}
	k.mu.Lock()
	k.suspendLocked(t)
	k.mu.Unlock()
	return nil
}

// TaskResume moves a Suspended task back to Ready. self is the caller
// (or nil), used to park the caller if resuming t makes it immediately
// preempt the caller.
func (k *Kernel) TaskResume(self, t *Task) error {
	if t == nil {
		return newErr(KindInvalidArgument, "TaskResume", "nil task")
	}
	k.mu.Lock()
	if t.state != StateSuspended {
		k.mu.Unlock()
		return newErr(KindStateError, "TaskResume", "task is not suspended")
	}
	k.resumeLocked(t)
	k.mu.Unlock()
	k.yieldIfPreempted(self)
	return nil
}

// CurrentTask returns the task the scheduler currently considers
// Running, or nil if that's the idle task — idle is represented
// explicitly inside the kernel, so callers that want to distinguish "no
// real task" test the result against nil.
func (k *Kernel) CurrentTask() *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current == k.idle {
		return nil
	}
	return k.current
}

// TaskGetByName looks up a task by its registered name.
func (k *Kernel) TaskGetByName(name string) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tasksByName[name]
}

// TaskYield voluntarily gives up the CPU to the next ready task.
func (k *Kernel) TaskYield(self *Task) {
	k.cooperate(self)
}

// TaskDelay blocks self for ticks ticks. A zero delay never blocks; it
// degrades to a plain yield.
func (k *Kernel) TaskDelay(self *Task, ticks Ticks) error {
	if self == nil {
		return newErr(KindInvalidArgument, "TaskDelay", "cannot delay the idle task")
	}
	if ticks == 0 {
		k.cooperate(self)
		return nil
	}
	k.cooperateWithAction(self, func() {
		k.blockCurrentLocked(self, BlockDelay, nil, ticks)
	})
	return nil
}

// TaskDelayUntil blocks self until the clock reaches tick, or just
// yields if that tick has already passed.
func (k *Kernel) TaskDelayUntil(self *Task, tick Ticks) error {
	if self == nil {
		return newErr(KindInvalidArgument, "TaskDelayUntil", "cannot delay the idle task")
	}
	k.cooperateWithAction(self, func() {
		// A target tick already in the past degrades to a plain yield:
		// apply leaves self Running and the switch protocol requeues it.
		if now := k.clock.Now(); tick > now {
			k.blockCurrentLocked(self, BlockDelay, nil, tick-now)
		}
	})
	return nil
}

// TaskSetPeriodic configures t as a periodic task released every period
// ticks with a relative deadline, defaulting to the period itself when
// zero.
func (k *Kernel) TaskSetPeriodic(t *Task, period, deadline Ticks) error {
	if t == nil || period == 0 {
		return newErr(KindInvalidArgument, "TaskSetPeriodic", "nil task or zero period")
	}
	if deadline == 0 {
		deadline = period
	}
	k.mu.Lock()
	now := k.clock.Now()
	t.period = period
	t.deadline = deadline
	t.nextRelease = now + period
	t.absoluteDeadline = t.nextRelease + deadline
	k.mu.Unlock()
	k.log.Infow("set task periodic", "name", t.Name, "period", period, "deadline", deadline)
	return nil
}

// TaskGetStats returns a copy of t's accumulated statistics.
func (k *Kernel) TaskGetStats(t *Task) TaskStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.stats
}

// TaskResetStats zeroes t's accumulated statistics.
func (k *Kernel) TaskResetStats(t *Task) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t.stats = TaskStats{}
}

// TaskStackFree reports the remaining headroom of t's simulated stack
// region. The backing goroutine grows its real stack on demand, so this
// is bookkeeping against the configured region size, not a measurement.
func (k *Kernel) TaskStackFree(t *Task) uint32 {
	if t == nil || t.stack == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.stack.headroom
}

// TaskCheckStackOverflow reports whether t's stack canary has been
// clobbered. Best effort only: the check catches a scribbled-over canary
// slot, not every possible overflow, and a clean result is not a proof of
// safety. A clobber is logged but never fatal.
func (k *Kernel) TaskCheckStackOverflow(t *Task) bool {
	if t == nil || t.stack == nil {
		return false
	}
	k.mu.Lock()
	overflowed := t.stack.canary != stackCanaryValue
	k.mu.Unlock()
	if overflowed {
		k.log.Warnw("stack canary clobbered", "task", t.Name, "stack_size", t.stack.size)
	}
	return overflowed
}
