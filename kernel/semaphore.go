package kernel

import "github.com/google/uuid"

// Semaphore is a counting semaphore: Take decrements a positive count or
// blocks; Give increments it, or hands the unit straight to the
// highest-priority waiter if one exists.
type Semaphore struct {
	ID   uuid.UUID
	Name string

	count uint32
	max   uint32
}

// CreateSemaphore allocates a counting semaphore. initial must not
// exceed max, and max must be positive.
func (k *Kernel) CreateSemaphore(name string, initial, max uint32) (*Semaphore, error) {
	if name == "" || max == 0 || initial > max {
		return nil, newErr(KindInvalidArgument, "CreateSemaphore", "invalid semaphore parameters")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.semaphores) >= k.cfg.MaxSemaphores {
		return nil, newErr(KindCapacityExhausted, "CreateSemaphore", "no free semaphore slots")
	}
	if _, exists := k.semaphores[name]; exists {
		return nil, newErr(KindInvalidArgument, "CreateSemaphore", "semaphore name already in use")
	}
	s := &Semaphore{ID: uuid.New(), Name: name, count: initial, max: max}
	k.semaphores[name] = s
	k.log.Infow("created semaphore", "name", name, "count", initial, "max", max)
	return s, nil
}

// DeleteSemaphore removes a semaphore, waking every waiter with
// ErrObjectDestroyed — a waiter whose object disappears must find out,
// never observe a phantom success against freed state. self is the
// calling task, or nil if called from outside any task's own goroutine
// (administrative code, tests).
func (k *Kernel) DeleteSemaphore(self *Task, s *Semaphore) error {
	if s == nil {
		return newErr(KindInvalidArgument, "DeleteSemaphore", "nil semaphore")
	}
	k.mu.Lock()
	if _, ok := k.semaphores[s.Name]; !ok {
		k.mu.Unlock()
		return newErr(KindInvalidArgument, "DeleteSemaphore", "unknown semaphore")
	}
	delete(k.semaphores, s.Name)
	woken := k.popAllWaitersLocked(s)
	k.mu.Unlock()
	if woken > 0 {
		k.yieldIfPreempted(self)
	}
	k.log.Infow("deleted semaphore", "name", s.Name)
	return nil
}

// SemaphoreTake acquires one unit, blocking up to timeout ticks
// (kernel.MaxTimeout to wait forever, 0 to poll) if none are available.
// self is the calling task (kernel.CurrentTask()).
func (k *Kernel) SemaphoreTake(self *Task, s *Semaphore, timeout Ticks) error {
	if self == nil || s == nil {
		return newErr(KindInvalidArgument, "SemaphoreTake", "nil task or semaphore")
	}
	k.mu.Lock()
	if s.count > 0 {
		s.count--
		k.mu.Unlock()
		return nil
	}
	k.mu.Unlock()

	if timeout == 0 {
		return ErrTimeout
	}

	k.cooperateWithAction(self, func() {
		k.blockCurrentLocked(self, BlockSemaphore, s, timeout)
	})
	return k.waitOutcome(self)
}

// SemaphoreGive releases one unit: if a task is waiting, it is handed the
// unit directly (a rendezvous, no count change) and woken; otherwise the
// count is incremented, or ErrStateError is returned if it is already at
// max. self is the calling task
// (kernel.CurrentTask()), or nil if called from outside any task's own
// goroutine — waking a higher-priority waiter can itself preempt the
// caller, so self is threaded through to yieldIfPreempted to park the
// caller's own goroutine correctly when that happens.
func (k *Kernel) SemaphoreGive(self *Task, s *Semaphore) error {
	if s == nil {
		return newErr(KindInvalidArgument, "SemaphoreGive", "nil semaphore")
	}
	k.mu.Lock()
	if waiter := k.popBestWaiterLocked(s); waiter != nil {
		k.unblockLocked(waiter)
		k.mu.Unlock()
		k.yieldIfPreempted(self)
		return nil
	}
	if s.count >= s.max {
		k.mu.Unlock()
		return newErr(KindStateError, "SemaphoreGive", "semaphore already at maximum count")
	}
	s.count++
	k.mu.Unlock()
	return nil
}

// SemaphoreCount reports the current count without taking it.
func (k *Kernel) SemaphoreCount(s *Semaphore) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return s.count
}

// popBestWaiterLocked scans the global blocked list for the
// highest-priority (lowest number) task waiting on obj, FIFO among ties
// since ForEach visits in insertion order. Returns nil if nobody is
// waiting. Used by the semaphore's give side and the mutex's unlock side,
// which both hand off to the most urgent waiter.
func (k *Kernel) popBestWaiterLocked(obj any) *Task {
	var best *Task
	k.blocked.ForEach(func(t *Task) {
		if t.blockObject != obj {
			return
		}
		if best == nil || t.priority < best.priority {
			best = t
		}
	})
	return best
}

// popFirstWaiterLocked returns the task that has been waiting on obj with
// the given block reason the longest (the blocked list is appended to in
// block order, so the first match is the FIFO head). Message-queue wait
// sets wake in arrival order, not priority order.
func (k *Kernel) popFirstWaiterLocked(obj any, reason BlockReason) *Task {
	var first *Task
	k.blocked.ForEach(func(t *Task) {
		if first == nil && t.blockObject == obj && t.blockReason == reason {
			first = t
		}
	})
	return first
}

// popAllWaitersLocked unblocks every task waiting on obj with destroyed
// set, for object deletion: the flag must be raised on all of them before
// any handoff runs, or a waiter dispatched while its siblings are still
// being woken would observe a plain success instead of ObjectDestroyed.
// Returns how many waiters were woken.
func (k *Kernel) popAllWaitersLocked(obj any) int {
	var all []*Task
	k.blocked.ForEach(func(t *Task) {
		if t.blockObject == obj {
			all = append(all, t)
		}
	})
	for _, t := range all {
		t.destroyed = true
		k.unblockLocked(t)
	}
	return len(all)
}

// waitOutcome inspects self's state after a cooperateWithAction-driven
// IPC wait returns control: nil means the wait was satisfied, anything
// else says why it wasn't.
func (k *Kernel) waitOutcome(self *Task) error {
	if self.destroyed {
		self.destroyed = false
		return ErrObjectDestroyed
	}
	if self.timedOut {
		self.timedOut = false
		return ErrTimeout
	}
	return nil
}
