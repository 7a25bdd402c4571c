package kernel

import "github.com/google/uuid"

// Mutex is a binary mutual-exclusion lock with single-level priority
// inheritance: a lower-priority owner holding a mutex a higher-priority
// task wants has its priority temporarily raised to match, so a
// medium-priority task can't keep both of them waiting indefinitely (the
// classic priority-inversion fix). Inheritance is a single hop; a chain
// of held mutexes does not propagate urgency further.
type Mutex struct {
	ID   uuid.UUID
	Name string

	locked bool
	owner  *Task
}

// CreateMutex allocates an unlocked mutex.
func (k *Kernel) CreateMutex(name string) (*Mutex, error) {
	if name == "" {
		return nil, newErr(KindInvalidArgument, "CreateMutex", "empty mutex name")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.mutexes) >= k.cfg.MaxMutexes {
		return nil, newErr(KindCapacityExhausted, "CreateMutex", "no free mutex slots")
	}
	if _, exists := k.mutexes[name]; exists {
		return nil, newErr(KindInvalidArgument, "CreateMutex", "mutex name already in use")
	}
	m := &Mutex{ID: uuid.New(), Name: name}
	k.mutexes[name] = m
	k.log.Infow("created mutex", "name", name)
	return m, nil
}

// DeleteMutex removes a mutex. If it is held, the owner's priority is
// restored first; every waiter is woken with ErrObjectDestroyed. self is
// the calling task, or nil from outside any task's own goroutine.
func (k *Kernel) DeleteMutex(self *Task, m *Mutex) error {
	if m == nil {
		return newErr(KindInvalidArgument, "DeleteMutex", "nil mutex")
	}
	k.mu.Lock()
	if _, ok := k.mutexes[m.Name]; !ok {
		k.mu.Unlock()
		return newErr(KindInvalidArgument, "DeleteMutex", "unknown mutex")
	}
	delete(k.mutexes, m.Name)
	if m.locked && m.owner != nil && m.owner.priority != m.owner.originalPriority {
		k.setPriorityLocked(m.owner, m.owner.originalPriority)
	}
	woken := k.popAllWaitersLocked(m)
	k.mu.Unlock()
	if woken > 0 {
		k.yieldIfPreempted(self)
	}
	k.log.Infow("deleted mutex", "name", m.Name)
	return nil
}

// MutexLock acquires m, blocking up to timeout ticks if it is already
// held. Locking a mutex the caller already owns is a state error; there
// is no recursive locking. If the current owner has a lower effective
// priority than self, the owner is boosted to self's priority for the
// duration of the hold.
func (k *Kernel) MutexLock(self *Task, m *Mutex, timeout Ticks) error {
	if self == nil || m == nil {
		return newErr(KindInvalidArgument, "MutexLock", "nil task or mutex")
	}
	k.mu.Lock()
	if m.locked && m.owner == self {
		k.mu.Unlock()
		return newErr(KindStateError, "MutexLock", "task already owns this mutex")
	}
	if !m.locked {
		m.locked = true
		m.owner = self
		self.ownedMutexes = append(self.ownedMutexes, m)
		k.mu.Unlock()
		return nil
	}
	if timeout == 0 {
		k.mu.Unlock()
		return ErrTimeout
	}
	if self.priority < m.owner.priority {
		k.setPriorityLocked(m.owner, self.priority)
		k.log.Infow("priority inheritance raise", "mutex", m.Name, "owner", m.owner.Name, "priority", self.priority)
	}
	k.mu.Unlock()

	k.cooperateWithAction(self, func() {
		k.blockCurrentLocked(self, BlockMutex, m, timeout)
	})
	return k.waitOutcome(self)
}

// MutexUnlock releases m, restoring self's original priority if it was
// boosted by a waiter. If any task is waiting, ownership passes directly
// to the highest-priority one (no intervening "unlocked" state) and it
// is woken; otherwise the mutex goes idle.
func (k *Kernel) MutexUnlock(self *Task, m *Mutex) error {
	if self == nil || m == nil {
		return newErr(KindInvalidArgument, "MutexUnlock", "nil task or mutex")
	}
	k.mu.Lock()
	if !m.locked {
		k.mu.Unlock()
		return newErr(KindStateError, "MutexUnlock", "mutex is not locked")
	}
	if m.owner != self {
		k.mu.Unlock()
		return newErr(KindStateError, "MutexUnlock", "task does not own this mutex")
	}
	self.ownedMutexes = removeMutex(self.ownedMutexes, m)
	if self.priority != self.originalPriority {
		k.setPriorityLocked(self, self.originalPriority)
		k.log.Infow("priority inheritance restore", "mutex", m.Name, "task", self.Name, "priority", self.originalPriority)
	}

	if waiter := k.popBestWaiterLocked(m); waiter != nil {
		m.owner = waiter
		waiter.ownedMutexes = append(waiter.ownedMutexes, m)
		k.unblockLocked(waiter)
		k.mu.Unlock()
		k.yieldIfPreempted(self)
		return nil
	}

	m.locked = false
	m.owner = nil
	k.mu.Unlock()
	return nil
}

// MutexIsLocked reports whether m is currently held.
func (k *Kernel) MutexIsLocked(m *Mutex) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return m.locked
}

func removeMutex(owned []*Mutex, m *Mutex) []*Mutex {
	for i, o := range owned {
		if o == m {
			return append(owned[:i], owned[i+1:]...)
		}
	}
	return owned
}

// setPriorityLocked changes t's effective priority and, if t is
// currently Ready, relocates it to the new priority's ready list so the
// change is immediately visible to next-task selection. Used both by
// priority inheritance here and by the public SetPriority in api.go.
func (k *Kernel) setPriorityLocked(t *Task, priority int) {
	if t.priority == priority {
		return
	}
	if t.state == StateReady {
		k.ready[t.priority].Remove(t)
		t.priority = priority
		k.addReadyLocked(t)
		return
	}
	t.priority = priority
}
