package kernel

import "github.com/google/uuid"

// EventWaitAll and EventWaitAny select whether EventWait is satisfied by
// every requested bit or any one of them. EventClearOnExit additionally
// clears the matched bits atomically with the wait being satisfied.
const (
	EventWaitAny     uint8 = 0
	EventWaitAll     uint8 = 1 << 0
	EventClearOnExit uint8 = 1 << 1
)

// EventGroup is a 32-bit field of independent flags that tasks can wait
// on — all of a set, or any one of them — with an optional atomic
// clear-on-satisfy.
type EventGroup struct {
	ID   uuid.UUID
	Name string

	flags uint32
}

// CreateEventGroup allocates an event group with all flags initially clear.
func (k *Kernel) CreateEventGroup(name string) (*EventGroup, error) {
	if name == "" {
		return nil, newErr(KindInvalidArgument, "CreateEventGroup", "empty event group name")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.events) >= k.cfg.MaxEventGroups {
		return nil, newErr(KindCapacityExhausted, "CreateEventGroup", "no free event group slots")
	}
	if _, exists := k.events[name]; exists {
		return nil, newErr(KindInvalidArgument, "CreateEventGroup", "event group name already in use")
	}
	g := &EventGroup{ID: uuid.New(), Name: name}
	k.events[name] = g
	k.log.Infow("created event group", "name", name)
	return g, nil
}

// DeleteEventGroup removes an event group, waking every waiter with
// ErrObjectDestroyed.
func (k *Kernel) DeleteEventGroup(self *Task, g *EventGroup) error {
	if g == nil {
		return newErr(KindInvalidArgument, "DeleteEventGroup", "nil event group")
	}
	k.mu.Lock()
	if _, ok := k.events[g.Name]; !ok {
		k.mu.Unlock()
		return newErr(KindInvalidArgument, "DeleteEventGroup", "unknown event group")
	}
	delete(k.events, g.Name)
	woken := k.popAllWaitersLocked(g)
	k.mu.Unlock()
	if woken > 0 {
		k.yieldIfPreempted(self)
	}
	k.log.Infow("deleted event group", "name", g.Name)
	return nil
}

// eventSatisfied reports whether a group's current flags satisfy a wait
// for wanted under options. Set and Wait evaluate the same predicate.
func eventSatisfied(current, wanted uint32, options uint8) bool {
	if options&EventWaitAll != 0 {
		return current&wanted == wanted
	}
	return current&wanted != 0
}

// EventSetFlags ORs flags into the group's current value and wakes every
// waiter whose condition is now satisfied, clearing the matched bits
// first for any waiter that asked for EventClearOnExit. Returns the
// flags value immediately before this call.
func (k *Kernel) EventSetFlags(self *Task, g *EventGroup, flags uint32) uint32 {
	k.mu.Lock()
	prev := g.flags
	g.flags |= flags

	var toWake []*Task
	k.blocked.ForEach(func(t *Task) {
		if t.blockObject != g {
			return
		}
		if !eventSatisfied(g.flags, t.eventWait.wanted, t.eventWait.options) {
			return
		}
		t.eventWait.matched = g.flags & t.eventWait.wanted
		if t.eventWait.options&EventClearOnExit != 0 {
			g.flags &^= t.eventWait.wanted
		}
		toWake = append(toWake, t)
	})
	for _, t := range toWake {
		k.unblockLocked(t)
	}
	k.mu.Unlock()

	if len(toWake) > 0 {
		k.yieldIfPreempted(self)
	}
	return prev
}

// EventClearFlags clears flags in the group unconditionally, returning
// the value immediately before the clear. Never wakes anyone — clearing
// bits can only make waiters' predicates harder to satisfy.
func (k *Kernel) EventClearFlags(g *EventGroup, flags uint32) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	prev := g.flags
	g.flags &^= flags
	return prev
}

// EventGetFlags reports the group's current flags without waiting.
func (k *Kernel) EventGetFlags(g *EventGroup) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return g.flags
}

// EventWait blocks self until the flags in wanted satisfy options
// (EventWaitAll or EventWaitAny), up to timeout ticks, returning the
// matched flags on success. If the predicate is already satisfied this
// returns immediately, applying EventClearOnExit the same as the
// blocking path.
func (k *Kernel) EventWait(self *Task, g *EventGroup, wanted uint32, options uint8, timeout Ticks) (uint32, error) {
	if self == nil || g == nil || wanted == 0 {
		return 0, newErr(KindInvalidArgument, "EventWait", "nil task/event group or zero mask")
	}
	k.mu.Lock()
	if eventSatisfied(g.flags, wanted, options) {
		matched := g.flags & wanted
		if options&EventClearOnExit != 0 {
			g.flags &^= wanted
		}
		k.mu.Unlock()
		return matched, nil
	}
	if timeout == 0 {
		k.mu.Unlock()
		return 0, ErrTimeout
	}
	k.mu.Unlock()

	k.cooperateWithAction(self, func() {
		self.eventWait = eventWait{wanted: wanted, options: options}
		k.blockCurrentLocked(self, BlockEvent, g, timeout)
	})
	if err := k.waitOutcome(self); err != nil {
		return 0, err
	}
	k.mu.Lock()
	matched := self.eventWait.matched
	k.mu.Unlock()
	return matched, nil
}
