package kernel

import "github.com/google/uuid"

// Queue is a fixed-capacity ring buffer of fixed-size messages: Send
// blocks on a full queue, Receive blocks on an empty one. Send hands its
// message directly to an already-parked receiver instead of going
// through the ring buffer; a Receive that frees a slot moves a parked
// sender's message into that slot and wakes the sender. Messages are
// opaque byte slices, value-copied in both directions; payload ownership
// stays with the caller.
type Queue struct {
	ID      uuid.UUID
	Name    string
	MsgSize int

	buf        [][]byte
	head, tail int
	count      int
	capacity   int
}

// CreateQueue allocates a queue holding up to capacity messages of
// msgSize bytes each.
func (k *Kernel) CreateQueue(name string, msgSize, capacity int) (*Queue, error) {
	if name == "" || msgSize <= 0 || capacity <= 0 {
		return nil, newErr(KindInvalidArgument, "CreateQueue", "invalid queue parameters")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.queues) >= k.cfg.MaxQueues {
		return nil, newErr(KindCapacityExhausted, "CreateQueue", "no free queue slots")
	}
	if _, exists := k.queues[name]; exists {
		return nil, newErr(KindInvalidArgument, "CreateQueue", "queue name already in use")
	}
	q := &Queue{
		ID:       uuid.New(),
		Name:     name,
		MsgSize:  msgSize,
		buf:      make([][]byte, capacity),
		capacity: capacity,
	}
	k.queues[name] = q
	k.log.Infow("created queue", "name", name, "msg_size", msgSize, "capacity", capacity)
	return q, nil
}

// DeleteQueue removes a queue, waking every waiter on either side with
// ErrObjectDestroyed.
func (k *Kernel) DeleteQueue(self *Task, q *Queue) error {
	if q == nil {
		return newErr(KindInvalidArgument, "DeleteQueue", "nil queue")
	}
	k.mu.Lock()
	if _, ok := k.queues[q.Name]; !ok {
		k.mu.Unlock()
		return newErr(KindInvalidArgument, "DeleteQueue", "unknown queue")
	}
	delete(k.queues, q.Name)
	woken := k.popAllWaitersLocked(q)
	k.mu.Unlock()
	if woken > 0 {
		k.yieldIfPreempted(self)
	}
	k.log.Infow("deleted queue", "name", q.Name)
	return nil
}

// QueueSend enqueues msg, blocking up to timeout ticks if the queue is
// full. If a receiver is already waiting, the message is handed to it
// directly — no ring-buffer traffic at all. msg is copied; the caller
// may reuse its backing array immediately after this returns.
func (k *Kernel) QueueSend(self *Task, q *Queue, msg []byte, timeout Ticks) error {
	if self == nil || q == nil || msg == nil {
		return newErr(KindInvalidArgument, "QueueSend", "nil task, queue, or message")
	}
	if len(msg) != q.MsgSize {
		return newErr(KindInvalidArgument, "QueueSend", "message size does not match queue's msg_size")
	}
	payload := append([]byte(nil), msg...)

	k.mu.Lock()
	// A receiver can only be parked on BlockQueueEmpty while the buffer
	// is empty, so this rendezvous check must run before the capacity
	// check below — otherwise an empty-but-capacity>0 queue would buffer
	// the message instead of waking the waiting receiver directly.
	if waiter := k.popFirstWaiterLocked(q, BlockQueueEmpty); waiter != nil {
		waiter.queueRecv = payload
		k.unblockLocked(waiter)
		k.mu.Unlock()
		k.yieldIfPreempted(self)
		return nil
	}

	if q.count < q.capacity {
		q.buf[q.tail] = payload
		q.tail = (q.tail + 1) % q.capacity
		q.count++
		k.mu.Unlock()
		return nil
	}

	if timeout == 0 {
		k.mu.Unlock()
		return ErrTimeout
	}
	k.mu.Unlock()

	k.cooperateWithAction(self, func() {
		self.queueSend = payload
		k.blockCurrentLocked(self, BlockQueueFull, q, timeout)
	})
	return k.waitOutcome(self)
}

// QueueReceive dequeues the oldest message into msg (which must be at
// least q.MsgSize bytes), blocking up to timeout ticks if the queue is
// empty. If a sender is already waiting on the full queue, its message
// is moved into the slot this receive just freed and the sender is
// woken; the receiver itself always gets the ring's oldest message.
func (k *Kernel) QueueReceive(self *Task, q *Queue, msg []byte, timeout Ticks) error {
	if self == nil || q == nil || msg == nil {
		return newErr(KindInvalidArgument, "QueueReceive", "nil task, queue, or message")
	}
	if len(msg) < q.MsgSize {
		return newErr(KindInvalidArgument, "QueueReceive", "destination buffer smaller than msg_size")
	}

	k.mu.Lock()
	if q.count > 0 {
		copy(msg, q.buf[q.head])
		q.buf[q.head] = nil
		q.head = (q.head + 1) % q.capacity
		q.count--

		if waiter := k.popFirstWaiterLocked(q, BlockQueueFull); waiter != nil {
			q.buf[q.tail] = waiter.queueSend
			waiter.queueSend = nil
			q.tail = (q.tail + 1) % q.capacity
			q.count++
			k.unblockLocked(waiter)
			k.mu.Unlock()
			k.yieldIfPreempted(self)
			return nil
		}
		k.mu.Unlock()
		return nil
	}

	if waiter := k.popFirstWaiterLocked(q, BlockQueueFull); waiter != nil {
		copy(msg, waiter.queueSend)
		waiter.queueSend = nil
		k.unblockLocked(waiter)
		k.mu.Unlock()
		k.yieldIfPreempted(self)
		return nil
	}

	if timeout == 0 {
		k.mu.Unlock()
		return ErrTimeout
	}
	k.mu.Unlock()

	k.cooperateWithAction(self, func() {
		k.blockCurrentLocked(self, BlockQueueEmpty, q, timeout)
	})
	if err := k.waitOutcome(self); err != nil {
		return err
	}
	copy(msg, self.queueRecv)
	self.queueRecv = nil
	return nil
}

// QueueCount reports the number of messages currently buffered.
func (k *Kernel) QueueCount(q *Queue) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return q.count
}

// QueuePeek copies the next message to be received into msg without
// removing it from the queue, for callers that want to inspect the head
// without consuming it.
func (k *Kernel) QueuePeek(q *Queue, msg []byte) error {
	if q == nil || msg == nil {
		return newErr(KindInvalidArgument, "QueuePeek", "nil queue or message")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if q.count == 0 {
		return newErr(KindStateError, "QueuePeek", "queue is empty")
	}
	copy(msg, q.buf[q.head])
	return nil
}
