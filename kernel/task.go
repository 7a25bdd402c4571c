package kernel

import (
	"github.com/google/uuid"
)

// TaskState is one of the five states in the task lifecycle state
// machine.
type TaskState int

const (
	StateReady TaskState = iota
	StateRunning
	StateBlocked
	StateSuspended
	StateTerminated
)

func (s TaskState) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateBlocked:
		return "Blocked"
	case StateSuspended:
		return "Suspended"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// BlockReason names what a Blocked task is waiting on.
type BlockReason int

const (
	BlockNone BlockReason = iota
	BlockDelay
	BlockSemaphore
	BlockQueueFull
	BlockQueueEmpty
	BlockEvent
	BlockMutex
)

func (r BlockReason) String() string {
	switch r {
	case BlockDelay:
		return "Delay"
	case BlockSemaphore:
		return "Semaphore"
	case BlockQueueFull:
		return "QueueFull"
	case BlockQueueEmpty:
		return "QueueEmpty"
	case BlockEvent:
		return "Event"
	case BlockMutex:
		return "Mutex"
	default:
		return "None"
	}
}

// eventWait holds the parameters an event-group wait leaves behind while
// blocked: the wanted mask and the options byte, kept as two plain typed
// fields rather than packed into a single pointer-sized slot.
type eventWait struct {
	wanted  uint32
	options uint8
	matched uint32 // filled in by EventSetFlags at the moment the predicate is satisfied
}

// TaskStats accumulates per-task runtime statistics.
type TaskStats struct {
	TotalRuntime    Ticks
	LastStartTime   Ticks
	Activations     uint64
	DeadlineMisses  uint64
	MaxExecBurst    Ticks
}

// Task is the Task Control Block (TCB): the in-memory record of a task.
type Task struct {
	ID   uuid.UUID
	Name string

	state TaskState

	priority         int // effective priority
	originalPriority int

	timeSlice      Ticks
	timeSliceCount Ticks

	stack *simStack

	blockReason BlockReason
	blockObject any // *Semaphore | *Mutex | *Queue | *EventGroup | nil
	delayUntil  Ticks
	timedOut    bool // set by the tick-driven expiry sweep or a forced release out of an IPC wait; reported as KindTimeout
	destroyed   bool // set when blockObject was deleted out from under this waiter
	eventWait   eventWait // only meaningful while blockReason == BlockEvent

	// queueSend/queueRecv carry a message across a direct producer/consumer
	// rendezvous without ever touching the queue's ring buffer. Only one is
	// in use at a time, depending on blockReason.
	queueSend []byte // set by QueueSend before blocking BlockQueueFull
	queueRecv []byte // filled in by a sender handing off to a BlockQueueEmpty waiter

	// Periodic release tracking; period == 0 means aperiodic.
	period           Ticks
	deadline         Ticks
	nextRelease      Ticks
	absoluteDeadline Ticks

	stats TaskStats

	entry func(arg any)
	arg   any

	// Context substrate: this task's dedicated goroutine parks on resumeCh
	// between dispatches and signals driverCh when it yields control back.
	resumeCh  chan struct{}
	started   bool
	terminate bool

	// Mutexes this task currently owns, for priority-inheritance
	// bookkeeping. Rarely more than one or two in practice.
	ownedMutexes []*Mutex

	// Intrusive list linkage, see list.go.
	listNext, listPrev *Task
	inList             bool
}

// simStack is a best-effort stand-in for the dedicated stack region a
// TCB exclusively owns on a real target. There is no stack to allocate in
// Go (the goroutine owns its own and grows it at will), so this carries
// only the size/watermark bookkeeping: a canary written at init time and
// a simulated headroom figure.
type simStack struct {
	size     uint32
	headroom uint32 // best-effort simulated remaining headroom
	canary   uint32
}

// stackCanaryValue is the fill pattern written to the canary slot when a
// stack region is initialized; TaskCheckStackOverflow reports a clobber
// when it reads back anything else.
const stackCanaryValue uint32 = 0xA5A5A5A5

// Priority returns the task's current effective priority.
func (t *Task) Priority() int { return t.priority }

// OriginalPriority returns the task's baseline priority (set at creation
// or by TaskSetPriority), before any priority-inheritance boost.
func (t *Task) OriginalPriority() int { return t.originalPriority }

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState { return t.state }

// BlockReason returns why a Blocked task is blocked; BlockNone otherwise.
func (t *Task) BlockReason() BlockReason { return t.blockReason }

// Stats returns a copy of the task's accumulated statistics.
func (t *Task) Stats() TaskStats { return t.stats }

// IsPeriodic reports whether the task has been configured with SetPeriodic.
func (t *Task) IsPeriodic() bool { return t.period > 0 }
