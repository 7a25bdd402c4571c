// Package kernel implements the core of a simulated, tick-driven,
// cooperative real-time operating system: task scheduling across four
// policies, a goroutine-backed context-switching substrate, and the
// inter-task synchronization primitives (semaphores, priority-inheritance
// mutexes, bounded message queues, event flag groups) that sit on top of
// it.
//
// Everything here is single-threaded in the RTOS sense: at most one task
// is logically executing at any instant, even though each task is backed
// by its own goroutine. See context.go for how that's enforced.
package kernel

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

func atomicAdd(addr *int32, delta int32) int32 {
	return atomic.AddInt32(addr, delta)
}

func atomicLoadInt32(addr *int32) int32 {
	return atomic.LoadInt32(addr)
}

// Policy selects which of the four scheduling disciplines next-task
// selection uses.
type Policy uint8

const (
	PolicyPriority Policy = iota
	PolicyRoundRobin
	PolicyEDF
	PolicyRMS
)

func (p Policy) String() string {
	switch p {
	case PolicyPriority:
		return "Priority"
	case PolicyRoundRobin:
		return "RoundRobin"
	case PolicyEDF:
		return "EDF"
	case PolicyRMS:
		return "RMS"
	default:
		return "Unknown"
	}
}

// RunState is the scheduler's own Stopped/Running state.
type RunState uint8

const (
	Stopped RunState = iota
	Running
)

// SchedulerStats aggregates the kernel-wide scheduling counters.
type SchedulerStats struct {
	ContextSwitches       uint64
	TasksCreated          uint64
	TasksDeleted          uint64
	SchedulerInvocations  uint64
	IdleTime              Ticks
	SystemTime            Ticks
	DeadlineMisses        uint64
}

// CPULoad returns the fraction of system time NOT spent idle, 0..1.
func (s SchedulerStats) CPULoad() float64 {
	if s.SystemTime == 0 {
		return 0
	}
	busy := s.SystemTime - s.IdleTime
	return float64(busy) / float64(s.SystemTime)
}

// Kernel is the single explicit state struct that owns the scheduler, the
// task registry, and every IPC object pool. Everything hangs off this one
// value; there is no process-wide mutable state, so two kernels can run
// side by side (tests do).
type Kernel struct {
	mu  sync.Mutex // the critical section serializing every queue mutation
	cfg Config
	log *zap.SugaredLogger

	clock *Clock

	policy   Policy
	runState RunState

	tasksByID   map[string]*Task
	tasksByName map[string]*Task
	idle        *Task
	current     *Task

	ready     []taskList // one FIFO per priority level, index 0 = highest
	blocked   taskList
	suspended taskList

	schedLockDepth int32
	pendingSwitch  bool

	// handoffPending/handoffPrev/handoffNext record a switch that
	// contextSwitchLocked/tickLocked decided on while k.mu was held, for
	// syncDispatch (context.go) to replay as an actual goroutine handoff
	// after the lock is released. Every switch sets the record; a caller
	// that never replays it (ContextSwitch, or tests calling the Locked
	// bookkeeping directly) leaves the switch as pure bookkeeping.
	handoffPending bool
	handoffPrev    *Task
	handoffNext    *Task

	stats SchedulerStats

	// context substrate plumbing, see context.go
	driverCh       chan struct{}
	started        bool
	realTimePacing bool

	semaphores map[string]*Semaphore
	mutexes    map[string]*Mutex
	queues     map[string]*Queue
	events     map[string]*EventGroup
}

// NewKernel constructs a Kernel with the given config and logger. Pass
// kernel.NopLogger() in tests that don't want narration. Construction is
// cheap and pure; Start is where the side effects live (it takes over the
// calling goroutine as the tick driver).
func NewKernel(cfg Config, log *zap.SugaredLogger) *Kernel {
	if log == nil {
		log = NopLogger()
	}
	k := &Kernel{
		cfg:         cfg,
		log:         log,
		clock:       NewClock(cfg.TickPeriodMS),
		policy:      cfg.Policy,
		runState:    Stopped,
		tasksByID:   make(map[string]*Task),
		tasksByName: make(map[string]*Task),
		ready:       make([]taskList, cfg.PriorityLevels),
		driverCh:    make(chan struct{}),
		semaphores:  make(map[string]*Semaphore),
		mutexes:     make(map[string]*Mutex),
		queues:      make(map[string]*Queue),
		events:      make(map[string]*EventGroup),
	}
	k.idle = k.newIdleTask()
	return k
}

// Clock exposes the tick/time source for callers that want to read the
// current tick count without going through the full API surface.
func (k *Kernel) Clock() *Clock { return k.clock }

// Policy returns the active scheduling policy.
func (k *Kernel) Policy() Policy {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.policy
}

// SetPolicy changes the active scheduling policy. Safe to call while the
// scheduler is running; it only affects future next-task selections.
func (k *Kernel) SetPolicy(p Policy) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.policy = p
}

// Stats returns a copy of the aggregate scheduler statistics.
func (k *Kernel) Stats() SchedulerStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stats
}

// ResetStats zeroes the aggregate scheduler statistics.
func (k *Kernel) ResetStats() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stats = SchedulerStats{}
}

// RunState reports whether the scheduler is Running or Stopped.
func (k *Kernel) RunState() RunState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.runState
}

// Lock suppresses context switches until a matching Unlock, nestable.
// Unlike the critical section, this never blocks tick bookkeeping or
// IPC-queue mutation — it only gates whether a *switch* actually takes
// effect.
func (k *Kernel) Lock() {
	atomicAdd(&k.schedLockDepth, 1)
}

// Unlock releases one level of scheduler lock. When the depth reaches
// zero and a switch was deferred while locked, it is performed now. self
// is the calling task (or nil from outside any task's own goroutine); if
// the deferred switch replaces self, its goroutine parks exactly like a
// voluntary yield.
func (k *Kernel) Unlock(self *Task) {
	if atomicAdd(&k.schedLockDepth, -1) != 0 {
		return
	}
	k.mu.Lock()
	pending := k.pendingSwitch
	k.pendingSwitch = false
	k.mu.Unlock()
	if pending {
		k.yieldIfPreempted(self)
	}
}

// Halt reports an internal invariant violation. Queue-membership
// inconsistencies and the like are arranged to be impossible by
// construction, so there is no recovery path — the simulator stops with a
// KindInternal error for the harness to report.
func (k *Kernel) Halt(op, msg string) {
	k.log.Errorw("internal invariant violation", "op", op, "msg", msg)
	panic(newErr(KindInternal, op, msg))
}
