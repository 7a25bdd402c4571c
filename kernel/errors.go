package kernel

import "github.com/pkg/errors"

// Kind classifies a kernel error without tying callers to a specific
// sentinel value per operation.
type Kind int

const (
	// KindNone is the zero value; never returned as an error kind.
	KindNone Kind = iota
	// KindInvalidArgument covers null handles, out-of-range priorities,
	// zero-sized queues, and similar caller mistakes.
	KindInvalidArgument
	// KindCapacityExhausted covers pool exhaustion: no free TCB, no free
	// IPC slot, allocation failure.
	KindCapacityExhausted
	// KindStateError covers illegal state transitions: delete current,
	// suspend idle, unlock unowned mutex, give at max count, recursive lock.
	KindStateError
	// KindTimeout is returned by blocking calls whose deadline elapsed
	// with the predicate still unsatisfied.
	KindTimeout
	// KindObjectDestroyed is returned to a waiter that resumes because the
	// primitive it was blocked on was deleted out from under it, rather
	// than letting the waiter observe a phantom success.
	KindObjectDestroyed
	// KindInternal marks an invariant violation. The caller should treat
	// this as fatal; see Kernel.Halt.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindCapacityExhausted:
		return "CapacityExhausted"
	case KindStateError:
		return "StateError"
	case KindTimeout:
		return "Timeout"
	case KindObjectDestroyed:
		return "ObjectDestroyed"
	case KindInternal:
		return "InternalInvariantViolation"
	default:
		return "None"
	}
}

// Error is the concrete error type returned by kernel operations. It wraps
// an underlying cause (when one exists) with a Kind so callers can
// errors.As/Is against the taxonomy rather than string-matching messages.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Op + ": " + e.Msg + ": " + e.err.Error()
	}
	return e.Op + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is an *Error with the same Kind, letting
// callers write errors.Is(err, kernel.ErrTimeout) against the sentinels
// below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func wrapErr(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, err: errors.WithStack(cause)}
}

// Sentinels for errors.Is comparison against a Kind only (message/op are
// ignored by (*Error).Is).
var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrCapacityExhausted = &Error{Kind: KindCapacityExhausted}
	ErrStateError        = &Error{Kind: KindStateError}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrObjectDestroyed   = &Error{Kind: KindObjectDestroyed}
	ErrInternal          = &Error{Kind: KindInternal}
)
