package herrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from spec.md §7.
type Kind int

const (
	// NotFound covers an absent blob, tag, or target.
	NotFound Kind = iota
	// Conflict covers a retriable metadata race (e.g. a concurrent record swap).
	Conflict
	// NoSpace covers DPE or target allocation failure.
	NoSpace
	// Io covers a device-level read/write failure.
	Io
	// RpcTimeout covers a call that exceeded its deadline.
	RpcTimeout
	// RpcUnreachable covers a call whose peer could not be reached at all.
	RpcUnreachable
	// RpcRemoteAbort covers a call the peer actively rejected.
	RpcRemoteAbort
	// InvalidArgument covers a caller-supplied value that fails validation.
	InvalidArgument
	// Cancelled covers a task dropped via cooperative cancellation or an expired deadline.
	Cancelled
	// Shutdown covers an operation that can't proceed because the daemon is draining.
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case NoSpace:
		return "NoSpace"
	case Io:
		return "Io"
	case RpcTimeout:
		return "RpcTimeout"
	case RpcUnreachable:
		return "RpcUnreachable"
	case RpcRemoteAbort:
		return "RpcRemoteAbort"
	case InvalidArgument:
		return "InvalidArgument"
	case Cancelled:
		return "Cancelled"
	case Shutdown:
		return "Shutdown"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// HermesError is a Kind-tagged error with an optional wrapped cause and a
// human-readable message. Use Is/As (or the package-level Is helper) to
// test for a particular Kind; do not compare error strings.
type HermesError struct {
	Kind    Kind
	Message string
	Cause   error

	// idempotent marks an RPC-kind error as produced by an idempotent
	// operation; the scheduler consults this via Retriable rather than
	// re-deriving idempotence from Kind alone, since RpcTimeout on a
	// non-idempotent write must NOT be retried.
	idempotent bool
}

func (e *HermesError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *HermesError) Unwrap() error { return e.Cause }

// Is implements errors.Is support: a *HermesError matches another
// *HermesError (or sentinel) with the same Kind, ignoring message and
// cause. This lets callers write errors.Is(err, herrors.ErrNotFound).
func (e *HermesError) Is(target error) bool {
	other, ok := target.(*HermesError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel values for errors.Is comparisons, one per Kind, e.g.
// errors.Is(err, herrors.ErrNotFound).
var (
	ErrNotFound        = New(NotFound, "not found")
	ErrConflict        = New(Conflict, "conflict")
	ErrNoSpace         = New(NoSpace, "no space")
	ErrIo              = New(Io, "i/o error")
	ErrRpcTimeout      = New(RpcTimeout, "rpc timeout")
	ErrRpcUnreachable  = New(RpcUnreachable, "rpc unreachable")
	ErrRpcRemoteAbort  = New(RpcRemoteAbort, "rpc remote abort")
	ErrInvalidArgument = New(InvalidArgument, "invalid argument")
	ErrCancelled       = New(Cancelled, "cancelled")
	ErrShutdown        = New(Shutdown, "shutdown")
)

// New constructs a *HermesError with no wrapped cause.
func New(kind Kind, message string) *HermesError {
	return &HermesError{Kind: kind, Message: message}
}

// Wrap constructs a *HermesError wrapping cause, or returns nil if cause is nil.
func Wrap(kind Kind, message string, cause error) *HermesError {
	if cause == nil {
		return nil
	}
	return &HermesError{Kind: kind, Message: message, Cause: cause}
}

// WithIdempotent marks the error as produced by an idempotent operation,
// making an RpcTimeout eligible for scheduler retry; without the mark an
// RpcTimeout is never retried. Returns e for chaining.
func (e *HermesError) WithIdempotent() *HermesError {
	e.idempotent = true
	return e
}

// Is reports whether err is a *HermesError of the given kind, or wraps one.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// KindOf extracts the Kind of err if it is (or wraps) a *HermesError, and
// reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var he *HermesError
	if errors.As(err, &he) {
		return he.Kind, true
	}
	return 0, false
}

// Retriable reports whether err is a kind the scheduler may retry per
// spec.md §7: Conflict always, RpcTimeout only for idempotent operations.
// Fatal kinds (Io on the authoritative write path, Shutdown) and all other
// kinds are not retriable here.
func Retriable(err error) bool {
	var he *HermesError
	if !errors.As(err, &he) {
		return false
	}
	switch he.Kind {
	case Conflict:
		return true
	case RpcTimeout:
		return he.idempotent
	default:
		return false
	}
}

// Fatal reports whether err should unwind the current task and, for
// Shutdown, initiate daemon drain (spec.md §7).
func Fatal(err error) bool {
	var he *HermesError
	if !errors.As(err, &he) {
		return false
	}
	return he.Kind == Io || he.Kind == Shutdown
}
