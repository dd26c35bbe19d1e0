package control

import (
	"errors"
	"fmt"

	"github.com/slurmcore/slurmcore/pkg/wire"
)

// ErrorKind classifies a control-plane failure the way callers need to
// react to it: close-the-connection kinds versus surfaced-to-caller
// kinds versus retriable kinds.
type ErrorKind int

const (
	// ProtocolDecode: framing invalid, version unsupported, payload
	// truncated. Closes the connection. Not retriable.
	ProtocolDecode ErrorKind = iota
	// AuthInvalid: credential missing, signature bad, expired, or
	// recipient mismatch. Closes the connection.
	AuthInvalid
	// AuthSkip: a provider declines; dispatch tries the next one.
	AuthSkip
	// AlreadyDone: state-change RPC targets an object already in the
	// desired terminal state. Surfaced, not retried.
	AlreadyDone
	// InvalidObjectID: no such job/step/container/partition/reservation.
	InvalidObjectID
	// TransitionPending: object is mid-transition; caller may retry.
	TransitionPending
	// PermissionDenied: caller uid lacks the needed role.
	PermissionDenied
	// Timeout: socket deadline expired.
	Timeout
	// Disabled: operation refused due to configuration.
	Disabled
	// ResourceExhausted: buffer cap exceeded, fd limit hit.
	ResourceExhausted
	// Fatal: invariant violated. Caller should abort after flushing logs.
	Fatal
)

func (k ErrorKind) String() string {
	switch k {
	case ProtocolDecode:
		return "protocol_decode"
	case AuthInvalid:
		return "auth_invalid"
	case AuthSkip:
		return "auth_skip"
	case AlreadyDone:
		return "already_done"
	case InvalidObjectID:
		return "invalid_object_id"
	case TransitionPending:
		return "transition_pending"
	case PermissionDenied:
		return "permission_denied"
	case Timeout:
		return "timeout"
	case Disabled:
		return "disabled"
	case ResourceExhausted:
		return "resource_exhausted"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error pairs an ErrorKind with the operation that produced it and the
// underlying cause, so callers can classify with errors.As while still
// getting a useful message and an %w chain to the root cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("control: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("control: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, control.ErrKind(X)) match any *Error of kind X.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// ErrKind constructs a zero-cause sentinel for errors.Is comparisons,
// e.g. errors.Is(err, control.ErrKind(control.AlreadyDone)).
func ErrKind(k ErrorKind) error { return &Error{Kind: k} }

func wrapf(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Terminating reports whether err is a kind that closes the Connection
// it arrived on, per the taxonomy's propagation policy.
func Terminating(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case ProtocolDecode, AuthInvalid, ResourceExhausted:
		return true
	default:
		return false
	}
}

func errUnknownRPCType(t wire.RPCType) error {
	return fmt.Errorf("unknown rpc type %d", t)
}

func errNoSuchJob(jobID uint32) error {
	return fmt.Errorf("no such job %d", jobID)
}

func errNotOwner(jobID, callerUID uint32) error {
	return fmt.Errorf("uid %d does not own job %d", callerUID, jobID)
}

func errNotAdmin(callerUID uint32) error {
	return fmt.Errorf("uid %d is not an administrator", callerUID)
}

func errNoClusterAvailable() error {
	return fmt.Errorf("no federation cluster answered WillRun")
}
