package errs

import (
	"errors"
	"fmt"
)

// Kind classifies every failure this service can surface. The set is
// closed: transport and coordinator code must map raw errors into one
// of these before they cross a package boundary.
type Kind int

const (
	// KindNetwork means no response reached us at all.
	KindNetwork Kind = iota + 1
	// KindServer means the backend answered with a non-2xx status.
	KindServer
	// KindProtocol means a stream event or response body was malformed.
	KindProtocol
	// KindCancelled marks cooperative cancellation; not a true failure
	// and suppressed from user-facing error events.
	KindCancelled
	// KindValidation means the caller violated a precondition.
	KindValidation
)

// String returns the taxonomy name for a kind.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindProtocol:
		return "protocol"
	case KindCancelled:
		return "cancelled"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error carries a kind alongside the underlying cause. Status is set
// only for KindServer.
type Error struct {
	Kind   Kind
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Server creates a KindServer error for an HTTP status.
func Server(status int, msg string) *Error {
	return &Error{Kind: KindServer, Status: status, Msg: msg}
}

// KindOf extracts the kind from an error chain, or 0 when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsCancelled reports whether err is cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || KindOf(err) == KindCancelled
}

// Sentinel preconditions and terminal states. All are classified so
// KindOf works on them directly.
var (
	// ErrCancelled is returned by a stream torn down via Cancel.
	ErrCancelled = New(KindCancelled, "stream cancelled")
	// ErrStreamActive rejects a second exchange on a session that
	// already has an un-cancelled, incomplete stream.
	ErrStreamActive = New(KindValidation, "session already has an active stream")
	// ErrSessionNotFound rejects operations on unknown session ids.
	ErrSessionNotFound = New(KindValidation, "session not found")
	// ErrEmptyMessage rejects blank user input before it reaches the wire.
	ErrEmptyMessage = New(KindValidation, "message must not be empty")
)
