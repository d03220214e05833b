package invoke

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Wire names assigned to framework-raised failures. Provider errors keep
// whatever name they carry; errors without a name travel as "Error".
const (
	genericErrorName     = "Error"
	remoteErrorName      = "RemoteError"
	noProviderErrorName  = "NoProviderError"
	notCallableErrorName = "NotAFunctionError"
)

// ErrorValue is the wire descriptor of an error carried in a failure return.
type ErrorValue struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// DomainError marks a programming mistake against the framework's contract:
// an illegal state transition, accept twice, calling the root driver.
// It is raised synchronously and never placed on the wire.
type DomainError struct {
	Msg string
}

func (e *DomainError) Error() string { return e.Msg }

// Domainf builds a DomainError.
func Domainf(format string, args ...any) error {
	return &DomainError{Msg: fmt.Sprintf(format, args...)}
}

// RuntimeError marks an operation attempted against a communicator that is
// not currently able to serve it (closing, already closed, not yet opened).
// Suspensions fail with it; it is never placed on the wire.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string { return e.Msg }

// Runtimef builds a RuntimeError.
func Runtimef(format string, args ...any) error {
	return &RuntimeError{Msg: fmt.Sprintf(format, args...)}
}

// TransportError marks a network- or port-level failure. Every pending
// suspension on the affected communicator fails with it.
type TransportError struct {
	Msg   string
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Transportf builds a TransportError wrapping cause (which may be nil).
func Transportf(cause error, format string, args ...any) error {
	return &TransportError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// NamedError is a provider-raised error carrying an explicit wire name, so
// the peer can reconstruct a tagged error variant. The stack is captured at
// construction.
type NamedError struct {
	Name    string
	Message string
	Stack   string
}

func (e *NamedError) Error() string { return e.Name + ": " + e.Message }

// Named builds a NamedError with the call site's stack.
func Named(name, format string, args ...any) error {
	return &NamedError{
		Name:    name,
		Message: fmt.Sprintf(format, args...),
		Stack:   string(debug.Stack()),
	}
}

// NoProvider reports a function record arriving at a communicator whose
// provider is nil. The peer observes it as a RemoteError.
func NoProvider() error {
	return Named(noProviderErrorName, "no provider registered on this communicator")
}

// NotCallable reports a listener path that does not lead to a callable
// member. The peer observes it as a RemoteError.
func NotCallable(path, reason string) error {
	return Named(notCallableErrorName, "%s is not a function: %s", path, reason)
}

// RemoteError is the caller-side reconstruction of a failure return. Name,
// Message, and Stack are exactly what the remote side serialized.
type RemoteError struct {
	Name    string
	Message string
	Stack   string
}

func (e *RemoteError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// Describe converts err into its wire descriptor. Named and remote errors
// keep their name and stack; everything else travels as a generic "Error"
// with the stack captured here.
func Describe(err error) ErrorValue {
	var named *NamedError
	if errors.As(err, &named) {
		return ErrorValue{Name: named.Name, Message: named.Message, Stack: named.Stack}
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return ErrorValue{Name: remote.Name, Message: remote.Message, Stack: remote.Stack}
	}
	return ErrorValue{
		Name:    genericErrorName,
		Message: err.Error(),
		Stack:   string(debug.Stack()),
	}
}

// Reconstruct turns a received descriptor back into an error. The name is
// preserved so callers can match on it; a descriptor without a name surfaces
// as a generic remote error carrying the original message.
func Reconstruct(ev ErrorValue) error {
	name := ev.Name
	if name == "" {
		name = remoteErrorName
	}
	return &RemoteError{Name: name, Message: ev.Message, Stack: ev.Stack}
}
