package types

import "github.com/pkg/errors"

// ConnectionFailed wraps a TCP connect or I/O error. Per spec.md section 7
// this is never raised to the caller mid-poll; it surfaces as absence of
// progress (the connection is marked dead and handle_error runs).
type ConnectionFailed struct {
	cause error
}

func NewConnectionFailed(cause error) *ConnectionFailed { return &ConnectionFailed{cause: cause} }

func (e *ConnectionFailed) Error() string { return "gearman: connection failed: " + e.cause.Error() }
func (e *ConnectionFailed) Unwrap() error { return e.cause }

// ServerUnavailable means no connection in the configured list could be
// established when one was required: by an admin command when its server
// cannot be reached, by Client.SubmitJob when no configured server
// connects, and by Worker.Work when no connection can be re-established.
// Raised directly to the caller. NewAdmin itself does not dial, and the
// client has no mode that requires every server to connect.
type ServerUnavailable struct {
	msg string
}

func NewServerUnavailable(msg string) *ServerUnavailable { return &ServerUnavailable{msg: msg} }
func (e *ServerUnavailable) Error() string               { return "gearman: server unavailable: " + e.msg }

// InvalidClientState means the server sent a semantically impossible
// message for the client handler's current state (spec.md section 4.4).
type InvalidClientState struct {
	msg string
}

func NewInvalidClientState(format string, args ...interface{}) *InvalidClientState {
	return &InvalidClientState{msg: errors.Errorf(format, args...).Error()}
}
func (e *InvalidClientState) Error() string { return "gearman: invalid client state: " + e.msg }

// InvalidWorkerState means the server sent a semantically impossible
// message for the worker handler's current state (spec.md section 4.5).
type InvalidWorkerState struct {
	msg string
}

func NewInvalidWorkerState(format string, args ...interface{}) *InvalidWorkerState {
	return &InvalidWorkerState{msg: errors.Errorf(format, args...).Error()}
}
func (e *InvalidWorkerState) Error() string { return "gearman: invalid worker state: " + e.msg }

// InvalidAdminClientState means the server responded with an unexpected
// response kind, or the admin poll timed out (spec.md section 4.7).
type InvalidAdminClientState struct {
	msg string
}

func NewInvalidAdminClientState(format string, args ...interface{}) *InvalidAdminClientState {
	return &InvalidAdminClientState{msg: errors.Errorf(format, args...).Error()}
}
func (e *InvalidAdminClientState) Error() string {
	return "gearman: invalid admin client state: " + e.msg
}
