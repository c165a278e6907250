package handlers

// HandlerError marks a user-caused failure: malformed bodies, wrong field types,
// an unregistered sender. The router converts it into an error payload pushed to
// the originating connection while the event itself still reports success.
// Every other error is fatal for the invocation.
type HandlerError struct {
	msg string
}

func (e *HandlerError) Error() string {
	return e.msg
}

func newHandlerError(msg string) *HandlerError {
	return &HandlerError{msg: msg}
}
