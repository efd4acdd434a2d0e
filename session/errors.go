package session

import "errors"

// Session-layer error kinds (spec section on error handling design). These
// are sentinel causes; callers match with errors.Is. ErrPeerError is wrapped
// with the server-supplied code and details, ErrTransportDown with the
// underlying cause; ErrTimeout is returned unwrapped. None of them carries
// the subscription id.
var (
	// ErrPeerError indicates a NEG-ERR or a qualifying NOTICE closed the
	// session with a server-supplied code and details.
	ErrPeerError = errors.New("session: peer error")

	// ErrTimeout indicates reconciliation did not converge within the
	// configured window.
	ErrTimeout = errors.New("session: timed out")

	// ErrTransportDown indicates the underlying channel failed.
	ErrTransportDown = errors.New("session: transport down")

	// ErrManagerClosed is returned by Manager methods once Close has run.
	ErrManagerClosed = errors.New("session: manager closed")

	// ErrUnknownSession names a frame that references a subscription id
	// with no registered session. Dispatch logs and drops such frames; no
	// Manager method returns this error.
	ErrUnknownSession = errors.New("session: unknown subscription id")
)
