package bridge

import (
	"errors"

	"lukebridge/internal/domain"
)

var (
	// ErrEndpointNotFound means no marker file yielded a port: the editor is not running.
	ErrEndpointNotFound = errors.New("editor endpoint not found; make sure the editor extension is running")
	// ErrConnect means a port was found but the websocket handshake failed.
	ErrConnect = errors.New("failed to connect to editor")
	// ErrTransport means an established connection failed mid round trip,
	// including replies that could not be decoded.
	ErrTransport = errors.New("failed to communicate with editor")
	// ErrCanceled means the caller's context ended before the reply arrived.
	ErrCanceled = errors.New("editor request canceled")
)

// RemoteError is a command the editor received and rejected. Message is the
// editor's text, unchanged.
type RemoteError struct {
	Command domain.CommandType
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// IsUnreachable reports whether err means the editor could not be reached at
// all, as opposed to a dropped connection or a rejected command.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrEndpointNotFound) || errors.Is(err, ErrConnect)
}
