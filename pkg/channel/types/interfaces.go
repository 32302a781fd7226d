package types

import (
	"context"
	"errors"
	"fmt"
)

// Conn is one live bidirectional channel session. Implementations must make
// Read return promptly with an error once the context is canceled or the
// connection closes.
type Conn interface {
	// ReadMessage blocks until the next inbound frame arrives.
	ReadMessage(ctx context.Context) ([]byte, error)
	// WriteMessage sends one text frame.
	WriteMessage(ctx context.Context, data []byte) error
	// Close closes the session with a normal closure status.
	Close() error
}

// Dialer opens channel sessions. The production implementation wraps a
// WebSocket client; tests substitute fakes so the connection state machine
// runs without sockets.
type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}

// CloseError reports a close carrying a server-signaled status code.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("channel closed with status %d: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("channel closed with status %d", e.Code)
}

// CloseCode extracts the server-signaled status code from an error chain.
// The second return value is false when the error carries no close status.
func CloseCode(err error) (int, bool) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}
