package models

// ConnectionState is the observable lifecycle state of one chat channel.
// Exactly one value is live at a time per channel.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)

// IsTerminal reports whether the state accepts no further automatic
// transitions. Manual reconnection remains possible from either.
func (s ConnectionState) IsTerminal() bool {
	return s == StateDisconnected || s == StateError
}
