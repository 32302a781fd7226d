package types

import "encoding/json"

// Frame type values used by the keepalive protocol
const (
	FrameTypePing = "ping"
	FrameTypePong = "pong"
)

// ControlFrame is the shape of dedicated keepalive frames.
type ControlFrame struct {
	Type string `json:"type"`
}

// PingFrame is the outbound heartbeat payload.
var PingFrame = []byte(`{"type":"ping"}`)

// IsPong reports whether a raw inbound frame is a heartbeat acknowledgment.
// Pong frames are recognized and discarded before validation; they are not
// messages.
func IsPong(data []byte) bool {
	var frame ControlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return false
	}
	return frame.Type == FrameTypePong
}
