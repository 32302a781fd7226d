package models

import (
	"time"
)

// Message is a single chat message as carried on the wire. Messages are
// immutable once accepted into the inbound store or the outbound queue.
// ID is the deduplication key across the live channel and history retrieval.
type Message struct {
	ID          string `json:"id"`
	ChatID      string `json:"chatId"`
	Sender      string `json:"sender"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
	ContentType string `json:"content_type,omitempty"`
}

// timestampLayouts are tried in order when parsing Message.Timestamp.
// The backend emits RFC3339; the fallbacks cover ISO timestamps without
// a zone suffix.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Time parses the message timestamp. The second return value is false when
// the timestamp is missing or unparseable; such messages sort after all
// messages with resolvable timestamps.
func (m Message) Time() (time.Time, bool) {
	if m.Timestamp == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, m.Timestamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
