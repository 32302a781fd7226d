// Package queue buffers outbound messages composed while the channel is
// disconnected and flushes them in submission order on reconnect.
package queue

import (
	"sync"

	"chatlink/internal/models"

	"github.com/sirupsen/logrus"
)

// Spool persists queued messages across process restarts. Implemented by
// internal/database; nil disables durability.
type Spool interface {
	SaveOutbound(msg models.Message) error
	DeleteOutbound(id string) error
	PendingOutbound(chatID string) ([]models.Message, error)
}

// Queue is a FIFO buffer of validated outbound messages. Entries are removed
// exactly once transmitted.
type Queue struct {
	mu      sync.Mutex
	entries []models.Message
	spool   Spool
	logger  *logrus.Logger
}

// New creates an in-memory queue.
func New(logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Queue{logger: logger}
}

// NewWithSpool creates a queue that mirrors entries into a durable spool.
func NewWithSpool(spool Spool, logger *logrus.Logger) *Queue {
	q := New(logger)
	q.spool = spool
	return q
}

// Restore loads spooled entries for the given chat into the queue, oldest
// first. Called once before connecting so messages composed before a restart
// keep their place at the head of the line.
func (q *Queue) Restore(chatID string) error {
	if q.spool == nil {
		return nil
	}

	pending, err := q.spool.PendingOutbound(chatID)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(pending, q.entries...)

	if len(pending) > 0 {
		q.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"count":   len(pending),
		}).Info("Restored spooled outbound messages")
	}
	return nil
}

// Enqueue appends a message to the tail of the queue. Spool failures are
// logged and do not reject the enqueue; the in-memory copy still flushes on
// reconnect.
func (q *Queue) Enqueue(msg models.Message) {
	q.mu.Lock()
	q.entries = append(q.entries, msg)
	q.mu.Unlock()

	if q.spool != nil {
		if err := q.spool.SaveOutbound(msg); err != nil {
			q.logger.WithError(err).WithField("message_id", msg.ID).Warn("Failed to spool outbound message")
		}
	}
}

// Drain transmits queued entries head-to-tail via send, preserving enqueue
// order. On the first send failure it stops and keeps the failed entry and
// everything behind it queued. Returns the number of messages transmitted.
func (q *Queue) Drain(send func(models.Message) error) (int, error) {
	q.mu.Lock()
	pending := make([]models.Message, len(q.entries))
	copy(pending, q.entries)
	q.mu.Unlock()

	sent := 0
	for _, msg := range pending {
		if err := send(msg); err != nil {
			q.dropHead(sent)
			return sent, err
		}
		if q.spool != nil {
			if derr := q.spool.DeleteOutbound(msg.ID); derr != nil {
				q.logger.WithError(derr).WithField("message_id", msg.ID).Warn("Failed to remove transmitted message from spool")
			}
		}
		sent++
	}

	q.dropHead(sent)
	return sent, nil
}

// dropHead removes the first n entries, which have been transmitted.
func (q *Queue) dropHead(n int) {
	if n == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.entries) {
		n = len(q.entries)
	}
	q.entries = append(q.entries[:0:0], q.entries[n:]...)
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear discards all queued entries, including their spooled copies.
// Used when the caller abandons a chat.
func (q *Queue) Clear() {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	if q.spool == nil {
		return
	}
	for _, msg := range entries {
		if err := q.spool.DeleteOutbound(msg.ID); err != nil {
			q.logger.WithError(err).WithField("message_id", msg.ID).Warn("Failed to clear spooled message")
		}
	}
}
