// Package store holds validated inbound messages for the active channel in a
// capacity-bounded, append-ordered buffer. Oldest entries are evicted first.
package store

import (
	"sync"

	"chatlink/internal/constants"
	"chatlink/internal/models"
)

// Store is the bounded inbound message store. Appends happen on the channel
// event loop; snapshots may be taken from any goroutine.
type Store struct {
	mu       sync.RWMutex
	capacity int
	messages []models.Message
}

// New creates a store with the given capacity. Non-positive capacities fall
// back to the default.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = constants.DefaultStoreCapacity
	}
	return &Store{
		capacity: capacity,
		messages: make([]models.Message, 0, capacity),
	}
}

// Append adds an accepted message, evicting the oldest entry when at capacity.
func (s *Store) Append(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == s.capacity {
		copy(s.messages, s.messages[1:])
		s.messages = s.messages[:len(s.messages)-1]
	}
	s.messages = append(s.messages, msg)
}

// Snapshot returns a copy of the stored messages in append order.
// Callers never receive a mutable view of the underlying buffer.
func (s *Store) Snapshot() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Clear removes all stored messages. This is the only non-append mutation,
// invoked when the caller leaves a chat.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:0]
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Capacity returns the configured capacity.
func (s *Store) Capacity() int {
	return s.capacity
}
