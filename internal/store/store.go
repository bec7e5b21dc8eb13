package store

import (
	"sync"

	"chatline/internal/model"
)

// Store is the ordered, append-only in-memory message log.
//
// The zero value is not usable; create one with New. A Store is safe for
// concurrent use. Contents live as long as the process.
type Store struct {
	mu          sync.RWMutex
	messages    []model.Message
	maxMessages int
}

// New creates an empty Store. maxMessages bounds how many messages are
// retained; 0 keeps everything.
func New(maxMessages int) *Store {
	if maxMessages < 0 {
		maxMessages = 0
	}
	return &Store{maxMessages: maxMessages}
}

// Append places msg after every previously appended message. When the
// retention bound is exceeded the oldest message is evicted.
func (s *Store) Append(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if s.maxMessages > 0 && len(s.messages) > s.maxMessages {
		// copy down so the backing array does not keep evicted messages alive
		n := copy(s.messages, s.messages[len(s.messages)-s.maxMessages:])
		clear(s.messages[n:])
		s.messages = s.messages[:n]
	}
}

// All returns a point-in-time snapshot in append order.
func (s *Store) All() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of retained messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
