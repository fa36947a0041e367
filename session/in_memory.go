package session

import (
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/model"
)

// Store persists conversation history keyed by conversation id.
type Store interface {
	// History returns the accumulated messages for a conversation, oldest
	// first. A conversation that has never been written returns an empty
	// history, not an error.
	History(conversationID string) ([]model.Message, error)

	// Append adds messages to the end of a conversation's history, creating
	// the conversation on first write.
	Append(conversationID string, messages ...model.Message) error

	// Clear removes a conversation and its history.
	Clear(conversationID string) error
}

// conversation is the stored record for one conversation.
type conversation struct {
	messages  []model.Message
	createdAt time.Time
	updatedAt time.Time
}

// InMemoryStore is a volatile Store implementation keeping history in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Returned histories are copies to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
}

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*conversation)}
}

// History implements Store.
func (s *InMemoryStore) History(conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	out := make([]model.Message, len(conv.messages))
	copy(out, conv.messages)
	return out, nil
}

// Append implements Store.
func (s *InMemoryStore) Append(conversationID string, messages ...model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &conversation{createdAt: time.Now().UTC()}
		s.conversations[conversationID] = conv
	}
	conv.messages = append(conv.messages, messages...)
	conv.updatedAt = time.Now().UTC()
	return nil
}

// Clear implements Store.
func (s *InMemoryStore) Clear(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}
