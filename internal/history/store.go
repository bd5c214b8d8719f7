// ABOUTME: Append-only chat history store
// ABOUTME: Ordered log of finalized turns exposed to the UI collaborator
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one finalized chat entry. Role and Text are immutable after
// creation; ordering is insertion order and carries conversational meaning.
type Message struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Store is an append-only ordered log of chat messages.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	onChange func([]Message)
}

// NewStore creates an empty history store.
func NewStore() *Store {
	return &Store{}
}

// SetOnChange registers the collaborator callback invoked after every
// mutation with a snapshot of the full list.
func (s *Store) SetOnChange(fn func([]Message)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Append adds a text message and returns it.
func (s *Store) Append(role Role, text string) Message {
	return s.AppendImage(role, text, "")
}

// AppendImage adds a message carrying an optional image URL.
func (s *Store) AppendImage(role Role, text, imageURL string) Message {
	msg := Message{
		ID:       newID(role),
		Role:     role,
		Text:     text,
		ImageURL: imageURL,
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.notifyLocked()
	s.mu.Unlock()

	return msg
}

// Remove deletes the message with the given ID. Used to roll back an
// optimistically appended entry after a failed request.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, msg := range s.messages {
		if msg.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.notifyLocked()
			return true
		}
	}
	return false
}

// Clear empties the log.
func (s *Store) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.notifyLocked()
	s.mu.Unlock()
}

// Messages returns a snapshot copy of the log.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) snapshotLocked() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) notifyLocked() {
	if s.onChange != nil {
		s.onChange(s.snapshotLocked())
	}
}

// newID builds a creation-time-derived identifier, unique within a
// session lifetime.
func newID(role Role) string {
	return fmt.Sprintf("%s-%d-%s", role, time.Now().UnixMilli(), uuid.NewString()[:8])
}
