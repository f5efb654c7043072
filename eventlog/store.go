package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the event log persistence contract. Append assigns the entry
// id and timestamp when unset and returns the id. Delete is audit trim
// only; it never alters workflow state.
type Store interface {
	Append(ctx context.Context, entry *Entry) (string, error)
	ListForConversation(ctx context.Context, conversationID string) ([]*Entry, error)
	Delete(ctx context.Context, entryID string) error
}

// MemoryStore keeps entries in process memory. Suitable for development
// and testing.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry   // by id
	byConv  map[string][]string // conversation id -> ordered entry ids
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		byConv:  make(map[string][]string),
	}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, entry *Entry) (string, error) {
	if entry == nil || entry.ConversationID == "" {
		return "", ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrStoreClosed
	}

	stored := *entry
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	s.entries[stored.ID] = &stored
	s.byConv[stored.ConversationID] = append(s.byConv[stored.ConversationID], stored.ID)
	entry.ID = stored.ID
	entry.CreatedAt = stored.CreatedAt
	return stored.ID, nil
}

// ListForConversation implements Store, oldest first.
func (s *MemoryStore) ListForConversation(_ context.Context, conversationID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	// ids are kept in append order, which is the ordering contract.
	ids := s.byConv[conversationID]
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	entry, ok := s.entries[entryID]
	if !ok {
		return ErrNotFound
	}
	delete(s.entries, entryID)

	ids := s.byConv[entry.ConversationID]
	for i, id := range ids {
		if id == entryID {
			s.byConv[entry.ConversationID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Close marks the store closed; further operations fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
