package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"data-sculptor/domain"
)

// MemoryStore keeps conversations in process memory. States are copied on the way
// in and out, so callers never share slices with the store.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[string]*domain.ConversationState
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*domain.ConversationState)}
}

// Get implements domain.SessionStore.
func (s *MemoryStore) Get(ctx context.Context, conversationID string) (*domain.ConversationState, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil, false, nil
	}
	out := c.Clone()
	out.PersistedSeq = lastSeq(out.Messages)
	return out, true, nil
}

// Put implements domain.SessionStore.
func (s *MemoryStore) Put(ctx context.Context, state *domain.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	next := state.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	var stored []domain.Message
	if prev, ok := s.convs[state.ID]; ok {
		stored = prev.Messages
	}
	var saved []domain.Message
	next.Messages, saved = mergeMessages(stored, state.Unsaved())
	s.convs[state.ID] = next
	state.MarkSaved(saved)
	return nil
}

// AppendMessage implements domain.SessionStore.
func (s *MemoryStore) AppendMessage(ctx context.Context, conversationID string, m domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		c = domain.NewConversationState(conversationID, "")
		s.convs[conversationID] = c
	}
	m = appendAfter(c.Messages, m)
	c.Messages = append(c.Messages, m)
	return m, nil
}
