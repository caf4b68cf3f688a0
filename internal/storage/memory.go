package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
)

// MemoryStorage keeps everything in process memory. Used for local runs and tests.
type MemoryStorage struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	interactions  []*models.Interaction
	now           func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		now:           time.Now,
	}
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	stored := *conv
	s.conversations[conv.ID] = &stored
	return nil
}

// owned must be called with the lock held.
func (s *MemoryStorage) owned(id, userID string) (*models.Conversation, bool) {
	conv, ok := s.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, false
	}
	return conv, true
}

func (s *MemoryStorage) GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.owned(id, userID)
	if !ok {
		return nil, ErrNotFound
	}
	out := *conv
	return &out, nil
}

func (s *MemoryStorage) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Conversation
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			c := *conv
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStorage) UpdateConversation(ctx context.Context, id, userID string, patch models.ConversationPatch) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.owned(id, userID)
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Title != nil {
		conv.Title = *patch.Title
	}
	if patch.Mode != nil {
		conv.Mode = *patch.Mode
	}
	if patch.ThreadID != nil && *patch.ThreadID != "" {
		conv.ThreadID = *patch.ThreadID
	}
	conv.UpdatedAt = s.now()
	out := *conv
	return &out, nil
}

func (s *MemoryStorage) TouchConversation(ctx context.Context, id, userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.owned(id, userID)
	if !ok {
		return ErrNotFound
	}
	if threadID != "" {
		conv.ThreadID = threadID
	}
	conv.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStorage) DeleteConversation(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owned(id, userID); !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStorage) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, conv := range s.conversations {
		if conv.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStorage) DeleteConversations(ctx context.Context, userID string, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		if _, ok := s.owned(id, userID); ok {
			delete(s.conversations, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) AddMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return ErrNotFound
	}
	now := s.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
	stored := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &stored)
	return nil
}

func (s *MemoryStorage) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[conversationID]
	out := make([]*models.Message, 0, len(stored))
	for _, m := range stored {
		c := *m
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStorage) DeleteMessages(ctx context.Context, conversationIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range conversationIDs {
		n += int64(len(s.messages[id]))
		delete(s.messages, id)
	}
	return n, nil
}

func (s *MemoryStorage) RecordInteraction(ctx context.Context, interaction *models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = s.now()
	}
	stored := *interaction
	s.interactions = append(s.interactions, &stored)
	return nil
}

// Interactions returns a copy of the recorded telemetry rows.
func (s *MemoryStorage) Interactions() []models.Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Interaction, 0, len(s.interactions))
	for _, i := range s.interactions {
		out = append(out, *i)
	}
	return out
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
