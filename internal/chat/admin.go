package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
	"go.uber.org/zap"
)

// Administrative operations fail fast: store errors are returned to the caller.

func (m *Manager) CreateConversation(ctx context.Context, userID, title string, mode models.Mode, threadID string) (*models.Conversation, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, mode)
	}

	conv := &models.Conversation{
		ID:       uuid.New().String(),
		Title:    title,
		Mode:     mode,
		UserID:   userID,
		ThreadID: strings.TrimSpace(threadID),
	}
	if err := m.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (m *Manager) UpdateConversation(ctx context.Context, userID, id string, patch models.ConversationPatch) (*models.Conversation, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidRequest)
		}
		patch.Title = &title
	}
	if patch.Mode != nil && !patch.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, *patch.Mode)
	}
	return m.store.UpdateConversation(ctx, id, userID, patch)
}

func (m *Manager) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return m.store.ListConversations(ctx, userID)
}

// ListMessages returns the transcript of a conversation owned by userID.
func (m *Manager) ListMessages(ctx context.Context, userID, conversationID string) ([]*models.Message, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := m.store.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return m.store.ListMessages(ctx, conversationID)
}

// DeleteConversation verifies ownership, then removes the messages and the conversation.
func (m *Manager) DeleteConversation(ctx context.Context, userID, id string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	if _, err := m.store.GetConversation(ctx, id, userID); err != nil {
		return err
	}
	if _, err := m.store.DeleteMessages(ctx, []string{id}); err != nil {
		return err
	}
	if err := m.store.DeleteConversation(ctx, id, userID); err != nil {
		return err
	}

	m.logger.Info("Deleted conversation", zap.String("user_id", userID), zap.String("conversation_id", id))
	return nil
}

// DeleteAllConversations removes every conversation owned by userID and
// reports how many were deleted.
func (m *Manager) DeleteAllConversations(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrUnauthenticated
	}
	ids, err := m.store.ListConversationIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := m.store.DeleteMessages(ctx, ids); err != nil {
		return 0, err
	}
	n, err := m.store.DeleteConversations(ctx, userID, ids)
	if err != nil {
		return 0, err
	}

	m.logger.Info("Deleted conversations", zap.String("user_id", userID), zap.Int64("count", n))
	return n, nil
}
