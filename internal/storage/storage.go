package storage

import (
	"context"
	"errors"

	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
)

// ErrNotFound is returned when a row does not exist or is not owned by the caller.
// The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("not found or not authorized")

type Storage interface {
	ConversationStorage
	MessageStorage
	InteractionStorage
	Close() error
}

// ConversationStorage filters every read and write by owning user.
type ConversationStorage interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	UpdateConversation(ctx context.Context, id, userID string, patch models.ConversationPatch) (*models.Conversation, error)
	// TouchConversation refreshes updated_at and, when threadID is non-empty, replaces thread_id.
	TouchConversation(ctx context.Context, id, userID, threadID string) error
	DeleteConversation(ctx context.Context, id, userID string) error
	ListConversationIDs(ctx context.Context, userID string) ([]string, error)
	DeleteConversations(ctx context.Context, userID string, ids []string) (int64, error)
}

type MessageStorage interface {
	AddMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	DeleteMessages(ctx context.Context, conversationIDs []string) (int64, error)
}

type InteractionStorage interface {
	RecordInteraction(ctx context.Context, interaction *models.Interaction) error
}
