package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
	"github.com/samueelperez/tricyclecrm-sub003/internal/router"
	"github.com/samueelperez/tricyclecrm-sub003/internal/storage"
	"go.uber.org/zap"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidRequest  = errors.New("invalid request")
	// ErrNotFound covers both missing and foreign conversations.
	ErrNotFound = storage.ErrNotFound
)

type Router interface {
	Route(ctx context.Context, mode models.Mode, message, threadID string) router.Reply
	EffectiveMode(mode models.Mode) models.Mode
}

type TurnRequest struct {
	UserID         string
	Message        string
	Mode           models.Mode
	ConversationID string
	ThreadID       string
}

type TurnResult struct {
	Response       string
	ConversationID string
	ThreadID       string
	FallbackMode   bool
	// Effects lists every persistence side effect attempted during the turn.
	Effects []Effect
}

// Failed returns the side effects that did not succeed.
func (r *TurnResult) Failed() []Effect {
	var out []Effect
	for _, e := range r.Effects {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

type Manager struct {
	store  storage.Storage
	router Router
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(store storage.Storage, r Router, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		router: r,
		logger: logger.Named("chat"),
		now:    time.Now,
	}
}

// Title synthesizes a conversation title from the creation time.
func Title(t time.Time) string {
	return "Conversación " + t.Format("02/01/2006 15:04")
}

// Greeting is the system message that opens every conversation created by a turn.
func Greeting(mode models.Mode) string {
	return fmt.Sprintf("Hola, soy el asistente del CRM (modo %s). ¿En qué puedo ayudarte?", mode)
}

func (m *Manager) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrUnauthenticated
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" || req.Mode == "" {
		return nil, fmt.Errorf("%w: message and mode are required", ErrInvalidRequest)
	}

	log := m.logger.With(zap.String("user_id", req.UserID), zap.String("mode", string(req.Mode)))
	result := &TurnResult{ConversationID: req.ConversationID}
	threadID := req.ThreadID

	var conv *models.Conversation
	if req.ConversationID != "" {
		existing, err := m.store.GetConversation(ctx, req.ConversationID, req.UserID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrNotFound
		case err != nil:
			// Ownership is unknown, so nothing may be written for this turn.
			log.Error("Failed to load conversation",
				zap.Error(err),
				zap.String("conversation_id", req.ConversationID))
			result.Effects = append(result.Effects, Effect{Op: OpLoadConversation, Err: err})
		default:
			conv = existing
			if threadID == "" {
				threadID = conv.ThreadID
			}
		}
	} else {
		conv = m.startConversation(ctx, log, req, result)
	}

	if conv != nil {
		log = log.With(zap.String("conversation_id", conv.ID))
		result.ConversationID = conv.ID

		m.persist(ctx, log, result, OpRecordInteraction, func(ctx context.Context) error {
			return m.store.RecordInteraction(ctx, &models.Interaction{
				UserID:    req.UserID,
				Message:   req.Message,
				Mode:      req.Mode,
				CreatedAt: m.now(),
			})
		})
		m.persist(ctx, log, result, OpSaveUserMessage, func(ctx context.Context) error {
			return m.addMessage(ctx, conv.ID, models.RoleUser, req.Message)
		})
	}

	reply := m.router.Route(ctx, req.Mode, req.Message, threadID)
	result.Response = reply.Text
	result.ThreadID = reply.ThreadID
	result.FallbackMode = reply.Fallback

	if conv != nil {
		m.persist(ctx, log, result, OpSaveAssistantMessage, func(ctx context.Context) error {
			return m.addMessage(ctx, conv.ID, models.RoleAssistant, reply.Text)
		})

		newThread := ""
		if reply.ThreadID != "" && reply.ThreadID != conv.ThreadID {
			newThread = reply.ThreadID
		}
		m.persist(ctx, log, result, OpTouchConversation, func(ctx context.Context) error {
			return m.store.TouchConversation(ctx, conv.ID, req.UserID, newThread)
		})
	}

	if failed := result.Failed(); len(failed) > 0 {
		log.Warn("Turn completed with persistence failures", zap.Int("failures", len(failed)))
	}
	return result, nil
}

// startConversation creates the conversation and its greeting. A failure
// leaves the turn without a conversation; the reply is still produced.
func (m *Manager) startConversation(ctx context.Context, log *zap.Logger, req TurnRequest, result *TurnResult) *models.Conversation {
	if !req.Mode.Valid() {
		return nil
	}

	mode := m.router.EffectiveMode(req.Mode)
	conv := &models.Conversation{
		ID:       uuid.New().String(),
		Title:    Title(m.now()),
		Mode:     mode,
		UserID:   req.UserID,
		ThreadID: req.ThreadID,
	}

	effect := m.persist(ctx, log, result, OpCreateConversation, func(ctx context.Context) error {
		return m.store.CreateConversation(ctx, conv)
	})
	if effect.Err != nil {
		return nil
	}

	m.persist(ctx, log, result, OpSaveGreeting, func(ctx context.Context) error {
		return m.addMessage(ctx, conv.ID, models.RoleSystem, Greeting(mode))
	})
	return conv
}

func (m *Manager) addMessage(ctx context.Context, conversationID string, role models.Role, content string) error {
	return m.store.AddMessage(ctx, &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      m.now(),
	})
}
