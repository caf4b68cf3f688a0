package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Persistence operations attempted during a turn.
const (
	OpLoadConversation     = "load_conversation"
	OpCreateConversation   = "create_conversation"
	OpSaveGreeting         = "save_greeting"
	OpRecordInteraction    = "record_interaction"
	OpSaveUserMessage      = "save_user_message"
	OpSaveAssistantMessage = "save_assistant_message"
	OpTouchConversation    = "touch_conversation"
)

// Effect is the outcome of one best-effort write.
type Effect struct {
	Op  string
	Err error
}

// persist runs fn, logs a failure and records the effect. Panics from the
// store are converted to errors so they cannot take the reply down with them.
func (m *Manager) persist(ctx context.Context, log *zap.Logger, result *TurnResult, op string, fn func(context.Context) error) (effect Effect) {
	effect.Op = op
	defer func() {
		if r := recover(); r != nil {
			effect.Err = fmt.Errorf("panic: %v", r)
		}
		if effect.Err != nil {
			log.Error("Persistence failed", zap.String("op", op), zap.Error(effect.Err))
		}
		result.Effects = append(result.Effects, effect)
	}()

	effect.Err = fn(ctx)
	return effect
}
