package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// NoResponseText is returned when the thread holds no assistant message.
	NoResponseText = "No se recibió respuesta del asistente."
	// UnexpectedFormatText replaces an assistant message without a content list.
	UnexpectedFormatText = "El asistente respondió con un formato inesperado."

	listLimit = 20
)

func (c *Client) latestReply(ctx context.Context, threadID string) (string, error) {
	limit := listLimit
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		// content came back as something other than a list of parts
		c.logger.Warn("Unexpected message format",
			zap.String("thread_id", threadID),
			zap.String("field", typeErr.Field),
			zap.Error(err))
		return UnexpectedFormatText, nil
	}
	if err != nil {
		return "", err
	}
	return extractReply(list.Messages), nil
}

// extractReply picks the newest assistant message and joins its text parts.
func extractReply(messages []openai.Message) string {
	var latest *openai.Message
	for i := range messages {
		msg := &messages[i]
		if msg.Role != string(openai.ThreadMessageRoleAssistant) {
			continue
		}
		if latest == nil || msg.CreatedAt > latest.CreatedAt {
			latest = msg
		}
	}
	if latest == nil {
		return NoResponseText
	}
	if latest.Content == nil {
		return UnexpectedFormatText
	}

	var b strings.Builder
	for _, part := range latest.Content {
		if part.Type != "text" || part.Text == nil {
			continue
		}
		b.WriteString(part.Text.Value)
	}
	if b.Len() == 0 {
		return NoResponseText
	}
	return b.String()
}
