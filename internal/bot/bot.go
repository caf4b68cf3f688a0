package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samueelperez/tricyclecrm-sub003/internal/chat"
	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
	"go.uber.org/zap"
)

// historyLimit caps how many stored messages /history prints.
const historyLimit = 6

// Conversations is the slice of chat.Manager the bridge drives.
type Conversations interface {
	HandleTurn(ctx context.Context, req chat.TurnRequest) (*chat.TurnResult, error)
	ListMessages(ctx context.Context, userID, conversationID string) ([]*models.Message, error)
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// session is the per-chat state the HTTP client would otherwise carry.
type session struct {
	mode           models.Mode
	conversationID string
	threadID       string
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   sender
	chats    Conversations
	logger   *zap.Logger
	mu       sync.Mutex
	sessions map[int64]*session
	inflight sync.WaitGroup
}

func New(token string, chats Conversations, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, chats, logger)
	b.api = api
	return b, nil
}

func newBot(s sender, chats Conversations, logger *zap.Logger) *Bot {
	return &Bot{
		sender:   s,
		chats:    chats,
		logger:   logger.Named("telegram"),
		sessions: make(map[int64]*session),
	}
}

// Start consumes updates until ctx is cancelled, then waits for the turns
// already in flight. Cancelling ctx never aborts a turn.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Telegram bridge started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.wait()
				return nil
			}
			if update.Message == nil {
				continue
			}
			// Messages of one chat are not serialized: two quick messages in a
			// fresh chat both see no conversation and each start one.
			b.dispatch(ctx, update.Message)
		}
	}
}

// dispatch handles message on its own goroutine, detached from ctx cancellation.
func (b *Bot) dispatch(ctx context.Context, message *tgbotapi.Message) {
	turnCtx := context.WithoutCancel(ctx)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.handleMessage(turnCtx, message)
	}()
}

// wait blocks until every dispatched message has been handled.
func (b *Bot) wait() {
	b.inflight.Wait()
}

func userID(from *tgbotapi.User) string {
	return fmt.Sprintf("telegram:%d", from.ID)
}

func (b *Bot) session(chatID int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[chatID]
	if !ok {
		s = &session{mode: models.ModeManagement}
		b.sessions[chatID] = s
	}
	cp := *s
	return &cp
}

func (b *Bot) updateSession(chatID int64, fn func(s *session)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[chatID]
	if !ok {
		s = &session{mode: models.ModeManagement}
		b.sessions[chatID] = s
	}
	fn(s)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		b.sendMessage(message.Chat.ID, "Solo puedo procesar mensajes de texto.")
		return
	}

	sess := b.session(message.Chat.ID)
	result, err := b.chats.HandleTurn(ctx, chat.TurnRequest{
		UserID:         userID(message.From),
		Message:        content,
		Mode:           sess.mode,
		ConversationID: sess.conversationID,
		ThreadID:       sess.threadID,
	})
	if err != nil {
		b.logger.Error("Failed to handle turn",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID),
			zap.String("conversation_id", sess.conversationID))
		if sess.conversationID != "" {
			// stale conversation, start over on the next message
			b.updateSession(message.Chat.ID, func(s *session) {
				s.conversationID = ""
				s.threadID = ""
			})
		}
		b.sendErrorMessage(message.Chat.ID, "No se pudo procesar tu mensaje. Inténtalo de nuevo.")
		return
	}

	b.updateSession(message.Chat.ID, func(s *session) {
		if result.ConversationID != "" {
			s.conversationID = result.ConversationID
		}
		if result.ThreadID != "" {
			s.threadID = result.ThreadID
		}
	})

	msg := tgbotapi.NewMessage(message.Chat.ID, result.Response)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "mode":
		b.handleMode(message)
	case "new":
		b.handleNew(message)
	case "history":
		b.handleHistory(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Comando desconocido. Usa /help para ver los comandos disponibles.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `¡Bienvenido al asistente del CRM! 🤖
Puedo ayudarte con prospección, análisis y gestión de tu negocio.

Escríbeme cualquier pregunta y te responderé en el modo activo.
Usa /help para ver todos los comandos.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Comandos disponibles:
/start - Iniciar el bot
/help - Mostrar esta ayuda
/mode <modo> - Cambiar de modo (prospecting, analysis, management, assistant)
/new - Empezar una conversación nueva
/history - Ver los últimos mensajes de la conversación`

	b.sendMessage(message.Chat.ID, help)
}

func parseMode(arg string) (models.Mode, bool) {
	mode := models.Mode(strings.ToLower(strings.TrimSpace(arg)))
	return mode, mode.Valid()
}

func (b *Bot) handleMode(message *tgbotapi.Message) {
	arg := message.CommandArguments()
	if strings.TrimSpace(arg) == "" {
		sess := b.session(message.Chat.ID)
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Modo actual: %s", sess.mode))
		return
	}

	mode, ok := parseMode(arg)
	if !ok {
		b.sendMessage(message.Chat.ID, "Modo no válido. Usa prospecting, analysis, management o assistant.")
		return
	}

	// a mode change starts a fresh conversation
	b.updateSession(message.Chat.ID, func(s *session) {
		s.mode = mode
		s.conversationID = ""
		s.threadID = ""
	})
	b.sendMessage(message.Chat.ID, chat.Greeting(mode))
}

func (b *Bot) handleNew(message *tgbotapi.Message) {
	var mode models.Mode
	b.updateSession(message.Chat.ID, func(s *session) {
		s.conversationID = ""
		s.threadID = ""
		mode = s.mode
	})
	b.sendMessage(message.Chat.ID, chat.Greeting(mode))
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	sess := b.session(message.Chat.ID)
	if sess.conversationID == "" {
		b.sendMessage(message.Chat.ID, "Todavía no hay mensajes en esta conversación.")
		return
	}

	messages, err := b.chats.ListMessages(ctx, userID(message.From), sess.conversationID)
	if err != nil {
		b.logger.Error("Failed to get conversation messages",
			zap.Error(err),
			zap.String("conversation_id", sess.conversationID))
		b.sendErrorMessage(message.Chat.ID, "No se pudo recuperar el historial.")
		return
	}

	text := formatHistory(messages, historyLimit)
	if text == "" {
		b.sendMessage(message.Chat.ID, "Todavía no hay mensajes en esta conversación.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ParseMode = "MarkdownV2"
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send history message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

// formatHistory renders the last limit user and assistant messages as MarkdownV2.
func formatHistory(messages []*models.Message, limit int) string {
	visible := make([]*models.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			continue
		}
		visible = append(visible, m)
	}
	if len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}
	if len(visible) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("*Últimos mensajes:*\n\n")
	for _, m := range visible {
		label := "Tú"
		if m.Role == models.RoleAssistant {
			label = "Asistente"
		}
		sb.WriteString(fmt.Sprintf("*%s:* %s\n\n", escapeMarkdown(label), escapeMarkdown(m.Content)))
	}
	return sb.String()
}

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
