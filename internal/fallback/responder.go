package fallback

import (
	"context"
	"errors"
	"strings"

	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ApologyText is returned whenever the completion call cannot produce a reply.
const ApologyText = "Lo siento, no he podido procesar tu solicitud en este momento. Por favor, inténtalo de nuevo en unos minutos."

var errEmptyCompletion = errors.New("completion returned no content")

// Completer is the subset of *openai.Client used here.
type Completer interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var instructions = map[models.Mode]string{
	models.ModeProspecting: `Eres un asistente de prospección comercial para una empresa de reciclaje y compraventa de materiales.
Ayuda a encontrar y cualificar empresas que puedan ser clientes o proveedores: sector, ubicación,
tamaño, materiales con los que trabajan y cómo contactarlas. Responde de forma concisa y en español.`,

	models.ModeAnalysis: `Eres un analista de conversaciones comerciales.
Evalúa la calidad de la conversación o el mensaje que te comparten: tono, claridad, objeciones
no resueltas, oportunidades perdidas y próximos pasos. Da recomendaciones concretas en español.`,

	models.ModeManagement: `Eres un asistente de gestión comercial de un CRM de reciclaje de materiales.
Ayuda a redactar mensajes y conversaciones de venta con clientes y proveedores, y a organizar
el seguimiento de oportunidades. Responde en español, con un tono profesional y cercano.`,
}

// Instruction returns the system prelude for mode. Assistant mode reuses the
// management framing when it is served here.
func Instruction(mode models.Mode) string {
	if text, ok := instructions[mode]; ok {
		return text
	}
	return instructions[models.ModeManagement]
}

type Responder struct {
	client      Completer
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewResponder(client Completer, model string, maxTokens int, temperature float64, logger *zap.Logger) *Responder {
	return &Responder{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger.Named("fallback"),
	}
}

// Respond makes one completion call and never fails: any error becomes ApologyText.
func (r *Responder) Respond(ctx context.Context, mode models.Mode, message string) string {
	reply, err := r.complete(ctx, mode, message)
	if err != nil {
		r.logger.Error("Failed to get completion",
			zap.Error(err),
			zap.String("mode", string(mode)))
		return ApologyText
	}
	return reply
}

func (r *Responder) complete(ctx context.Context, mode models.Mode, message string) (string, error) {
	resp, err := r.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: r.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: Instruction(mode),
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: message,
				},
			},
			MaxTokens:   r.maxTokens,
			Temperature: float32(r.temperature),
		},
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errEmptyCompletion
	}
	return reply, nil
}
