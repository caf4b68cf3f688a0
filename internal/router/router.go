package router

import (
	"context"
	"fmt"

	"github.com/samueelperez/tricyclecrm-sub003/internal/assistant"
	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
	"github.com/samueelperez/tricyclecrm-sub003/pkg/config"
	"go.uber.org/zap"
)

const (
	// FallbackMarker prefixes replies served by the fallback path in assistant mode.
	FallbackMarker = "[FALLBACK MODE]"
	// UnknownModeText is returned for modes outside the known set.
	UnknownModeText = "Modo no reconocido. Los modos disponibles son: prospecting, analysis, management y assistant."
)

type ThreadResponder interface {
	Respond(ctx context.Context, threadID, message string) assistant.Result
}

type FallbackResponder interface {
	Respond(ctx context.Context, mode models.Mode, message string) string
}

// Reply is the routed answer for one turn. ThreadID is the thread to keep on
// the conversation; it only changes after a successful assistant run.
type Reply struct {
	Text     string
	ThreadID string
	Fallback bool
}

type Router struct {
	cfg       config.OpenAIConfig
	assistant ThreadResponder
	fallback  FallbackResponder
	logger    *zap.Logger
}

// New wires the router. threads may be nil when the assistant path is not configured.
func New(cfg config.OpenAIConfig, threads ThreadResponder, fallback FallbackResponder, logger *zap.Logger) *Router {
	return &Router{
		cfg:       cfg,
		assistant: threads,
		fallback:  fallback,
		logger:    logger.Named("router"),
	}
}

func (r *Router) assistantAvailable() bool {
	return r.assistant != nil && r.cfg.IsAssistantConfigured()
}

// EffectiveMode is the mode a turn is actually served in.
func (r *Router) EffectiveMode(mode models.Mode) models.Mode {
	if mode == models.ModeAssistant && !r.assistantAvailable() {
		return models.ModeManagement
	}
	return mode
}

func (r *Router) Route(ctx context.Context, mode models.Mode, message, threadID string) Reply {
	switch mode {
	case models.ModeProspecting, models.ModeAnalysis, models.ModeManagement:
		return Reply{Text: r.fallback.Respond(ctx, mode, message), ThreadID: threadID}
	case models.ModeAssistant:
		return r.routeAssistant(ctx, message, threadID)
	default:
		r.logger.Warn("Unrecognized mode", zap.String("mode", string(mode)))
		return Reply{Text: UnknownModeText, ThreadID: threadID}
	}
}

func (r *Router) routeAssistant(ctx context.Context, message, threadID string) Reply {
	if !r.assistantAvailable() {
		r.logger.Warn("Assistant not configured, using fallback")
		text := r.fallback.Respond(ctx, models.ModeAssistant, message)
		return Reply{Text: FallbackMarker + " " + text, ThreadID: threadID, Fallback: true}
	}

	res := r.assistant.Respond(ctx, threadID, message)
	if res.OK() {
		return Reply{Text: res.Reply, ThreadID: res.ThreadID}
	}

	r.logger.Error("Assistant turn failed, using fallback",
		zap.Stringer("outcome", res.Outcome),
		zap.String("thread_id", res.ThreadID),
		zap.Error(res.Err))

	text := r.fallback.Respond(ctx, models.ModeAssistant, message)
	return Reply{
		Text:     fmt.Sprintf("[FALLBACK MODE - Error: %s]\n\n%s", errorText(res.Err), text),
		ThreadID: threadID,
		Fallback: true,
	}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
