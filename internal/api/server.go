package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samueelperez/tricyclecrm-sub003/internal/chat"
	"go.uber.org/zap"
)

type Server struct {
	echo                *echo.Echo
	manager             *chat.Manager
	logger              *zap.Logger
	assistantConfigured bool
}

type Options struct {
	JWTSecret           []byte
	AssistantConfigured bool
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
}

func New(manager *chat.Manager, opts Options, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = opts.ReadTimeout
	e.Server.WriteTimeout = opts.WriteTimeout

	s := &Server{
		echo:                e,
		manager:             manager,
		logger:              logger.Named("api"),
		assistantConfigured: opts.AssistantConfigured,
	}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.requestLogger)

	e.GET("/healthz", s.health)

	g := e.Group("/api/chatbot", RequireAuth(opts.JWTSecret))
	g.POST("", s.chat)
	g.GET("/conversations", s.listConversations)
	g.POST("/conversations", s.createConversation)
	g.PATCH("/conversations", s.updateConversation)
	g.DELETE("/conversations", s.deleteConversations)
	g.GET("/conversations/:id/messages", s.listMessages)

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":               "ok",
		"assistant_configured": s.assistantConfigured,
	})
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Info("request",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("latency", time.Since(start)))
		return nil
	}
}

// handleError renders every error as {"error": "..."}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := "internal server error"

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	case errors.Is(err, chat.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, chat.ErrInvalidRequest):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, chat.ErrNotFound):
		status, msg = http.StatusNotFound, "conversation not found or not authorized"
	default:
		s.logger.Error("Unhandled error",
			zap.Error(err),
			zap.String("path", c.Path()))
	}

	if err := c.JSON(status, map[string]string{"error": msg}); err != nil {
		s.logger.Error("Failed to write error response", zap.Error(err))
	}
}
