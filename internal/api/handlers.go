package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samueelperez/tricyclecrm-sub003/internal/chat"
	"github.com/samueelperez/tricyclecrm-sub003/internal/models"
)

type chatRequest struct {
	Message        string `json:"message"`
	Mode           string `json:"mode"`
	ConversationID string `json:"conversationId"`
	ThreadID       string `json:"threadId"`
}

type chatResponse struct {
	Response       string  `json:"response"`
	ConversationID *string `json:"conversationId"`
	ThreadID       *string `json:"threadId"`
	FallbackMode   bool    `json:"fallbackMode"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid JSON body")
	}

	// A turn runs to completion even if the client goes away.
	ctx := context.WithoutCancel(c.Request().Context())
	result, err := s.manager.HandleTurn(ctx, chat.TurnRequest{
		UserID:         userIDFrom(c),
		Message:        req.Message,
		Mode:           models.Mode(strings.TrimSpace(req.Mode)),
		ConversationID: strings.TrimSpace(req.ConversationID),
		ThreadID:       strings.TrimSpace(req.ThreadID),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, chatResponse{
		Response:       result.Response,
		ConversationID: nullable(result.ConversationID),
		ThreadID:       nullable(result.ThreadID),
		FallbackMode:   result.FallbackMode,
	})
}

func (s *Server) listConversations(c echo.Context) error {
	convs, err := s.manager.ListConversations(c.Request().Context(), userIDFrom(c))
	if err != nil {
		return err
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) listMessages(c echo.Context) error {
	msgs, err := s.manager.ListMessages(c.Request().Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) createConversation(c echo.Context) error {
	var payload struct {
		Title    string `json:"title"`
		Mode     string `json:"mode"`
		ThreadID string `json:"thread_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return badRequest("invalid JSON body")
	}

	conv, err := s.manager.CreateConversation(c.Request().Context(), userIDFrom(c),
		payload.Title, models.Mode(strings.TrimSpace(payload.Mode)), payload.ThreadID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, conv)
}

func (s *Server) updateConversation(c echo.Context) error {
	var payload struct {
		ID       string  `json:"id"`
		Title    *string `json:"title"`
		Mode     *string `json:"mode"`
		ThreadID *string `json:"thread_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return badRequest("invalid JSON body")
	}

	patch := models.ConversationPatch{Title: payload.Title, ThreadID: payload.ThreadID}
	if payload.Mode != nil {
		mode := models.Mode(strings.TrimSpace(*payload.Mode))
		patch.Mode = &mode
	}

	conv, err := s.manager.UpdateConversation(c.Request().Context(), userIDFrom(c), strings.TrimSpace(payload.ID), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) deleteConversations(c echo.Context) error {
	ctx := c.Request().Context()
	userID := userIDFrom(c)

	if c.QueryParam("all") == "true" {
		count, err := s.manager.DeleteAllConversations(ctx, userID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "count": count})
	}

	id := strings.TrimSpace(c.QueryParam("id"))
	if id == "" {
		return badRequest("id or all=true is required")
	}
	if err := s.manager.DeleteConversation(ctx, userID, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
