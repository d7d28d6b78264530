package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperqa/internal/model"
	"github.com/xxxsen/paperqa/internal/pkg/response"
	"github.com/xxxsen/paperqa/internal/service"
)

type IChatter interface {
	Chat(ctx context.Context, sessionID, query string) (*service.ChatResult, error)
	History(ctx context.Context, sessionID string) ([]model.ChatTurn, error)
}

type ChatHandler struct {
	chat IChatter
}

func NewChatHandler(chat IChatter) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type chatResponse struct {
	SessionID        string `json:"session_id"`
	Answer           string `json:"answer"`
	RetrievedContent string `json:"retrieved_content,omitempty"`
}

type historyResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []model.ChatTurn `json:"messages"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid request")
		return
	}
	res, err := h.chat.Chat(c.Request.Context(), req.SessionID, req.Query)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, chatResponse{
		SessionID:        req.SessionID,
		Answer:           res.Answer,
		RetrievedContent: res.RetrievedContent,
	})
}

func (h *ChatHandler) History(c *gin.Context) {
	sid := c.Param("id")
	turns, err := h.chat.History(c.Request.Context(), sid)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, historyResponse{SessionID: sid, Messages: turns})
}
