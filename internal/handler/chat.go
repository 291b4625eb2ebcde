package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/model"
	"chatrelay/internal/relay"
	"chatrelay/internal/service"
)

// ChatHandler 对话处理器
type ChatHandler struct {
	svc *service.ChatService
}

// NewChatHandler 创建对话处理器
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Chat 流式对话接口 (SSE)，上游事件流原样透传
// @Summary      流式对话
// @Description  转发到助手对应的上游服务，响应为上游的 text/event-stream
// @Tags         对话
// @Accept       json
// @Produce      text/event-stream
// @Param        request  body      model.ChatRequest  true  "对话请求"
// @Success      200      {string}  string             "SSE 事件流"
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Failure      502      {object}  ErrorResponse
// @Router       /chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	stream, err := h.svc.Open(c.Request.Context(), &service.ChatInput{
		AssistantID:    req.AssistantID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
		UserID:         resolveUser(c, req.UserID),
		Inputs:         req.Inputs,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	// 设置 SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	if err := stream.Relay(c.Writer); err != nil {
		event := log.Warn()
		if errors.Is(err, relay.ErrClientGone) {
			event = log.Debug()
		}
		event.Err(err).Str("request_id", c.GetString("request_id")).Msg("chat stream interrupted")
	}
}
