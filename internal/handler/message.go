package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/model"
	"chatrelay/internal/service"
)

var errInvalidLimit = errors.New("limit must be a non-negative integer")

// MessageHandler 历史消息处理器
type MessageHandler struct {
	svc *service.HistoryService
}

// NewMessageHandler 创建历史消息处理器
func NewMessageHandler(svc *service.HistoryService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// List 按轮分页的历史消息
// @Summary      历史消息
// @Description  从最近一轮向前分页，nextCursorRounds 为 null 表示没有更早的消息
// @Tags         会话
// @Accept       json
// @Produce      json
// @Param        request  body      model.ListMessagesRequest  true  "分页请求"
// @Success      200      {object}  model.MessagePage
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Failure      502      {object}  ErrorResponse
// @Router       /messages [post]
func (h *MessageHandler) List(c *gin.Context) {
	var req model.ListMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	page, err := h.svc.Page(c.Request.Context(), &service.HistoryInput{
		AssistantID:    req.AssistantID,
		ConversationID: req.ConversationID,
		UserID:         resolveUser(c, req.UserID),
		Rounds:         req.Rounds,
		CursorRounds:   req.CursorRounds,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}
