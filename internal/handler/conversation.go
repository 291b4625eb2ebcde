package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/model"
	"chatrelay/internal/service"
)

// ConversationHandler 会话管理处理器
type ConversationHandler struct {
	svc *service.ConversationService
}

// NewConversationHandler 创建会话管理处理器
func NewConversationHandler(svc *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// Rename 重命名会话
// @Summary      重命名会话
// @Description  先写本地镜像再同步上游，上游失败不影响结果
// @Tags         会话
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true  "会话 ID"
// @Param        request  body      model.RenameConversationRequest  true  "重命名请求"
// @Success      200      {object}  model.ConversationResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Router       /conversations/{id} [patch]
func (h *ConversationHandler) Rename(c *gin.Context) {
	var req model.RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	conv, err := h.svc.Rename(c.Request.Context(), &service.RenameInput{
		AssistantID:    req.AssistantID,
		ConversationID: c.Param("id"),
		UserID:         resolveUser(c, req.UserID),
		Name:           req.Name,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ConversationResponse{Conversation: conv})
}

// Delete 删除会话
// @Summary      删除会话
// @Description  先删除上游会话，成功后清理本地镜像
// @Tags         会话
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true  "会话 ID"
// @Param        request  body      model.DeleteConversationRequest  true  "删除请求"
// @Success      200      {object}  model.DeleteResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Failure      502      {object}  ErrorResponse
// @Router       /conversations/{id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	var req model.DeleteConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c, err)
			return
		}
	}
	if req.AssistantID == "" {
		req.AssistantID = c.Query("assistantId")
	}
	if req.UserID == nil {
		if v := c.Query("userId"); v != "" {
			ref := model.UserRef(v)
			req.UserID = &ref
		}
	}

	err := h.svc.Delete(c.Request.Context(), &service.DeleteInput{
		AssistantID:    req.AssistantID,
		ConversationID: c.Param("id"),
		UserID:         resolveUser(c, req.UserID),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.DeleteResponse{Success: true})
}

// List 会话列表
// @Summary      会话列表
// @Description  优先读取本地镜像，镜像为空时回源上游
// @Tags         会话
// @Produce      json
// @Param        assistantId  query     string  true   "助手 ID"
// @Param        userId       query     string  false  "用户 ID"
// @Param        limit        query     int     false  "条数"
// @Success      200          {object}  model.ConversationListResponse
// @Failure      400          {object}  ErrorResponse
// @Failure      404          {object}  ErrorResponse
// @Router       /conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badBody(c, errInvalidLimit)
			return
		}
		limit = n
	}
	var ref *model.UserRef
	if v := c.Query("userId"); v != "" {
		r := model.UserRef(v)
		ref = &r
	}

	resp, err := h.svc.List(c.Request.Context(), &service.ListInput{
		AssistantID: c.Query("assistantId"),
		UserID:      resolveUser(c, ref),
		Limit:       limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
