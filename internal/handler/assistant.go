package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/service"
)

// AssistantHandler 助手信息处理器
type AssistantHandler struct {
	svc *service.AssistantService
}

// NewAssistantHandler 创建助手信息处理器
func NewAssistantHandler(svc *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{svc: svc}
}

// List 助手列表（不含凭证）
// @Summary      助手列表
// @Tags         助手
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /assistants [get]
func (h *AssistantHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"assistants": h.svc.List()})
}
