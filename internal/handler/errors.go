package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	httputil "chatrelay/internal/pkg/http"
	"chatrelay/internal/pkg/ctxutil"
	"chatrelay/internal/model"
	"chatrelay/internal/provider"
	"chatrelay/internal/service"
)

// ErrorResponse swagger 文档使用
type ErrorResponse = httputil.ErrorResponse

// writeError 把业务错误映射为 HTTP 状态码与错误码
func writeError(c *gin.Context, err error) {
	var (
		status int
		resp   *httputil.ErrorResponse
	)
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
		resp = httputil.NewErrorResponse(httputil.CodeValidation, "Invalid request", err.Error())
	case errors.Is(err, service.ErrAssistantNotFound):
		status = http.StatusNotFound
		resp = httputil.NewErrorResponse(httputil.CodeAssistantNotFound, err.Error())
	case errors.Is(err, service.ErrConversationNotFound):
		status = http.StatusNotFound
		resp = httputil.NewErrorResponse(httputil.CodeConversationNotFound, err.Error())
	case errors.Is(err, service.ErrConversationsUnsupported):
		status = http.StatusBadRequest
		resp = httputil.NewErrorResponse(httputil.CodeConversationUnsupported, err.Error())
	case errors.Is(err, provider.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
		resp = httputil.NewErrorResponse(httputil.CodeUpstream, "Upstream service unavailable")
	default:
		status = http.StatusInternalServerError
		resp = httputil.NewErrorResponse(httputil.CodeMirror, "Conversation storage failed")
	}

	if status >= 500 {
		log.Error().Err(err).Str("request_id", c.GetString("request_id")).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func badBody(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest,
		httputil.NewErrorResponse(httputil.CodeValidation, "Invalid request body", err.Error()))
}

// resolveUser 已认证用户优先，其次取请求中的 userId，都没有时为匿名
func resolveUser(c *gin.Context, ref *model.UserRef) string {
	if uid, ok := ctxutil.GetUserID(c.Request.Context()); ok {
		return model.UserIdentifier(uid)
	}
	return ref.Identifier()
}
