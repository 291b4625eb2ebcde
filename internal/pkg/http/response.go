package http

// 业务错误码，前三位与 HTTP 状态码一致
const (
	CodeValidation              = 40001
	CodeConversationUnsupported = 40003
	CodeUnauthorized            = 40101
	CodeTokenInvalid            = 40102
	CodeAssistantNotFound       = 40401
	CodeConversationNotFound    = 40402
	CodeTooManyRequests         = 42901
	CodeInternal                = 50000
	CodeMirror                  = 50001
	CodeUpstream                = 50201
)

// ErrorResponse 错误响应（所有API共用）
type ErrorResponse struct {
	Code    int    `json:"code"`             // 错误码（非0表示错误）
	Message string `json:"message"`          // 错误消息
	Detail  string `json:"detail,omitempty"` // 错误详情（可选）
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string, detail ...string) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    code,
		Message: message,
	}
	if len(detail) > 0 && detail[0] != "" {
		resp.Detail = detail[0]
	}
	return resp
}
