package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation               = errors.New("参数错误")
	ErrAssistantNotFound        = errors.New("助手不存在")
	ErrConversationsUnsupported = errors.New("该助手不支持会话")
	ErrConversationNotFound     = errors.New("会话不存在")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
