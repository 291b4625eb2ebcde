package ctxutil

import "context"

type userIDKeyType struct{}

var userIDKey = userIDKeyType{}

// WithUserID 注入已认证的用户 ID，由 OptionalAuth 中间件在 token 校验通过后调用
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID 读取已认证的用户 ID，未认证或为空时返回 false
func GetUserID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
