package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/pkg/ctxutil"
	httputil "chatrelay/internal/pkg/http"
	"chatrelay/internal/pkg/jwt"
)

// OptionalAuth 可选 JWT 认证
// 没有 Authorization 头时放行，由请求体中的 userId 决定用户；
// 携带了 Bearer token 则必须有效，验证后注入 user_id 到 context
func OptionalAuth(jwtUtil *jwt.JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		// 提取 Token（Bearer {token}）
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				httputil.NewErrorResponse(httputil.CodeUnauthorized, "Invalid authorization header"))
			return
		}

		claims, err := jwtUtil.ValidateToken(parts[1])
		if err != nil {
			msg := "Token无效"
			if errors.Is(err, jwt.ErrExpiredToken) {
				msg = "Token已过期"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				httputil.NewErrorResponse(httputil.CodeTokenInvalid, msg))
			return
		}

		ctx := ctxutil.WithUserID(c.Request.Context(), claims.UserID())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
