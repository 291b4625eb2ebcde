package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"chatrelay/internal/pkg/ctxutil"
	"chatrelay/internal/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/who", func(c *gin.Context) {
		uid, _ := ctxutil.GetUserID(c.Request.Context())
		c.String(http.StatusOK, uid+"|"+ctxutil.GetRequestID(c.Request.Context()))
	})
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func do(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOptionalAuth(t *testing.T) {
	Convey("可选 JWT 认证", t, func() {
		j := jwt.NewJWT("secret", time.Hour)
		r := newEngine(OptionalAuth(j))

		Convey("没有 token 时放行", func() {
			w := do(r, http.MethodGet, "/who", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "|")
		})

		Convey("合法 token 注入用户", func() {
			token, _ := j.GenerateToken("42", "")
			w := do(r, http.MethodGet, "/who", map[string]string{"Authorization": "Bearer " + token})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldStartWith, "42|")
		})

		Convey("非法 token 返回 401", func() {
			w := do(r, http.MethodGet, "/who", map[string]string{"Authorization": "Bearer nope"})
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(w.Body.String(), ShouldContainSubstring, "40102")
		})

		Convey("格式错误返回 401", func() {
			w := do(r, http.MethodGet, "/who", map[string]string{"Authorization": "Basic abc"})
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(w.Body.String(), ShouldContainSubstring, "40101")
		})
	})
}

func TestRequestID(t *testing.T) {
	Convey("请求 ID", t, func() {
		r := newEngine(RequestID())

		Convey("生成新的 ID", func() {
			w := do(r, http.MethodGet, "/who", nil)
			id := w.Header().Get(RequestIDHeader)
			So(id, ShouldNotBeEmpty)
			So(w.Body.String(), ShouldEqual, "|"+id)
		})

		Convey("沿用调用方的 ID", func() {
			w := do(r, http.MethodGet, "/who", map[string]string{RequestIDHeader: "abc"})
			So(w.Header().Get(RequestIDHeader), ShouldEqual, "abc")
		})
	})
}

func TestCORS(t *testing.T) {
	Convey("跨域", t, func() {
		r := newEngine(CORS())

		w := do(r, http.MethodOptions, "/who", map[string]string{"Origin": "http://app.local"})
		So(w.Code, ShouldEqual, http.StatusNoContent)
		So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "http://app.local")

		w = do(r, http.MethodGet, "/who", nil)
		So(w.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
	})
}

func TestRateLimiter(t *testing.T) {
	Convey("按用户限流", t, func() {
		rl := NewRateLimiter(0.001, 2)
		So(rl.Allow("a"), ShouldBeTrue)
		So(rl.Allow("a"), ShouldBeTrue)
		So(rl.Allow("a"), ShouldBeFalse)
		So(rl.Allow("b"), ShouldBeTrue)

		r := newEngine(NewRateLimiter(0.001, 1).Middleware())
		So(do(r, http.MethodGet, "/who", nil).Code, ShouldEqual, http.StatusOK)
		So(do(r, http.MethodGet, "/who", nil).Code, ShouldEqual, http.StatusTooManyRequests)
	})
}

func TestRecoveryAndLogger(t *testing.T) {
	Convey("panic 返回 500", t, func() {
		r := newEngine(Recovery(), RequestID(), Logger())
		w := do(r, http.MethodGet, "/panic", nil)
		So(w.Code, ShouldEqual, http.StatusInternalServerError)
		So(w.Body.String(), ShouldContainSubstring, "50000")
	})
}
