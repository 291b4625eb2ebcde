package provider

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable 上游调用失败或返回非成功状态
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Error 上游调用错误，errors.Is(err, ErrUpstreamUnavailable) 恒为 true
type Error struct {
	Op      string
	Status  int    // 0 表示没有拿到响应
	Code    string // 上游返回的错误码
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: upstream status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": upstream unavailable"
	}
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// Is 归类为 ErrUpstreamUnavailable
func (e *Error) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// IsNotFound 上游明确返回 404
func IsNotFound(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Status == 404
}

func statusError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Status: status}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Code = payload.Code
		e.Message = payload.Message
	}
	if e.Message == "" && len(body) > 0 {
		e.Message = string(body)
		if len(e.Message) > 200 {
			e.Message = e.Message[:200]
		}
	}
	return e
}
