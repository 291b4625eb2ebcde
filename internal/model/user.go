package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AnonymousUser 未登录用户的统一标识
const AnonymousUser = "user-anon"

// UserRef 前端传入的用户 ID，兼容数字与字符串两种写法
type UserRef string

// UnmarshalJSON 接受 42 或 "42"
func (u *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("userId must be a string or number: %w", err)
	}
	*u = UserRef(n.String())
	return nil
}

// UserIdentifier 合成上游与镜像共用的用户标识：user-<id> 或 user-anon
func UserIdentifier(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return AnonymousUser
	}
	if strings.HasPrefix(id, "user-") {
		return id
	}
	return "user-" + id
}

// Identifier 返回 ref 对应的用户标识，nil 视为匿名
func (u *UserRef) Identifier() string {
	if u == nil {
		return AnonymousUser
	}
	return UserIdentifier(string(*u))
}
