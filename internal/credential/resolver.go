// Package credential 解析助手调用上游时使用的 Bearer 凭证
package credential

import (
	"chatrelay/internal/model"
)

// Resolver 凭证解析器
// 优先使用助手配置中引用的命名凭证，未设置或解析不到时回退到存储的密钥
type Resolver struct {
	source SecretSource
}

// NewResolver 创建凭证解析器
func NewResolver(source SecretSource) *Resolver {
	if source == nil {
		source = MapSource{}
	}
	return &Resolver{source: source}
}

// Resolve 返回助手的凭证
func (r *Resolver) Resolve(a *model.Assistant) string {
	if a == nil {
		return ""
	}
	if a.APIKeyEnv != "" {
		if v, ok := r.source.Lookup(a.APIKeyEnv); ok && v != "" {
			return v
		}
	}
	return a.APIKey
}
