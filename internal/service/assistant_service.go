package service

import (
	"maps"

	"chatrelay/internal/config"
	"chatrelay/internal/credential"
	"chatrelay/internal/model"
	"chatrelay/internal/provider"
)

// AssistantService 助手配置查询，配置在启动时加载，运行期只读
type AssistantService struct {
	byID     map[string]*model.Assistant
	ordered  []*model.Assistant
	resolver *credential.Resolver
}

// NewAssistantService 创建助手服务
func NewAssistantService(cfgs []config.AssistantConfig, resolver *credential.Resolver) *AssistantService {
	s := &AssistantService{
		byID:     make(map[string]*model.Assistant, len(cfgs)),
		resolver: resolver,
	}
	for _, c := range cfgs {
		a := model.AssistantFromConfig(c)
		s.byID[a.ID] = a
		s.ordered = append(s.ordered, a)
	}
	return s
}

// Get 按 ID 查询助手
func (s *AssistantService) Get(id string) (*model.Assistant, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrAssistantNotFound
	}
	return a, nil
}

// List 返回对外可见的助手信息
func (s *AssistantService) List() []model.AssistantInfo {
	list := make([]model.AssistantInfo, 0, len(s.ordered))
	for _, a := range s.ordered {
		list = append(list, model.AssistantInfo{ID: a.ID, Name: a.Name, Mode: a.Mode})
	}
	return list
}

// Endpoint 解析凭证后得到上游地址
func (s *AssistantService) Endpoint(a *model.Assistant) provider.Endpoint {
	return provider.Endpoint{
		BaseURL: a.BaseURL,
		APIKey:  s.resolver.Resolve(a),
	}
}

// MergeInputs 助手默认参数在下，请求参数覆盖同名键
func MergeInputs(defaults, override map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(override))
	maps.Copy(merged, defaults)
	maps.Copy(merged, override)
	return merged
}
