package model

import "chatrelay/internal/config"

// Assistant 助手配置记录，对核心流程只读
type Assistant struct {
	ID        string
	Name      string
	BaseURL   string
	APIKey    string
	APIKeyEnv string
	Mode      string
	Inputs    map[string]any
}

// SupportsConversations completion 模式没有会话概念
func (a *Assistant) SupportsConversations() bool {
	return a.Mode != config.AssistantModeCompletion
}

// AssistantFromConfig 从配置构建助手记录
func AssistantFromConfig(cfg config.AssistantConfig) *Assistant {
	mode := cfg.Mode
	if mode == "" {
		mode = config.AssistantModeChat
	}
	return &Assistant{
		ID:        cfg.ID,
		Name:      cfg.Name,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		APIKeyEnv: cfg.APIKeyEnv,
		Mode:      mode,
		Inputs:    cfg.Inputs,
	}
}

// AssistantInfo 对外暴露的助手信息（不含凭证）
type AssistantInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Mode string `json:"mode"`
}
