package model

// ChatRequest 对话请求
type ChatRequest struct {
	AssistantID    string         `json:"assistantId"`
	Message        string         `json:"message"`
	ConversationID string         `json:"conversationId,omitempty"`
	UserID         *UserRef       `json:"userId,omitempty"`
	Inputs         map[string]any `json:"inputs,omitempty"`
}

// RenameConversationRequest 重命名对话请求
type RenameConversationRequest struct {
	AssistantID string   `json:"assistantId"`
	UserID      *UserRef `json:"userId,omitempty"`
	Name        string   `json:"name"`
}

// DeleteConversationRequest 删除对话请求
type DeleteConversationRequest struct {
	AssistantID string   `json:"assistantId"`
	UserID      *UserRef `json:"userId,omitempty"`
}

// ListMessagesRequest 历史消息请求
type ListMessagesRequest struct {
	AssistantID    string   `json:"assistantId"`
	ConversationID string   `json:"conversationId"`
	UserID         *UserRef `json:"userId,omitempty"`
	CursorRounds   *int     `json:"cursorRounds,omitempty"`
	Rounds         *int     `json:"rounds,omitempty"`
}
