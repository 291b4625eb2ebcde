package model

// ConversationResponse 重命名对话响应
type ConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
}

// ConversationListResponse 对话列表响应
type ConversationListResponse struct {
	Conversations []*Conversation `json:"conversations"`
	Source        string          `json:"source"` // mirror, provider
}

// DeleteResponse 删除响应
type DeleteResponse struct {
	Success bool `json:"success"`
}

// MessagePage 历史消息分页响应
// NextCursorRounds 为 nil 表示没有更早的历史
type MessagePage struct {
	Messages         []*Message `json:"messages"`
	NextCursorRounds *int       `json:"nextCursorRounds"`
}
