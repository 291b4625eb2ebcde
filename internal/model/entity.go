package model

import (
	"time"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation 对话实体（本地镜像）
// ID 由上游服务分配，镜像从不自行生成
type Conversation struct {
	ID          string    `bson:"_id" json:"id"`
	UserID      string    `bson:"user_id" json:"userId"`
	AssistantID string    `bson:"assistant_id" json:"assistantId"`
	Title       string    `bson:"title" json:"title"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updatedAt"`
}

// Message 消息实体
type Message struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversationId"`
	Role           string    `bson:"role" json:"role"`
	Content        string    `bson:"content" json:"content"`
	UserID         string    `bson:"user_id" json:"userId"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
}

// FindConversation 对话查询条件
type FindConversation struct {
	UserID      string
	AssistantID string
	Limit       int
}
