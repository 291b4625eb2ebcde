// Package repository 定义本地会话镜像的存储接口，具体实现位于 sqlite、postgres、mongo 子包
package repository

import (
	"context"
	"errors"
	"time"

	"chatrelay/internal/model"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrConflict 会话 id 已被其他用户占用
	ErrConflict = errors.New("conversation belongs to another user")
)

// 表名 / 集合名
const (
	ConversationTable = "conversations"
	MessageTable      = "chat_messages"
)

// MirrorStore 会话镜像存储
type MirrorStore interface {
	// Migrate 创建表与索引，可重复执行
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// UpsertConversation 按主键插入会话，已存在时只更新 updated_at
	UpsertConversation(ctx context.Context, conv *model.Conversation) error
	// InsertConversation 插入会话；主键已存在且属于同一用户时以本次标题为准，属于其他用户时返回 ErrConflict 且不做修改
	InsertConversation(ctx context.Context, conv *model.Conversation) error
	// UpdateConversationTitle 按 (id, user) 更新标题，返回匹配行数
	UpdateConversationTitle(ctx context.Context, id, userID, title string, updatedAt time.Time) (int64, error)
	GetConversation(ctx context.Context, id, userID string) (*model.Conversation, error)
	// ListConversations 按 updated_at 倒序
	ListConversations(ctx context.Context, find *model.FindConversation) ([]*model.Conversation, error)
	DeleteConversation(ctx context.Context, id, userID string) (int64, error)

	// InsertMessages 在同一事务中插入
	InsertMessages(ctx context.Context, msgs ...*model.Message) error
	// ListMessages 按创建时间正序
	ListMessages(ctx context.Context, conversationID, userID string) ([]*model.Message, error)
	DeleteMessages(ctx context.Context, conversationID, userID string) (int64, error)
}
