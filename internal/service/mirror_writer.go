package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chatrelay/internal/metrics"
	"chatrelay/internal/model"
	"chatrelay/internal/pkg/id"
	"chatrelay/internal/repository"
)

const (
	// DefaultUserMessageOffset 用户消息相对助手消息提前的时间
	DefaultUserMessageOffset = 10 * time.Millisecond
	titleMaxRunes            = 50
)

// Turn 一轮完整的问答
type Turn struct {
	ConversationID string
	UserID         string
	AssistantID    string
	Query          string
	Answer         string
}

// MirrorWriter 把完成的一轮对话写入镜像
type MirrorWriter struct {
	store   repository.MirrorStore
	offset  time.Duration
	metrics *metrics.Metrics
}

// NewMirrorWriter 创建镜像写入器，offset <= 0 时使用默认值
func NewMirrorWriter(store repository.MirrorStore, offset time.Duration, m *metrics.Metrics) *MirrorWriter {
	if offset <= 0 {
		offset = DefaultUserMessageOffset
	}
	return &MirrorWriter{store: store, offset: offset, metrics: m}
}

// Write 先 upsert 会话，再插入用户消息（now - offset）与助手消息（now）
// 会话 upsert 失败时不再插入消息
func (w *MirrorWriter) Write(ctx context.Context, turn Turn, now time.Time) error {
	conv := &model.Conversation{
		ID:          turn.ConversationID,
		UserID:      turn.UserID,
		AssistantID: turn.AssistantID,
		Title:       deriveTitle(turn.Query),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.store.UpsertConversation(ctx, conv); err != nil {
		w.metrics.RecordMirrorWrite("conversation_error")
		return fmt.Errorf("upsert conversation %s: %w", turn.ConversationID, err)
	}

	userMsg := &model.Message{
		ID:             id.New(),
		ConversationID: turn.ConversationID,
		Role:           model.RoleUser,
		Content:        turn.Query,
		UserID:         turn.UserID,
		CreatedAt:      now.Add(-w.offset),
	}
	assistantMsg := &model.Message{
		ID:             id.New(),
		ConversationID: turn.ConversationID,
		Role:           model.RoleAssistant,
		Content:        turn.Answer,
		UserID:         turn.UserID,
		CreatedAt:      now,
	}
	if err := w.store.InsertMessages(ctx, userMsg, assistantMsg); err != nil {
		w.metrics.RecordMirrorWrite("message_error")
		return fmt.Errorf("insert messages for %s: %w", turn.ConversationID, err)
	}

	w.metrics.RecordMirrorWrite("ok")
	return nil
}

// deriveTitle 取用户首条消息的第一行作为默认标题
func deriveTitle(query string) string {
	title := strings.TrimSpace(query)
	if i := strings.IndexAny(title, "\r\n"); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}
	return string([]rune(title)[:titleMaxRunes])
}
