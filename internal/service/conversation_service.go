package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/metrics"
	"chatrelay/internal/model"
	"chatrelay/internal/pkg/lock"
	"chatrelay/internal/repository"
)

// 双写阶段，用于指标与日志
const (
	opRename      = "rename"
	opDelete      = "delete"
	stageMirror   = "mirror"
	stageProvider = "provider"
	stageMessages = "mirror_messages"
)

const defaultListLimit = 20

// RenameInput 重命名参数
type RenameInput struct {
	AssistantID    string
	ConversationID string
	UserID         string
	Name           string
}

// DeleteInput 删除参数
type DeleteInput struct {
	AssistantID    string
	ConversationID string
	UserID         string
}

// ListInput 会话列表参数
type ListInput struct {
	AssistantID string
	UserID      string
	Limit       int
}

// ConversationService 会话的重命名、删除与列表，负责上游与镜像的双写
type ConversationService struct {
	assistants *AssistantService
	provider   Provider
	mirror     repository.MirrorStore // nil 表示未启用镜像
	locker     lock.Locker
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewConversationService 创建会话服务，locker 为 nil 时使用进程内锁
func NewConversationService(assistants *AssistantService, p Provider, mirror repository.MirrorStore, locker lock.Locker, m *metrics.Metrics) *ConversationService {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &ConversationService{
		assistants: assistants,
		provider:   p,
		mirror:     mirror,
		locker:     locker,
		metrics:    m,
		now:        time.Now,
	}
}

func (s *ConversationService) assistant(assistantID string) (*model.Assistant, error) {
	a, err := s.assistants.Get(assistantID)
	if err != nil {
		return nil, err
	}
	if !a.SupportsConversations() {
		return nil, ErrConversationsUnsupported
	}
	return a, nil
}

// Rename 先写镜像再写上游
// 镜像失败直接返回错误且不调用上游；上游失败只记告警，不回滚镜像
func (s *ConversationService) Rename(ctx context.Context, in *RenameInput) (*model.Conversation, error) {
	if in.AssistantID == "" {
		return nil, validationError("assistantId is required")
	}
	if in.ConversationID == "" {
		return nil, validationError("conversation id is required")
	}
	if in.Name == "" {
		return nil, validationError("name is required")
	}
	a, err := s.assistant(in.AssistantID)
	if err != nil {
		return nil, err
	}

	logger := log.With().
		Str("conversation_id", in.ConversationID).
		Str("user", in.UserID).
		Logger()
	now := s.now().UTC()

	if s.mirror == nil {
		pc, err := s.provider.RenameConversation(ctx, s.assistants.Endpoint(a), in.ConversationID, in.UserID, in.Name)
		s.metrics.RecordDualWrite(opRename, stageProvider, err)
		if err != nil {
			return nil, err
		}
		conv := &model.Conversation{
			ID:          in.ConversationID,
			UserID:      in.UserID,
			AssistantID: a.ID,
			Title:       pc.Name,
			UpdatedAt:   now,
		}
		if pc.CreatedAt > 0 {
			conv.CreatedAt = time.Unix(pc.CreatedAt, 0).UTC()
		}
		return conv, nil
	}

	conv, err := s.renameMirror(ctx, a, in, now)
	s.metrics.RecordDualWrite(opRename, stageMirror, err)
	if err != nil {
		return nil, err
	}

	_, err = s.provider.RenameConversation(ctx, s.assistants.Endpoint(a), in.ConversationID, in.UserID, in.Name)
	s.metrics.RecordDualWrite(opRename, stageProvider, err)
	if err != nil {
		logger.Warn().Err(err).Msg("provider rename failed, mirror keeps new title")
	}

	return conv, nil
}

// renameMirror 按 (id, user) 更新，未命中则插入
// 持锁执行，避免并发重命名同一新会话时重复插入
func (s *ConversationService) renameMirror(ctx context.Context, a *model.Assistant, in *RenameInput, now time.Time) (*model.Conversation, error) {
	unlock, err := s.locker.Lock(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("lock conversation %s: %w", in.ConversationID, err)
	}
	defer unlock()

	n, err := s.mirror.UpdateConversationTitle(ctx, in.ConversationID, in.UserID, in.Name, now)
	if err != nil {
		return nil, fmt.Errorf("mirror rename: %w", err)
	}
	if n == 0 {
		conv := &model.Conversation{
			ID:          in.ConversationID,
			UserID:      in.UserID,
			AssistantID: a.ID,
			Title:       in.Name,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.mirror.InsertConversation(ctx, conv); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return nil, ErrConversationNotFound
			}
			return nil, fmt.Errorf("mirror insert on rename: %w", err)
		}
		return conv, nil
	}

	conv, err := s.mirror.GetConversation(ctx, in.ConversationID, in.UserID)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", in.ConversationID).Msg("reload renamed conversation failed")
		return &model.Conversation{
			ID:          in.ConversationID,
			UserID:      in.UserID,
			AssistantID: a.ID,
			Title:       in.Name,
			UpdatedAt:   now,
		}, nil
	}
	return conv, nil
}

// Delete 先删上游再删镜像
// 上游失败时镜像保持不变；上游成功后，消息与会话行的删除各自独立尝试，失败只记告警
func (s *ConversationService) Delete(ctx context.Context, in *DeleteInput) error {
	if in.AssistantID == "" {
		return validationError("assistantId is required")
	}
	if in.ConversationID == "" {
		return validationError("conversation id is required")
	}
	a, err := s.assistant(in.AssistantID)
	if err != nil {
		return err
	}

	err = s.provider.DeleteConversation(ctx, s.assistants.Endpoint(a), in.ConversationID, in.UserID)
	s.metrics.RecordDualWrite(opDelete, stageProvider, err)
	if err != nil {
		return err
	}
	if s.mirror == nil {
		return nil
	}

	logger := log.With().
		Str("conversation_id", in.ConversationID).
		Str("user", in.UserID).
		Logger()
	// 上游已删除，镜像删除不受调用方取消影响
	mctx := context.WithoutCancel(ctx)

	_, err = s.mirror.DeleteMessages(mctx, in.ConversationID, in.UserID)
	s.metrics.RecordDualWrite(opDelete, stageMessages, err)
	if err != nil {
		logger.Warn().Err(err).Msg("persistence warning: failed to delete mirror messages")
	}

	_, err = s.mirror.DeleteConversation(mctx, in.ConversationID, in.UserID)
	s.metrics.RecordDualWrite(opDelete, stageMirror, err)
	if err != nil {
		logger.Warn().Err(err).Msg("persistence warning: failed to delete mirror conversation")
	}

	return nil
}

// List 列出用户会话，镜像为空时回源上游
func (s *ConversationService) List(ctx context.Context, in *ListInput) (*model.ConversationListResponse, error) {
	if in.AssistantID == "" {
		return nil, validationError("assistantId is required")
	}
	a, err := s.assistant(in.AssistantID)
	if err != nil {
		return nil, err
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	if s.mirror != nil {
		convs, err := s.mirror.ListConversations(ctx, &model.FindConversation{
			UserID:      in.UserID,
			AssistantID: a.ID,
			Limit:       limit,
		})
		if err != nil {
			return nil, fmt.Errorf("list mirror conversations: %w", err)
		}
		if len(convs) > 0 {
			return &model.ConversationListResponse{Conversations: convs, Source: SourceMirror}, nil
		}
	}

	pcs, err := s.provider.ListConversations(ctx, s.assistants.Endpoint(a), in.UserID, limit)
	if err != nil {
		return nil, err
	}
	convs := make([]*model.Conversation, 0, len(pcs))
	for _, pc := range pcs {
		conv := &model.Conversation{
			ID:          pc.ID,
			UserID:      in.UserID,
			AssistantID: a.ID,
			Title:       pc.Name,
			CreatedAt:   time.Unix(pc.CreatedAt, 0).UTC(),
			UpdatedAt:   time.Unix(pc.CreatedAt, 0).UTC(),
		}
		if pc.UpdatedAt > 0 {
			conv.UpdatedAt = time.Unix(pc.UpdatedAt, 0).UTC()
		}
		convs = append(convs, conv)
	}
	return &model.ConversationListResponse{Conversations: convs, Source: SourceProvider}, nil
}
