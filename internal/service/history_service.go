package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"chatrelay/internal/metrics"
	"chatrelay/internal/model"
	"chatrelay/internal/pkg/id"
	"chatrelay/internal/provider"
	"chatrelay/internal/repository"
)

// 历史消息来源
const (
	SourceMirror   = "mirror"
	SourceProvider = "provider"
)

const (
	providerRecordsPerRound = 6
	minProviderRecords      = 30
	providerFetchTimeout    = 30 * time.Second
)

// HistoryInput 历史分页参数
type HistoryInput struct {
	AssistantID    string
	ConversationID string
	UserID         string
	Rounds         *int
	CursorRounds   *int
}

// HistoryService 历史消息分页，优先读镜像，镜像为空时回源上游
type HistoryService struct {
	assistants *AssistantService
	provider   Provider
	mirror     repository.MirrorStore // nil 表示未启用镜像
	metrics    *metrics.Metrics
	group      singleflight.Group
}

// NewHistoryService 创建历史服务
func NewHistoryService(assistants *AssistantService, p Provider, mirror repository.MirrorStore, m *metrics.Metrics) *HistoryService {
	return &HistoryService{
		assistants: assistants,
		provider:   p,
		mirror:     mirror,
		metrics:    m,
	}
}

// Page 返回一页历史消息
func (s *HistoryService) Page(ctx context.Context, in *HistoryInput) (*model.MessagePage, error) {
	if in.AssistantID == "" {
		return nil, validationError("assistantId is required")
	}
	if in.ConversationID == "" {
		return nil, validationError("conversationId is required")
	}
	assistant, err := s.assistants.Get(in.AssistantID)
	if err != nil {
		return nil, err
	}
	if !assistant.SupportsConversations() {
		return nil, ErrConversationsUnsupported
	}

	rounds := DefaultRounds
	if in.Rounds != nil {
		rounds = *in.Rounds
	}
	cursor := 0
	if in.CursorRounds != nil {
		cursor = *in.CursorRounds
	}

	msgs, source, err := s.load(ctx, assistant, in.ConversationID, in.UserID, rounds)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordHistory(source)

	window, next := Paginate(msgs, rounds, cursor)
	return &model.MessagePage{Messages: window, NextCursorRounds: next}, nil
}

func (s *HistoryService) load(ctx context.Context, a *model.Assistant, conversationID, userID string, rounds int) ([]*model.Message, string, error) {
	if s.mirror != nil {
		msgs, err := s.mirror.ListMessages(ctx, conversationID, userID)
		if err != nil {
			return nil, "", fmt.Errorf("list mirror messages: %w", err)
		}
		if len(msgs) > 0 {
			return msgs, SourceMirror, nil
		}
	}

	limit := max(max(rounds, 1)*providerRecordsPerRound, minProviderRecords)
	key := a.ID + "|" + conversationID + "|" + userID + "|" + strconv.Itoa(limit)
	// 合并后的上游调用不随单个调用方取消，各调用方只等待自己的 ctx
	ch := s.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), providerFetchTimeout)
		defer cancel()
		return s.provider.ListMessages(fctx, s.assistants.Endpoint(a), conversationID, userID, limit)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
	if res.Err != nil {
		return nil, "", res.Err
	}
	records := res.Val.([]provider.MessageRecord)
	shared := res.Shared

	log.Debug().
		Str("conversation_id", conversationID).
		Int("records", len(records)).
		Bool("shared", shared).
		Msg("history loaded from provider")

	return FlattenRecords(records, userID), SourceProvider, nil
}

// FlattenRecords 把上游记录（最新在前）拆成按时间正序的消息列表
// 每条记录最多拆成一问一答两条消息，空字段跳过
func FlattenRecords(records []provider.MessageRecord, userID string) []*model.Message {
	msgs := make([]*model.Message, 0, len(records)*RoundSize)
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		at := time.Unix(r.CreatedAt, 0).UTC()
		if r.Query != "" {
			msgs = append(msgs, &model.Message{
				ID:             id.FromRecord(r.ID, id.QuerySuffix),
				ConversationID: r.ConversationID,
				Role:           model.RoleUser,
				Content:        r.Query,
				UserID:         userID,
				CreatedAt:      at,
			})
		}
		if r.Answer != "" {
			msgs = append(msgs, &model.Message{
				ID:             id.FromRecord(r.ID, id.AnswerSuffix),
				ConversationID: r.ConversationID,
				Role:           model.RoleAssistant,
				Content:        r.Answer,
				UserID:         userID,
				CreatedAt:      at,
			})
		}
	}
	return msgs
}
