package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/metrics"
	"chatrelay/internal/model"
	"chatrelay/internal/provider"
	"chatrelay/internal/relay"
)

// 转发结果状态，用于指标
const (
	streamOK       = "ok"
	streamAborted  = "aborted"
	streamUpstream = "upstream_error"
)

const defaultMirrorWriteTimeout = 10 * time.Second

// ChatInput 对话参数
type ChatInput struct {
	AssistantID    string
	Message        string
	ConversationID string
	UserID         string
	Inputs         map[string]any
}

// ChatService 对话转发：打开上游流，透传给调用方，结束后回写镜像
type ChatService struct {
	assistants   *AssistantService
	provider     Provider
	writer       *MirrorWriter // nil 表示不回写
	metrics      *metrics.Metrics
	writeTimeout time.Duration
	now          func() time.Time
}

// NewChatService 创建对话服务
func NewChatService(assistants *AssistantService, p Provider, writer *MirrorWriter, m *metrics.Metrics, writeTimeout time.Duration) *ChatService {
	if writeTimeout <= 0 {
		writeTimeout = defaultMirrorWriteTimeout
	}
	return &ChatService{
		assistants:   assistants,
		provider:     p,
		writer:       writer,
		metrics:      m,
		writeTimeout: writeTimeout,
		now:          time.Now,
	}
}

// ChatStream 已打开的上游流，Relay 之后失效
type ChatStream struct {
	svc       *ChatService
	ctx       context.Context
	body      io.ReadCloser
	input     *ChatInput
	assistant *model.Assistant
	persist   bool
	logger    zerolog.Logger
}

// Open 校验参数并打开上游流
// 返回错误时调用方还没有写出任何字节，可以正常返回错误响应
func (s *ChatService) Open(ctx context.Context, in *ChatInput) (*ChatStream, error) {
	if in.AssistantID == "" {
		return nil, validationError("assistantId is required")
	}
	if in.Message == "" {
		return nil, validationError("message is required")
	}
	a, err := s.assistants.Get(in.AssistantID)
	if err != nil {
		return nil, err
	}

	req := &provider.ChatMessageRequest{
		Query:          in.Message,
		User:           in.UserID,
		ConversationID: in.ConversationID,
		Inputs:         MergeInputs(a.Inputs, in.Inputs),
	}
	ep := s.assistants.Endpoint(a)

	var body io.ReadCloser
	if a.SupportsConversations() {
		body, err = s.provider.StreamChat(ctx, ep, req)
	} else {
		body, err = s.provider.StreamCompletion(ctx, ep, req)
	}
	if err != nil {
		s.metrics.RecordStream(streamUpstream, 0, 0)
		return nil, err
	}

	return &ChatStream{
		svc:       s,
		ctx:       ctx,
		body:      body,
		input:     in,
		assistant: a,
		persist:   s.writer != nil && a.SupportsConversations(),
		logger: log.With().
			Str("assistant_id", a.ID).
			Str("user", in.UserID).
			Logger(),
	}, nil
}

// Relay 把上游流写给 w，结束后在满足条件时回写镜像
// 回写失败只记日志；返回的错误仅表示转发本身中断
func (cs *ChatStream) Relay(w io.Writer) error {
	defer cs.body.Close()
	start := time.Now()
	s := cs.svc

	t := relay.NewTransformer(w,
		relay.WithLogger(cs.logger),
		relay.WithParseWarningHook(func(string, error) { s.metrics.RecordParseWarning() }),
	)

	err := relay.Pump(cs.body, t)
	if ctxErr := cs.ctx.Err(); ctxErr != nil {
		t.Abort(ctxErr)
	}

	if cs.persist {
		t.Finish(func(res relay.Result) error {
			wctx, cancel := context.WithTimeout(context.WithoutCancel(cs.ctx), s.writeTimeout)
			defer cancel()
			return s.writer.Write(wctx, Turn{
				ConversationID: res.ConversationID,
				UserID:         cs.input.UserID,
				AssistantID:    cs.assistant.ID,
				Query:          cs.input.Message,
				Answer:         res.Answer,
			}, s.now())
		})
	}

	res := t.Flush()
	status := streamOK
	switch {
	case res.Aborted() && !errors.Is(err, relay.ErrClientGone) && cs.ctx.Err() == nil:
		status = streamUpstream
	case res.Aborted():
		status = streamAborted
	}
	s.metrics.RecordStream(status, res.Bytes, time.Since(start))

	cs.logger.Info().
		Str("conversation_id", res.ConversationID).
		Int64("bytes", res.Bytes).
		Bool("terminated", res.Terminated).
		Str("status", status).
		Dur("elapsed", time.Since(start)).
		Msg("chat stream relayed")

	return err
}
