// Package relay 把上游 SSE 流原样转发给调用方，同时旁路解析出会话 ID 与完整回答
package relay

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Result 一次转发结束后的旁路结果
type Result struct {
	ConversationID string
	Answer         string
	Bytes          int64
	Terminated     bool  // 收到 [DONE] 或 message_end
	AbortErr       error // 客户端断开或上游中途出错
}

// Aborted 流在终止标记之前中断
func (r Result) Aborted() bool {
	return r.AbortErr != nil && !r.Terminated
}

// ShouldPersist 会话 ID 与回答都存在且流未中断时才回写镜像
func (r Result) ShouldPersist() bool {
	return r.ConversationID != "" && r.Answer != "" && !r.Aborted()
}

// Option 转换器选项
type Option func(*Transformer)

// WithLogger 指定日志
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transformer) {
		t.logger = logger
	}
}

// WithParseWarningHook 每条无法解析的 data 行回调一次
func WithParseWarningHook(fn func(line string, err error)) Option {
	return func(t *Transformer) {
		t.onParseWarning = fn
	}
}

// Transformer 透传 + 旁路解析
// 每次 Write 先原样写给 dst（不缓冲），再解析同一批字节；
// 不完整的尾行保留到下一次 Write 或 Flush
type Transformer struct {
	dst            io.Writer
	flusher        http.Flusher
	logger         zerolog.Logger
	onParseWarning func(line string, err error)

	pending        []byte
	conversationID string
	answer         strings.Builder
	written        int64
	terminated     bool
	abortErr       error
	flushed        bool
	finished       bool
}

// NewTransformer 创建转换器，dst 实现 http.Flusher 时每块写完立即 flush
func NewTransformer(dst io.Writer, opts ...Option) *Transformer {
	t := &Transformer{
		dst:    dst,
		logger: log.Logger,
	}
	if f, ok := dst.(http.Flusher); ok {
		t.flusher = f
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Write 实现 io.Writer
func (t *Transformer) Write(p []byte) (int, error) {
	if t.abortErr != nil {
		return 0, t.abortErr
	}

	n, err := t.dst.Write(p)
	t.written += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		t.abortErr = err
		return n, err
	}
	if t.flusher != nil {
		t.flusher.Flush()
	}

	t.consume(p)
	return n, nil
}

// Abort 标记流被中断（上游读错误或客户端取消）
func (t *Transformer) Abort(err error) {
	if err != nil && t.abortErr == nil {
		t.abortErr = err
	}
}

// Flush 解析残留的尾行并返回结果，可重复调用
func (t *Transformer) Flush() Result {
	if !t.flushed {
		t.flushed = true
		if len(t.pending) > 0 {
			t.handleLine(t.pending)
			t.pending = nil
		}
	}
	return Result{
		ConversationID: t.conversationID,
		Answer:         t.answer.String(),
		Bytes:          t.written,
		Terminated:     t.terminated,
		AbortErr:       t.abortErr,
	}
}

// Finish Flush 之后在满足条件时调用 fn，且只调用一次
// fn 的错误只记日志，不影响已经发给客户端的流
func (t *Transformer) Finish(fn func(Result) error) bool {
	res := t.Flush()
	if t.finished || !res.ShouldPersist() {
		return false
	}
	t.finished = true

	if err := fn(res); err != nil {
		t.logger.Warn().
			Err(err).
			Str("conversation_id", res.ConversationID).
			Msg("persistence warning: failed to write completed turn")
	}
	return true
}

func (t *Transformer) consume(p []byte) {
	t.pending = append(t.pending, p...)
	for {
		i := bytes.IndexByte(t.pending, '\n')
		if i < 0 {
			break
		}
		t.handleLine(t.pending[:i])
		t.pending = t.pending[i+1:]
	}
	if len(t.pending) == 0 {
		t.pending = nil
	} else if cap(t.pending) > 4*len(t.pending) {
		t.pending = append([]byte(nil), t.pending...)
	}
}

func (t *Transformer) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, dataPrefix) {
		return
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return
	}
	if bytes.Equal(payload, doneMarker) {
		t.terminated = true
		return
	}

	ev, err := DecodeEvent(payload)
	if err != nil {
		t.logger.Warn().
			Err(err).
			Str("line", truncate(string(line), 256)).
			Msg("parse warning: dropping malformed event line")
		if t.onParseWarning != nil {
			t.onParseWarning(string(line), err)
		}
		return
	}
	t.apply(ev)
}

func (t *Transformer) apply(ev Event) {
	if ev.ConversationID != "" && t.conversationID == "" {
		t.conversationID = ev.ConversationID
	}

	switch {
	case ev.carriesAnswer():
		t.answer.WriteString(ev.Answer)
	case ev.Kind == EventMessageReplace && ev.HasAnswer:
		t.answer.Reset()
		t.answer.WriteString(ev.Answer)
	case ev.Kind == EventMessageEnd:
		t.terminated = true
	case ev.Kind == EventError:
		t.logger.Warn().
			Str("conversation_id", t.conversationID).
			Str("upstream_message", ev.Message).
			Msg("upstream reported an error event")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
