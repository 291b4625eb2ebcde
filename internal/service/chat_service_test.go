package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/mock"

	"chatrelay/internal/model"
	"chatrelay/internal/provider"
)

const upstreamStream = "data: {\"event\":\"message\",\"conversation_id\":\"conv-9\",\"answer\":\"Hi \"}\n\n" +
	"data: {\"event\":\"message\",\"conversation_id\":\"conv-9\",\"answer\":\"there\"}\n\n" +
	"data: {\"event\":\"message_end\",\"conversation_id\":\"conv-9\"}\n\n" +
	"data: [DONE]\n\n"

func streamBody(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func newChatService(p *mockProvider, mirror *mockMirror) *ChatService {
	var writer *MirrorWriter
	if mirror != nil {
		writer = NewMirrorWriter(mirror, 0, nil)
	}
	svc := NewChatService(testAssistants(), p, writer, nil, time.Second)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestChatService(t *testing.T) {
	Convey("对话转发", t, func() {
		p := new(mockProvider)
		mirror := new(mockMirror)
		svc := newChatService(p, mirror)
		ctx := context.Background()
		in := &ChatInput{AssistantID: "chat", Message: "hello", UserID: "user-7", Inputs: map[string]any{"lang": "zh"}}

		Convey("透传字节并在结束后回写一次", func() {
			p.On("StreamChat", mock.Anything, chatEndpoint, mock.MatchedBy(func(r *provider.ChatMessageRequest) bool {
				return r.Query == "hello" && r.User == "user-7" &&
					r.Inputs["lang"] == "zh" && r.Inputs["tone"] == "formal"
			})).Return(streamBody(upstreamStream), nil).Once()
			mirror.On("UpsertConversation", mock.Anything, mock.MatchedBy(func(c *model.Conversation) bool {
				return c.ID == "conv-9" && c.UserID == "user-7" && c.AssistantID == "chat"
			})).Return(nil).Once()
			mirror.On("InsertMessages", mock.Anything,
				mock.MatchedBy(func(m *model.Message) bool { return m.Role == model.RoleUser && m.Content == "hello" }),
				mock.MatchedBy(func(m *model.Message) bool { return m.Role == model.RoleAssistant && m.Content == "Hi there" }),
			).Return(nil).Once()

			stream, err := svc.Open(ctx, in)
			So(err, ShouldBeNil)

			var out bytes.Buffer
			So(stream.Relay(&out), ShouldBeNil)
			So(out.String(), ShouldEqual, upstreamStream)
			mirror.AssertExpectations(t)
		})

		Convey("回写失败不影响转发结果", func() {
			p.On("StreamChat", mock.Anything, mock.Anything, mock.Anything).Return(streamBody(upstreamStream), nil).Once()
			mirror.On("UpsertConversation", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

			stream, err := svc.Open(ctx, in)
			So(err, ShouldBeNil)
			var out bytes.Buffer
			So(stream.Relay(&out), ShouldBeNil)
			So(out.String(), ShouldEqual, upstreamStream)
		})

		Convey("回答为空时不回写", func() {
			empty := "data: {\"event\":\"message_end\",\"conversation_id\":\"conv-9\"}\n\ndata: [DONE]\n\n"
			p.On("StreamChat", mock.Anything, mock.Anything, mock.Anything).Return(streamBody(empty), nil).Once()

			stream, err := svc.Open(ctx, in)
			So(err, ShouldBeNil)
			So(stream.Relay(io.Discard), ShouldBeNil)
			mirror.AssertNumberOfCalls(t, "UpsertConversation", 0)
		})

		Convey("调用方取消时不回写", func() {
			cctx, cancel := context.WithCancel(ctx)
			partial := "data: {\"event\":\"message\",\"conversation_id\":\"conv-9\",\"answer\":\"Hi\"}\n\n"
			p.On("StreamChat", mock.Anything, mock.Anything, mock.Anything).Return(streamBody(partial), nil).Once()

			stream, err := svc.Open(cctx, in)
			So(err, ShouldBeNil)
			cancel()
			_ = stream.Relay(io.Discard)
			mirror.AssertNumberOfCalls(t, "UpsertConversation", 0)
		})

		Convey("completion 助手走 completion 接口且不回写", func() {
			p.On("StreamCompletion", mock.Anything, mock.Anything, mock.Anything).
				Return(streamBody("data: {\"event\":\"message\",\"answer\":\"done\"}\n\n"), nil).Once()

			stream, err := svc.Open(ctx, &ChatInput{AssistantID: "writer", Message: "write", UserID: "user-anon"})
			So(err, ShouldBeNil)
			So(stream.Relay(io.Discard), ShouldBeNil)
			p.AssertNumberOfCalls(t, "StreamChat", 0)
			mirror.AssertNumberOfCalls(t, "UpsertConversation", 0)
		})

		Convey("上游失败在写出任何字节前返回", func() {
			p.On("StreamChat", mock.Anything, mock.Anything, mock.Anything).Return(nil, errUpstream).Once()

			_, err := svc.Open(ctx, in)
			So(errors.Is(err, provider.ErrUpstreamUnavailable), ShouldBeTrue)
		})

		Convey("参数校验先于任何 I/O", func() {
			_, err := svc.Open(ctx, &ChatInput{AssistantID: "chat"})
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
			_, err = svc.Open(ctx, &ChatInput{Message: "hi"})
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
			_, err = svc.Open(ctx, &ChatInput{AssistantID: "ghost", Message: "hi"})
			So(errors.Is(err, ErrAssistantNotFound), ShouldBeTrue)
			p.AssertNumberOfCalls(t, "StreamChat", 0)
		})
	})

	Convey("未启用镜像时只转发", t, func() {
		p := new(mockProvider)
		svc := newChatService(p, nil)
		p.On("StreamChat", mock.Anything, mock.Anything, mock.Anything).Return(streamBody(upstreamStream), nil).Once()

		stream, err := svc.Open(context.Background(), &ChatInput{AssistantID: "chat", Message: "hello", UserID: "user-anon"})
		So(err, ShouldBeNil)
		var out bytes.Buffer
		So(stream.Relay(&out), ShouldBeNil)
		So(out.String(), ShouldEqual, upstreamStream)
	})
}

func TestMergeInputs(t *testing.T) {
	Convey("请求参数覆盖默认参数", t, func() {
		merged := MergeInputs(map[string]any{"a": 1, "b": 2}, map[string]any{"b": 3, "c": 4})
		So(merged, ShouldResemble, map[string]any{"a": 1, "b": 3, "c": 4})
		So(MergeInputs(nil, nil), ShouldNotBeNil)
	})
}
