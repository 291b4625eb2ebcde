package service

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"chatrelay/internal/config"
	"chatrelay/internal/credential"
	"chatrelay/internal/model"
	"chatrelay/internal/provider"
	"chatrelay/internal/repository"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) StreamChat(ctx context.Context, ep provider.Endpoint, req *provider.ChatMessageRequest) (io.ReadCloser, error) {
	args := m.Called(ctx, ep, req)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockProvider) StreamCompletion(ctx context.Context, ep provider.Endpoint, req *provider.ChatMessageRequest) (io.ReadCloser, error) {
	args := m.Called(ctx, ep, req)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockProvider) RenameConversation(ctx context.Context, ep provider.Endpoint, conversationID, user, name string) (*provider.Conversation, error) {
	args := m.Called(ctx, ep, conversationID, user, name)
	conv, _ := args.Get(0).(*provider.Conversation)
	return conv, args.Error(1)
}

func (m *mockProvider) DeleteConversation(ctx context.Context, ep provider.Endpoint, conversationID, user string) error {
	return m.Called(ctx, ep, conversationID, user).Error(0)
}

func (m *mockProvider) ListConversations(ctx context.Context, ep provider.Endpoint, user string, limit int) ([]provider.Conversation, error) {
	args := m.Called(ctx, ep, user, limit)
	list, _ := args.Get(0).([]provider.Conversation)
	return list, args.Error(1)
}

func (m *mockProvider) ListMessages(ctx context.Context, ep provider.Endpoint, conversationID, user string, limit int) ([]provider.MessageRecord, error) {
	args := m.Called(ctx, ep, conversationID, user, limit)
	list, _ := args.Get(0).([]provider.MessageRecord)
	return list, args.Error(1)
}

type mockMirror struct {
	mock.Mock
}

var _ repository.MirrorStore = (*mockMirror)(nil)

func (m *mockMirror) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockMirror) Ping(ctx context.Context) error    { return m.Called(ctx).Error(0) }
func (m *mockMirror) Close() error                      { return m.Called().Error(0) }

func (m *mockMirror) UpsertConversation(ctx context.Context, conv *model.Conversation) error {
	return m.Called(ctx, conv).Error(0)
}

func (m *mockMirror) InsertConversation(ctx context.Context, conv *model.Conversation) error {
	return m.Called(ctx, conv).Error(0)
}

func (m *mockMirror) UpdateConversationTitle(ctx context.Context, id, userID, title string, updatedAt time.Time) (int64, error) {
	args := m.Called(ctx, id, userID, title, updatedAt)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMirror) GetConversation(ctx context.Context, id, userID string) (*model.Conversation, error) {
	args := m.Called(ctx, id, userID)
	conv, _ := args.Get(0).(*model.Conversation)
	return conv, args.Error(1)
}

func (m *mockMirror) ListConversations(ctx context.Context, find *model.FindConversation) ([]*model.Conversation, error) {
	args := m.Called(ctx, find)
	list, _ := args.Get(0).([]*model.Conversation)
	return list, args.Error(1)
}

func (m *mockMirror) DeleteConversation(ctx context.Context, id, userID string) (int64, error) {
	args := m.Called(ctx, id, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMirror) InsertMessages(ctx context.Context, msgs ...*model.Message) error {
	args := make([]any, 0, len(msgs)+1)
	args = append(args, ctx)
	for _, msg := range msgs {
		args = append(args, msg)
	}
	return m.Called(args...).Error(0)
}

func (m *mockMirror) ListMessages(ctx context.Context, conversationID, userID string) ([]*model.Message, error) {
	args := m.Called(ctx, conversationID, userID)
	list, _ := args.Get(0).([]*model.Message)
	return list, args.Error(1)
}

func (m *mockMirror) DeleteMessages(ctx context.Context, conversationID, userID string) (int64, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Get(0).(int64), args.Error(1)
}

// testAssistants 一个 chat 助手与一个 completion 助手
func testAssistants() *AssistantService {
	return NewAssistantService([]config.AssistantConfig{
		{ID: "chat", Name: "Chat", BaseURL: "http://upstream/v1", APIKey: "stored", APIKeyEnv: "CHAT_KEY", Inputs: map[string]any{"tone": "formal", "lang": "en"}},
		{ID: "writer", Name: "Writer", BaseURL: "http://upstream/v1", APIKey: "w", Mode: config.AssistantModeCompletion},
	}, credential.NewResolver(credential.MapSource{"CHAT_KEY": "rotated"}))
}

var chatEndpoint = provider.Endpoint{BaseURL: "http://upstream/v1", APIKey: "rotated"}

func sampleMessages(n int) []*model.Message {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	list := make([]*model.Message, n)
	for i := range list {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		list[i] = &model.Message{ID: string(rune('a' + i)), Role: role, CreatedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return list
}

func ids(list []*model.Message) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}

func intPtr(v int) *int { return &v }
