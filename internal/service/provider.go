package service

import (
	"context"
	"io"

	"chatrelay/internal/provider"
)

// Provider 上游服务，*provider.Client 实现该接口
type Provider interface {
	StreamChat(ctx context.Context, ep provider.Endpoint, req *provider.ChatMessageRequest) (io.ReadCloser, error)
	StreamCompletion(ctx context.Context, ep provider.Endpoint, req *provider.ChatMessageRequest) (io.ReadCloser, error)
	RenameConversation(ctx context.Context, ep provider.Endpoint, conversationID, user, name string) (*provider.Conversation, error)
	DeleteConversation(ctx context.Context, ep provider.Endpoint, conversationID, user string) error
	ListConversations(ctx context.Context, ep provider.Endpoint, user string, limit int) ([]provider.Conversation, error)
	ListMessages(ctx context.Context, ep provider.Endpoint, conversationID, user string, limit int) ([]provider.MessageRecord, error)
}

var _ Provider = (*provider.Client)(nil)
