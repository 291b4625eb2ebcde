// Package provider 上游对话服务（Dify 兼容 API）客户端
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 指定非流式请求使用的 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithStreamClient 指定流式请求使用的 http.Client，不应设置整体超时
func WithStreamClient(hc *http.Client) Option {
	return func(c *Client) {
		c.stream = hc
	}
}

// Client 上游客户端，并发安全，所有助手共用
type Client struct {
	http   *http.Client
	stream *http.Client
}

// NewClient 创建上游客户端
func NewClient(opts ...Option) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	c := &Client{
		http:   &http.Client{Transport: transport, Timeout: defaultTimeout},
		stream: &http.Client{Transport: transport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamChat 发起对话型流式请求，返回上游 SSE 响应体，调用方负责关闭
func (c *Client) StreamChat(ctx context.Context, ep Endpoint, req *ChatMessageRequest) (io.ReadCloser, error) {
	return c.openStream(ctx, "chat-messages", ep, "/chat-messages", req)
}

// StreamCompletion 发起文本生成型流式请求，上游不维护会话
func (c *Client) StreamCompletion(ctx context.Context, ep Endpoint, req *ChatMessageRequest) (io.ReadCloser, error) {
	body := *req
	body.ConversationID = ""
	return c.openStream(ctx, "completion-messages", ep, "/completion-messages", &body)
}

func (c *Client) openStream(ctx context.Context, op string, ep Endpoint, path string, req *ChatMessageRequest) (io.ReadCloser, error) {
	body := *req
	if body.Inputs == nil {
		body.Inputs = map[string]any{}
	}
	body.ResponseMode = ResponseModeStreaming

	httpReq, err := c.newRequest(ctx, http.MethodPost, ep, path, nil, &body)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(op, resp.StatusCode, raw)
	}
	return resp.Body, nil
}

// RenameConversation 重命名上游会话
func (c *Client) RenameConversation(ctx context.Context, ep Endpoint, conversationID, user, name string) (*Conversation, error) {
	var out Conversation
	path := "/conversations/" + url.PathEscape(conversationID) + "/name"
	if err := c.doJSON(ctx, "rename-conversation", ep, http.MethodPost, path, nil, &renameRequest{Name: name, User: user}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConversation 删除上游会话
func (c *Client) DeleteConversation(ctx context.Context, ep Endpoint, conversationID, user string) error {
	path := "/conversations/" + url.PathEscape(conversationID)
	return c.doJSON(ctx, "delete-conversation", ep, http.MethodDelete, path, nil, &userRequest{User: user}, nil)
}

// ListConversations 按用户列出上游会话（最近优先）
func (c *Client) ListConversations(ctx context.Context, ep Endpoint, user string, limit int) ([]Conversation, error) {
	q := url.Values{}
	q.Set("user", user)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out listResponse[Conversation]
	if err := c.doJSON(ctx, "list-conversations", ep, http.MethodGet, "/conversations", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListMessages 拉取会话最近的问答记录，按时间倒序（最新在前）
func (c *Client) ListMessages(ctx context.Context, ep Endpoint, conversationID, user string, limit int) ([]MessageRecord, error) {
	q := url.Values{}
	q.Set("conversation_id", conversationID)
	q.Set("user", user)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out listResponse[MessageRecord]
	if err := c.doJSON(ctx, "list-messages", ep, http.MethodGet, "/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) doJSON(ctx context.Context, op string, ep Endpoint, method, path string, query url.Values, in, out any) error {
	req, err := c.newRequest(ctx, method, ep, path, query, in)
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("upstream call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(op, resp.StatusCode, body)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, ep Endpoint, path string, query url.Values, in any) (*http.Request, error) {
	u := strings.TrimRight(ep.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ep.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}
	return req, nil
}
