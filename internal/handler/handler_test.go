package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/config"
	"chatrelay/internal/credential"
	"chatrelay/internal/model"
	"chatrelay/internal/provider"
	"chatrelay/internal/repository/sqlite"
	"chatrelay/internal/service"
)

const upstreamStream = "data: {\"event\":\"message\",\"conversation_id\":\"conv-1\",\"answer\":\"Hi \"}\n\n" +
	"data: {\"event\":\"message\",\"conversation_id\":\"conv-1\",\"answer\":\"there\"}\n\n" +
	"data: {\"event\":\"message_end\",\"conversation_id\":\"conv-1\"}\n\n"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUpstream struct {
	*httptest.Server
	calls     atomic.Int32
	lastChat  provider.ChatMessageRequest
	deleteErr bool
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	f := &fakeUpstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat-messages", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&f.lastChat)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, upstreamStream)
	})
	mux.HandleFunc("POST /v1/conversations/{id}/name", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		_ = json.NewEncoder(w).Encode(provider.Conversation{ID: r.PathValue("id"), Name: "renamed"})
	})
	mux.HandleFunc("DELETE /v1/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if f.deleteErr {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"code":"internal_error","message":"boom"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /v1/messages", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		_, _ = io.WriteString(w, `{"limit":30,"has_more":false,"data":[`+
			`{"id":"r2","conversation_id":"conv-9","query":"q2","answer":"a2","created_at":1700000100},`+
			`{"id":"r1","conversation_id":"conv-9","query":"q1","answer":"a1","created_at":1700000000}]}`)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newTestRouter(t *testing.T, upstream *fakeUpstream) (*gin.Engine, *sqlite.DB) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(t.Context()))

	assistants := service.NewAssistantService([]config.AssistantConfig{
		{ID: "chat", Name: "Chat", BaseURL: upstream.URL + "/v1", APIKey: "k", Mode: config.AssistantModeChat, Inputs: map[string]any{"tone": "calm"}},
		{ID: "writer", BaseURL: upstream.URL + "/v1", APIKey: "k", Mode: config.AssistantModeCompletion},
	}, credential.NewResolver(nil))
	client := provider.NewClient()

	chat := NewChatHandler(service.NewChatService(assistants, client, service.NewMirrorWriter(store, 0, nil), nil, 0))
	conv := NewConversationHandler(service.NewConversationService(assistants, client, store, nil, nil))
	msgs := NewMessageHandler(service.NewHistoryService(assistants, client, store, nil))

	r := gin.New()
	r.POST("/chat", chat.Chat)
	r.PATCH("/conversations/:id", conv.Rename)
	r.DELETE("/conversations/:id", conv.Delete)
	r.GET("/conversations", conv.List)
	r.POST("/messages", msgs.List)
	r.GET("/assistants", NewAssistantHandler(assistants).List)
	return r, store
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestChat_RelaysAndMirrors(t *testing.T) {
	upstream := newFakeUpstream(t)
	r, store := newTestRouter(t, upstream)

	w := doJSON(r, http.MethodPost, "/chat", map[string]any{
		"assistantId": "chat",
		"message":     "hello",
		"userId":      42,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, upstreamStream, w.Body.String())
	assert.Equal(t, "user-42", upstream.lastChat.User)
	assert.Equal(t, "calm", upstream.lastChat.Inputs["tone"])

	msgs, err := store.ListMessages(t.Context(), "conv-1", "user-42")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "Hi there", msgs[1].Content)

	page := doJSON(r, http.MethodPost, "/messages", map[string]any{
		"assistantId": "chat", "conversationId": "conv-1", "userId": "42",
	})
	require.Equal(t, http.StatusOK, page.Code)
	var resp model.MessagePage
	require.NoError(t, json.Unmarshal(page.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 2)
	assert.Nil(t, resp.NextCursorRounds)
}

func TestChat_Validation(t *testing.T) {
	upstream := newFakeUpstream(t)
	r, _ := newTestRouter(t, upstream)

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   int
	}{
		{"缺少 message", map[string]any{"assistantId": "chat"}, http.StatusBadRequest, 40001},
		{"缺少 assistantId", map[string]any{"message": "hi"}, http.StatusBadRequest, 40001},
		{"未知助手", map[string]any{"assistantId": "nope", "message": "hi"}, http.StatusNotFound, 40401},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/chat", tc.body)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeError(t, w).Code)
		})
	}

	bad := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, upstream.calls.Load())
}

func TestChat_UpstreamDown(t *testing.T) {
	upstream := newFakeUpstream(t)
	r, _ := newTestRouter(t, upstream)
	upstream.Close()

	w := doJSON(r, http.MethodPost, "/chat", map[string]any{"assistantId": "chat", "message": "hi"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 50201, decodeError(t, w).Code)
}

func TestConversation_RenameAndDelete(t *testing.T) {
	upstream := newFakeUpstream(t)
	r, store := newTestRouter(t, upstream)

	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/chat", map[string]any{
		"assistantId": "chat", "message": "hello",
	}).Code)

	w := doJSON(r, http.MethodPatch, "/conversations/conv-1", map[string]any{
		"assistantId": "chat", "name": "Trip plan",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var renamed model.ConversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &renamed))
	assert.Equal(t, "Trip plan", renamed.Conversation.Title)

	conv, err := store.GetConversation(t.Context(), "conv-1", model.AnonymousUser)
	require.NoError(t, err)
	assert.Equal(t, "Trip plan", conv.Title)

	list := doJSON(r, http.MethodGet, "/conversations?assistantId=chat", nil)
	require.Equal(t, http.StatusOK, list.Code)
	var listed model.ConversationListResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &listed))
	assert.Equal(t, service.SourceMirror, listed.Source)
	require.Len(t, listed.Conversations, 1)

	del := doJSON(r, http.MethodDelete, "/conversations/conv-1", map[string]any{"assistantId": "chat"})
	require.Equal(t, http.StatusOK, del.Code)
	msgs, err := store.ListMessages(t.Context(), "conv-1", model.AnonymousUser)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestConversation_RenameOtherUsersConversation(t *testing.T) {
	upstream := newFakeUpstream(t)
	r, store := newTestRouter(t, upstream)

	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/chat", map[string]any{
		"assistantId": "chat", "message": "hello", "userId": 42,
	}).Code)
	before := upstream.calls.Load()

	w := doJSON(r, http.MethodPatch, "/conversations/conv-1", map[string]any{
		"assistantId": "chat", "userId": 7, "name": "hijacked",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40402, decodeError(t, w).Code)
	assert.Equal(t, before, upstream.calls.Load())

	conv, err := store.GetConversation(t.Context(), "conv-1", "user-42")
	require.NoError(t, err)
	assert.Equal(t, "hello", conv.Title)
}

func TestConversation_DeleteUpstreamFailureKeepsMirror(t *testing.T) {
	upstream := newFakeUpstream(t)
	r, store := newTestRouter(t, upstream)

	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/chat", map[string]any{
		"assistantId": "chat", "message": "hello",
	}).Code)
	upstream.deleteErr = true

	w := doJSON(r, http.MethodDelete, "/conversations/conv-1?assistantId=chat", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	_, err := store.GetConversation(t.Context(), "conv-1", model.AnonymousUser)
	assert.NoError(t, err)
}

func TestConversation_CompletionAssistantUnsupported(t *testing.T) {
	upstream := newFakeUpstream(t)
	r, _ := newTestRouter(t, upstream)

	w := doJSON(r, http.MethodPatch, "/conversations/conv-1", map[string]any{
		"assistantId": "writer", "name": "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40003, decodeError(t, w).Code)
	assert.Zero(t, upstream.calls.Load())
}

func TestConversation_ListInvalidLimit(t *testing.T) {
	upstream := newFakeUpstream(t)
	r, _ := newTestRouter(t, upstream)

	w := doJSON(r, http.MethodGet, "/conversations?assistantId=chat&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessages_ProviderFallback(t *testing.T) {
	upstream := newFakeUpstream(t)
	r, _ := newTestRouter(t, upstream)

	w := doJSON(r, http.MethodPost, "/messages", map[string]any{
		"assistantId": "chat", "conversationId": "conv-9", "rounds": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var page model.MessagePage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "r2-q", page.Messages[0].ID)
	assert.Equal(t, "r2-a", page.Messages[1].ID)
	require.NotNil(t, page.NextCursorRounds)
	assert.Equal(t, 1, *page.NextCursorRounds)
}

func TestAssistants_List(t *testing.T) {
	upstream := newFakeUpstream(t)
	r, _ := newTestRouter(t, upstream)

	w := doJSON(r, http.MethodGet, "/assistants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"k"`)
	assert.Contains(t, w.Body.String(), `"chat"`)
}
