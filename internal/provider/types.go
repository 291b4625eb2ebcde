package provider

// Endpoint 单个助手对应的上游地址与凭证
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// ResponseModeStreaming 流式响应
const ResponseModeStreaming = "streaming"

// ChatMessageRequest POST /chat-messages 请求体
type ChatMessageRequest struct {
	Query          string         `json:"query"`
	User           string         `json:"user"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Inputs         map[string]any `json:"inputs"`
}

// Conversation 上游对话
type Conversation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

// MessageRecord 上游消息记录，一条记录包含一问一答
type MessageRecord struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	Answer         string `json:"answer"`
	CreatedAt      int64  `json:"created_at"`
}

type listResponse[T any] struct {
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
	Data    []T  `json:"data"`
}

type renameRequest struct {
	Name string `json:"name"`
	User string `json:"user"`
}

type userRequest struct {
	User string `json:"user"`
}
