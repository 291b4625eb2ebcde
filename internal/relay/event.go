package relay

import (
	"encoding/json"
	"errors"
)

// EventKind 上游事件类型
type EventKind string

// 已识别的事件类型，其余类型只取 conversation_id
const (
	EventUnspecified    EventKind = ""
	EventMessage        EventKind = "message"
	EventAgentMessage   EventKind = "agent_message"
	EventMessageReplace EventKind = "message_replace"
	EventMessageEnd     EventKind = "message_end"
	EventError          EventKind = "error"
)

// Event 解码后的流事件，只保留转发旁路需要的字段
type Event struct {
	Kind           EventKind
	ConversationID string
	Answer         string
	HasAnswer      bool
	Message        string // error 事件的错误描述
}

// carriesAnswer 是否应把 answer 追加到累计结果
// 没有 event 字段的旧格式也按 message 处理
func (e Event) carriesAnswer() bool {
	switch e.Kind {
	case EventUnspecified, EventMessage, EventAgentMessage:
		return e.HasAnswer
	}
	return false
}

type wireEvent struct {
	Event          string  `json:"event"`
	ConversationID string  `json:"conversation_id"`
	Answer         *string `json:"answer"`
	Message        string  `json:"message"`
}

var errNotObject = errors.New("event payload is not a JSON object")

// DecodeEvent 解析 data: 之后的 JSON，未知字段忽略
func DecodeEvent(payload []byte) (Event, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, err
	}
	if len(raw) == 0 || raw[0] != '{' {
		return Event{}, errNotObject
	}

	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, err
	}

	ev := Event{
		Kind:           EventKind(w.Event),
		ConversationID: w.ConversationID,
		Message:        w.Message,
	}
	if w.Answer != nil {
		ev.Answer = *w.Answer
		ev.HasAnswer = true
	}
	return ev, nil
}
