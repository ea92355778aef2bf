package stream

import (
	"encoding/json"
	"strings"

	"agent-chat-engine/internal/model"
)

type EventType string

const (
	EventSession         EventType = "session"
	EventStatus          EventType = "status"
	EventThinkingStep    EventType = "thinking_step"
	EventText            EventType = "text"
	EventInput           EventType = "input"
	EventRaw             EventType = "raw"
	EventComplete        EventType = "complete"
	EventAskUserQuestion EventType = "ask_user_question"
	EventSubagentStart   EventType = "subagent_start"
	EventDocumentUpdate  EventType = "document_update"
	EventError           EventType = "error"
)

// Envelope is one decoded, typed unit of the event stream. Fields are
// populated per Type; the rest stay zero.
type Envelope struct {
	Type EventType `json:"type"`

	SessionID string `json:"sessionId,omitempty"`
	Status    string `json:"status,omitempty"`
	Step      string `json:"step,omitempty"`
	Text      string `json:"text,omitempty"`

	RawMessage     json.RawMessage   `json:"rawMessage,omitempty"`
	RawInput       json.RawMessage   `json:"rawInput,omitempty"`
	AllRawMessages []json.RawMessage `json:"allRawMessages,omitempty"`

	ToolUseID string           `json:"toolUseId,omitempty"`
	Questions []model.Question `json:"questions,omitempty"`

	AgentType   string `json:"agentType,omitempty"`
	Description string `json:"description,omitempty"`

	Content string `json:"content,omitempty"`

	Error    string `json:"error,omitempty"`
	RawError string `json:"rawError,omitempty"`
}

// ParseEnvelope extracts the payload from a decoded record and decodes
// it as an envelope. A false return means the record carried no usable
// payload (e.g. it was truncated when the turn ended mid-write) and
// must simply be skipped.
func ParseEnvelope(record string) (*Envelope, bool) {
	payload := extractPayload(record)
	if payload == "" {
		return nil, false
	}
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, false
	}
	if env.Type == "" {
		return nil, false
	}
	return &env, true
}

// extractPayload joins the data lines of a record. Multi-line payloads
// are concatenated in order, per SSE framing.
func extractPayload(record string) string {
	var b strings.Builder
	for _, line := range strings.Split(record, "\n") {
		if strings.HasPrefix(line, dataPrefix) {
			b.WriteString(line[len(dataPrefix):])
		}
	}
	return b.String()
}
