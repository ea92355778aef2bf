package model

import "encoding/json"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. Role is immutable after creation;
// Content grows via incremental merges during a turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// RawInput is the exact request payload sent to the backend for this
	// turn (user messages only). It is set optimistically at turn start
	// and overwritten once the backend echoes the canonical payload.
	RawInput json.RawMessage `json:"rawInput,omitempty"`

	// RawOutput is the ordered log of opaque backend records for this
	// turn (assistant messages only). A terminal "complete" envelope may
	// replace it wholesale with the authoritative set.
	RawOutput []json.RawMessage `json:"rawOutput,omitempty"`

	PendingQuestion *PendingQuestion `json:"pendingQuestion,omitempty"`
	SubagentStatus  *SubagentStatus  `json:"subagentStatus,omitempty"`
}

func NewUserMessage(content string, rawInput json.RawMessage) *Message {
	return &Message{Role: RoleUser, Content: content, RawInput: rawInput}
}

func NewAssistantMessage() *Message {
	return &Message{Role: RoleAssistant, RawOutput: []json.RawMessage{}}
}

// PendingQuestion is an open multiple-choice clarification request
// blocking further free-text input until answered.
type PendingQuestion struct {
	ToolUseId string     `json:"toolUseId"`
	Questions []Question `json:"questions"`
}

type Question struct {
	Question    string           `json:"question"`
	Header      string           `json:"header"`
	Options     []QuestionOption `json:"options"`
	MultiSelect bool             `json:"multiSelect"`
}

type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// SubagentStatus is a single mutable record per turn, not a history.
// Later updates overwrite in place.
type SubagentStatus struct {
	AgentType   string `json:"agentType"`
	Description string `json:"description"`
	IsComplete  bool   `json:"isComplete"`
}
