package events

import "time"

// Topics on the in-process bus.
const (
	TopicTurnCompleted = "chat.turn.completed"
)

// Event types published to the external bus.
const (
	TypeSessionCreated = "SESSION_CREATED"
	TypeSessionDeleted = "SESSION_DELETED"
)

// Event is the contract for everything published off the engine.
type Event interface {
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewSessionEvent builds a lifecycle event for one session.
func NewSessionEvent(eventType, sessionID string) Event {
	return BaseEvent{
		Type:       eventType,
		Data:       map[string]interface{}{"session_id": sessionID},
		OccurredAt: time.Now(),
	}
}

// TurnCompleted is the payload carried on TopicTurnCompleted. The
// consumer uses it to kick off fire-and-forget title generation.
type TurnCompleted struct {
	SessionID string `json:"session_id"`
}
