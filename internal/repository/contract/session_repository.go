package contract

import (
	"context"

	"agent-chat-engine/internal/model"
)

// SessionRepository persists the whole session collection as one blob
// per storage namespace. The engine holds no ambient storage state;
// implementations are injected, which keeps the store testable with an
// in-memory fake.
type SessionRepository interface {
	Load(ctx context.Context) ([]*model.Session, error)
	Save(ctx context.Context, sessions []*model.Session) error
}
