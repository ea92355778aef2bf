package memory

import (
	"context"

	"agent-chat-engine/internal/model"

	"github.com/patrickmn/go-cache"
)

// SessionRepository is the in-memory blob store used by tests and by
// deployments that do not want durable client state. Entries never
// expire; go-cache is used for its locked map semantics.
type SessionRepository struct {
	cache *cache.Cache
	key   string
}

func NewSessionRepository(namespace string) *SessionRepository {
	return &SessionRepository{
		cache: cache.New(cache.NoExpiration, 0),
		key:   namespace,
	}
}

func (r *SessionRepository) Load(_ context.Context) ([]*model.Session, error) {
	if x, found := r.cache.Get(r.key); found {
		return x.([]*model.Session), nil
	}
	return []*model.Session{}, nil
}

func (r *SessionRepository) Save(_ context.Context, sessions []*model.Session) error {
	r.cache.Set(r.key, sessions, cache.NoExpiration)
	return nil
}
