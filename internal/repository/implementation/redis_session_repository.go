package implementation

import (
	"context"
	"encoding/json"
	"errors"

	"agent-chat-engine/internal/model"

	"github.com/redis/go-redis/v9"
)

// RedisSessionRepository stores the session collection as one JSON
// value under sessions:<namespace>. Used when several gateway
// instances share client state.
type RedisSessionRepository struct {
	rdb *redis.Client
	key string
}

func NewRedisSessionRepository(rdb *redis.Client, namespace string) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, key: "sessions:" + namespace}
}

func (r *RedisSessionRepository) Load(ctx context.Context) ([]*model.Session, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*model.Session{}, nil
		}
		return nil, err
	}
	var sessions []*model.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *RedisSessionRepository) Save(ctx context.Context, sessions []*model.Session) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, data, 0).Err()
}
