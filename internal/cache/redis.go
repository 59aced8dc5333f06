package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	ierrors "clinical-intake/internal/errors"
	"clinical-intake/internal/intake"
)

// DefaultTTL is how long an idle session survives.
const DefaultTTL = 2 * time.Hour

// RedisSessionStore keeps intake sessions in Redis so they survive page
// reloads and server restarts. Every Save refreshes the TTL.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a session store on an existing client.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) key(id string) string {
	return fmt.Sprintf("intake:session:%s", id)
}

func (s *RedisSessionStore) Save(ctx context.Context, sess *intake.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*intake.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	var sess intake.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func notFound(id string) error {
	return ierrors.Newf(ierrors.ErrCodeSessionNotFound, "session %q not found", id).
		WithSuggestion("Sessions expire after inactivity; start a new one")
}
