package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-answer-engine-be/pkg/pipeline/executor"
	"ai-answer-engine-be/pkg/pipeline/state"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps conversation memory in Redis so sessions survive
// restarts and are shared across instances. Same read-merge-write contract
// as the in-process store.
type RedisSessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	maxTurns int
}

var _ executor.SessionStore = &RedisSessionStore{}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration, maxTurns int) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl, maxTurns: maxTurns}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*state.SessionState, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session read: %w", err)
	}

	var sess state.SessionState
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Update(ctx context.Context, id string, patch state.SessionPatch) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = &state.SessionState{SessionID: id}
	}
	sess.Apply(patch, s.maxTurns)

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	return s.client.Set(ctx, sessionKey(id), raw, s.ttl).Err()
}
