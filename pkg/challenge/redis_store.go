package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisAnswerKey = "captcha:answer:%s"

// RedisStore keeps captcha answers in Redis so multiple instances can
// verify challenges issued by any of them.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Set(ctx context.Context, id, answer string, ttl time.Duration) error {
	key := fmt.Sprintf(redisAnswerKey, id)
	if err := s.client.Set(ctx, key, answer, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store captcha answer: %w", err)
	}
	return nil
}

// Consume atomically fetches and deletes the answer, giving the
// one-shot verification semantics even across concurrent attempts.
func (s *RedisStore) Consume(ctx context.Context, id string) (string, bool, error) {
	key := fmt.Sprintf(redisAnswerKey, id)
	answer, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to consume captcha answer: %w", err)
	}
	return answer, true, nil
}
