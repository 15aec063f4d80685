package challenge

import (
	"context"
	"time"

	"github.com/pathlearn/authguard/pkg/cache"
)

// MemoryStore keeps captcha answers in an in-process TTL map. Good
// for single-instance deployments and tests.
type MemoryStore struct {
	answers *cache.TTLMap
}

func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{answers: cache.NewTTLMap(defaultTTL)}
}

func (s *MemoryStore) Set(_ context.Context, id, answer string, ttl time.Duration) error {
	s.answers.SetWithTTL(id, answer, ttl)
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, id string) (string, bool, error) {
	v, ok := s.answers.Pop(id)
	if !ok {
		return "", false, nil
	}
	answer, ok := v.(string)
	if !ok {
		return "", false, nil
	}
	return answer, true, nil
}

// Sweep evicts expired answers.
func (s *MemoryStore) Sweep() int {
	return s.answers.Sweep()
}
