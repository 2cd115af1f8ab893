package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// PinStore mirrors live session PINs into Redis so operators and sibling
// instances can see which codes are reserved. Writes are best effort; the
// in-process registry remains the single owner of session state.
type PinStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPinStore(client *redis.Client, ttl time.Duration) *PinStore {
	return &PinStore{client: client, ttl: ttl}
}

func (s *PinStore) Reserve(pin string) {
	_ = s.client.Set(context.Background(), s.key(pin), "1", s.ttl).Err()
}

func (s *PinStore) Release(pin string) {
	_ = s.client.Del(context.Background(), s.key(pin)).Err()
}

func (s *PinStore) key(pin string) string {
	return "session:pin:" + pin
}
