package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNonceStore keeps webhook nonces in Redis so replay protection holds across instances.
type RedisNonceStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisNonceStore constructs the store. Keys are written as "<prefix>:<scope>:<nonce>".
func NewRedisNonceStore(client redis.Cmdable, prefix string) (*RedisNonceStore, error) {
	if client == nil {
		return nil, errors.New("auth: redis client is required")
	}
	if prefix == "" {
		prefix = "nonce"
	}
	return &RedisNonceStore{client: client, prefix: prefix, now: time.Now}, nil
}

// UseNonce implements NonceStore using SET NX with the remaining lifetime as expiry.
func (s *RedisNonceStore) UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	ttl := expiry.Sub(s.now())
	if ttl <= 0 {
		return false, errors.New("auth: nonce expiry is in the past")
	}
	key := fmt.Sprintf("%s:%s:%s", s.prefix, scope, nonce)
	stored, err := s.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("auth: store nonce: %w", err)
	}
	return stored, nil
}
