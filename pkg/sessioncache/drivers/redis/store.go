// Package redis stores session records as plain Redis string keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/rhsession/pkg/sessioncache"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key this store writes.
const DefaultPrefix = "rhsession:"

// ErrUnavailable wraps any failure talking to Redis.
var ErrUnavailable = errors.New("sessioncache: redis unavailable")

type Store struct {
	redis  redis.UniversalClient
	prefix string

	// ttl expires records after they are last saved. Zero keeps them forever.
	ttl time.Duration
}

// NewStore returns a store on client. An empty prefix uses DefaultPrefix.
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{redis: client, prefix: prefix, ttl: ttl}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewStore(client, "", ttl), nil
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := sessioncache.ValidateKey(key); err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if err := sessioncache.ValidateKey(key); err != nil {
		return nil, err
	}

	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessioncache.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := sessioncache.ValidateKey(key); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.redis.Close()
}
