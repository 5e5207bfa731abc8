package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is used when no key is configured.
const DefaultRedisKey = "marketplace:session"

// RedisStore keeps the session under a single Redis key, so several processes
// can share one wallet session.
type RedisStore struct {
	client *redis.Client
	key    string
}

// ConnectRedis builds a client from a redis:// URL or a host:port address.
func ConnectRedis(addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

// NewRedisStore creates a store on client under key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (WalletSession, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return WalletSession{}, nil
	}
	if err != nil {
		return WalletSession{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	var out WalletSession
	if err := json.Unmarshal(raw, &out); err != nil {
		return WalletSession{}, fmt.Errorf("decode session: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, sess WalletSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Close releases the client.
func (s *RedisStore) Close() error { return s.client.Close() }
