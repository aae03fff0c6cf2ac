// Package redisstore provides a Redis-backed implementation of the
// sessions.Store interface with TTL enforcement delegated to Redis key
// expiry.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/httpkit-go/sessions"
)

// Config for the Redis-backed Store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=httpkit:sessions:"`

	// Client, when set, is used as-is and RedisAddr is ignored.
	Client *redis.Client
}

// Store implements sessions.Store using Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// storedRecord is the JSON envelope written to Redis.
type storedRecord struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New creates a Redis-backed store, dialing cfg.RedisAddr unless a client
// is supplied. The connection is verified with a ping.
func New(cfg Config) (*Store, error) {
	client := cfg.Client
	if client == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "httpkit:sessions:"
	}
	return &Store{client: client, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode env config: %w", err)
	}
	return New(cfg)
}

// Load retrieves the record for a session id.
func (s *Store) Load(ctx context.Context, id string) (*sessions.Record, error) {
	result := s.client.Get(ctx, s.key(id))
	if err := result.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	var stored storedRecord
	if err := json.Unmarshal([]byte(result.Val()), &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored session: %w", err)
	}

	rec := &sessions.Record{
		Data:      stored.Data,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}
	// Redis expiry normally removes the key first; this covers clock skew
	// between writer and reader.
	if rec.IsExpired() {
		s.client.Del(ctx, s.key(id))
		return nil, nil
	}
	return rec, nil
}

// Save stores the record data for a session id.
func (s *Store) Save(ctx context.Context, id string, data []byte, opts ...sessions.Option) error {
	options := sessions.ApplyOptions(opts)

	now := time.Now()
	stored := storedRecord{
		Data:      data,
		CreatedAt: now,
	}

	var redisTTL time.Duration
	if options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		stored.ExpiresAt = &expiresAt
		redisTTL = *options.TTL
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := s.client.Set(ctx, s.key(id), payload, redisTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session %s: %w", id, err)
	}
	return nil
}

// Delete removes the record for a session id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// Flush removes every record under the store's key prefix.
func (s *Store) Flush(ctx context.Context) error {
	keys, err := s.scanKeys(ctx, s.keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to scan session keys: %w", err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete session keys: %w", err)
		}
	}
	return nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id string) string { return s.keyPrefix + id }

// scanKeys uses Redis SCAN to find all keys matching a pattern.
func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		result := s.client.Scan(ctx, cursor, pattern, 100) // Scan in batches of 100
		if err := result.Err(); err != nil {
			return nil, err
		}

		batch, next := result.Val()
		keys = append(keys, batch...)
		cursor = next

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// Compile-time interface check
var _ sessions.Store = (*Store)(nil)
