// Package redis stores engine snapshots as JSON documents in Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store"
)

// DefaultKeyPrefix namespaces snapshot keys.
const DefaultKeyPrefix = "tickledger:snapshot:"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Config configures the Redis connection.
type Config struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	KeyPrefix  string
}

// Store keeps one JSON snapshot per instance under KeyPrefix+instanceID.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("tickledger/redis: invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tickledger/redis: failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client. An empty prefix selects
// DefaultKeyPrefix.
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(instanceID id.InstanceID) string {
	return s.prefix + instanceID.String()
}

func (s *Store) SaveSnapshot(ctx context.Context, snap *store.Snapshot) error {
	if snap.InstanceID.IsNil() {
		return tickledger.ErrInvalidInput
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("tickledger/redis: failed to marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, s.key(snap.InstanceID), data, 0).Err(); err != nil {
		return fmt.Errorf("tickledger/redis: save snapshot: %w", err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, instanceID id.InstanceID) (*store.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(instanceID)).Result()
	if err == redis.Nil {
		return nil, tickledger.ErrSnapshotNotFound
	} else if err != nil {
		return nil, fmt.Errorf("tickledger/redis: redis get failed: %w", err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("tickledger/redis: failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, instanceID id.InstanceID) error {
	n, err := s.client.Del(ctx, s.key(instanceID)).Result()
	if err != nil {
		return fmt.Errorf("tickledger/redis: delete snapshot: %w", err)
	}
	if n == 0 {
		return tickledger.ErrSnapshotNotFound
	}
	return nil
}

func (s *Store) Migrate(_ context.Context) error {
	return nil // Schemaless
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
