package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/factory"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
)

// DefaultRedisKey holds the document when no key is configured.
const DefaultRedisKey = "gems:scheduler:state"

// RedisConfig configures the redis backend.
type RedisConfig struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// RedisStore keeps the state document under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to url and verifies the connection.
func NewRedisStore(ctx context.Context, url, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}, nil
}

func newRedisFromConf(conf map[string]any) (Backend, error) {
	var c RedisConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	if c.URL == "" {
		return nil, errors.New("redis url required")
	}
	return NewRedisStore(context.Background(), c.URL, c.Key)
}

// Load reads the document. A missing key yields a fresh state.
func (r *RedisStore) Load(ctx context.Context) (scheduler.State, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return scheduler.NewState(), nil
	}
	if err != nil {
		return scheduler.State{}, fmt.Errorf("get %s: %w", r.key, err)
	}
	return scheduler.DecodeState(data)
}

// Save replaces the document with a single SET.
func (r *RedisStore) Save(ctx context.Context, st scheduler.State) error {
	data, err := scheduler.EncodeState(st)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", r.key, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisStore) Close() error { return r.client.Close() }
