package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/lotas/tabecho/internal/applog"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis settings backend.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// RedisProvider stores the settings record as JSON under StorageKey, the way
// the extension keeps it in its local key/value storage.
type RedisProvider struct {
	client *redis.Client
	key    string
}

// NewRedisProvider wraps an existing client.
func NewRedisProvider(client *redis.Client) *RedisProvider {
	return &RedisProvider{client: client, key: StorageKey}
}

// ConnectRedis opens a client and verifies it with a ping.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	applog.Info("settings.redis.connected", "addr", opts.Addr)
	return client, nil
}

func (p *RedisProvider) Get(ctx context.Context) (Settings, error) {
	return p.read(ctx, p.client)
}

func (p *RedisProvider) Update(ctx context.Context, patch Patch) error {
	return p.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := p.read(ctx, tx)
		if err != nil {
			return err
		}
		next := current.Apply(patch)
		if err := next.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, p.key, data, 0)
			return nil
		})
		return err
	}, p.key)
}

// getter is the part of *redis.Client and *redis.Tx that read needs.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (p *RedisProvider) read(ctx context.Context, c getter) (Settings, error) {
	s := Defaults()
	data, err := c.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s, nil
		}
		return s, fmt.Errorf("failed to get settings: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Defaults(), fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return s.normalize(), nil
}
