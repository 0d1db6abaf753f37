// Package redis implements cache.Cache on Redis hashes, guarded by a
// circuit breaker.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"dti-backtester/internal/cache"
)

const (
	defaultPrefix       = "dti:"
	defaultMaxFailures  = 5
	defaultResetTimeout = 10 * time.Second

	fieldPayload  = "payload"
	fieldStoredAt = "stored_at"
	fieldSource   = "source"
)

// Config configures the Redis cache.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string        // key prefix, default "dti:"
	TTL      time.Duration // staleness threshold, default cache.DefaultTTL

	MaxFailures  int           // consecutive failures before the breaker opens
	ResetTimeout time.Duration // how long the breaker stays open
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock injects the clock used for StoredAt and staleness.
func WithClock(c cache.Clock) Option { return func(rc *Cache) { rc.clock = c } }

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option { return func(rc *Cache) { rc.log = l } }

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *CircuitBreaker) Option { return func(rc *Cache) { rc.cb = cb } }

// Cache stores each entry as a hash under {prefix}cache:{symbol_period_interval}
// and tracks live keys in the {prefix}cache:keys set.
type Cache struct {
	client *goredis.Client
	cb     *CircuitBreaker
	prefix string
	ttl    time.Duration
	clock  cache.Clock
	log    *zap.Logger
}

var _ cache.Cache = (*Cache)(nil)

// New connects to Redis, pings it and returns a Cache.
func New(cfg Config, opts ...Option) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	c := NewFromClient(client, cfg, opts...)
	c.log.Info("redis cache connected", zap.String("addr", cfg.Addr))
	return c, nil
}

// NewFromClient wraps an existing client without pinging it.
func NewFromClient(client *goredis.Client, cfg Config, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		clock:  cache.SystemClock,
		log:    zap.NewNop(),
	}
	if c.prefix == "" {
		c.prefix = defaultPrefix
	}
	if c.ttl <= 0 {
		c.ttl = cache.DefaultTTL
	}
	for _, o := range opts {
		o(c)
	}
	if c.cb == nil {
		maxFailures, reset := cfg.MaxFailures, cfg.ResetTimeout
		if maxFailures <= 0 {
			maxFailures = defaultMaxFailures
		}
		if reset <= 0 {
			reset = defaultResetTimeout
		}
		c.cb = NewCircuitBreaker(maxFailures, reset, c.clock)
	}
	return c
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// Breaker returns the circuit breaker guarding this cache.
func (c *Cache) Breaker() *CircuitBreaker { return c.cb }

// Close closes the client.
func (c *Cache) Close() error { return c.client.Close() }

func (c *Cache) entryKey(k cache.Key) string { return c.prefix + "cache:" + k.String() }
func (c *Cache) indexKey() string { return c.prefix + "cache:keys" }

func (c *Cache) Get(ctx context.Context, key cache.Key) (cache.Entry, bool, error) {
	var fields map[string]string
	err := c.cb.Execute(func() error {
		var err error
		fields, err = c.client.HGetAll(ctx, c.entryKey(key)).Result()
		return err
	})
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return cache.Entry{}, false, nil
	}

	ms, err := strconv.ParseInt(fields[fieldStoredAt], 10, 64)
	if err != nil {
		c.log.Warn("corrupt cache entry", zap.String("key", key.String()), zap.Error(err))
		return cache.Entry{}, false, nil
	}
	storedAt := time.UnixMilli(ms).UTC()
	return cache.Entry{
		Payload:  []byte(fields[fieldPayload]),
		StoredAt: storedAt,
		Source:   cache.ParseSource(fields[fieldSource]),
		Stale:    cache.IsStale(storedAt, c.clock.Now(), c.ttl),
	}, true, nil
}

func (c *Cache) Set(ctx context.Context, key cache.Key, payload []byte, src cache.Source) error {
	k := c.entryKey(key)
	err := c.cb.Execute(func() error {
		_, err := c.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.HSet(ctx, k,
				fieldPayload, payload,
				fieldStoredAt, c.clock.Now().UnixMilli(),
				fieldSource, string(cache.ParseSource(string(src))),
			)
			p.SAdd(ctx, c.indexKey(), k)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key cache.Key) error {
	k := c.entryKey(key)
	err := c.cb.Execute(func() error {
		_, err := c.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Del(ctx, k)
			p.SRem(ctx, c.indexKey(), k)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Clear(ctx context.Context) error {
	err := c.cb.Execute(func() error {
		keys, err := c.client.SMembers(ctx, c.indexKey()).Result()
		if err != nil {
			return err
		}
		return c.client.Del(ctx, append(keys, c.indexKey())...).Err()
	})
	if err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	c.log.Info("redis cache cleared")
	return nil
}

func (c *Cache) Stats(ctx context.Context) (cache.Stats, error) {
	st := cache.Stats{BySource: make(map[cache.Source]int)}
	err := c.cb.Execute(func() error {
		keys, err := c.client.SMembers(ctx, c.indexKey()).Result()
		if err != nil {
			return err
		}
		cmds := make([]*goredis.StringCmd, len(keys))
		_, err = c.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
			for i, k := range keys {
				cmds[i] = p.HGet(ctx, k, fieldSource)
			}
			return nil
		})
		if err != nil && err != goredis.Nil {
			return err
		}
		for _, cmd := range cmds {
			src, err := cmd.Result()
			if err == goredis.Nil {
				continue // expired or deleted outside the cache
			}
			if err != nil {
				return err
			}
			st.Total++
			st.BySource[cache.ParseSource(src)]++
		}
		return nil
	})
	if err != nil {
		return cache.Stats{}, fmt.Errorf("redis stats: %w", err)
	}
	return st, nil
}
