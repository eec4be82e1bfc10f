// Package cache stores rendered chart images.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a rendered chart is kept.
const DefaultTTL = time.Hour

// Stats counts cache activity.
type Stats struct {
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
	Sets   int64  `json:"sets"`
	Errors int64  `json:"errors"`
	Kind   string `json:"kind"`
}

// ChartCache stores PNG bytes under a key. A miss is (nil, false, nil).
type ChartCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, png []byte) error
	Stats() Stats
}

type counters struct {
	hits, misses, sets, errors atomic.Int64
}

func (c *counters) snapshot(kind string) Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Sets: c.sets.Load(), Errors: c.errors.Load(), Kind: kind}
}

// Redis keeps charts in Redis under prefix with a TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	n      counters
}

// NewRedis wraps client. An empty prefix uses "macindex:chart:".
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "macindex:chart:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.n.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		r.n.errors.Add(1)
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	r.n.hits.Add(1)
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, png []byte) error {
	if err := r.client.Set(ctx, r.key(key), png, r.ttl).Err(); err != nil {
		r.n.errors.Add(1)
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	r.n.sets.Add(1)
	return nil
}

func (r *Redis) Stats() Stats { return r.n.snapshot("redis") }

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Memory is an in-process LRU with per-entry expiry.
type Memory struct {
	lru *expirable.LRU[string, []byte]
	n   counters
}

// NewMemory holds at most size charts for ttl each.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = 64
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := m.lru.Get(key)
	if !ok {
		m.n.misses.Add(1)
		return nil, false, nil
	}
	m.n.hits.Add(1)
	return b, true, nil
}

func (m *Memory) Set(_ context.Context, key string, png []byte) error {
	m.lru.Add(key, png)
	m.n.sets.Add(1)
	return nil
}

func (m *Memory) Stats() Stats { return m.n.snapshot("memory") }

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
func (Nop) Stats() Stats                                      { return Stats{Kind: "none"} }

// Key joins parts into a cache key.
func Key(parts ...string) string { return strings.Join(parts, "/") }

// Options selects and configures a ChartCache.
type Options struct {
	Backend  string // redis | memory | none
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	Size     int
}

// New builds the cache for opt. For redis it pings the server and reports the
// error so the caller can fall back.
func New(ctx context.Context, opt Options) (ChartCache, error) {
	switch strings.ToLower(strings.TrimSpace(opt.Backend)) {
	case "", "memory":
		return NewMemory(opt.Size, opt.TTL), nil
	case "none", "off":
		return Nop{}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: opt.Addr, Password: opt.Password, DB: opt.DB})
		rc := NewRedis(client, opt.Prefix, opt.TTL)
		if err := rc.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", opt.Addr, err)
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown chart cache backend %q", opt.Backend)
	}
}
