package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Fingerprint identifies the current content of a source without reading it:
// path, size and modification time for local files, the ETag for S3 objects.
func Fingerprint(ctx context.Context, src Source) (string, error) {
	if src.isS3() {
		etag, err := s3ETag(ctx, src)
		if err != nil {
			return "", err
		}
		return s3Fingerprint(src, etag), nil
	}
	abs, err := filepath.Abs(src.Path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	return hashKey(fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())), nil
}

func s3Fingerprint(src Source, etag string) string {
	return hashKey(src.Path + "|" + etag)
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

// CacheStats counts cache activity.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Loads  int64 `json:"loads"`
}

// Cache is a read-through Dataset cache keyed by source fingerprint. A changed
// source gets a new fingerprint and therefore a fresh load; concurrent callers
// asking for the same fingerprint share a single load.
type Cache struct {
	entries *lru.Cache[string, *Dataset]
	group   singleflight.Group

	mu     sync.Mutex
	latest map[string]string // source key -> cache key of the newest load

	load        func(context.Context, Source) (*Dataset, error)
	fingerprint func(context.Context, Source) (string, error)

	hits, misses, loads atomic.Int64
}

// NewCache creates a cache holding at most size datasets.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 1
	}
	entries, err := lru.New[string, *Dataset](size)
	if err != nil {
		return nil, fmt.Errorf("create dataset cache: %w", err)
	}
	return &Cache{
		entries:     entries,
		latest:      map[string]string{},
		load:        Load,
		fingerprint: Fingerprint,
	}, nil
}

// Load returns the cached dataset for the source's current fingerprint,
// loading it at most once.
func (c *Cache) Load(ctx context.Context, src Source) (*Dataset, error) {
	fp, err := c.fingerprint(ctx, src)
	if err != nil {
		return nil, formatErr(src.Path, "unreadable source", err)
	}
	skey := sourceKey(src)
	key := skey + "#" + fp
	if ds, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return ds, nil
	}
	c.misses.Add(1)
	// The shared load ignores the first caller's cancellation; each caller
	// waits on its own ctx.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if ds, ok := c.entries.Get(key); ok {
			return ds, nil
		}
		ds, err := c.load(loadCtx, src)
		if err != nil {
			return nil, err
		}
		stored := key
		switch {
		case ds.Fingerprint == "":
			ds.Fingerprint = fp
		case ds.Fingerprint != fp:
			// The object changed between the fingerprint probe and the read;
			// file it under what was actually read.
			stored = skey + "#" + ds.Fingerprint
		}
		c.entries.Add(stored, ds)
		c.loads.Add(1)
		c.replace(skey, stored)
		return ds, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Dataset), nil
	}
}

// replace records key as the newest entry for skey and evicts the previous one.
func (c *Cache) replace(skey, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.latest[skey]; ok && old != key {
		c.entries.Remove(old)
	}
	c.latest[skey] = key
}

// Purge drops every cached dataset.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.latest = map[string]string{}
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Loads: c.loads.Load()}
}

func sourceKey(src Source) string {
	return fmt.Sprintf("%s|%s|%q|%s|%s|%+v", src.Path, src.Format, src.Delimiter, src.Sheet, src.Table, src.Columns.withDefaults())
}
