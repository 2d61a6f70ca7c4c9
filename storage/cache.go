package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/LucasAro/JuscashCase/domain"
)

type backend interface {
	FetchPage(ctx context.Context, f domain.Filter, c domain.Cursor) (domain.Page, error)
	FetchByID(ctx context.Context, id int64) (domain.Publication, error)
	UpdateStatus(ctx context.Context, id int64, to domain.Status) (domain.Publication, domain.Status, error)
	InsertPublication(ctx context.Context, p domain.Publication) (domain.Publication, error)
}

const boardVersionKey = "board:version"

// Cache wraps a Store with Redis-backed caching for board pages and single
// records. Any write bumps the board version so older pages stop matching.
type Cache struct {
	*Store
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Store); ok {
		c.Store = s
	}
	return c
}

func (c *Cache) FetchPage(ctx context.Context, f domain.Filter, cur domain.Cursor) (domain.Page, error) {
	f = f.Normalize()
	key, ok := c.pageKey(ctx, f, cur)
	if ok {
		var page domain.Page
		if c.load(ctx, key, &page) {
			return page, nil
		}
	}

	page, err := c.base.FetchPage(ctx, f, cur)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, key, page)
	}
	return page, nil
}

func (c *Cache) FetchByID(ctx context.Context, id int64) (domain.Publication, error) {
	var p domain.Publication
	if c.load(ctx, recordCacheKey(id), &p) {
		return p, nil
	}

	p, err := c.base.FetchByID(ctx, id)
	if err != nil {
		return domain.Publication{}, err
	}
	c.store(ctx, recordCacheKey(id), p)
	return p, nil
}

func (c *Cache) UpdateStatus(ctx context.Context, id int64, to domain.Status) (domain.Publication, domain.Status, error) {
	p, from, err := c.base.UpdateStatus(ctx, id, to)
	if err != nil {
		return domain.Publication{}, from, err
	}
	if from != to {
		c.evict(ctx, id)
	}
	return p, from, nil
}

func (c *Cache) InsertPublication(ctx context.Context, p domain.Publication) (domain.Publication, error) {
	out, err := c.base.InsertPublication(ctx, p)
	if err != nil {
		return domain.Publication{}, err
	}
	c.evict(ctx, out.ID)
	return out, nil
}

func (c *Cache) pageKey(ctx context.Context, f domain.Filter, cur domain.Cursor) (string, bool) {
	if c.redis == nil {
		return "", false
	}
	version, err := c.redis.Get(ctx, boardVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false
	}
	sum := sha1.Sum([]byte(f.Key() + "#" + cur.Key()))
	return "board:v" + strconv.FormatInt(version, 10) + ":" + hex.EncodeToString(sum[:]), true
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.ConfigStd.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, id int64) {
	if c.redis == nil {
		return
	}
	pipe := c.redis.TxPipeline()
	pipe.Incr(ctx, boardVersionKey)
	pipe.Del(ctx, recordCacheKey(id))
	_, _ = pipe.Exec(ctx)
}

func recordCacheKey(id int64) string {
	return "record:" + strconv.FormatInt(id, 10)
}
