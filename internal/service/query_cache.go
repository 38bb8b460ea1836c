package service

import (
	"context"
	"encoding/json"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/eventbus"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type cacheEntry struct {
	resource   string
	payload    interface{}
	insertedAt time.Time
	seq        uint64
}

type invalidation struct {
	Resource string `json:"resource"`
	Origin   string `json:"origin"`
}

// QueryCache 服务端读缓存：TTL 过期 + 超出容量时按插入时间淘汰最旧条目。
// 写入某类资源时同步清空该资源的全部缓存
type QueryCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	maxEntries int
	seq        uint64
	now        func() time.Time

	bus    eventbus.Bus
	origin string
	unsub  func()
}

func NewQueryCache(ttl time.Duration, maxEntries int) *QueryCache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &QueryCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		origin:     uuid.NewString(),
	}
}

// Signature 查询签名：逻辑查询 + 分页
func Signature(query string, page, limit int) string {
	return fmt.Sprintf("%s|page=%d|limit=%d", query, page, limit)
}

func cacheKey(resource, signature string) string {
	return resource + "::" + signature
}

// AttachBus 通过事件总线接收其他实例的失效通知
func (c *QueryCache) AttachBus(bus eventbus.Bus) {
	c.bus = bus
	c.unsub = bus.Subscribe(util.TopicCacheInvalidate, func(payload []byte) {
		var msg invalidation
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Log.Warn("bad cache invalidation payload", zap.Error(err))
			return
		}
		if msg.Origin == c.origin {
			return
		}
		c.clearResource(msg.Resource)
	})
}

// Configure 配置热更新时调整 TTL 与容量
func (c *QueryCache) Configure(ttl time.Duration, maxEntries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
	if maxEntries > 0 {
		c.maxEntries = maxEntries
	}
	c.evictLocked()
}

func (c *QueryCache) Get(resource, signature string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(resource, signature)
	e, ok := c.entries[key]
	if !ok {
		monitoring.CacheLookups.WithLabelValues(resource, "miss").Inc()
		return nil, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		monitoring.CacheLookups.WithLabelValues(resource, "expired").Inc()
		return nil, false
	}
	monitoring.CacheLookups.WithLabelValues(resource, "hit").Inc()
	return e.payload, true
}

func (c *QueryCache) Set(resource, signature string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.entries[cacheKey(resource, signature)] = &cacheEntry{
		resource:   resource,
		payload:    payload,
		insertedAt: c.now(),
		seq:        c.seq,
	}
	c.evictLocked()
}

func (c *QueryCache) expired(e *cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(e.insertedAt) >= c.ttl
}

// evictLocked 先清理过期条目，仍超出容量时淘汰最早插入的条目
func (c *QueryCache) evictLocked() {
	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
			monitoring.CacheEvictions.WithLabelValues("expired").Inc()
		}
	}
	overflow := len(c.entries) - c.maxEntries
	if overflow <= 0 {
		return
	}

	type aged struct {
		key string
		seq uint64
	}
	all := make([]aged, 0, len(c.entries))
	for key, e := range c.entries {
		all = append(all, aged{key: key, seq: e.seq})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	for _, a := range all[:overflow] {
		delete(c.entries, a.key)
		monitoring.CacheEvictions.WithLabelValues("capacity").Inc()
	}
}

// InvalidateResource 同步清空本实例缓存，并通知其他实例
func (c *QueryCache) InvalidateResource(ctx context.Context, resource string) {
	c.clearResource(resource)

	if c.bus == nil {
		return
	}
	raw, _ := json.Marshal(invalidation{Resource: resource, Origin: c.origin})
	if err := c.bus.Publish(ctx, util.TopicCacheInvalidate, raw); err != nil {
		logger.Log.Warn("broadcast cache invalidation failed", zap.String("resource", resource), zap.Error(err))
	}
}

func (c *QueryCache) clearResource(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.resource == resource {
			delete(c.entries, key)
		}
	}
	monitoring.CacheEvictions.WithLabelValues("invalidate").Inc()
}

func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache) Close() {
	if c.unsub != nil {
		c.unsub()
	}
}
