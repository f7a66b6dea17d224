package interpreter

import (
	"container/list"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yisiliu2005/masiv2025/internal/filter"
	"github.com/yisiliu2005/masiv2025/internal/logger"
	"github.com/yisiliu2005/masiv2025/internal/metrics"
)

const cachePrefix = "interp:v2:"

// 文档注释：本地 LRU 缓存（规范化查询文本为键）
// 背景：仪表盘上的示例查询会被反复点击，进程内缓存避免重复调用 LLM；TTL 可调。
type lru struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
}

type entry struct {
	k   string
	v   Answer
	exp time.Time
}

func newLRU(capacity int, ttl time.Duration) *lru {
	if capacity <= 0 {
		capacity = 1024
	}
	return &lru{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *lru) get(k string) (Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dict[k]
	if !ok {
		return Answer{}, false
	}
	it := e.Value.(entry)
	if time.Now().Before(it.exp) {
		c.lst.MoveToFront(e)
		return it.v, true
	}
	c.lst.Remove(e)
	delete(c.dict, k)
	return Answer{}, false
}

func (c *lru) set(k string, v Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := entry{k: k, v: v, exp: time.Now().Add(c.ttl)}
	if e, ok := c.dict[k]; ok {
		e.Value = it
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(it)
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(entry).k)
		c.lst.Remove(back)
	}
}

// 文档注释：带缓存的解释器
// 背景：优先读 Redis（多实例共享），未配置或出错时退回进程内 LRU；两层都未命中才调用内部解释器。
// 约束：只缓存首选解释器给出且能通过 filter.Parse 的候选条件，兜底解释器的答案与错误回复都不会被固化；rdb 可为 nil。
type Cached struct {
	inner   Interpreter
	primary string
	rdb     *redis.Client
	local   *lru
	ttl     time.Duration
}

// NewCached：ttl<=0 时默认 1 小时；inner 为 Chain 时首选解释器为链上第一个
func NewCached(inner Interpreter, rdb *redis.Client, ttl time.Duration, capacity int) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	primary := inner.Name()
	if ch, ok := inner.(Chain); ok {
		primary = ch.Primary()
	}
	return &Cached{inner: inner, primary: primary, rdb: rdb, local: newLRU(capacity, ttl), ttl: ttl}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Interpret(ctx context.Context, text string) (filter.Candidate, error) {
	a, err := c.Resolve(ctx, text)
	return a.Candidate, err
}

func (c *Cached) Resolve(ctx context.Context, text string) (Answer, error) {
	k := CacheKey(text)
	l := logger.For("interpreter")
	if c.rdb != nil {
		b, err := c.rdb.Get(ctx, k).Bytes()
		switch {
		case err == nil:
			var a Answer
			if json.Unmarshal(b, &a) == nil {
				metrics.InterpretCacheHits.WithLabelValues("redis").Inc()
				a.Cached = true
				return a, nil
			}
		case !errors.Is(err, redis.Nil):
			l.Debug("interp_cache_redis_error", "err", err)
		}
	}
	if a, ok := c.local.get(k); ok {
		metrics.InterpretCacheHits.WithLabelValues("memory").Inc()
		a.Cached = true
		return a, nil
	}
	metrics.InterpretCacheMisses.Inc()

	a, err := Resolve(ctx, c.inner, text)
	if err != nil {
		return a, err
	}
	if a.By != c.primary {
		l.Debug("interp_cache_skip_fallback", "by", a.By, "primary", c.primary)
		return a, nil
	}
	if _, perr := filter.Parse(a.Candidate); perr != nil {
		return a, nil
	}
	c.local.set(k, a)
	if c.rdb != nil {
		if b, err := json.Marshal(a); err == nil {
			if err := c.rdb.Set(ctx, k, b, c.ttl).Err(); err != nil {
				l.Debug("interp_cache_redis_set_error", "err", err)
			}
		}
	}
	return a, nil
}

// CacheKey：大小写与空白规范化后的查询文本摘要
func CacheKey(text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha1.Sum([]byte(norm))
	return cachePrefix + hex.EncodeToString(sum[:])
}
