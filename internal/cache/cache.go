// internal/cache/cache.go
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/suimax/sui-bot/internal/events"
	"github.com/suimax/sui-bot/internal/metrics"
)

// Namespace группирует ключи кеша по роду данных; у каждого namespace свой TTL
// по умолчанию, отражающий допустимую несвежесть, а не требование корректности.
type Namespace string

const (
	NSPool        Namespace = "pool"
	NSPrice       Namespace = "price"
	NSLiquidity   Namespace = "liquidity"
	NSBalance     Namespace = "balance"
	NSOpportunity Namespace = "opportunity"
)

// DefaultTTLs — TTL по умолчанию для каждого namespace.
func DefaultTTLs() map[Namespace]time.Duration {
	return map[Namespace]time.Duration{
		NSPool:        60 * time.Second,
		NSPrice:       30 * time.Second,
		NSLiquidity:   120 * time.Second,
		NSBalance:     300 * time.Second,
		NSOpportunity: 10 * time.Second,
	}
}

type entry struct {
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) expiredAt(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

// Cache — TTL-кеш с коллапсом конкурентных промахов по одному ключу.
// Истёкшие записи логически отсутствуют: ни при каком переплетении вызовов
// они не наблюдаются как попадание.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttls    map[Namespace]time.Duration

	group   singleflight.Group
	logger  *zap.Logger
	sink    events.Sink
	metrics *metrics.Collector
	now     func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option настраивает Cache.
type Option func(*Cache)

// WithTTLOverrides переопределяет TTL отдельных namespace (из конфигурации).
func WithTTLOverrides(overrides map[Namespace]time.Duration) Option {
	return func(c *Cache) {
		for ns, ttl := range overrides {
			if ttl > 0 {
				c.ttls[ns] = ttl
			}
		}
	}
}

// WithSink задаёт sink для событий cache_lookup.
func WithSink(s events.Sink) Option {
	return func(c *Cache) { c.sink = s }
}

// WithMetrics задаёт коллектор метрик.
func WithMetrics(mc *metrics.Collector) Option {
	return func(c *Cache) { c.metrics = mc }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New создаёт кеш.
func New(logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttls:    DefaultTTLs(),
		logger:  logger.Named("cache"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func key(ns Namespace, k string) string {
	return string(ns) + ":" + k
}

// TTL возвращает действующий TTL для namespace.
func (c *Cache) TTL(ns Namespace) time.Duration {
	if ttl, ok := c.ttls[ns]; ok {
		return ttl
	}
	return 60 * time.Second
}

// lookup возвращает живое значение либо сообщает промах,
// лениво удаляя истёкшую запись.
func (c *Cache) lookup(ns Namespace, k string) (interface{}, bool) {
	full := key(ns, k)

	c.mu.RLock()
	e, ok := c.entries[full]
	c.mu.RUnlock()

	if ok && !e.expiredAt(c.now()) {
		return e.value, true
	}
	if ok {
		c.mu.Lock()
		if cur, still := c.entries[full]; still && cur.expiredAt(c.now()) {
			delete(c.entries, full)
		}
		c.mu.Unlock()
	}
	return nil, false
}

func (c *Cache) store(ns Namespace, k string, v interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key(ns, k)] = entry{value: v, storedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}

func (c *Cache) observe(ns Namespace, k string, hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.metrics.RecordCacheLookup(string(ns), hit)
	events.Emit(c.sink, events.CacheLookup, events.Fields{
		"namespace": string(ns),
		"key":       k,
		"hit":       hit,
	})
}

// GetOrPopulate возвращает живое значение из кеша либо вызывает fetch,
// сохраняет результат с заданным TTL (0 — TTL namespace по умолчанию) и
// возвращает его. Конкурентные промахи по одному ключу коллапсируются в один
// fetch; корректность от коллапса не зависит — только экономия запросов.
func GetOrPopulate[T any](ctx context.Context, c *Cache, ns Namespace, k string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if ttl <= 0 {
		ttl = c.TTL(ns)
	}

	if v, ok := c.lookup(ns, k); ok {
		c.observe(ns, k, true)
		typed, ok := v.(T)
		if !ok {
			return zero, fmt.Errorf("cache: namespace %s key %s holds %T", ns, k, v)
		}
		return typed, nil
	}
	c.observe(ns, k, false)

	v, err, _ := c.group.Do(key(ns, k), func() (interface{}, error) {
		// Повторная проверка: пока мы ждали очередь singleflight,
		// значение мог положить другой вызов.
		if v, ok := c.lookup(ns, k); ok {
			return v, nil
		}
		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ns, k, fresh, ttl)
		return fresh, nil
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: namespace %s key %s holds %T", ns, k, v)
	}
	return typed, nil
}

// Invalidate немедленно удаляет запись.
func (c *Cache) Invalidate(ns Namespace, k string) {
	c.mu.Lock()
	delete(c.entries, key(ns, k))
	c.mu.Unlock()
}

// InvalidateNamespace немедленно удаляет все записи namespace.
func (c *Cache) InvalidateNamespace(ns Namespace) {
	prefix := string(ns) + ":"
	c.mu.Lock()
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// InvalidatePool сбрасывает все данные, производные от одного пула.
func (c *Cache) InvalidatePool(poolID string) {
	c.Invalidate(NSPool, poolID)
	c.Invalidate(NSPrice, poolID)
	c.Invalidate(NSLiquidity, poolID)
}

// Cleanup удаляет истёкшие записи; возвращает число удалённых.
// Вызывается периодически владельцем кеша.
func (c *Cache) Cleanup() int {
	now := c.now()
	removed := 0
	c.mu.Lock()
	for k, e := range c.entries {
		if e.expiredAt(now) {
			delete(c.entries, k)
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("Очистка истёкших записей кеша",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
	return removed
}

// Metrics — снимок статистики кеша.
type Metrics struct {
	Hits    uint64
	Misses  uint64
	Keys    int
	HitRate float64 // 0 при отсутствии обращений, не NaN
}

// Stats возвращает статистику: живые ключи и hit rate.
func (c *Cache) Stats() Metrics {
	now := c.now()
	c.mu.RLock()
	keys := 0
	for _, e := range c.entries {
		if !e.expiredAt(now) {
			keys++
		}
	}
	c.mu.RUnlock()

	m := Metrics{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Keys:   keys,
	}
	if total := m.Hits + m.Misses; total > 0 {
		m.HitRate = float64(m.Hits) / float64(total)
	}
	return m
}
