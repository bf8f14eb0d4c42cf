package pipeline

import (
	"container/list"
	"context"
	"sync"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
	"github.com/couchcryptid/capacity-forecast-etl/internal/observability"
)

// CachedTransformer wraps a Transformer with an in-memory LRU cache keyed by
// report identifier. Identifiers name one immutable report version, so a hit
// never needs re-validation.
type CachedTransformer struct {
	inner   Transformer
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedTransformer creates a cache decorator around a transformer.
func NewCachedTransformer(inner Transformer, maxEntries int, metrics *observability.Metrics) *CachedTransformer {
	return &CachedTransformer{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedTransformer) Transform(ctx context.Context, doc domain.RawReportDocument) (domain.ReportWindow, error) {
	key := doc.Ref.ID
	if w, ok := c.cache.get(key); ok {
		c.metrics.ParseCache.WithLabelValues("hit").Inc()
		return w, nil
	}
	c.metrics.ParseCache.WithLabelValues("miss").Inc()

	w, err := c.inner.Transform(ctx, doc)
	if err != nil {
		// Failures are not cached so a corrected upload under the same name is retried.
		return w, err
	}
	c.cache.put(key, w)
	return w, nil
}

// lruCache bounds the parsed windows kept across runs. The list front is the
// most recently used entry.
type lruCache struct {
	mu    sync.Mutex
	limit int
	order *list.List
	index map[string]*list.Element
}

type cachedWindow struct {
	id     string
	window domain.ReportWindow
}

func newLRUCache(limit int) *lruCache {
	return &lruCache{
		limit: max(limit, 1),
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *lruCache) get(id string) (domain.ReportWindow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[id]
	if !ok {
		return domain.ReportWindow{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cachedWindow).window, true
}

func (c *lruCache) put(id string, w domain.ReportWindow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[id]; ok {
		el.Value.(*cachedWindow).window = w
		c.order.MoveToFront(el)
		return
	}
	c.index[id] = c.order.PushFront(&cachedWindow{id: id, window: w})
	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cachedWindow).id)
	}
}
