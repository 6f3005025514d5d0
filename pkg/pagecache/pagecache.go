// pkg/pagecache/pagecache.go
//
// Package pagecache implements the block-level page cache consulted by the
// table file manager: get/set keyed by (table name, block number), with
// bounded capacity and container/list-backed LRU eviction.
package pagecache

import (
	"container/list"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"storedb/pkg/block"
)

// DefaultCapacity is the number of blocks kept resident when no explicit
// capacity is configured.
const DefaultCapacity = 256

var (
	hits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storedb_page_cache_hits_total",
		Help: "Number of page cache lookups satisfied without touching disk.",
	})
	misses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storedb_page_cache_misses_total",
		Help: "Number of page cache lookups that required a disk read.",
	})
)

func init() {
	prometheus.MustRegister(hits, misses)
}

type key struct {
	table string
	block uint32
}

type entry struct {
	key     key
	blk     *block.Block
	element *list.Element
}

// Cache is an LRU page cache keyed by (table, block number).
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[key]*entry
	order    *list.List // front = most recently used
}

// New returns a Cache bounded to capacity resident blocks.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[key]*entry),
		order:    list.New(),
	}
}

// Get returns the cached block for (table, blockNum), if resident.
func (c *Cache) Get(table string, blockNum uint32) (*block.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{table: table, block: blockNum}
	e, ok := c.entries[k]
	if !ok {
		misses.Inc()
		return nil, false
	}
	c.order.MoveToFront(e.element)
	hits.Inc()
	return e.blk, true
}

// Set inserts or replaces the cached block for (table, blockNum), evicting
// the least-recently-used entry if the cache is at capacity.
func (c *Cache) Set(table string, blockNum uint32, b *block.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{table: table, block: blockNum}
	if e, ok := c.entries[k]; ok {
		e.blk = b
		c.order.MoveToFront(e.element)
		return
	}

	e := &entry{key: k, blk: b}
	e.element = c.order.PushFront(e)
	c.entries[k] = e

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

// Invalidate drops every cached block for table, used when a table is
// deleted or compacted.
func (c *Cache) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if k.table == table {
			c.order.Remove(e.element)
			delete(c.entries, k)
		}
	}
}
