// Package blockcache implements the fixed-capacity, strictly-LRU
// block cache that backs volume-stream reads. Grounded on the
// teacher's container/list + map LRU pattern
// (internal/semantic/lru_cache.go), adapted to the read/write/cached
// contract specified by original_source/src/read/cache.rs (itself
// built on a linked_hash_map — the safe, std-library realisation
// spec.md §9 calls for in place of that intrusive linked list).
package blockcache

import (
	"container/list"
	"sync"

	"github.com/standardbeagle/dupview/internal/sigchain"
)

// BlockSize is the fixed size of a duplicity block.
const BlockSize = 65536

// Id identifies one cached block: an entry plus a 0-based block
// index within it.
type Id struct {
	EntryId    sigchain.EntryId
	BlockIndex int
}

// Cache is a thread-safe, fixed-capacity LRU cache of block bytes.
type Cache struct {
	mu        sync.RWMutex
	maxBlocks int
	items     map[Id]*list.Element
	order     *list.List
}

type entry struct {
	id   Id
	data []byte
}

// New returns a cache holding at most maxBlocks blocks. maxBlocks <= 0
// is treated as 1 to keep the cache non-degenerate.
func New(maxBlocks int) *Cache {
	if maxBlocks <= 0 {
		maxBlocks = 1
	}
	return &Cache{
		maxBlocks: maxBlocks,
		items:     make(map[Id]*list.Element),
		order:     list.New(),
	}
}

// Read copies the cached block for id into out, promoting it to
// most-recently-used, and returns the number of bytes copied. It
// returns (0, false) if id is not cached.
func (c *Cache) Read(id Id, out []byte) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		return 0, false
	}
	c.order.MoveToFront(elem)
	n := copy(out, elem.Value.(*entry).data)
	return n, true
}

// Write inserts id -> data[:min(len(data), BlockSize)]. If id is
// already present, the call is a no-op: the first writer wins. If
// the cache is at capacity, the least-recently-used block is evicted
// to make room.
func (c *Cache) Write(id Id, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[id]; ok {
		return
	}

	if n := len(data); n > BlockSize {
		data = data[:BlockSize]
	}
	stored := make([]byte, len(data))
	copy(stored, data)

	if c.order.Len() >= c.maxBlocks {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).id)
		}
	}

	elem := c.order.PushFront(&entry{id: id, data: stored})
	c.items[id] = elem
}

// Cached reports whether id is present, without promoting it.
func (c *Cache) Cached(id Id) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[id]
	return ok
}

// Len returns the current number of cached blocks.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
