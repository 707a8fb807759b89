package model

import (
	"container/list"
	"sync"
)

// Name is a PDF name object. Equality is defined by the underlying
// string (Go string equality already gives us that); the cache below
// only exists to make repeated NameOf("Foo") calls cheap and to keep a
// permanent pool of the handful of names that appear in virtually every
// document.
type Name string

func (Name) Kind() Kind { return KindName }

func (n Name) String() string { return string(n) }

// permanentNames mirrors the small set of dictionary keys that show up
// in almost every PDF object: caching them unconditionally avoids
// repeated LRU churn for the common path.
var permanentNames = []string{
	"Type", "Subtype", "Pages", "Page", "Catalog", "Kids", "Count",
	"Length", "Filter", "Root", "Parent", "Resources", "Contents",
	"MediaBox",
}

// nameCache is an LRU cache of interned Name values, modeled on a
// doubly-linked-list LRU (container/list + map), the same shape used by
// object caches elsewhere in the retrieval pack.
type nameCache struct {
	mu        sync.Mutex
	capacity  int
	entries   map[string]*list.Element
	order     *list.List // front = most recently used
	permanent map[string]Name
}

func newNameCache(capacity int) *nameCache {
	c := &nameCache{
		capacity:  capacity,
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		permanent: make(map[string]Name, len(permanentNames)),
	}
	for _, s := range permanentNames {
		c.permanent[s] = Name(s)
	}
	return c
}

func (c *nameCache) intern(s string) Name {
	if n, ok := c.permanent[s]; ok {
		return n
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[s]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(Name)
	}

	n := Name(s)
	elem := c.order.PushFront(n)
	c.entries[s] = elem

	if c.capacity > 0 && c.order.Len() > c.capacity {
		back := c.order.Back()
		if back != nil {
			c.order.Remove(back)
			delete(c.entries, string(back.Value.(Name)))
		}
	}

	return n
}

// clear drops every non-permanent cached entry. Permanent names survive,
// per the package-level invariant that common names are always cheap.
func (c *nameCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

const (
	defaultNameCacheCapacity = 10000
	defaultRefCacheCapacity  = 20000
)

var globalNameCache = newNameCache(defaultNameCacheCapacity)

// NameOf interns s, returning the cached Name instance. It is safe for
// concurrent use.
func NameOf(s string) Name {
	return globalNameCache.intern(s)
}

// ClearNameCache drops every cached Name except the permanent pool.
func ClearNameCache() {
	globalNameCache.clear()
}

// refCache interns Ref values the same way nameCache interns Name
// values. Ref is already a small value type with structural equality,
// so "interning" here is purely a convenience and memory-pressure
// control, not a correctness requirement - two Ref{3,0} values compare
// equal whether or not either came through this cache.
type refCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[Ref]*list.Element
	order    *list.List
}

func newRefCache(capacity int) *refCache {
	return &refCache{
		capacity: capacity,
		entries:  make(map[Ref]*list.Element),
		order:    list.New(),
	}
}

func (c *refCache) intern(r Ref) Ref {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[r]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(Ref)
	}

	elem := c.order.PushFront(r)
	c.entries[r] = elem

	if c.capacity > 0 && c.order.Len() > c.capacity {
		back := c.order.Back()
		if back != nil {
			c.order.Remove(back)
			delete(c.entries, back.Value.(Ref))
		}
	}

	return r
}

func (c *refCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Ref]*list.Element)
	c.order.Init()
}

var globalRefCache = newRefCache(defaultRefCacheCapacity)

// RefOf interns r. Safe for concurrent use.
func RefOf(objectNumber uint32, generation uint16) Ref {
	return globalRefCache.intern(Ref{ObjectNumber: objectNumber, Generation: generation})
}

// ClearRefCache empties the Ref interning cache.
func ClearRefCache() {
	globalRefCache.clear()
}
