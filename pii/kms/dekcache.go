package kms

import (
	"container/list"
	"sync"
	"time"
)

// dekCache caches decrypted data keys with a TTL and bounded size,
// evicting the oldest entry when full. The whole cache is invalidated
// atomically on key rotation.
type dekCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxSize  int
	order    *list.List // front = oldest
	elements map[string]*list.Element
}

type dekEntry struct {
	key       string
	plaintext []byte
	expiresAt time.Time
}

func newDEKCache(ttl time.Duration, maxSize int) *dekCache {
	return &dekCache{
		ttl:      ttl,
		maxSize:  maxSize,
		order:    list.New(),
		elements: make(map[string]*list.Element),
	}
}

func (c *dekCache) get(key string, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.elements[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*dekEntry)
	if now.After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.elements, key)
		return nil, false
	}
	return entry.plaintext, true
}

func (c *dekCache) put(key string, plaintext []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[key]; ok {
		c.order.Remove(el)
		delete(c.elements, key)
	}

	for c.order.Len() >= c.maxSize && c.maxSize > 0 {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.elements, oldest.Value.(*dekEntry).key)
	}

	el := c.order.PushBack(&dekEntry{key: key, plaintext: plaintext, expiresAt: now.Add(c.ttl)})
	c.elements[key] = el
}

// invalidate clears the whole cache atomically, for callers reacting to a
// key rotation event.
func (c *dekCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.elements = make(map[string]*list.Element)
}

func (c *dekCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
