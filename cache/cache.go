// Package cache provides the bounded tile pyramid cache used by tile
// sources: a recency-ordered mapping from tile keys to tile resources
// with watermark-based eviction.
package cache

import (
	"container/list"
	"errors"
	"fmt"

	"github.com/eak1mov/go-mapview/tile"
)

var (
	ErrNotFound   = errors.New("mapview: tile not in cache")
	ErrEmptyCache = errors.New("mapview: tile cache is empty")
)

// Default eviction watermarks. Expire starts evicting above the high
// watermark and stops at the low one.
const (
	DefaultHighWater = 2048
	DefaultLowWater  = 1536
)

type entry struct {
	key  tile.Key
	tile *tile.Tile
}

// Cache maps tile keys to tile resources and keeps them in recency
// order: the front holds the most recently set or touched entry, the
// back the next eviction candidate.
//
// Reads do not affect recency. A renderer may look the same tile up once
// per covered grid cell without perturbing the eviction queue; recency
// moves only through Set and Touch.
//
// A Cache is confined to the goroutine driving the render loop and does
// no locking of its own.
type Cache struct {
	entries   map[tile.Key]*list.Element
	order     *list.List // front is the most recently touched entry
	highWater int
	lowWater  int
}

type Option func(*Cache)

// WithWatermarks sets the eviction hysteresis bounds: Expire evicts only
// once the size exceeds high, and then shrinks the cache down to low.
func WithWatermarks(high, low int) Option {
	return func(c *Cache) {
		c.highWater = high
		c.lowWater = low
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[tile.Key]*list.Element),
		order:     list.New(),
		highWater: DefaultHighWater,
		lowWater:  DefaultLowWater,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.lowWater > c.highWater {
		c.lowWater = c.highWater
	}
	return c
}

func (c *Cache) Len() int { return c.order.Len() }

func (c *Cache) Contains(key tile.Key) bool {
	_, ok := c.entries[key]
	return ok
}

// Set inserts or replaces the entry for key and makes it the most
// recently touched one.
func (c *Cache) Set(key tile.Key, t *tile.Tile) {
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*entry).tile = t
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(&entry{key: key, tile: t})
}

// Get returns the cached tile for key without changing its recency.
func (c *Cache) Get(key tile.Key) (*tile.Tile, error) {
	elem, ok := c.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return elem.Value.(*entry).tile, nil
}

// Touch marks key as most recently used and reports whether it was
// present.
func (c *Cache) Touch(key tile.Key) bool {
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.MoveToFront(elem)
	return true
}

// Delete removes the entry for key, reporting whether it was present.
func (c *Cache) Delete(key tile.Key) bool {
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.entries, key)
	return true
}

// PeekFirstKey returns the most recently touched key.
func (c *Cache) PeekFirstKey() (tile.Key, error) {
	if c.order.Len() == 0 {
		return "", ErrEmptyCache
	}
	return c.order.Front().Value.(*entry).key, nil
}

// PeekLastKey returns the least recently touched key, the next eviction
// candidate.
func (c *Cache) PeekLastKey() (tile.Key, error) {
	if c.order.Len() == 0 {
		return "", ErrEmptyCache
	}
	return c.order.Back().Value.(*entry).key, nil
}

// Keys returns the keys in recency order, most recently touched first.
func (c *Cache) Keys() []tile.Key {
	keys := make([]tile.Key, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry).key)
	}
	return keys
}

// Reserve raises the watermarks so at least n entries survive an expiry
// pass. Sources call it with the size of the pyramid a frame needs, so
// capacity follows the viewport instead of being tuned by hand.
func (c *Cache) Reserve(n int) {
	if n > c.highWater {
		c.highWater = n
	}
	if n > c.lowWater {
		c.lowWater = n
	}
}

// Prune walks from the least recently touched entry towards the front,
// evicting entries whose keys are not in active until the size drops to
// low. It does nothing unless the size exceeds high: the gap between the
// watermarks keeps a pyramid oscillating by a tile or two from churning
// the cache on every frame.
func (c *Cache) Prune(active map[tile.Key]struct{}, high, low int) {
	if c.order.Len() <= high {
		return
	}
	for elem := c.order.Back(); elem != nil && c.order.Len() > low; {
		prev := elem.Prev()
		ent := elem.Value.(*entry)
		if _, pinned := active[ent.key]; !pinned {
			c.order.Remove(elem)
			delete(c.entries, ent.key)
		}
		elem = prev
	}
}

// Expire runs one end-of-frame pruning pass with the configured
// watermarks. Callers must have issued every tile request of the frame
// before calling it, so nothing requested this frame can be evicted in
// the same frame.
func (c *Cache) Expire(active map[tile.Key]struct{}) {
	c.Prune(active, c.highWater, c.lowWater)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.entries = make(map[tile.Key]*list.Element)
	c.order.Init()
}
