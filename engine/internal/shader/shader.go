// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package shader caches compiled program variants.
// Programs are keyed by a 32-bit render-state hash that
// combines the pass key with the material variant.
package shader

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Hash combines v into a single render-state hash.
// The result is never zero, so zero can be used to mean
// "no program bound".
func Hash(v ...uint32) uint32 {
	var d xxhash.Digest
	d.Reset()
	var b [4]byte
	for _, x := range v {
		binary.LittleEndian.PutUint32(b[:], x)
		d.Write(b[:])
	}
	h := d.Sum64()
	if h := uint32(h ^ h>>32); h != 0 {
		return h
	}
	return 1
}

// Cache is a fixed-size cache of programs.
// Least recently used entries are evicted first.
type Cache[V any] struct {
	c *lru.Cache[uint32, V]
}

// New creates a new Cache that holds up to n entries.
// onEvict, if not nil, is called for every evicted
// entry (e.g., to destroy the program).
func New[V any](n int, onEvict func(hash uint32, v V)) (*Cache[V], error) {
	var (
		c   *lru.Cache[uint32, V]
		err error
	)
	if onEvict != nil {
		c, err = lru.NewWithEvict[uint32, V](n, onEvict)
	} else {
		c, err = lru.New[uint32, V](n)
	}
	if err != nil {
		return nil, err
	}
	return &Cache[V]{c}, nil
}

// Get returns the program identified by hash.
func (c *Cache[V]) Get(hash uint32) (v V, ok bool) { return c.c.Get(hash) }

// GetOrCreate returns the program identified by hash,
// calling create to make it if it is not in the cache.
// Errors from create are returned and nothing is cached.
func (c *Cache[V]) GetOrCreate(hash uint32, create func() (V, error)) (V, error) {
	if v, ok := c.c.Get(hash); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return v, err
	}
	c.c.Add(hash, v)
	return v, nil
}

// Len returns the number of cached programs.
func (c *Cache[V]) Len() int { return c.c.Len() }

// Purge removes every program from the cache.
func (c *Cache[V]) Purge() { c.c.Purge() }
