// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package bitm defines a bitmap type useful for resource management
// (e.g., buffer pools and free slot lists).
package bitm

import (
	"math/bits"
	"unsafe"
)

// Uint represents the granularity of a bitmap.
type Uint interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Bitm is a growable bitmap with custom granularity.
// The zero value is an empty bitmap ready to use.
type Bitm[T Uint] struct {
	m   []T
	rem int
}

// nbit returns the number of bits in T.
func (m *Bitm[T]) nbit() int { return int(unsafe.Sizeof(T(0))) * 8 }

// Len returns the number of bits in the map.
func (m *Bitm[_]) Len() int { return len(m.m) * m.nbit() }

// Rem returns the number of unset bits in the map.
func (m *Bitm[_]) Rem() int { return m.rem }

// Grow adds nplus words to the map.
// It returns the index of the first new bit.
func (m *Bitm[T]) Grow(nplus int) int {
	if nplus <= 0 {
		panic("bitm.Bitm.Grow: nplus <= 0")
	}
	idx := m.Len()
	m.m = append(m.m, make([]T, nplus)...)
	m.rem += nplus * m.nbit()
	return idx
}

// Set sets bit idx.
func (m *Bitm[T]) Set(idx int) {
	n := m.nbit()
	w, b := idx/n, T(1)<<(idx%n)
	if m.m[w]&b == 0 {
		m.m[w] |= b
		m.rem--
	}
}

// Unset unsets bit idx.
func (m *Bitm[T]) Unset(idx int) {
	n := m.nbit()
	w, b := idx/n, T(1)<<(idx%n)
	if m.m[w]&b != 0 {
		m.m[w] &^= b
		m.rem++
	}
}

// IsSet returns whether bit idx is set.
func (m *Bitm[T]) IsSet(idx int) bool {
	n := m.nbit()
	return m.m[idx/n]&(T(1)<<(idx%n)) != 0
}

// Search returns the index of the first unset bit.
// If every bit is set, ok will be false.
func (m *Bitm[T]) Search() (idx int, ok bool) {
	if m.rem == 0 {
		return
	}
	n := m.nbit()
	for i, w := range m.m {
		if ^w != 0 {
			return i*n + bits.TrailingZeros64(uint64(^w)), true
		}
	}
	// This should never happen.
	panic("bitm.Bitm.Search: rem is inconsistent")
}

// SearchFrom returns the index of the first unset bit
// that is greater than or equal to start.
// If there is no such bit, ok will be false.
func (m *Bitm[T]) SearchFrom(start int) (idx int, ok bool) {
	for i := max(start, 0); i < m.Len(); i++ {
		if !m.IsSet(i) {
			return i, true
		}
	}
	return
}

// Clear unsets all bits.
func (m *Bitm[T]) Clear() {
	clear(m.m)
	m.rem = m.Len()
}
