// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"encoding/binary"
	"math"

	"github.com/gviegas/pbs/linear"
)

// Window is the writable view of a mapped buffer range.
// Writes are append-only: Next hands out consecutive,
// non-overlapping sub-slices and advances the cursor.
// A Window is only valid until the buffer it refers to
// is unmapped.
type Window struct {
	p   []byte
	off int
}

func newWindow(p []byte) Window { return Window{p: p} }

// Len returns the number of bytes written so far
// (i.e., the cursor position).
func (w *Window) Len() int { return w.off }

// Cap returns the size of the window in bytes.
func (w *Window) Cap() int { return len(w.p) }

// Rem returns the number of bytes that can still be
// written.
func (w *Window) Rem() int { return len(w.p) - w.off }

// Valid returns whether w refers to mapped memory.
func (w *Window) Valid() bool { return w.p != nil }

// Next returns the next n bytes of the window and
// advances the cursor past them.
// It panics if n is greater than w.Rem(). Callers must
// check the remaining capacity and remap beforehand.
func (w *Window) Next(n int) []byte {
	if n < 0 || n > w.Rem() {
		panic("engine.Window.Next: n exceeds remaining capacity")
	}
	s := w.p[w.off : w.off+n : w.off+n]
	w.off += n
	return s
}

// Align rounds the cursor up to a multiple of a.
// It returns false if the aligned cursor would pass the
// end of the window, in which case the cursor is moved
// to the end.
func (w *Window) Align(a int) bool {
	off := int(alignUp(int64(w.off), int64(a)))
	if off > len(w.p) {
		w.off = len(w.p)
		return false
	}
	w.off = off
	return true
}

// PutUint32 writes v as little-endian uint32 values.
func (w *Window) PutUint32(v ...uint32) {
	s := w.Next(4 * len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(s[4*i:], x)
	}
}

// PutFloat32 writes v as little-endian float32 values.
func (w *Window) PutFloat32(v ...float32) {
	s := w.Next(4 * len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(s[4*i:], math.Float32bits(x))
	}
}

// PutM4 writes m in column-major order.
func (w *Window) PutM4(m *linear.M4) {
	for i := range m {
		w.PutFloat32(m[i][:]...)
	}
}

// alignUp rounds n up to a multiple of a.
// a must be greater than zero.
func alignUp(n, a int64) int64 {
	if a <= 0 {
		panic("engine.alignUp: a <= 0")
	}
	return (n + a - 1) / a * a
}
