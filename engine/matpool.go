// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"

	"github.com/gviegas/pbs/driver"
	"github.com/gviegas/pbs/engine/material"
	"github.com/gviegas/pbs/internal/bitm"
)

// matPool is a constant buffer holding the material
// blocks of up to n datablocks.
// Blocks are written into a CPU copy and uploaded as a
// whole, with discard semantics, when the copy changes.
type matPool struct {
	idx    int
	buf    driver.Buffer
	shadow []byte
	free   bitm.Bitm[uint32]
	n      int
	dirty  bool
}

// matRef locates the material block of a datablock.
type matRef struct {
	pool *matPool
	slot int
}

// matPools assigns material blocks to datablocks.
// Unlike the per-draw pools, its buffers persist across
// frames.
type matPools struct {
	pool  *pool
	per   int
	pools []*matPool
	refs  map[*material.Datablock]matRef
}

func (m *matPools) init(p *pool, per int) {
	*m = matPools{
		pool: p,
		per:  per,
		refs: make(map[*material.Datablock]matRef),
	}
}

// add assigns a material block to d.
// It has no effect if d already has one.
func (m *matPools) add(d *material.Datablock) (matRef, error) {
	if ref, ok := m.refs[d]; ok {
		return ref, nil
	}
	var mp *matPool
	for _, x := range m.pools {
		if x.free.Rem() > 0 {
			mp = x
			break
		}
	}
	if mp == nil {
		i, err := m.pool.grow(int64(m.per) * MaterialBlockSize)
		if err != nil {
			return matRef{}, err
		}
		mp = &matPool{
			idx:    len(m.pools),
			buf:    m.pool.bufs[i],
			shadow: make([]byte, m.per*MaterialBlockSize),
			n:      m.per,
		}
		// Only the first n bits are usable.
		nw := (m.per + 31) / 32
		mp.free.Grow(nw)
		for j := m.per; j < mp.free.Len(); j++ {
			mp.free.Set(j)
		}
		m.pools = append(m.pools, mp)
	}
	slot, _ := mp.free.Search()
	mp.free.Set(slot)
	ref := matRef{mp, slot}
	m.refs[d] = ref
	d.MarkDirty()
	return ref, nil
}

// remove releases the material block of d.
func (m *matPools) remove(d *material.Datablock) {
	ref, ok := m.refs[d]
	if !ok {
		return
	}
	delete(m.refs, d)
	ref.pool.free.Unset(ref.slot)
	clear(ref.pool.block(ref.slot))
	ref.pool.dirty = true
}

// block returns the CPU copy of the given slot.
func (mp *matPool) block(slot int) []byte {
	off := slot * MaterialBlockSize
	return mp.shadow[off : off+MaterialBlockSize : off+MaterialBlockSize]
}

// sync copies the parameters of dirty datablocks into
// their blocks and uploads the pools that changed.
// It returns the number of pools uploaded.
func (m *matPools) sync() (int, error) {
	for d, ref := range m.refs {
		if !d.Dirty() {
			continue
		}
		b := ref.pool.block(ref.slot)
		clear(b[copy(b, d.Params()):])
		d.ClearDirty()
		ref.pool.dirty = true
	}
	n := 0
	for _, mp := range m.pools {
		if !mp.dirty {
			continue
		}
		size := int64(len(mp.shadow))
		p, err := mp.buf.Map(0, size, driver.MapDiscard)
		if err != nil {
			return n, fmt.Errorf(prefix+"mapping material buffer: %w", err)
		}
		copy(p, mp.shadow)
		if err := mp.buf.Unmap(size); err != nil {
			return n, fmt.Errorf(prefix+"unmapping material buffer: %w", err)
		}
		mp.dirty = false
		m.pool.m.maps.WithLabelValues(m.pool.label).Inc()
		m.pool.m.bytes.WithLabelValues(m.pool.label).Add(float64(size))
		n++
	}
	return n, nil
}

// destroy releases every block and buffer.
func (m *matPools) destroy() {
	for d := range m.refs {
		d.MarkDirty()
	}
	m.pool.destroy()
	m.pools = nil
	clear(m.refs)
}
