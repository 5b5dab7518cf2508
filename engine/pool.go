// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gviegas/pbs/driver"
	"github.com/gviegas/pbs/internal/bitm"
)

// pool owns an ordered set of buffers of a single kind.
// Buffers are handed out at most once per frame; the use
// marks are cleared by reset at frame start.
// Buffers are never resized: the pool grows by appending.
type pool struct {
	gpu   driver.GPU
	kind  driver.BufKind
	label string
	// Size of new buffers and device maximum.
	dfl int64
	max int64
	// Fall back to smaller sizes when the device
	// cannot honor dfl.
	shrink bool

	bufs []driver.Buffer
	used bitm.Bitm[uint32]

	log *slog.Logger
	m   *metrics
}

var errTooLarge = errors.New(prefix + "request exceeds device buffer limit")

// acquire returns a buffer with at least min bytes that
// was not handed out since the last reset.
// It creates a new buffer if necessary.
func (p *pool) acquire(min int64) (driver.Buffer, error) {
	if min <= 0 {
		panic("pool.acquire: min <= 0")
	}
	for i, ok := p.used.Search(); ok && i < len(p.bufs); i, ok = p.used.SearchFrom(i + 1) {
		if p.bufs[i].Cap() >= min {
			p.used.Set(i)
			return p.bufs[i], nil
		}
	}
	i, err := p.grow(min)
	if err != nil {
		return nil, err
	}
	p.used.Set(i)
	return p.bufs[i], nil
}

// grow appends a new buffer with at least min bytes to
// the pool and returns its index.
// The buffer is not marked as used.
func (p *pool) grow(min int64) (int, error) {
	buf, err := p.create(min)
	if err != nil {
		return -1, err
	}
	if len(p.bufs) == p.used.Len() {
		p.used.Grow(1)
	}
	p.bufs = append(p.bufs, buf)
	p.m.created.WithLabelValues(p.label).Inc()
	p.m.buffers.WithLabelValues(p.label).Set(float64(len(p.bufs)))
	p.log.Debug("buffer created", "pool", p.label, "size", buf.Cap(), "count", len(p.bufs))
	return len(p.bufs) - 1, nil
}

// create creates a new buffer sized max(p.dfl, min),
// clamped to the device limit.
func (p *pool) create(min int64) (driver.Buffer, error) {
	if min > p.max {
		return nil, fmt.Errorf("%w: %s pool, %d bytes (max %d)", errTooLarge, p.label, min, p.max)
	}
	n := max(p.dfl, min)
	if n > p.max {
		n = p.max
	}
	for {
		buf, err := p.gpu.NewBuffer(p.kind, n)
		switch {
		case err == nil:
			return buf, nil
		case p.shrink && errors.Is(err, driver.ErrNoDeviceMemory) && n/2 >= min:
			p.log.Warn("buffer size rejected by device", "pool", p.label, "size", n)
			n /= 2
		default:
			p.log.Error("buffer creation failed", "pool", p.label, "size", n, "err", err)
			return nil, fmt.Errorf(prefix+"creating %s buffer: %w", p.label, err)
		}
	}
}

// reset makes every buffer available again.
// It must only be called at frame boundaries.
func (p *pool) reset() { p.used.Clear() }

// len returns the number of buffers in the pool.
func (p *pool) len() int { return len(p.bufs) }

// destroy destroys every buffer in the pool.
func (p *pool) destroy() {
	for _, b := range p.bufs {
		b.Destroy()
	}
	p.bufs = nil
	p.used = bitm.Bitm[uint32]{}
	p.m.buffers.WithLabelValues(p.label).Set(0)
}
