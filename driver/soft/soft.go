// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package soft implements a driver backed by host memory.
// It enforces the map/unmap discipline of driver.Buffer
// and keeps a log of executed commands, which makes it
// suitable for testing and for headless runs.
package soft

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gviegas/pbs/driver"
)

const prefix = "soft: "

// Driver implements driver.Driver.
type Driver struct {
	mu  sync.Mutex
	gpu *GPU
}

func init() {
	driver.Register(&Driver{})
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		d.gpu = New(DefaultLimits)
		d.gpu.drv = d
	}
	return d.gpu, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return "soft" }

// Close deinitializes the driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gpu = nil
}

// DefaultLimits are the limits of GPUs created by
// Driver.Open.
var DefaultLimits = driver.Limits{
	MaxConstBuffer:   65536,
	MaxTexBuffer:     128 << 20,
	ConstBufferAlign: 256,
	TexBufferAlign:   16,
}

// Allocation granularity.
const granularity = 256

// GPU implements driver.GPU.
type GPU struct {
	drv *Driver
	lim driver.Limits

	// Number of allocations that may still succeed.
	// Negative means unlimited.
	allocLeft int
	// Largest allocation that may succeed.
	// Zero means unlimited.
	maxAlloc int64
	failMap   bool
	failUnmap bool

	live     int
	created  int
	executed []driver.Cmd
}

// New creates a new GPU with the given limits.
// The returned GPU is not registered and its Driver
// method returns nil.
func New(lim driver.Limits) *GPU {
	if lim.ConstBufferAlign <= 0 || lim.TexBufferAlign <= 0 || lim.TexBufferAlign%4 != 0 {
		panic("soft.New: invalid alignment limits")
	}
	return &GPU{lim: lim, allocLeft: -1}
}

// Driver returns the Driver that owns g.
func (g *GPU) Driver() driver.Driver {
	if g.drv == nil {
		return nil
	}
	return g.drv
}

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits { return g.lim }

// FailAfter causes NewBuffer to fail with
// driver.ErrNoDeviceMemory after n further successful
// allocations. A negative n disables the failure.
func (g *GPU) FailAfter(n int) { g.allocLeft = n }

// SetMaxAlloc causes NewBuffer to fail with
// driver.ErrNoDeviceMemory for any size greater than n.
// Zero disables the check.
func (g *GPU) SetMaxAlloc(n int64) { g.maxAlloc = n }

// FailMap causes Buffer.Map to fail while fail is true.
func (g *GPU) FailMap(fail bool) { g.failMap = fail }

// FailUnmap causes Buffer.Unmap to fail with
// driver.ErrFatal while fail is true. The buffer is
// unmapped regardless.
func (g *GPU) FailUnmap(fail bool) { g.failUnmap = fail }

// Live returns the number of buffers that were created
// and not yet destroyed.
func (g *GPU) Live() int { return g.live }

// Created returns the total number of buffers created.
func (g *GPU) Created() int { return g.created }

// Executed returns every command executed so far, in
// execution order.
func (g *GPU) Executed() []driver.Cmd { return g.executed }

// ClearExecuted clears the log of executed commands.
func (g *GPU) ClearExecuted() { g.executed = g.executed[:0] }

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(kind driver.BufKind, size int64) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New(prefix + "invalid buffer size")
	}
	var max int64
	switch kind {
	case driver.KConst:
		max = g.lim.MaxConstBuffer
	case driver.KTex:
		max = g.lim.MaxTexBuffer
	default:
		return nil, errors.New(prefix + "undefined driver.BufKind constant")
	}
	if size > max || (g.maxAlloc > 0 && size > g.maxAlloc) || g.allocLeft == 0 {
		return nil, fmt.Errorf(prefix+"cannot allocate %d bytes: %w", size, driver.ErrNoDeviceMemory)
	}
	if g.allocLeft > 0 {
		g.allocLeft--
	}
	n := (size + granularity - 1) &^ (granularity - 1)
	if n > max {
		n = size
	}
	g.live++
	g.created++
	return &Buffer{g: g, kind: kind, data: make([]byte, n)}, nil
}

// Execute validates and logs the commands in cb.
func (g *GPU) Execute(cb *driver.CmdBuffer) error {
	for _, c := range cb.Cmds() {
		switch c.Op {
		case driver.OpBindConst, driver.OpBindTex:
			b, ok := c.Buf.(*Buffer)
			if !ok || b.data == nil {
				return errors.New(prefix + "bind command references invalid buffer")
			}
			if b.mapped {
				return errors.New(prefix + "bind command references mapped buffer")
			}
			if c.Off < 0 || c.Size < 0 || c.Off+c.Size > int64(len(b.data)) {
				return errors.New(prefix + "bind range out of bounds")
			}
			align := g.lim.ConstBufferAlign
			if c.Op == driver.OpBindTex {
				align = g.lim.TexBufferAlign
			}
			if c.Off%align != 0 {
				return fmt.Errorf(prefix+"misaligned %s offset %d", c.Op, c.Off)
			}
		}
	}
	g.executed = append(g.executed, cb.Cmds()...)
	return nil
}

// Buffer implements driver.Buffer.
type Buffer struct {
	g      *GPU
	kind   driver.BufKind
	data   []byte
	mapped bool
	off    int64
	n      int64
	maps   int
}

// Kind returns the buffer's kind.
func (b *Buffer) Kind() driver.BufKind { return b.kind }

// Cap returns the buffer's capacity in bytes.
func (b *Buffer) Cap() int64 { return int64(len(b.data)) }

// Map maps n bytes starting at off.
func (b *Buffer) Map(off, n int64, mode driver.MapMode) ([]byte, error) {
	if b.data == nil {
		panic("soft.Buffer.Map: destroyed buffer")
	}
	if b.mapped {
		panic("soft.Buffer.Map: buffer already mapped")
	}
	if off < 0 || n <= 0 || off+n > int64(len(b.data)) {
		return nil, fmt.Errorf(prefix+"map range [%d, %d) out of bounds: %w", off, off+n, driver.ErrMapFailed)
	}
	if b.g.failMap {
		return nil, driver.ErrMapFailed
	}
	if mode == driver.MapDiscard {
		clear(b.data)
	}
	b.mapped = true
	b.off = off
	b.n = n
	b.maps++
	return b.data[off : off+n : off+n], nil
}

// Unmap unmaps the buffer.
func (b *Buffer) Unmap(written int64) error {
	if !b.mapped {
		panic("soft.Buffer.Unmap: buffer not mapped")
	}
	b.mapped = false
	if written < 0 || written > b.n {
		return fmt.Errorf(prefix+"written bytes (%d) exceed mapped range (%d)", written, b.n)
	}
	if b.g.failUnmap {
		return fmt.Errorf(prefix+"buffer contents lost: %w", driver.ErrFatal)
	}
	return nil
}

// Mapped returns whether b is mapped.
func (b *Buffer) Mapped() bool { return b.mapped }

// Maps returns how many times b was mapped.
func (b *Buffer) Maps() int { return b.maps }

// Bytes returns the buffer's storage.
// It is meant for inspection after the buffer has been
// unmapped.
func (b *Buffer) Bytes() []byte { return b.data }

// Destroy destroys the buffer.
func (b *Buffer) Destroy() {
	if b == nil || b.data == nil {
		return
	}
	if b.mapped {
		panic("soft.Buffer.Destroy: buffer is mapped")
	}
	b.g.live--
	*b = Buffer{g: b.g, kind: b.kind}
}
