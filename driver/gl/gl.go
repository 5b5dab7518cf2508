// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package gl implements a driver on top of OpenGL 4.3 core.
// Constant buffers are uniform buffers and texture buffers
// are RGBA32F buffer textures bound with glTexBufferRange.
//
// The GL context must be current in the calling thread
// when Open is called and for every use of the GPU.
package gl

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-gl/gl/v4.3-core/gl"

	"github.com/gviegas/pbs/driver"
)

const prefix = "gl: "

// Driver implements driver.Driver.
type Driver struct {
	mu  sync.Mutex
	gpu *GPU
}

func init() {
	driver.Register(&Driver{})
}

// Open initializes the driver.
// It loads the GL entry points of the current context.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu != nil {
		return d.gpu, nil
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf(prefix+"%v: %w", err, driver.ErrNotInstalled)
	}
	var major, minor int32
	gl.GetIntegerv(gl.MAJOR_VERSION, &major)
	gl.GetIntegerv(gl.MINOR_VERSION, &minor)
	if err := checkVersion(major, minor); err != nil {
		return nil, err
	}
	d.gpu = &GPU{drv: d, lim: queryLimits(), progs: make(map[uint32]uint32)}
	return d.gpu, nil
}

// checkVersion fails unless the context is GL 4.3 or
// later, which is needed for TexBufferRange.
func checkVersion(major, minor int32) error {
	if major > 4 || major == 4 && minor >= 3 {
		return nil
	}
	return fmt.Errorf(prefix+"GL %d.%d context (want 4.3): %w", major, minor, driver.ErrNoDevice)
}

// Name returns the driver name.
func (d *Driver) Name() string { return "gl" }

// Close deinitializes the driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		return
	}
	for _, t := range d.gpu.texs {
		if t != 0 {
			gl.DeleteTextures(1, &t)
		}
	}
	d.gpu = nil
}

func queryLimits() driver.Limits {
	var ubo, tbo, ualign, talign int32
	gl.GetIntegerv(gl.MAX_UNIFORM_BLOCK_SIZE, &ubo)
	// Given in texels.
	gl.GetIntegerv(gl.MAX_TEXTURE_BUFFER_SIZE, &tbo)
	gl.GetIntegerv(gl.UNIFORM_BUFFER_OFFSET_ALIGNMENT, &ualign)
	gl.GetIntegerv(gl.TEXTURE_BUFFER_OFFSET_ALIGNMENT, &talign)
	lim := driver.Limits{
		MaxConstBuffer:   int64(ubo),
		MaxTexBuffer:     int64(tbo) * texelSize,
		ConstBufferAlign: int64(ualign),
		TexBufferAlign:   int64(talign),
	}
	if lim.ConstBufferAlign <= 0 {
		lim.ConstBufferAlign = 256
	}
	// Views must start at a texel boundary too.
	if lim.TexBufferAlign <= 0 || lim.TexBufferAlign%4 != 0 {
		lim.TexBufferAlign = texelSize
	}
	return lim
}

// Size of an RGBA32F texel.
const texelSize = 16

// Hooks are called by GPU.Execute for commands that
// the driver does not interpret itself.
type Hooks struct {
	// Called for driver.OpBindTextures.
	Textures func(hash uint32)
	// Called for driver.OpDraw.
	Draw func(drawID uint32)
}

// GPU implements driver.GPU.
type GPU struct {
	drv   *Driver
	lim   driver.Limits
	progs map[uint32]uint32
	// Buffer texture per texture slot.
	texs  []uint32
	hooks Hooks
}

// Driver returns the Driver that owns g.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits { return g.lim }

// SetHooks sets the hooks used by Execute.
func (g *GPU) SetHooks(h Hooks) { g.hooks = h }

// SetProgram associates a program hash with a linked GL
// program. driver.OpSetProgram commands whose Arg is hash
// will make prog current.
func (g *GPU) SetProgram(hash, prog uint32) { g.progs[hash] = prog }

func target(kind driver.BufKind) uint32 {
	if kind == driver.KTex {
		return gl.TEXTURE_BUFFER
	}
	return gl.UNIFORM_BUFFER
}

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(kind driver.BufKind, size int64) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New(prefix + "invalid buffer size")
	}
	t := target(kind)
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(t, id)
	gl.BufferData(t, int(size), nil, gl.STREAM_DRAW)
	gl.BindBuffer(t, 0)
	if e := gl.GetError(); e != gl.NO_ERROR {
		gl.DeleteBuffers(1, &id)
		if e == gl.OUT_OF_MEMORY {
			return nil, fmt.Errorf(prefix+"cannot allocate %d bytes: %w", size, driver.ErrNoDeviceMemory)
		}
		return nil, fmt.Errorf(prefix+"glBufferData failed with 0x%x", e)
	}
	return &buffer{id: id, kind: kind, size: size}, nil
}

// Execute executes the commands in cb.
func (g *GPU) Execute(cb *driver.CmdBuffer) error {
	for _, c := range cb.Cmds() {
		switch c.Op {
		case driver.OpBindConst:
			b := c.Buf.(*buffer)
			n := c.Size
			if n == 0 {
				n = b.size - c.Off
			}
			gl.BindBufferRange(gl.UNIFORM_BUFFER, uint32(c.Slot), b.id, int(c.Off), int(n))
		case driver.OpBindTex:
			b := c.Buf.(*buffer)
			n := c.Size
			if n == 0 {
				n = b.size - c.Off
			}
			for len(g.texs) <= c.Slot {
				g.texs = append(g.texs, 0)
			}
			if g.texs[c.Slot] == 0 {
				gl.GenTextures(1, &g.texs[c.Slot])
			}
			gl.ActiveTexture(gl.TEXTURE0 + uint32(c.Slot))
			gl.BindTexture(gl.TEXTURE_BUFFER, g.texs[c.Slot])
			gl.TexBufferRange(gl.TEXTURE_BUFFER, gl.RGBA32F, b.id, int(c.Off), int(n))
		case driver.OpSetProgram:
			if p, ok := g.progs[c.Arg]; ok {
				gl.UseProgram(p)
			}
		case driver.OpBindTextures:
			if g.hooks.Textures != nil {
				g.hooks.Textures(c.Arg)
			}
		case driver.OpDraw:
			if g.hooks.Draw != nil {
				g.hooks.Draw(c.Arg)
			}
		}
	}
	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf(prefix+"command execution failed with 0x%x", e)
	}
	return nil
}

// buffer implements driver.Buffer.
type buffer struct {
	id     uint32
	kind   driver.BufKind
	size   int64
	mapped bool
}

// Kind returns the buffer's kind.
func (b *buffer) Kind() driver.BufKind { return b.kind }

// Cap returns the capacity of the buffer in bytes.
func (b *buffer) Cap() int64 { return b.size }

// Map maps n bytes starting at off.
func (b *buffer) Map(off, n int64, mode driver.MapMode) ([]byte, error) {
	if b.mapped {
		panic("gl.buffer.Map: buffer already mapped")
	}
	if off < 0 || n <= 0 || off+n > b.size {
		return nil, fmt.Errorf(prefix+"map range out of bounds: %w", driver.ErrMapFailed)
	}
	access := uint32(gl.MAP_WRITE_BIT | gl.MAP_FLUSH_EXPLICIT_BIT)
	switch mode {
	case driver.MapDiscard:
		access |= gl.MAP_INVALIDATE_BUFFER_BIT
	case driver.MapNoOverwrite:
		access |= gl.MAP_UNSYNCHRONIZED_BIT
	}
	t := target(b.kind)
	gl.BindBuffer(t, b.id)
	p := gl.MapBufferRange(t, int(off), int(n), access)
	gl.BindBuffer(t, 0)
	if p == nil {
		return nil, driver.ErrMapFailed
	}
	b.mapped = true
	return unsafe.Slice((*byte)(p), n), nil
}

// Unmap unmaps the buffer, flushing the first written
// bytes of the mapped range.
func (b *buffer) Unmap(written int64) error {
	if !b.mapped {
		panic("gl.buffer.Unmap: buffer not mapped")
	}
	b.mapped = false
	t := target(b.kind)
	gl.BindBuffer(t, b.id)
	if written > 0 {
		gl.FlushMappedBufferRange(t, 0, int(written))
	}
	ok := gl.UnmapBuffer(t)
	gl.BindBuffer(t, 0)
	if !ok {
		// The data store contents became undefined.
		return fmt.Errorf(prefix+"glUnmapBuffer failed: %w", driver.ErrFatal)
	}
	return nil
}

// Mapped returns whether b is mapped.
func (b *buffer) Mapped() bool { return b.mapped }

// Destroy destroys the buffer.
func (b *buffer) Destroy() {
	if b == nil || b.id == 0 {
		return
	}
	if b.mapped {
		gl.BindBuffer(target(b.kind), b.id)
		gl.UnmapBuffer(target(b.kind))
	}
	gl.DeleteBuffers(1, &b.id)
	*b = buffer{}
}
