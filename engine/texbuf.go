// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"

	"github.com/gviegas/pbs/driver"
)

// Texture slot of the per-draw texture buffer.
const TexSlotDraw = 0

// Size of a texture buffer element (one RGBA32F texel).
const texelSize = 16

// texStreamer streams per-draw data into texture
// buffers.
// Unlike constStreamer, it keeps writing into the same
// buffer across unmaps within a frame: unmap records
// how far the mapping got (lastOff) and the next map
// resumes from there with no-overwrite semantics. A new
// buffer is only taken when the current one is full.
//
// Shaders read the buffer through a view that starts at
// a logical zero (start). Bind commands carry the view's
// absolute byte offset, which is always a multiple of
// the device alignment.
type texStreamer struct {
	pool  *pool
	align int64

	// Buffer in use this frame. It remains set while
	// unmapped so the next mapping can resume.
	cur    driver.Buffer
	mapped bool
	// Window over [lastOff, cur.Cap()).
	win Window
	// Where the current (or next) mapping starts.
	lastOff int64
	// Logical zero, relative to win.
	start int

	// Last bind command and the command buffer it
	// was recorded into.
	lastCmd     int
	lastCB      *driver.CmdBuffer
	lastBindOff int64
	lastBindBuf driver.Buffer
}

func (s *texStreamer) init(p *pool, align int64) {
	*s = texStreamer{pool: p, align: align}
	s.forgetBind()
}

// forgetBind discards the last bind state so the next
// bind is always recorded.
func (s *texStreamer) forgetBind() {
	s.lastCmd = -1
	s.lastCB = nil
	s.lastBindOff = -1
	s.lastBindBuf = nil
}

// mapNext unmaps the current buffer, if any, and maps a
// range with at least minSize bytes.
// The mapping resumes at lastOff when the current buffer
// has room for minSize bytes past it. Otherwise the next
// buffer is taken from the pool and writing starts at
// offset zero.
// A bind command for the new logical zero is recorded.
func (s *texStreamer) mapNext(cb *driver.CmdBuffer, minSize int64) error {
	if minSize <= 0 {
		minSize = 1
	}
	if err := s.unmap(cb); err != nil {
		return err
	}
	mode := driver.MapNoOverwrite
	if s.cur == nil || s.lastOff+minSize > s.cur.Cap() {
		buf, err := s.pool.acquire(minSize)
		if err != nil {
			return err
		}
		s.cur = buf
		s.lastOff = 0
		mode = driver.MapDiscard
	}
	p, err := s.cur.Map(s.lastOff, s.cur.Cap()-s.lastOff, mode)
	if err != nil {
		return fmt.Errorf(prefix+"mapping tex buffer: %w", err)
	}
	s.mapped = true
	s.win = newWindow(p)
	s.start = 0
	s.pool.m.maps.WithLabelValues(s.pool.label).Inc()
	cb.Add(driver.Cmd{Op: driver.OpMap, Buf: s.cur, Off: s.lastOff})
	s.bind(cb)
	return nil
}

// unmap unmaps the current buffer and saves the write
// progress, so that the next mapping in this frame
// starts where this one ended.
// It has no effect if no buffer is mapped.
// cb may be nil, in which case no command is recorded.
func (s *texStreamer) unmap(cb *driver.CmdBuffer) error {
	if !s.mapped {
		return nil
	}
	s.closeBind(cb)
	n := int64(s.win.Len())
	s.mapped = false
	s.win = Window{}
	s.start = 0
	s.pool.m.bytes.WithLabelValues(s.pool.label).Add(float64(n))
	if cb != nil {
		cb.Add(driver.Cmd{Op: driver.OpUnmap, Buf: s.cur, Off: s.lastOff, Size: n})
	}
	err := s.cur.Unmap(n)
	s.lastOff = min(alignUp(s.lastOff+n, s.align), s.cur.Cap())
	if err != nil {
		return fmt.Errorf(prefix+"unmapping tex buffer: %w", err)
	}
	return nil
}

// rebind finishes the last bind command and binds the
// buffer again.
// When reset is true, the logical zero moves to the
// current write position (rounded up to the alignment),
// so the shader samples from there. If less than minSize
// bytes remain past that point, mapNext is called.
// The write position may change; callers must fetch the
// window again.
func (s *texStreamer) rebind(cb *driver.CmdBuffer, reset bool, minSize int64) error {
	if !s.mapped {
		panic("texStreamer.rebind: no buffer mapped")
	}
	s.closeBind(cb)
	if reset {
		if !s.win.Align(int(s.align)) || int64(s.win.Rem()) < minSize {
			return s.mapNext(cb, minSize)
		}
		s.start = s.win.Len()
	}
	s.bind(cb)
	return nil
}

// bind records a bind command at the logical zero.
// The command is elided when the previous bind in the
// same command buffer already refers to the same buffer
// and offset.
func (s *texStreamer) bind(cb *driver.CmdBuffer) {
	off := s.lastOff + int64(s.start)
	if off%s.align != 0 {
		// This should never happen.
		panic("texStreamer.bind: misaligned offset")
	}
	if cb == s.lastCB && s.lastCmd >= 0 && off == s.lastBindOff && s.cur == s.lastBindBuf {
		s.pool.m.elided.Inc()
		return
	}
	s.lastCmd = cb.Add(driver.Cmd{
		Op:    driver.OpBindTex,
		Stage: driver.SVertex,
		Slot:  TexSlotDraw,
		Buf:   s.cur,
		Off:   off,
	})
	s.lastCB = cb
	s.lastBindOff = off
	s.lastBindBuf = s.cur
	s.pool.m.rebinds.Inc()
}

// closeBind sets the size of the last bind command to
// cover everything written since its offset.
func (s *texStreamer) closeBind(cb *driver.CmdBuffer) {
	if cb == nil || cb != s.lastCB || !s.mapped {
		return
	}
	c := cb.At(s.lastCmd)
	if c == nil || c.Op != driver.OpBindTex || c.Buf != s.cur {
		return
	}
	if end := s.lastOff + int64(s.win.Len()); end > c.Off {
		c.Size = end - c.Off
	}
}

// reserve returns a window with at least n bytes of
// room, calling mapNext if needed.
func (s *texStreamer) reserve(cb *driver.CmdBuffer, n int) (*Window, error) {
	if !s.mapped || s.win.Rem() < n {
		if err := s.mapNext(cb, int64(n)); err != nil {
			return nil, err
		}
	}
	return &s.win, nil
}

// texel returns the write position as an element index
// relative to the logical zero.
func (s *texStreamer) texel() uint32 { return uint32((s.win.Len() - s.start) / texelSize) }

// reset prepares s for a new frame.
func (s *texStreamer) reset() {
	if s.mapped {
		panic("texStreamer.reset: buffer still mapped")
	}
	s.cur = nil
	s.lastOff = 0
	s.forgetBind()
	s.pool.reset()
}

// origin returns the buffer and absolute byte offset of
// the logical zero.
func (s *texStreamer) origin() (driver.Buffer, int64) {
	return s.cur, s.lastOff + int64(s.start)
}
