// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"

	"github.com/gviegas/pbs/driver"
)

// Constant buffer slots.
const (
	// Pass data.
	ConstSlotPass = iota
	// Material blocks.
	ConstSlotMaterial
	// Per-draw data.
	ConstSlotDraw
)

// Size of the per-draw constant data (one uvec4).
const drawConstSize = 16

// constStreamer streams per-draw data into constant
// buffers.
// Every mapping discards: once a buffer is unmapped it
// is not written again until the next frame. This costs
// more buffer objects but avoids stalls on APIs that
// lack no-overwrite for this kind of buffer.
type constStreamer struct {
	pool *pool
	buf  driver.Buffer
	win  Window
}

// mapped returns whether a buffer is currently mapped.
func (s *constStreamer) mapped() bool { return s.buf != nil }

// mapNext unmaps the current buffer, if any, and maps
// the next buffer from the pool.
// The new window starts at offset zero.
func (s *constStreamer) mapNext(cb *driver.CmdBuffer) error {
	if err := s.unmap(cb); err != nil {
		return err
	}
	buf, err := s.pool.acquire(s.pool.dfl)
	if err != nil {
		return err
	}
	n := min(buf.Cap(), s.pool.max)
	p, err := buf.Map(0, n, driver.MapDiscard)
	if err != nil {
		return fmt.Errorf(prefix+"mapping const buffer: %w", err)
	}
	s.buf = buf
	s.win = newWindow(p)
	s.pool.m.maps.WithLabelValues(s.pool.label).Inc()
	cb.Add(driver.Cmd{Op: driver.OpMap, Buf: buf})
	cb.Add(driver.Cmd{
		Op:    driver.OpBindConst,
		Stage: driver.SAll,
		Slot:  ConstSlotDraw,
		Buf:   buf,
		Size:  n,
	})
	return nil
}

// unmap unmaps the current buffer.
// It has no effect if no buffer is mapped.
// cb may be nil, in which case no command is recorded.
func (s *constStreamer) unmap(cb *driver.CmdBuffer) error {
	if s.buf == nil {
		return nil
	}
	n := int64(s.win.Len())
	buf := s.buf
	s.buf = nil
	s.win = Window{}
	s.pool.m.bytes.WithLabelValues(s.pool.label).Add(float64(n))
	if cb != nil {
		cb.Add(driver.Cmd{Op: driver.OpUnmap, Buf: buf, Size: n})
	}
	if err := buf.Unmap(n); err != nil {
		return fmt.Errorf(prefix+"unmapping const buffer: %w", err)
	}
	return nil
}

// reserve returns a window with at least n bytes of
// room, mapping the next buffer if needed.
func (s *constStreamer) reserve(cb *driver.CmdBuffer, n int) (*Window, error) {
	if s.buf == nil || s.win.Rem() < n {
		if err := s.mapNext(cb); err != nil {
			return nil, err
		}
		if s.win.Rem() < n {
			return nil, fmt.Errorf("%w: %d bytes of constant data", errTooLarge, n)
		}
	}
	return &s.win, nil
}

// reset prepares s for a new frame.
func (s *constStreamer) reset() {
	if s.buf != nil {
		panic("constStreamer.reset: buffer still mapped")
	}
	s.pool.reset()
}
