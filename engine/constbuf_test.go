// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"encoding/binary"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/pbs/driver"
	"github.com/gviegas/pbs/driver/soft"
)

func newTestConst(gpu *soft.GPU) *constStreamer {
	lim := gpu.Limits()
	return &constStreamer{
		pool: newTestPool(gpu, driver.KConst, lblConst, lim.MaxConstBuffer, lim.MaxConstBuffer),
	}
}

func TestConstStreamer(t *testing.T) {
	gpu := soft.New(testLimits)
	s := newTestConst(gpu)
	var cb driver.CmdBuffer
	const perBuf = 65536 / drawConstSize

	w, err := s.reserve(&cb, drawConstSize)
	require.NoError(t, err)
	require.True(t, s.mapped())
	assert.Equal(t, 1, cb.Count(driver.OpMap))
	bind := cmdsOf(&cb, driver.OpBindConst)
	require.Len(t, bind, 1)
	assert.Equal(t, ConstSlotDraw, bind[0].Slot)
	assert.Equal(t, int64(0), bind[0].Off)
	assert.Equal(t, int64(65536), bind[0].Size)
	first := s.buf

	w.PutUint32(1, 2, 3, 4)
	for i := 1; i < perBuf; i++ {
		w, err = s.reserve(&cb, drawConstSize)
		require.NoError(t, err)
		w.PutUint32(uint32(i), 0, 0, 0)
	}
	assert.Equal(t, 1, s.pool.len())
	assert.Equal(t, 0, w.Rem())

	// Exhaustion maps a new buffer with discard semantics
	// and the cursor starts over.
	w, err = s.reserve(&cb, drawConstSize)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 2, s.pool.len())
	assert.True(t, s.buf != first)
	assert.Equal(t, 2, cb.Count(driver.OpBindConst))
	unmaps := cmdsOf(&cb, driver.OpUnmap)
	require.Len(t, unmaps, 1)
	assert.Equal(t, int64(65536), unmaps[0].Size)

	w.PutUint32(5, 6, 7, 8)
	require.NoError(t, s.unmap(&cb))
	assert.False(t, s.mapped())
	require.NoError(t, s.unmap(&cb), "unmap with nothing mapped")
	require.NoError(t, gpu.Execute(&cb))

	p := first.(*soft.Buffer).Bytes()
	for i, want := range [...]uint32{1, 2, 3, 4} {
		assert.Equal(t, want, binary.LittleEndian.Uint32(p[4*i:]))
	}
	assert.Equal(t, float64(65536+drawConstSize), testutil.ToFloat64(s.pool.m.bytes.WithLabelValues(lblConst)))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.pool.m.maps.WithLabelValues(lblConst)))
}

func TestConstStreamerNoReuseInFrame(t *testing.T) {
	gpu := soft.New(testLimits)
	s := newTestConst(gpu)
	var cb driver.CmdBuffer

	seen := make(map[driver.Buffer]bool)
	for i := 0; i < 4; i++ {
		w, err := s.reserve(&cb, drawConstSize)
		require.NoError(t, err)
		w.PutUint32(0, 0, 0, 0)
		require.False(t, seen[s.buf], "buffer mapped twice in a frame")
		seen[s.buf] = true
		require.NoError(t, s.unmap(&cb))
	}
	assert.Equal(t, 4, s.pool.len())

	// Frame boundary.
	s.reset()
	w, err := s.reserve(&cb, drawConstSize)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Len())
	assert.True(t, seen[s.buf], "buffers should be reused in the next frame")
	assert.Equal(t, 4, gpu.Created())
	assert.Panics(t, s.reset, "reset while mapped")
	require.NoError(t, s.unmap(nil))
}

func TestConstStreamerFailure(t *testing.T) {
	gpu := soft.New(testLimits)
	s := newTestConst(gpu)
	var cb driver.CmdBuffer

	gpu.FailAfter(0)
	_, err := s.reserve(&cb, drawConstSize)
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)
	assert.False(t, s.mapped())
	assert.Equal(t, 0, cb.Len())

	gpu.FailAfter(-1)
	gpu.FailMap(true)
	_, err = s.reserve(&cb, drawConstSize)
	assert.ErrorIs(t, err, driver.ErrMapFailed)
	assert.False(t, s.mapped())

	gpu.FailMap(false)
	_, err = s.reserve(&cb, drawConstSize)
	assert.NoError(t, err)
	_, err = s.reserve(&cb, 65537)
	assert.ErrorIs(t, err, errTooLarge)
}
