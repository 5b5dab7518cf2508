// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/pbs/driver"
	"github.com/gviegas/pbs/driver/soft"
)

func TestPoolAcquire(t *testing.T) {
	gpu := soft.New(testLimits)
	p := newTestPool(gpu, driver.KTex, lblTex, 4<<20, testLimits.MaxTexBuffer)

	b0, err := p.acquire(1)
	require.NoError(t, err)
	assert.Equal(t, int64(4<<20), b0.Cap())
	b1, err := p.acquire(1)
	require.NoError(t, err)
	assert.True(t, b0 != b1, "buffer handed out twice in a frame")
	assert.Equal(t, 2, p.len())

	// Growth sized to the request, not the default.
	b2, err := p.acquire(9 << 20)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b2.Cap(), int64(9<<20))
	assert.Equal(t, 3, p.len())

	p.reset()
	b, err := p.acquire(1)
	require.NoError(t, err)
	assert.True(t, b == b0, "first buffer should be reused after reset")
	b, err = p.acquire(5 << 20)
	require.NoError(t, err)
	assert.True(t, b == b2, "only the large buffer fits")
	assert.Equal(t, 3, p.len())
	assert.Equal(t, 3, gpu.Created())

	assert.Equal(t, 3.0, testutil.ToFloat64(p.m.created.WithLabelValues(lblTex)))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.m.buffers.WithLabelValues(lblTex)))

	p.destroy()
	assert.Equal(t, 0, p.len())
	assert.Equal(t, 0, gpu.Live())
	assert.Equal(t, 0.0, testutil.ToFloat64(p.m.buffers.WithLabelValues(lblTex)))
}

func TestPoolTooLarge(t *testing.T) {
	gpu := soft.New(testLimits)
	p := newTestPool(gpu, driver.KConst, lblConst, 65536, testLimits.MaxConstBuffer)
	_, err := p.acquire(testLimits.MaxConstBuffer + 1)
	assert.ErrorIs(t, err, errTooLarge)
	assert.Equal(t, 0, p.len())
	assert.Equal(t, 0, gpu.Created())
	assert.Panics(t, func() { p.acquire(0) })
}

func TestPoolAllocFailure(t *testing.T) {
	gpu := soft.New(testLimits)
	p := newTestPool(gpu, driver.KConst, lblConst, 65536, testLimits.MaxConstBuffer)
	_, err := p.acquire(1)
	require.NoError(t, err)

	gpu.FailAfter(0)
	_, err = p.acquire(1)
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)
	assert.Equal(t, 1, p.len(), "pool must be unchanged on failure")

	gpu.FailAfter(-1)
	_, err = p.acquire(1)
	assert.NoError(t, err)
	assert.Equal(t, 2, p.len())
}

func TestPoolShrink(t *testing.T) {
	gpu := soft.New(testLimits)
	gpu.SetMaxAlloc(1 << 20)
	p := newTestPool(gpu, driver.KTex, lblTex, 4<<20, testLimits.MaxTexBuffer)
	p.shrink = true

	b, err := p.acquire(1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), b.Cap())

	// Never below the requested size.
	_, err = p.acquire(3 << 20)
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)
	assert.Equal(t, 1, p.len())

	// Without shrink, the device error is returned as is.
	q := newTestPool(gpu, driver.KTex, lblTex, 4<<20, testLimits.MaxTexBuffer)
	_, err = q.acquire(1000)
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)
}

func TestPoolGrow(t *testing.T) {
	gpu := soft.New(testLimits)
	p := newTestPool(gpu, driver.KConst, lblMat, 4096, testLimits.MaxConstBuffer)
	for i := 0; i < 40; i++ {
		j, err := p.grow(4096)
		require.NoError(t, err)
		require.Equal(t, i, j)
	}
	// Grown buffers are not marked as used.
	b, err := p.acquire(1)
	require.NoError(t, err)
	assert.True(t, b == p.bufs[0])
	assert.Equal(t, 40, p.len())
}
