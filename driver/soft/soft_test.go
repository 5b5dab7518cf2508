// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/pbs/driver"
)

func TestRegistered(t *testing.T) {
	var found bool
	for _, d := range driver.Drivers() {
		if d.Name() == "soft" {
			found = true
			g, err := d.Open()
			require.NoError(t, err)
			g2, err := d.Open()
			require.NoError(t, err)
			assert.Same(t, g.(*GPU), g2.(*GPU), "Open should return the same GPU")
			assert.Equal(t, d, g.Driver())
			d.Close()
		}
	}
	assert.True(t, found, "soft driver should register itself")
}

func TestNewBuffer(t *testing.T) {
	g := New(DefaultLimits)

	b, err := g.NewBuffer(driver.KConst, 1000)
	require.NoError(t, err)
	assert.Equal(t, driver.KConst, b.Kind())
	assert.GreaterOrEqual(t, b.Cap(), int64(1000))
	assert.Zero(t, b.Cap()%granularity)

	_, err = g.NewBuffer(driver.KConst, DefaultLimits.MaxConstBuffer+1)
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)
	_, err = g.NewBuffer(driver.KTex, 0)
	assert.Error(t, err)

	g.SetMaxAlloc(1 << 20)
	_, err = g.NewBuffer(driver.KTex, 2<<20)
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)
	_, err = g.NewBuffer(driver.KTex, 1<<20)
	assert.NoError(t, err)

	g.FailAfter(1)
	_, err = g.NewBuffer(driver.KTex, 4096)
	assert.NoError(t, err)
	_, err = g.NewBuffer(driver.KTex, 4096)
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)
	g.FailAfter(-1)

	assert.Equal(t, 3, g.Live())
	b.Destroy()
	b.Destroy()
	assert.Equal(t, 2, g.Live())
	assert.Equal(t, 3, g.Created())
}

func TestMapUnmap(t *testing.T) {
	g := New(DefaultLimits)
	b, err := g.NewBuffer(driver.KTex, 4096)
	require.NoError(t, err)

	p, err := b.Map(1024, 2048, driver.MapNoOverwrite)
	require.NoError(t, err)
	assert.Len(t, p, 2048)
	assert.True(t, b.Mapped())
	assert.Panics(t, func() { b.Map(0, 16, driver.MapDiscard) })
	p[0] = 0xab
	require.NoError(t, b.Unmap(1))
	assert.False(t, b.Mapped())
	assert.Equal(t, byte(0xab), b.(*Buffer).Bytes()[1024])
	assert.Panics(t, func() { b.Unmap(0) })

	// Discard clears previous contents.
	_, err = b.Map(0, 4096, driver.MapDiscard)
	require.NoError(t, err)
	assert.Zero(t, b.(*Buffer).Bytes()[1024])
	assert.Error(t, b.Unmap(4097))

	_, err = b.Map(4000, 200, driver.MapDiscard)
	assert.ErrorIs(t, err, driver.ErrMapFailed)

	g.FailMap(true)
	_, err = b.Map(0, 16, driver.MapDiscard)
	assert.ErrorIs(t, err, driver.ErrMapFailed)
	assert.False(t, b.Mapped())
	assert.Equal(t, 2, b.(*Buffer).Maps())
}

func TestFailUnmap(t *testing.T) {
	g := New(DefaultLimits)
	b, err := g.NewBuffer(driver.KConst, 256)
	require.NoError(t, err)
	_, err = b.Map(0, 256, driver.MapDiscard)
	require.NoError(t, err)
	g.FailUnmap(true)
	assert.ErrorIs(t, b.Unmap(16), driver.ErrFatal)
	assert.False(t, b.(*Buffer).Mapped())
	g.FailUnmap(false)
	_, err = b.Map(0, 256, driver.MapNoOverwrite)
	require.NoError(t, err)
	assert.NoError(t, b.Unmap(16))
}

func TestExecute(t *testing.T) {
	g := New(DefaultLimits)
	b, err := g.NewBuffer(driver.KTex, 4096)
	require.NoError(t, err)

	var cb driver.CmdBuffer
	cb.Add(driver.Cmd{Op: driver.OpMap, Buf: b})
	cb.Add(driver.Cmd{Op: driver.OpBindTex, Buf: b, Off: 32, Size: 64})
	require.NoError(t, g.Execute(&cb))
	assert.Len(t, g.Executed(), 2)

	cb.Reset()
	cb.Add(driver.Cmd{Op: driver.OpBindTex, Buf: b, Off: 8})
	assert.Error(t, g.Execute(&cb), "misaligned offset")

	cb.Reset()
	cb.Add(driver.Cmd{Op: driver.OpBindConst, Buf: b, Off: 0, Size: 8192})
	assert.Error(t, g.Execute(&cb), "out of bounds")

	_, err = b.Map(0, 16, driver.MapDiscard)
	require.NoError(t, err)
	cb.Reset()
	cb.Add(driver.Cmd{Op: driver.OpBindTex, Buf: b})
	assert.Error(t, g.Execute(&cb), "mapped buffer")
	require.NoError(t, b.Unmap(0))

	assert.Len(t, g.Executed(), 2)
	g.ClearExecuted()
	assert.Empty(t, g.Executed())
}
