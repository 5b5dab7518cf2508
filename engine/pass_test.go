// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/pbs/linear"
)

// shadowMaps implements ShadowNode.
type shadowMaps []linear.M4

func (s shadowMaps) NumShadowMaps() int { return len(s) }

func (s shadowMaps) ShadowMap(i int) (uint32, linear.M4) { return uint32(100 + i), s[i] }

func testCamera() *Camera {
	var cam Camera
	cam.View.Translate(0, 0, -5)
	cam.Proj.Perspective(1, 16.0/9.0, 0.1, 100)
	return &cam
}

func TestPassData(t *testing.T) {
	cam := testCamera()
	shadow := make(shadowMaps, MaxShadow+2)
	for i := range shadow {
		shadow[i].Translate(float32(i), 0, 0)
	}
	var d PassData

	key := d.build(shadow, cam, false, false)
	assert.Equal(t, MaxShadow, key.Shadows)
	assert.False(t, key.Caster)
	assert.NotZero(t, key.Hash)
	assert.Equal(t, []uint32{100, 101, 102, 103}, d.ShadowMaps)
	require.Len(t, d.Vertex, 16*(2+MaxShadow))
	assert.Equal(t, []float32{MaxShadow, 0, 0, 0}, d.Pixel)
	var vp linear.M4
	vp.Mul(&cam.Proj, &cam.View)
	assert.Equal(t, vp, d.ViewProj)
	assert.Equal(t, cam.View, d.View)
	assert.Equal(t, vp[0][:], d.Vertex[:4])
	assert.Equal(t, shadow[3][3][:], d.Vertex[16*5+12:16*5+16])
	assert.LessOrEqual(t, 4*(16*(2+MaxShadow)+len(d.Pixel)), passBlockSize)

	// Caster passes sample no shadow maps.
	ckey := d.build(shadow, cam, true, false)
	assert.Equal(t, 0, ckey.Shadows)
	assert.True(t, ckey.Caster)
	assert.Empty(t, d.ShadowMaps)
	assert.Len(t, d.Vertex, 32)
	assert.Equal(t, []float32{0, 1, 0, 0}, d.Pixel)
	assert.NotEqual(t, key.Hash, ckey.Hash)

	dkey := d.build(nil, cam, false, true)
	assert.Equal(t, []float32{0, 2, 0, 0}, d.Pixel)
	assert.NotEqual(t, ckey.Hash, dkey.Hash)

	// Same state, same key.
	assert.Equal(t, key, d.build(shadow, cam, false, false))
	assert.Equal(t, dkey, d.build(shadowMaps{}, cam, false, true))
}
