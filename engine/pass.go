// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/gviegas/pbs/engine/internal/shader"
	"github.com/gviegas/pbs/linear"
)

// Camera provides the matrices of the pass' point of
// view.
type Camera struct {
	View linear.M4
	Proj linear.M4
}

// ShadowNode is the interface that provides the shadow
// maps rendered for the current pass.
type ShadowNode interface {
	// NumShadowMaps returns the number of shadow maps.
	NumShadowMaps() int

	// ShadowMap returns the texture identifier of the
	// i-th shadow map and the view-projection matrix
	// used to render it.
	ShadowMap(i int) (tex uint32, viewProj linear.M4)
}

// PassKey identifies the pass-level render state.
// Its Hash is combined with per-material hashes to
// select programs.
type PassKey struct {
	Hash           uint32
	Caster         bool
	DualParaboloid bool
	Shadows        int
}

// PassData is the CPU-side copy of the data shared by
// every draw in a pass.
// It is built by Streamer.PreparePass and copied into a
// constant buffer by the first Streamer.FillBuffers call
// that follows.
type PassData struct {
	ViewProj   linear.M4
	View       linear.M4
	ShadowMaps []uint32
	// Vertex stage data: view-projection, view and the
	// view-projection of each shadow map.
	Vertex []float32
	// Pixel stage data: shadow map count and pass flags.
	Pixel []float32
}

// Size of the pass constant block in bytes.
const passBlockSize = (16*(2+MaxShadow) + 4) * 4

// build fills d from the given pass state.
// It reuses d's slices.
func (d *PassData) build(shadow ShadowNode, cam *Camera, caster, dualParaboloid bool) (key PassKey) {
	d.View = cam.View
	d.ViewProj.Mul(&cam.Proj, &cam.View)
	d.ShadowMaps = d.ShadowMaps[:0]
	d.Vertex = d.Vertex[:0]
	d.Pixel = d.Pixel[:0]
	d.Vertex = appendM4(d.Vertex, &d.ViewProj)
	d.Vertex = appendM4(d.Vertex, &d.View)

	// Caster passes do not sample shadow maps.
	if shadow != nil && !caster {
		n := min(shadow.NumShadowMaps(), MaxShadow)
		for i := 0; i < n; i++ {
			tex, vp := shadow.ShadowMap(i)
			d.ShadowMaps = append(d.ShadowMaps, tex)
			d.Vertex = appendM4(d.Vertex, &vp)
		}
	}
	var flags float32
	if caster {
		flags += 1
	}
	if dualParaboloid {
		flags += 2
	}
	d.Pixel = append(d.Pixel, float32(len(d.ShadowMaps)), flags, 0, 0)

	key = PassKey{
		Caster:         caster,
		DualParaboloid: dualParaboloid,
		Shadows:        len(d.ShadowMaps),
	}
	key.Hash = shader.Hash(boolBit(caster), boolBit(dualParaboloid), uint32(key.Shadows))
	return
}

func appendM4(s []float32, m *linear.M4) []float32 {
	for i := range m {
		s = append(s, m[i][:]...)
	}
	return s
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
