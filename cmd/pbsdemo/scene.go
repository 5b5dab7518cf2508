// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sort"

	"github.com/chewxy/math32"

	"github.com/gviegas/pbs/driver"
	"github.com/gviegas/pbs/engine"
	"github.com/gviegas/pbs/engine/material"
	"github.com/gviegas/pbs/linear"
)

// Drawables per command buffer.
const segment = 512

// scene is a grid of drawables sharing a few materials.
type scene struct {
	mats   []*material.Datablock
	objs   []object
	light  light
	cb     driver.CmdBuffer
	center linear.V3
}

type object struct {
	q engine.Queued
}

// light is a directional light with a single shadow map.
type light struct {
	viewProj linear.M4
}

func (l *light) NumShadowMaps() int { return 1 }

func (l *light) ShadowMap(int) (uint32, linear.M4) { return 1, l.viewProj }

func newScene(n int) *scene {
	sc := new(scene)
	feats := [][]material.TexType{
		{material.TDiffuse},
		{material.TDiffuse, material.TNormal},
		{material.TDiffuse, material.TDetail0, material.TDetailNm0},
		{material.TDiffuse, material.TSpecular, material.TRoughness},
	}
	for i, f := range feats {
		d := material.New(string(rune('A' + i)))
		for j, t := range f {
			d.SetTexture(t, material.TexRef{Texture: uint32(10*i + j + 1), Sampler: 1})
		}
		var p [16]byte
		for k := 0; k < 4; k++ {
			binary.LittleEndian.PutUint32(p[4*k:], math.Float32bits(float32(i+1)/float32(len(feats))))
		}
		d.SetParams(p[:])
		sc.mats = append(sc.mats, d)
	}

	side := int(math32.Ceil(math32.Sqrt(float32(n))))
	sc.objs = make([]object, n)
	for i := range sc.objs {
		o := &sc.objs[i]
		o.q.Datablock = sc.mats[i%len(sc.mats)]
		x, z := float32(i%side)*2, float32(i/side)*2
		o.q.World.Translate(x, 0, z)
		sc.center[0] += x / float32(n)
		sc.center[2] += z / float32(n)
	}
	// Group by material to reduce program switches.
	sort.SliceStable(sc.objs, func(i, j int) bool {
		return sc.objs[i].q.Datablock.Name() < sc.objs[j].q.Datablock.Name()
	})
	// Consecutive pairs are drawn twice from the same
	// per-draw data.
	for i := 1; i < len(sc.objs); i += 2 {
		if sc.objs[i].q.Datablock == sc.objs[i-1].q.Datablock {
			sc.objs[i].q.World = sc.objs[i-1].q.World
			sc.objs[i].q.Shared = true
		}
	}

	var view, proj linear.M4
	eye := linear.V3{sc.center[0] + 20, 40, sc.center[2] + 20}
	view.LookAt(&eye, &sc.center, &linear.V3{0, 1, 0})
	proj.Perspective(math32.Pi/2, 1, 1, 200)
	sc.light.viewProj.Mul(&proj, &view)
	return sc
}

// camera returns the camera of frame i, orbiting the
// scene's center.
func (sc *scene) camera(i int) *engine.Camera {
	var cam engine.Camera
	a := float32(i) * 0.05
	eye := linear.V3{sc.center[0] + 30*math32.Cos(a), 15, sc.center[2] + 30*math32.Sin(a)}
	cam.View.LookAt(&eye, &sc.center, &linear.V3{0, 1, 0})
	cam.Proj.Perspective(math32.Pi/3, 16.0/9.0, 0.1, 500)
	return &cam
}

// frame streams a shadow caster pass followed by the
// main pass. It returns the number of draws recorded.
// Drawables that cannot be streamed are dropped.
func (sc *scene) frame(s *engine.Streamer, gpu driver.GPU, i int, log *slog.Logger) (draws int, err error) {
	s.BeginFrame()
	defer func() {
		if e := s.FrameEnded(); err == nil {
			err = e
		}
	}()
	cam := sc.camera(i)
	for _, caster := range [...]bool{true, false} {
		key, err := s.PreparePass(&sc.light, cam, caster, false)
		if err != nil {
			return draws, err
		}
		var last uint32
		for j := range sc.objs {
			o := &sc.objs[j]
			e, err := s.Program(key, o.q.Datablock)
			if err != nil {
				return draws, err
			}
			id, err := s.FillBuffers(e, &o.q, caster, last, &sc.cb)
			if err != nil {
				log.Warn("drawable dropped", "index", j, "err", err)
				last = 0
				continue
			}
			sc.cb.Add(driver.Cmd{Op: driver.OpDraw, Arg: id})
			last = e.Hash
			draws++
			if (j+1)%segment == 0 {
				if err := submit(s, gpu, &sc.cb); err != nil {
					return draws, err
				}
				last = 0
			}
		}
		if err := submit(s, gpu, &sc.cb); err != nil {
			return draws, err
		}
	}
	return draws, nil
}
