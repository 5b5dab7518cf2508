// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine streams per-pass and per-draw shader
// data into GPU buffers.
//
// A Streamer owns pools of constant and texture buffers
// that are written once per frame. Constant buffers are
// always mapped with discard semantics, whereas texture
// buffers are mapped with no-overwrite semantics and
// resume where the previous mapping ended. Data written
// by the CPU is never overwritten while the GPU may
// still read it, and bind commands that would not change
// the bound state are not recorded.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gviegas/pbs/driver"
	"github.com/gviegas/pbs/engine/internal/ctxt"
	"github.com/gviegas/pbs/engine/internal/shader"
	"github.com/gviegas/pbs/engine/material"
	"github.com/gviegas/pbs/linear"
)

const prefix = "engine: "

var (
	errNoCamera = errors.New(prefix + "nil Camera")
	errNoGPU    = errors.New(prefix + "nil GPU")
)

// Compiler is the interface that compiles the program
// of a shader variant.
// Programs that implement driver.Destroyer are destroyed
// when evicted from the program cache.
type Compiler interface {
	Compile(hash uint32, pass PassKey, v material.Variant) (any, error)
}

// CacheEntry is a compiled program and the render-state
// hash that identifies it.
type CacheEntry struct {
	Hash    uint32
	Variant material.Variant
	Program any
}

// Queued is a drawable queued for rendering.
type Queued struct {
	World     linear.M4
	Datablock *material.Datablock
	// Shared indicates that the drawable uses the same
	// per-draw matrices as the previously filled one
	// (e.g., an automatic instance). Its texture data is
	// not written again when still reachable.
	Shared bool
}

// Stats are counters of the current frame.
type Stats struct {
	Draws           int
	Passes          int
	ConstBuffers    int
	TexBuffers      int
	PassBuffers     int
	MaterialBuffers int
	Programs        int
}

// Streamer streams shader data into GPU buffers.
// The expected call sequence for every frame is:
//
//	BeginFrame
//	for each pass {
//		PreparePass
//		for each drawable { Program; FillBuffers }
//		PreCommandBufferExecution
//		(execute the command buffer)
//		PostCommandBufferExecution
//	}
//	FrameEnded
//
// A Streamer is not safe for concurrent use. Parallel
// recording needs one Streamer per goroutine.
type Streamer struct {
	gpu  driver.GPU
	lim  driver.Limits
	cfg  Config
	log  *slog.Logger
	m    *metrics
	comp Compiler
	prog *shader.Cache[*CacheEntry]

	cpool pool
	tpool pool
	ppool pool
	mpool pool
	cs    constStreamer
	ts    texStreamer
	mats  matPools

	inFrame bool
	pass    PassData
	key     PassKey
	hasPass bool
	// Pass data not yet copied into a buffer.
	passDirty bool
	passBuf   driver.Buffer
	passBound bool

	// Last-bound material pool and texture set.
	lastPool    *matPool
	lastTexHash uint32

	// Texel of the last per-draw block and the origin
	// it is relative to.
	sharedOK   bool
	sharedBuf  driver.Buffer
	sharedOff  int64
	sharedTexl uint32

	imm   driver.CmdBuffer
	stats Stats
}

// New creates a new Streamer.
// comp may be nil, in which case cache entries carry no
// program.
func New(gpu driver.GPU, comp Compiler, cfg Config) (*Streamer, error) {
	if gpu == nil {
		return nil, errNoGPU
	}
	s := &Streamer{
		comp: comp,
		cfg:  cfg,
		m:    newMetrics(),
	}
	s.setGPU(gpu)
	prog, err := shader.New(s.cfg.ProgramCacheSize, func(hash uint32, e *CacheEntry) {
		if d, ok := e.Program.(driver.Destroyer); ok {
			d.Destroy()
		}
		s.log.Debug("program evicted", "hash", hash)
	})
	if err != nil {
		return nil, fmt.Errorf(prefix+"creating program cache: %w", err)
	}
	s.prog = prog
	return s, nil
}

// setGPU creates empty pools for gpu.
func (s *Streamer) setGPU(gpu driver.GPU) {
	s.gpu = gpu
	s.lim = gpu.Limits()
	s.cfg.resolve(&s.lim)
	s.log = s.cfg.Logger
	newPool := func(p *pool, kind driver.BufKind, label string, dfl, max int64) {
		*p = pool{
			gpu:   gpu,
			kind:  kind,
			label: label,
			dfl:   dfl,
			max:   max,
			log:   s.log,
			m:     s.m,
		}
	}
	newPool(&s.cpool, driver.KConst, lblConst, s.cfg.ConstBufferSize, s.lim.MaxConstBuffer)
	newPool(&s.tpool, driver.KTex, lblTex, s.cfg.TexBufferDefaultSize, s.lim.MaxTexBuffer)
	s.tpool.shrink = true
	newPool(&s.ppool, driver.KConst, lblPass, passBlockSize, s.lim.MaxConstBuffer)
	newPool(&s.mpool, driver.KConst, lblMat, int64(s.cfg.MaterialsPerBuffer)*MaterialBlockSize, s.lim.MaxConstBuffer)
	s.cs = constStreamer{pool: &s.cpool}
	s.ts.init(&s.tpool, s.lim.TexBufferAlign)
	s.mats.init(&s.mpool, s.cfg.MaterialsPerBuffer)
	s.log.Info("streamer ready",
		"const_size", s.cfg.ConstBufferSize,
		"tex_size", s.cfg.TexBufferDefaultSize,
		"tex_align", s.lim.TexBufferAlign,
		"materials_per_buffer", s.cfg.MaterialsPerBuffer)
}

// Collectors returns the metrics collectors of s.
// They can be registered with a prometheus.Registerer.
func (s *Streamer) Collectors() []prometheus.Collector { return s.m.collectors() }

// Config returns the resolved configuration.
func (s *Streamer) Config() Config { return s.cfg }

// Stats returns the counters of the current frame.
func (s *Streamer) Stats() Stats {
	st := s.stats
	st.ConstBuffers = s.cpool.len()
	st.TexBuffers = s.tpool.len()
	st.PassBuffers = s.ppool.len()
	st.MaterialBuffers = s.mpool.len()
	st.Programs = s.prog.Len()
	return st
}

// SetTexBufferDefaultSize sets the size of texture
// buffers created from now on.
// Buffers that already exist are not affected.
func (s *Streamer) SetTexBufferDefaultSize(n int64) {
	if n <= 0 {
		n = dflTexBufferDefaultSize
	}
	if n > s.lim.MaxTexBuffer {
		s.log.Warn("texture buffer size clamped", "want", n, "max", s.lim.MaxTexBuffer)
		n = s.lim.MaxTexBuffer
	}
	s.cfg.TexBufferDefaultSize = n
	s.tpool.dfl = n
}

// BeginFrame starts a new frame.
// Every buffer is available again and both streamers
// start with nothing mapped.
func (s *Streamer) BeginFrame() {
	if s.inFrame {
		panic("engine.Streamer.BeginFrame: frame not ended")
	}
	s.inFrame = true
	s.stats = Stats{}
	s.hasPass = false
	s.passBuf = nil
	s.resetBindings()
}

// PreparePass builds the pass data for the given point
// of view and returns the pass key.
// shadow may be nil. Caster passes never sample shadow
// maps.
func (s *Streamer) PreparePass(shadow ShadowNode, cam *Camera, caster, dualParaboloid bool) (PassKey, error) {
	if !s.inFrame {
		panic("engine.Streamer.PreparePass: frame not begun")
	}
	if cam == nil {
		return PassKey{}, errNoCamera
	}
	s.key = s.pass.build(shadow, cam, caster, dualParaboloid)
	s.hasPass = true
	s.passDirty = true
	s.passBound = false
	// Per-draw matrices depend on the pass camera.
	s.sharedOK = false
	s.stats.Passes++
	return s.key, nil
}

// Pass returns the data of the current pass.
func (s *Streamer) Pass() *PassData { return &s.pass }

// Program returns the cache entry for drawing d in a
// pass identified by key, compiling the program if it is
// not cached.
func (s *Streamer) Program(key PassKey, d *material.Datablock) (*CacheEntry, error) {
	v := material.VariantOf(d.Features())
	h := shader.Hash(key.Hash, v.Hash())
	return s.prog.GetOrCreate(h, func() (*CacheEntry, error) {
		e := &CacheEntry{Hash: h, Variant: v}
		if s.comp != nil {
			p, err := s.comp.Compile(h, key, v)
			if err != nil {
				return nil, fmt.Errorf(prefix+"compiling %s variant: %w", v.Name(), err)
			}
			e.Program = p
		}
		s.log.Debug("program created", "hash", h, "variant", v.Name())
		return e, nil
	})
}

// RemoveDatablock releases the material block of d.
// d must not be referenced by commands that were not yet
// executed.
func (s *Streamer) RemoveDatablock(d *material.Datablock) { s.mats.remove(d) }

// FillBuffers writes the per-draw data of q into the
// mapped buffers and records the bind commands needed to
// draw it into cb.
// entry is the program q is drawn with and lastCacheHash
// is the hash of the program used by the previous draw
// (zero if none). It returns the draw ID, which is the
// index of the per-draw block in the bound constant
// buffer.
//
// On failure, the caller should drop q. Commands that
// were already recorded for it are still valid.
func (s *Streamer) FillBuffers(entry *CacheEntry, q *Queued, caster bool, lastCacheHash uint32, cb *driver.CmdBuffer) (drawID uint32, err error) {
	if !s.inFrame || !s.hasPass {
		panic("engine.Streamer.FillBuffers: no pass prepared")
	}
	ref, err := s.mats.add(q.Datablock)
	if err != nil {
		return 0, err
	}
	blk := 128
	if caster {
		blk = 64
	}

	if entry.Hash != lastCacheHash {
		cb.Add(driver.Cmd{Op: driver.OpSetProgram, Stage: driver.SAll, Arg: entry.Hash})
		if err = s.bindPass(cb); err != nil {
			return 0, err
		}
		// Shaders index per-draw texture data from the
		// start of the bound range, so the range restarts
		// whenever the program changes.
		if s.ts.mapped {
			err = s.ts.rebind(cb, true, int64(blk))
		} else {
			err = s.ts.mapNext(cb, int64(blk))
		}
		if err != nil {
			return 0, err
		}
		s.sharedOK = false
	} else if !s.passBound {
		if err = s.bindPass(cb); err != nil {
			return 0, err
		}
	}

	if ref.pool != s.lastPool {
		cb.Add(driver.Cmd{
			Op:    driver.OpBindConst,
			Stage: driver.SAll,
			Slot:  ConstSlotMaterial,
			Buf:   ref.pool.buf,
			Size:  int64(len(ref.pool.shadow)),
		})
		s.lastPool = ref.pool
	}
	if th := q.Datablock.TextureHash(); th != s.lastTexHash {
		if th != 0 {
			cb.Add(driver.Cmd{Op: driver.OpBindTextures, Stage: driver.SPixel, Arg: th})
		}
		s.lastTexHash = th
	}

	texel, err := s.writeTexData(cb, q, caster, blk)
	if err != nil {
		return 0, err
	}
	w, err := s.cs.reserve(cb, drawConstSize)
	if err != nil {
		return 0, err
	}
	drawID = uint32(w.Len() / drawConstSize)
	var flags uint32
	if caster {
		flags |= 1
	}
	w.PutUint32(uint32(ref.slot), uint32(ref.pool.idx), texel, flags)
	s.stats.Draws++
	return drawID, nil
}

// writeTexData writes the matrices of q into the texture
// buffer and returns the texel where they start.
func (s *Streamer) writeTexData(cb *driver.CmdBuffer, q *Queued, caster bool, blk int) (uint32, error) {
	if q.Shared && s.sharedOK && s.ts.mapped {
		if buf, off := s.ts.origin(); buf == s.sharedBuf && off == s.sharedOff {
			return s.sharedTexl, nil
		}
	}
	w, err := s.ts.reserve(cb, blk)
	if err != nil {
		return 0, err
	}
	texel := s.ts.texel()
	var m linear.M4
	m.Mul(&s.pass.ViewProj, &q.World)
	w.PutM4(&m)
	if !caster {
		m.Mul(&s.pass.View, &q.World)
		w.PutM4(&m)
	}
	s.sharedOK = true
	s.sharedBuf, s.sharedOff = s.ts.origin()
	s.sharedTexl = texel
	return texel, nil
}

// bindPass copies the pass data into a pass buffer if it
// changed and records its bind command.
func (s *Streamer) bindPass(cb *driver.CmdBuffer) error {
	if s.passDirty {
		buf, err := s.ppool.acquire(passBlockSize)
		if err != nil {
			return err
		}
		p, err := buf.Map(0, passBlockSize, driver.MapDiscard)
		if err != nil {
			return fmt.Errorf(prefix+"mapping pass buffer: %w", err)
		}
		w := newWindow(p)
		w.PutFloat32(s.pass.Vertex...)
		w.Next(16*(2+MaxShadow)*4 - w.Len())
		w.PutFloat32(s.pass.Pixel...)
		if err := buf.Unmap(int64(w.Len())); err != nil {
			return fmt.Errorf(prefix+"unmapping pass buffer: %w", err)
		}
		s.m.maps.WithLabelValues(lblPass).Inc()
		s.m.bytes.WithLabelValues(lblPass).Add(float64(w.Len()))
		s.passBuf = buf
		s.passDirty = false
		s.passBound = false
	}
	if !s.passBound {
		cb.Add(driver.Cmd{
			Op:    driver.OpBindConst,
			Stage: driver.SAll,
			Slot:  ConstSlotPass,
			Buf:   s.passBuf,
			Size:  passBlockSize,
		})
		s.passBound = true
	}
	return nil
}

// FillBuffersImmediate is like FillBuffers, but records
// into a command buffer owned by s, which is executed by
// Flush.
// lastTextureHash is the texture set currently bound.
// It returns the texture set bound after the call.
func (s *Streamer) FillBuffersImmediate(entry *CacheEntry, q *Queued, caster bool, lastCacheHash, lastTextureHash uint32) (textureHash uint32, err error) {
	s.lastTexHash = lastTextureHash
	if _, err = s.FillBuffers(entry, q, caster, lastCacheHash, &s.imm); err != nil {
		return lastTextureHash, err
	}
	return s.lastTexHash, nil
}

// Immediate returns the command buffer used by
// FillBuffersImmediate. Callers append their draw
// commands to it.
func (s *Streamer) Immediate() *driver.CmdBuffer { return &s.imm }

// Flush executes the commands recorded by
// FillBuffersImmediate.
func (s *Streamer) Flush() error {
	if s.imm.Len() == 0 {
		return nil
	}
	defer s.imm.Reset()
	if err := s.PreCommandBufferExecution(&s.imm); err != nil {
		return err
	}
	err := s.gpu.Execute(&s.imm)
	s.PostCommandBufferExecution(&s.imm)
	if err != nil {
		return fmt.Errorf(prefix+"executing commands: %w", err)
	}
	return nil
}

// PreCommandBufferExecution must be called before cb is
// executed.
// It uploads material blocks that changed, finishes the
// last texture buffer bind and unmaps the buffers that
// cb refers to.
// The buffers are unmapped even if the upload fails.
func (s *Streamer) PreCommandBufferExecution(cb *driver.CmdBuffer) error {
	n, errM := s.mats.sync()
	if n > 0 {
		s.log.Debug("material buffers uploaded", "count", n)
	}
	errT := s.ts.unmap(cb)
	errC := s.cs.unmap(cb)
	return errors.Join(errM, errT, errC)
}

// PostCommandBufferExecution must be called after cb is
// executed.
// The next draw binds everything again.
func (s *Streamer) PostCommandBufferExecution(cb *driver.CmdBuffer) {
	s.resetBindings()
}

func (s *Streamer) resetBindings() {
	s.lastPool = nil
	s.lastTexHash = 0
	s.passBound = false
	s.sharedOK = false
	s.ts.forgetBind()
}

// FrameEnded must be called once all commands of the
// frame were submitted.
// Buffers that are still mapped are unmapped and every
// cursor is reset. Buffers used in this frame are not
// handed out again until the next frame.
func (s *Streamer) FrameEnded() error {
	errT := s.ts.unmap(nil)
	errC := s.cs.unmap(nil)
	s.ts.reset()
	s.cs.reset()
	s.ppool.reset()
	s.imm.Reset()
	s.resetBindings()
	s.inFrame = false
	s.log.Debug("frame ended",
		"draws", s.stats.Draws,
		"passes", s.stats.Passes,
		"const_buffers", s.cpool.len(),
		"tex_buffers", s.tpool.len())
	return errors.Join(errT, errC)
}

// Destroy destroys every buffer and cached program.
// s must not be used afterward, except for ChangeGPU.
func (s *Streamer) Destroy() {
	if err := errors.Join(s.ts.unmap(nil), s.cs.unmap(nil)); err != nil {
		s.log.Error("unmapping on destroy", "err", err)
	}
	s.cpool.destroy()
	s.tpool.destroy()
	s.ppool.destroy()
	s.mats.destroy()
	s.prog.Purge()
	s.imm.Reset()
	s.stats = Stats{}
	s.inFrame = false
	s.hasPass = false
	s.passBuf = nil
	s.resetBindings()
	s.ts.init(&s.tpool, s.lim.TexBufferAlign)
}

// ChangeGPU destroys every buffer and cached program and
// starts using gpu.
// Datablocks are assigned new material blocks as they are
// drawn again.
func (s *Streamer) ChangeGPU(gpu driver.GPU) error {
	if gpu == nil {
		return errNoGPU
	}
	s.Destroy()
	s.setGPU(gpu)
	return nil
}

// OpenDriver opens the first registered driver whose
// name contains name (case insensitive). An empty name
// matches any driver.
// Driver packages register themselves when imported.
func OpenDriver(name string) (driver.Driver, driver.GPU, error) { return ctxt.Open(name) }
