// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package material implements the datablocks used to
// describe PBS materials and the selection of shader
// variants from their feature sets.
package material

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// TexType identifies a texture unit of a datablock.
type TexType int

// Texture units.
const (
	TDiffuse TexType = iota
	TNormal
	TSpecular
	TRoughness
	TDetailWeight
	TDetail0
	TDetail1
	TDetail2
	TDetail3
	TDetailNm0
	TDetailNm1
	TDetailNm2
	TDetailNm3
	TEnvProbe
	NumTexType
)

// Feature is a mask of datablock features.
// Each texture unit that is set contributes one bit.
type Feature uint32

// Features.
const (
	FDiffuse Feature = 1 << iota
	FNormal
	FSpecular
	FRoughness
	FDetailWeight
	FDetail0
	FDetail1
	FDetail2
	FDetail3
	FDetailNm0
	FDetailNm1
	FDetailNm2
	FDetailNm3
	FEnvProbe

	// Not tied to a texture unit.
	FHwGamma

	FDetail   = FDetail0 | FDetail1 | FDetail2 | FDetail3
	FDetailNm = FDetailNm0 | FDetailNm1 | FDetailNm2 | FDetailNm3
)

// TexRef identifies a texture and the sampler used with
// it. The zero value means no texture.
type TexRef struct {
	Texture uint32
	Sampler uint32
}

// Maximum size of a datablock's parameters in bytes.
// It matches the size of a material block in GPU memory.
const MaxParams = 256

var errParams = errors.New("material: parameters exceed MaxParams bytes")

// Datablock describes a material.
// Its parameters are opaque bytes that are copied
// verbatim into the material's constant block.
type Datablock struct {
	name    string
	tex     [NumTexType]TexRef
	feat    Feature
	params  []byte
	dirty   bool
	texHash uint32
}

// New creates a new datablock.
func New(name string) *Datablock {
	return &Datablock{name: name, dirty: true}
}

// Name returns d's name.
func (d *Datablock) Name() string { return d.name }

// SetTexture sets the texture of unit t.
// The zero TexRef removes the texture.
func (d *Datablock) SetTexture(t TexType, ref TexRef) {
	d.tex[t] = ref
	if ref == (TexRef{}) {
		d.feat &^= 1 << t
	} else {
		d.feat |= 1 << t
	}
	d.texHash = 0
}

// Texture returns the texture of unit t.
func (d *Datablock) Texture(t TexType) TexRef { return d.tex[t] }

// SetHwGamma sets whether textures are read with
// hardware gamma correction.
func (d *Datablock) SetHwGamma(on bool) {
	if on {
		d.feat |= FHwGamma
	} else {
		d.feat &^= FHwGamma
	}
}

// Features returns d's feature mask.
func (d *Datablock) Features() Feature { return d.feat }

// SetParams sets d's parameters.
// The data is copied.
func (d *Datablock) SetParams(p []byte) error {
	if len(p) > MaxParams {
		return errParams
	}
	d.params = append(d.params[:0], p...)
	d.dirty = true
	return nil
}

// Params returns d's parameters.
func (d *Datablock) Params() []byte { return d.params }

// Dirty returns whether d's parameters changed since
// the last call to ClearDirty.
func (d *Datablock) Dirty() bool { return d.dirty }

// ClearDirty marks d's parameters as uploaded.
func (d *Datablock) ClearDirty() { d.dirty = false }

// MarkDirty forces d's parameters to be uploaded again.
func (d *Datablock) MarkDirty() { d.dirty = true }

// TextureHash returns a hash of d's texture set.
// Datablocks that have the same textures and samplers
// have the same hash. It is zero if d has no textures.
func (d *Datablock) TextureHash() uint32 {
	if d.feat&^FHwGamma == 0 {
		return 0
	}
	if d.texHash == 0 {
		var b [8 * NumTexType]byte
		for i, x := range d.tex {
			binary.LittleEndian.PutUint32(b[8*i:], x.Texture)
			binary.LittleEndian.PutUint32(b[8*i+4:], x.Sampler)
		}
		h := xxhash.Sum64(b[:])
		if d.texHash = uint32(h ^ h>>32); d.texHash == 0 {
			d.texHash = 1
		}
	}
	return d.texHash
}
