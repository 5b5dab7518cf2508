// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package material

import (
	"encoding/binary"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// Variant is the shader variant of a feature set.
// It provides the properties from which the shader
// generator builds a program and the hash that
// identifies them.
type Variant interface {
	// Name returns the variant's name.
	Name() string

	// Features returns the feature set.
	Features() Feature

	// Properties returns the shader properties.
	Properties() map[string]int

	// Hash returns the render-state hash of the
	// variant. It depends only on the features.
	Hash() uint32
}

// VariantOf returns the Variant for a feature set.
func VariantOf(f Feature) Variant {
	switch {
	case f&(FDetail|FDetailNm|FDetailWeight) != 0:
		return detailMapped{f}
	case f&FNormal != 0:
		return normalMapped{f}
	default:
		return diffuseOnly{f}
	}
}

// Properties shared by every variant.
func baseProperties(f Feature) map[string]int {
	p := map[string]int{
		"num_textures": bits.OnesCount32(uint32(f &^ FHwGamma)),
	}
	set := func(k string, x Feature) {
		if f&x != 0 {
			p[k] = 1
		}
	}
	set("diffuse_map", FDiffuse)
	set("specular_map", FSpecular)
	set("roughness_map", FRoughness)
	set("envprobe_map", FEnvProbe)
	set("hw_gamma_read", FHwGamma)
	return p
}

// Variant kinds, used in hashes.
const (
	kindDiffuse = iota + 1
	kindNormal
	kindDetail
)

func hash(kind int, f Feature) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[:], uint32(kind))
	binary.LittleEndian.PutUint32(b[4:], uint32(f))
	h := xxhash.Sum64(b[:])
	return uint32(h ^ h>>32)
}

// diffuseOnly is the variant of materials that have no
// normal or detail maps.
type diffuseOnly struct{ f Feature }

func (v diffuseOnly) Name() string               { return "diffuse" }
func (v diffuseOnly) Features() Feature          { return v.f }
func (v diffuseOnly) Properties() map[string]int { return baseProperties(v.f) }
func (v diffuseOnly) Hash() uint32               { return hash(kindDiffuse, v.f) }

// normalMapped is the variant of materials that have a
// normal map but no detail maps.
type normalMapped struct{ f Feature }

func (v normalMapped) Name() string      { return "normal" }
func (v normalMapped) Features() Feature { return v.f }
func (v normalMapped) Hash() uint32      { return hash(kindNormal, v.f) }

func (v normalMapped) Properties() map[string]int {
	p := baseProperties(v.f)
	p["normal_map_tex"] = 1
	p["normal_map"] = 1
	return p
}

// detailMapped is the variant of materials that have
// detail maps, with or without a normal map.
type detailMapped struct{ f Feature }

func (v detailMapped) Name() string      { return "detail" }
func (v detailMapped) Features() Feature { return v.f }
func (v detailMapped) Hash() uint32      { return hash(kindDetail, v.f) }

func (v detailMapped) Properties() map[string]int {
	p := baseProperties(v.f)
	if v.f&FDetailWeight != 0 {
		p["detail_weight_map"] = 1
	}
	diffuse := (v.f & FDetail) / FDetail0
	normal := (v.f & FDetailNm) / FDetailNm0
	p["detail_maps_diffuse"] = bits.Len32(uint32(diffuse))
	p["detail_maps_normal"] = bits.Len32(uint32(normal))
	if normal != 0 {
		p["first_valid_detail_map_nm"] = bits.TrailingZeros32(uint32(normal))
		p["normal_map"] = 1
	}
	if v.f&FNormal != 0 {
		p["normal_map_tex"] = 1
		p["normal_map"] = 1
	}
	return p
}
