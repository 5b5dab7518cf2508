// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pelletier/go-toml/v2"

	"github.com/gviegas/pbs/driver"
	"github.com/gviegas/pbs/engine/material"
)

const (
	// The maximum number of shadow maps per pass.
	MaxShadow = 4

	// Size of a material block in bytes.
	MaterialBlockSize = material.MaxParams

	dflTexBufferDefaultSize = 4 << 20
	dflConstBufferSize      = 65536
	dflMaterialsPerBuffer   = 256
	dflProgramCacheSize     = 1024
)

// Config is used to configure a Streamer.
// It can be decoded from TOML (see LoadConfig).
type Config struct {
	// The suggested size of texture buffers.
	// Texture buffers may be larger if a single request
	// needs more space, and smaller if the device cannot
	// honor the size.
	//
	// Default is 4194304 bytes (4MiB).
	TexBufferDefaultSize int64 `toml:"tex_buffer_default_size"`

	// The size of constant buffers.
	// It is clamped to the device limit.
	//
	// Default is 65536 bytes.
	ConstBufferSize int64 `toml:"const_buffer_size"`

	// The number of material blocks in each material
	// buffer.
	//
	// Default is 256.
	MaterialsPerBuffer int `toml:"materials_per_buffer"`

	// The maximum number of programs kept in the
	// program cache.
	//
	// Default is 1024.
	ProgramCacheSize int `toml:"program_cache_size"`

	// Logger receives buffer creation and error events.
	//
	// Default is slog.Default().
	Logger *slog.Logger `toml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		TexBufferDefaultSize: dflTexBufferDefaultSize,
		ConstBufferSize:      dflConstBufferSize,
		MaterialsPerBuffer:   dflMaterialsPerBuffer,
		ProgramCacheSize:     dflProgramCacheSize,
	}
}

// LoadConfig decodes a TOML configuration from r.
// Keys that are not present keep their default values.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf(prefix+"decoding config: %w", err)
	}
	return cfg, nil
}

// resolve replaces unset fields with defaults and clamps
// sizes to the device limits.
func (c *Config) resolve(lim *driver.Limits) {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.TexBufferDefaultSize <= 0 {
		c.TexBufferDefaultSize = dflTexBufferDefaultSize
	}
	if c.TexBufferDefaultSize > lim.MaxTexBuffer {
		c.Logger.Warn("texture buffer size clamped", "want", c.TexBufferDefaultSize, "max", lim.MaxTexBuffer)
		c.TexBufferDefaultSize = lim.MaxTexBuffer
	}
	if c.ConstBufferSize <= 0 {
		c.ConstBufferSize = dflConstBufferSize
	}
	if c.ConstBufferSize > lim.MaxConstBuffer {
		c.Logger.Warn("constant buffer size clamped", "want", c.ConstBufferSize, "max", lim.MaxConstBuffer)
		c.ConstBufferSize = lim.MaxConstBuffer
	}
	if c.MaterialsPerBuffer <= 0 {
		c.MaterialsPerBuffer = dflMaterialsPerBuffer
	}
	if n := lim.MaxConstBuffer / MaterialBlockSize; int64(c.MaterialsPerBuffer) > n {
		c.MaterialsPerBuffer = int(n)
	}
	if c.ProgramCacheSize <= 0 {
		c.ProgramCacheSize = dflProgramCacheSize
	}
}
