// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create buffers and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// NewBuffer creates a new buffer of the given kind.
	// The buffer's capacity may be greater than size,
	// but never smaller.
	// If the device cannot satisfy the request, it must
	// return ErrNoDeviceMemory (possibly wrapped).
	NewBuffer(kind BufKind, size int64) (Buffer, error)

	// Execute executes the commands recorded in cb.
	// Buffers referenced by cb must not be mapped.
	// It does not modify cb.
	Execute(cb *CmdBuffer) error

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// BufKind is the type of a buffer's kind.
type BufKind int

// Buffer kinds.
const (
	// Constant (uniform) buffer.
	// It is small and replaced often.
	KConst BufKind = iota
	// Texture buffer.
	// It is large and addressed as a 1D texture
	// of RGBA32F texels.
	KTex
)

// String implements fmt.Stringer.
func (k BufKind) String() string {
	switch k {
	case KConst:
		return "const"
	case KTex:
		return "tex"
	}
	return "unknown"
}

// MapMode is the type of a buffer map policy.
type MapMode int

// Map modes.
const (
	// The previous contents of the whole buffer may
	// be ignored. The driver need not wait for the
	// GPU to finish reading from it.
	MapDiscard MapMode = iota
	// The mapped range is not in use by the GPU.
	// The driver need not wait nor discard.
	MapNoOverwrite
)

// Buffer is the interface that defines a GPU buffer.
// A buffer is either idle or mapped. Map moves it to
// the mapped state and Unmap back to idle. Mapping a
// buffer that is already mapped is a programming error
// and implementations may panic.
type Buffer interface {
	Destroyer

	// Kind returns the buffer's kind.
	Kind() BufKind

	// Cap returns the capacity of the buffer in bytes,
	// which may be greater than the size requested during
	// buffer creation.
	// This value is immutable.
	Cap() int64

	// Map maps n bytes starting at off.
	// The returned slice has length n and is only valid
	// until Unmap is called.
	Map(off, n int64, mode MapMode) ([]byte, error)

	// Unmap unmaps the buffer.
	// written is the number of bytes, from the start of
	// the mapped range, that the caller wrote. Only this
	// prefix needs to be made visible to the device.
	Unmap(written int64) error

	// Mapped returns whether the buffer is mapped.
	Mapped() bool
}

// Limits describes the implementation limits.
type Limits struct {
	// Maximum size of a constant buffer range.
	MaxConstBuffer int64
	// Maximum size of a texture buffer.
	MaxTexBuffer int64
	// Required alignment of constant buffer bind
	// offsets, in bytes.
	ConstBufferAlign int64
	// Required alignment of texture buffer view
	// offsets, in bytes. It is a multiple of 4.
	TexBufferAlign int64
}
