// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"fmt"
)

// Op is the type of a command.
type Op int

// Commands.
const (
	// A buffer was mapped for writing.
	// Only Buf is meaningful. Drivers ignore it.
	OpMap Op = iota
	// A buffer was unmapped.
	// Size is the number of bytes written.
	// Drivers ignore it.
	OpUnmap
	// Bind Size bytes of Buf starting at Off to the
	// constant buffer slot Slot of Stage.
	OpBindConst
	// Bind a texture buffer view of Buf starting at
	// Off to the texture slot Slot of Stage.
	// A zero Size means the rest of the buffer.
	OpBindTex
	// Bind the texture set identified by Arg.
	OpBindTextures
	// Set the program identified by Arg.
	OpSetProgram
	// Draw with draw ID Arg.
	OpDraw
)

// String implements fmt.Stringer.
func (op Op) String() string {
	switch op {
	case OpMap:
		return "Map"
	case OpUnmap:
		return "Unmap"
	case OpBindConst:
		return "BindConst"
	case OpBindTex:
		return "BindTex"
	case OpBindTextures:
		return "BindTextures"
	case OpSetProgram:
		return "SetProgram"
	case OpDraw:
		return "Draw"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Stage is a mask of programmable stages.
type Stage int

// Stages.
const (
	SVertex Stage = 1 << iota
	SPixel
	SAll Stage = 1<<iota - 1
)

// Cmd is a single recorded command.
// The meaning of each field depends on Op.
type Cmd struct {
	Op    Op
	Stage Stage
	Slot  int
	Buf   Buffer
	Off   int64
	Size  int64
	Arg   uint32
}

// CmdBuffer is an append-only list of commands.
// Commands are recorded by the streaming code and later
// handed to GPU.Execute. A recorded command may be
// patched in place through At, which is how a bind
// command gets its final size after the data it covers
// has been written.
// The zero value is an empty command buffer ready to use.
type CmdBuffer struct {
	cmds []Cmd
}

// Add appends c to the command buffer.
// It returns the index of c, which can be given to At.
func (b *CmdBuffer) Add(c Cmd) int {
	b.cmds = append(b.cmds, c)
	return len(b.cmds) - 1
}

// At returns the command at index i, or nil if i is
// out of bounds.
func (b *CmdBuffer) At(i int) *Cmd {
	if i < 0 || i >= len(b.cmds) {
		return nil
	}
	return &b.cmds[i]
}

// Len returns the number of commands in b.
func (b *CmdBuffer) Len() int { return len(b.cmds) }

// Cmds returns the recorded commands.
// The slice is only valid until the next call to Add or
// Reset.
func (b *CmdBuffer) Cmds() []Cmd { return b.cmds }

// Count returns the number of commands of a given type.
func (b *CmdBuffer) Count(op Op) (n int) {
	for i := range b.cmds {
		if b.cmds[i].Op == op {
			n++
		}
	}
	return
}

// Reset discards all recorded commands.
func (b *CmdBuffer) Reset() {
	for i := range b.cmds {
		// Drop buffer references.
		b.cmds[i] = Cmd{}
	}
	b.cmds = b.cmds[:0]
}
