// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"testing"
)

func TestCmdBuffer(t *testing.T) {
	var cb CmdBuffer
	if n := cb.Len(); n != 0 {
		t.Fatalf("CmdBuffer.Len:\nhave %d\nwant 0", n)
	}
	if c := cb.At(0); c != nil {
		t.Fatalf("CmdBuffer.At(0):\nhave %v\nwant nil", c)
	}

	ops := [...]Op{OpMap, OpBindConst, OpBindTex, OpBindTex, OpUnmap, OpDraw}
	for i, op := range ops {
		if idx := cb.Add(Cmd{Op: op, Slot: i}); idx != i {
			t.Fatalf("CmdBuffer.Add:\nhave %d\nwant %d", idx, i)
		}
	}
	if n := cb.Len(); n != len(ops) {
		t.Fatalf("CmdBuffer.Len:\nhave %d\nwant %d", n, len(ops))
	}
	if n := cb.Count(OpBindTex); n != 2 {
		t.Fatalf("CmdBuffer.Count(OpBindTex):\nhave %d\nwant 2", n)
	}
	if n := cb.Count(OpSetProgram); n != 0 {
		t.Fatalf("CmdBuffer.Count(OpSetProgram):\nhave %d\nwant 0", n)
	}

	// Patching through At must be visible in Cmds.
	cb.At(2).Size = 4096
	if s := cb.Cmds()[2].Size; s != 4096 {
		t.Fatalf("CmdBuffer.At(2).Size:\nhave %d\nwant 4096", s)
	}
	if c := cb.At(len(ops)); c != nil {
		t.Fatalf("CmdBuffer.At(%d):\nhave %v\nwant nil", len(ops), c)
	}
	if c := cb.At(-1); c != nil {
		t.Fatalf("CmdBuffer.At(-1):\nhave %v\nwant nil", c)
	}

	cb.Reset()
	if n := cb.Len(); n != 0 {
		t.Fatalf("CmdBuffer.Reset: Len\nhave %d\nwant 0", n)
	}
	if cap(cb.cmds) < len(ops) {
		t.Fatal("CmdBuffer.Reset: storage should be kept")
	}
}

func TestStrings(t *testing.T) {
	for _, x := range [...][2]string{
		{KConst.String(), "const"},
		{KTex.String(), "tex"},
		{BufKind(-1).String(), "unknown"},
		{OpBindTex.String(), "BindTex"},
		{Op(99).String(), "Op(99)"},
	} {
		if x[0] != x[1] {
			t.Fatalf("String:\nhave %s\nwant %s", x[0], x[1])
		}
	}
	if SAll != SVertex|SPixel {
		t.Fatalf("SAll:\nhave %d\nwant %d", SAll, SVertex|SPixel)
	}
}
