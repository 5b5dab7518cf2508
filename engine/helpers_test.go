// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"io"
	"log/slog"

	"github.com/gviegas/pbs/driver"
	"github.com/gviegas/pbs/driver/soft"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// testLimits are the limits of GPUs used in tests.
// The texture buffer alignment is larger than the
// element size so that rounding is observable.
var testLimits = driver.Limits{
	MaxConstBuffer:   65536,
	MaxTexBuffer:     64 << 20,
	ConstBufferAlign: 256,
	TexBufferAlign:   64,
}

func newTestPool(gpu driver.GPU, kind driver.BufKind, label string, dfl, max int64) *pool {
	return &pool{
		gpu:   gpu,
		kind:  kind,
		label: label,
		dfl:   dfl,
		max:   max,
		log:   discard,
		m:     newMetrics(),
	}
}

func newTestTex(gpu *soft.GPU, dfl int64) *texStreamer {
	lim := gpu.Limits()
	s := new(texStreamer)
	s.init(newTestPool(gpu, driver.KTex, lblTex, dfl, lim.MaxTexBuffer), lim.TexBufferAlign)
	return s
}

// cmdsOf returns the commands of cb whose Op is op.
func cmdsOf(cb *driver.CmdBuffer, op driver.Op) (s []driver.Cmd) {
	for _, c := range cb.Cmds() {
		if c.Op == op {
			s = append(s, c)
		}
	}
	return
}
