// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pool labels.
const (
	lblConst = "const"
	lblTex   = "tex"
	lblPass  = "pass"
	lblMat   = "material"
)

// metrics holds the collectors of a Streamer.
type metrics struct {
	created *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	maps    *prometheus.CounterVec
	buffers *prometheus.GaugeVec
	rebinds prometheus.Counter
	elided  prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbs",
			Name:      "buffers_created_total",
			Help:      "Number of GPU buffers created, by pool.",
		}, []string{"pool"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbs",
			Name:      "bytes_streamed_total",
			Help:      "Number of bytes written to mapped buffers, by pool.",
		}, []string{"pool"}),
		maps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbs",
			Name:      "maps_total",
			Help:      "Number of buffer map operations, by pool.",
		}, []string{"pool"}),
		buffers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pbs",
			Name:      "pool_buffers",
			Help:      "Number of buffers owned by each pool.",
		}, []string{"pool"}),
		rebinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pbs",
			Name:      "rebinds_total",
			Help:      "Number of texture buffer bind commands recorded.",
		}),
		elided: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pbs",
			Name:      "rebinds_elided_total",
			Help:      "Number of texture buffer bind commands skipped as redundant.",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.created, m.bytes, m.maps, m.buffers, m.rebinds, m.elided}
}
