// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package metrics wires the engine's live counters into Prometheus. The
// engine itself only ever sees the narrow Source interface below; it
// never imports prometheus directly.
package metrics

import (
	"errors"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()

	// GRPCMetrics instruments the health/reflection gRPC server; the
	// metadata RPCs themselves run over the JSON/HTTP transport and are
	// counted by httpRequests below.
	GRPCMetrics = grpcprometheus.NewServerMetrics(
		func(c *prometheus.CounterOpts) {
			c.Namespace = "blockmaster"
		},
	)

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockmaster",
		Subsystem: "http",
		Name:      "requests_total",
	}, []string{"method", "code"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockmaster",
		Subsystem: "http",
		Name:      "request_duration_seconds",
	}, []string{"method"})
)

func init() {
	Registry.MustRegister(GRPCMetrics, httpRequests, httpLatency)
	GRPCMetrics.EnableHandlingTimeHistogram(
		func(h *prometheus.HistogramOpts) {
			h.Namespace = "blockmaster"
		},
	)
}

// ObserveHTTP records one handled request, mirroring the per-RPC counters
// the teacher's gRPC interceptor keeps for the metadata service.
func ObserveHTTP(method, code string, seconds float64) {
	httpRequests.WithLabelValues(method, code).Inc()
	httpLatency.WithLabelValues(method).Observe(seconds)
}

// Source is the live state the gauges below poll. The engine implements
// it; nothing in the engine imports this package's dependencies.
type Source interface {
	CapacityBytes() uint64
	UsedBytes() uint64
	WorkerCount() int
}

// RegisterMasterGauges wires CapacityTotal/CapacityUsed/CapacityFree/
// Workers as live gauges, one source per process. It is idempotent: a
// second call with the same source is a no-op, matching
// registerGaugeIfAbsent semantics.
func RegisterMasterGauges(source Source) {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: "blockmaster", Name: "capacity_total_bytes"},
			func() float64 { return float64(source.CapacityBytes()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: "blockmaster", Name: "capacity_used_bytes"},
			func() float64 { return float64(source.UsedBytes()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: "blockmaster", Name: "capacity_free_bytes"},
			func() float64 { return float64(source.CapacityBytes() - source.UsedBytes()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: "blockmaster", Name: "workers"},
			func() float64 { return float64(source.WorkerCount()) },
		),
	}
	for _, g := range gauges {
		if err := Registry.Register(g); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}
