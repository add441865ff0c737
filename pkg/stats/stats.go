// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2024 The netreactor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stats is the generalized replacement for the teacher's
// core/stats.go ProxyStats: a process-wide collection of Prometheus
// metrics describing reactor connection and timer activity instead of
// Redis command mix.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReactorStats mirrors the teacher's ProxyStats shape: a struct of
// pre-registered vectors, a package-level instance, and WithLabelValues
// call sites at the points that observe the event.
type ReactorStats struct {
	TotalConnections  *prometheus.CounterVec
	CurrConnections   *prometheus.GaugeVec
	ConnectionErrors  *prometheus.CounterVec
	BytesRead         *prometheus.CounterVec
	BytesWritten      *prometheus.CounterVec
	HighWaterMarkHits *prometheus.CounterVec
	TimerFires        *prometheus.CounterVec
	TimerQueueDepth   *prometheus.GaugeVec
	LoopLatency       *prometheus.HistogramVec
}

// Global is the package-level instance every reactor component reports
// into, paralleling the teacher's GlobalStats package variable.
var Global ReactorStats

func init() {
	Global = New("netreactor")
}

// New builds and registers a ReactorStats under namespace with the
// default Prometheus registry. Registering the same namespace twice
// panics, so a caller that needs an instance separate from Global must
// pass a unique namespace.
func New(namespace string) ReactorStats {
	s := ReactorStats{
		TotalConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_connections",
			Help:      "total connections accepted or dialed since start",
		}, []string{"server"}),
		CurrConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "curr_connections",
			Help:      "connections currently open",
		}, []string{"server"}),
		ConnectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors",
			Help:      "connections that closed with a socket error",
		}, []string{"server"}),
		BytesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read",
			Help:      "bytes read off connections",
		}, []string{"server"}),
		BytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written",
			Help:      "bytes written to connections",
		}, []string{"server"}),
		HighWaterMarkHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "high_water_mark_hits",
			Help:      "times a connection's output buffer crossed its high water mark",
		}, []string{"server"}),
		TimerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_fires",
			Help:      "expired timers dispatched",
		}, []string{"loop"}),
		TimerQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timer_queue_depth",
			Help:      "pending timers per loop",
		}, []string{"loop"}),
		LoopLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loop_poll_latency_ms",
			Help:      "time spent blocked in the poller per iteration",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500},
		}, []string{"loop"}),
	}
	prometheus.MustRegister(
		s.TotalConnections, s.CurrConnections, s.ConnectionErrors,
		s.BytesRead, s.BytesWritten, s.HighWaterMarkHits,
		s.TimerFires, s.TimerQueueDepth, s.LoopLatency,
	)
	return s
}

// ConnOpened records a newly established connection under server.
func ConnOpened(server string) {
	Global.TotalConnections.WithLabelValues(server).Inc()
	Global.CurrConnections.WithLabelValues(server).Inc()
}

// ConnClosed records a connection leaving the Connected state.
func ConnClosed(server string, faulted bool) {
	Global.CurrConnections.WithLabelValues(server).Dec()
	if faulted {
		Global.ConnectionErrors.WithLabelValues(server).Inc()
	}
}
