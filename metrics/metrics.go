// Copyright 2026 Blink Labs Software
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

// Package metrics defines the prometheus collectors for sync sessions and the range
// request server. Collectors are registered with the given registerer, or left
// unregistered when it is nil
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gobeacon"

type SyncMetrics struct {
	Results        *prometheus.CounterVec
	BlocksImported prometheus.Counter
	RequestsSent   prometheus.Counter
	Throttled      prometheus.Counter
	CurrentSlot    prometheus.Gauge
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)
	return &SyncMetrics{
		Results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "results_total",
				Help:      "Total number of finished sync sessions by result",
			},
			[]string{"result"},
		),
		BlocksImported: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "blocks_imported_total",
				Help:      "Total number of blocks imported during sync",
			},
		),
		RequestsSent: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "range_requests_total",
				Help:      "Total number of range requests sent to peers",
			},
		),
		Throttled: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "partial_responses_total",
				Help:      "Total number of range responses with fewer blocks than requested",
			},
		),
		CurrentSlot: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "current_slot",
				Help:      "Slot of the last block imported by a sync session",
			},
		),
	}
}

type ServerMetrics struct {
	Requests       *prometheus.CounterVec
	BlocksServed   prometheus.Counter
	Errors         *prometheus.CounterVec
	RateLimited    prometheus.Counter
	RequestSeconds prometheus.Histogram
}

func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	factory := promauto.With(reg)
	return &ServerMetrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "range_server",
				Name:      "requests_total",
				Help:      "Total number of range requests received by method version",
			},
			[]string{"version"},
		),
		BlocksServed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "range_server",
				Name:      "blocks_served_total",
				Help:      "Total number of blocks sent in range responses",
			},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "range_server",
				Name:      "errors_total",
				Help:      "Total number of range requests answered with an error by code",
			},
			[]string{"code"},
		),
		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "range_server",
				Name:      "rate_limited_total",
				Help:      "Total number of range responses delayed by the per-peer rate limit",
			},
		),
		RequestSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "range_server",
				Name:      "request_duration_seconds",
				Help:      "Time taken to answer a range request",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}
