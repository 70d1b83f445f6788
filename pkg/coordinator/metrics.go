// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package coordinator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsCoordinator struct {
	once sync.Once

	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	fileChanges *prometheus.CounterVec
}

var coordMetrics metricsCoordinator

func (m *metricsCoordinator) init() {
	m.once.Do(func() {
		m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_update_runs_total",
			Help: "Incremental update runs by terminal status.",
		}, []string{"status"})

		m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codegraph_update_duration_seconds",
			Help:    "Wall time of incremental update runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		})

		m.fileChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_update_file_changes_total",
			Help: "Files handled during incremental updates, by change kind.",
		}, []string{"change"})

		prometheus.MustRegister(m.runs, m.runDuration, m.fileChanges)
	})
}

func recordUpdate(status string, seconds float64) {
	coordMetrics.init()
	coordMetrics.runs.WithLabelValues(status).Inc()
	coordMetrics.runDuration.Observe(seconds)
}

func recordFileChange(change string) {
	coordMetrics.init()
	coordMetrics.fileChanges.WithLabelValues(change).Inc()
}
