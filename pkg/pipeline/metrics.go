// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsPipeline holds Prometheus metrics for graph ingestion.
type metricsPipeline struct {
	once sync.Once

	nodesWritten         *prometheus.CounterVec
	relationshipsWritten *prometheus.CounterVec
	filesFailed          prometheus.Counter
	runs                 *prometheus.CounterVec

	runDuration prometheus.Histogram
}

var pipeMetrics metricsPipeline

func (m *metricsPipeline) init() {
	m.once.Do(func() {
		m.nodesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_ingest_nodes_written_total",
			Help: "Graph nodes written, by label",
		}, []string{"label"})
		m.relationshipsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_ingest_relationships_written_total",
			Help: "Graph relationships written, by type",
		}, []string{"type"})
		m.filesFailed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_ingest_files_failed_total",
			Help: "Files that failed during ingestion",
		})
		m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_ingest_runs_total",
			Help: "Ingestion runs, by final status",
		}, []string{"status"})
		m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codegraph_ingest_run_seconds",
			Help:    "Duration of one ingestion run",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		})

		prometheus.MustRegister(
			m.nodesWritten, m.relationshipsWritten, m.filesFailed, m.runs,
			m.runDuration,
		)
	})
}

// record helpers - used by the pipeline for metrics tracking
func recordNodesWritten(label string, n int) {
	pipeMetrics.init()
	pipeMetrics.nodesWritten.WithLabelValues(label).Add(float64(n))
}

func recordRelationshipsWritten(relType string, n int) {
	pipeMetrics.init()
	pipeMetrics.relationshipsWritten.WithLabelValues(relType).Add(float64(n))
}

func recordFileFailed() {
	pipeMetrics.init()
	pipeMetrics.filesFailed.Inc()
}

func recordRun(status string, seconds float64) {
	pipeMetrics.init()
	pipeMetrics.runs.WithLabelValues(status).Inc()
	pipeMetrics.runDuration.Observe(seconds)
}
