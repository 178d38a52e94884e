// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFilesParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repograph_files_parsed_total",
		Help: "Source files parsed across all ingestion runs.",
	})
	metricDefinitionsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repograph_definitions_added_total",
		Help: "Definition rows inserted across all ingestion runs.",
	})
	metricDefinitionsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repograph_definitions_removed_total",
		Help: "Definition rows deleted across all ingestion runs.",
	})
	metricReferencesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repograph_references_created_total",
		Help: "Symbol references recorded across all ingestion runs.",
	})
	metricSummaryRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repograph_summary_requests_total",
		Help: "Chat completions requested by the summarizer.",
	})
	metricEmbeddingsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repograph_embeddings_stored_total",
		Help: "Embedding rows written across all ingestion runs.",
	})
	metricPhaseSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "repograph_ingest_phase_seconds",
		Help:    "Wall time per ingestion phase.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"phase"})
)
