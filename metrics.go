// Copyright 2026 Anaphor Labs
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

package anaphor

import "github.com/prometheus/client_golang/prometheus"

var (
	resolveRequestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "anaphor",
			Subsystem: "node",
			Name:      "resolve_request_ops_total",
			Help:      "The total number of coreference resolution requests.",
		},
		[]string{"genre"},
	)
	clusterCreationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "anaphor",
			Subsystem: "node",
			Name:      "cluster_creation_ops_total",
			Help:      "The total number of coreference clusters predicted.",
		},
		[]string{"genre"},
	)
	mentionCreationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "anaphor",
			Subsystem: "node",
			Name:      "mention_creation_ops_total",
			Help:      "The total number of coreferent mentions predicted.",
		},
		[]string{"genre"},
	)

	rankRequestOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "anaphor",
			Subsystem: "node",
			Name:      "rank_request_ops_total",
			Help:      "The total number of response ranking requests.",
		},
	)

	trainStepOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "anaphor",
			Subsystem: "node",
			Name:      "train_step_ops_total",
			Help:      "The total number of optimizer steps taken.",
		},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "anaphor",
			Subsystem: "node",
			Name:      "request_duration_seconds",
			Help:      "Time taken to process a request.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "anaphor",
			Subsystem: "node",
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		},
		[]string{"type"}, // resolve, embedding
	)

	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "anaphor",
			Subsystem: "node",
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		},
		[]string{"type"}, // resolve, embedding
	)
)

func init() {
	prometheus.MustRegister(resolveRequestOps)
	prometheus.MustRegister(clusterCreationOps)
	prometheus.MustRegister(mentionCreationOps)
	prometheus.MustRegister(rankRequestOps)
	prometheus.MustRegister(trainStepOps)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
}

// RecordResolveRequest increments the resolve request counter
func RecordResolveRequest(genre string) {
	resolveRequestOps.WithLabelValues(genre).Inc()
}

// RecordClusterCreation records the number of clusters predicted
func RecordClusterCreation(genre string, count int) {
	clusterCreationOps.WithLabelValues(genre).Add(float64(count))
}

// RecordMentionCreation records the number of coreferent mentions predicted
func RecordMentionCreation(genre string, count int) {
	mentionCreationOps.WithLabelValues(genre).Add(float64(count))
}

// RecordRankRequest increments the rank request counter
func RecordRankRequest() {
	rankRequestOps.Inc()
}

// RecordTrainSteps records the number of optimizer steps taken
func RecordTrainSteps(count int) {
	trainStepOps.Add(float64(count))
}

// RecordRequestDuration records how long a request took
func RecordRequestDuration(endpoint, status string, seconds float64) {
	requestDuration.WithLabelValues(endpoint, status).Observe(seconds)
}

// RecordCacheHit increments the cache hit counter
func RecordCacheHit(cacheType string) {
	cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments the cache miss counter
func RecordCacheMiss(cacheType string) {
	cacheMisses.WithLabelValues(cacheType).Inc()
}
