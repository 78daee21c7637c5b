// Copyright 2026 The Treeline Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package partwrite

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricPartsFinalized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treeline_parts_finalized_total",
		Help: "Number of parts committed successfully.",
	})
	metricPartsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treeline_parts_cancelled_total",
		Help: "Number of parts abandoned before commit.",
	})
	metricFinalizeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "treeline_part_finalize_duration_seconds",
		Help:    "Latency of the finish phase of part finalization.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
)

func init() {
	prometheus.MustRegister(metricPartsFinalized, metricPartsCancelled, metricFinalizeDuration)
}
