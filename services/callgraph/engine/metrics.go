// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// buildsTotal counts builds by strategy and outcome.
	// Labels: strategy (NONE, ONESHOT, DEMAND), outcome (ok, budget, canceled, error)
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jscg",
		Subsystem: "engine",
		Name:      "builds_total",
		Help:      "Total call graph builds by strategy and outcome",
	}, []string{"strategy", "outcome"})

	// buildDurationSeconds measures build wall time.
	buildDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jscg",
		Subsystem: "engine",
		Name:      "build_duration_seconds",
		Help:      "Call graph build duration",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"strategy"})

	// callEdges records the edge count of the last successful build.
	callEdges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jscg",
		Subsystem: "engine",
		Name:      "call_edges",
		Help:      "Call graph edges produced by the most recent build",
	}, []string{"strategy"})
)

// outcomeOf classifies a build error for metrics.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAnalysisBudgetExceeded):
		return "budget"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// recordBuild records the metrics of one build.
func recordBuild(s Strategy, d time.Duration, edges int, err error) {
	buildsTotal.WithLabelValues(s.String(), outcomeOf(err)).Inc()
	buildDurationSeconds.WithLabelValues(s.String()).Observe(d.Seconds())
	if err == nil {
		callEdges.WithLabelValues(s.String()).Set(float64(edges))
	}
}
