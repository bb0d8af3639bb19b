// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package telemetry is the shared metrics surface every service binary
// carries regardless of which feature Non-goals a given spec section
// excludes: a process-local Prometheus registry plus the counters and
// histograms the Job Manager, Metadata Services, and Gateway each
// instrument their own operations with.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a prometheus.Registry with the metric families this
// repo's components report against, so every service constructs the
// same shapes under consistent label names.
type Registry struct {
	reg *prometheus.Registry

	JobTransitions   *prometheus.CounterVec
	JobStepDuration  *prometheus.HistogramVec
	MetadataRequests *prometheus.CounterVec
	MetadataLatency  *prometheus.HistogramVec
	GatewayRequests  *prometheus.CounterVec
	GatewayLatency   *prometheus.HistogramVec
}

// New builds a Registry with every metric family registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		JobTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trac",
			Subsystem: "jobmanager",
			Name:      "transitions_total",
			Help:      "Job state machine transitions, by resulting status.",
		}, []string{"status"}),
		JobStepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trac",
			Subsystem: "jobmanager",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of a single Processor.Step call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		MetadataRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trac",
			Subsystem: "metadata",
			Name:      "requests_total",
			Help:      "Metadata Services operations, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		MetadataLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trac",
			Subsystem: "metadata",
			Name:      "request_duration_seconds",
			Help:      "Metadata Services operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		GatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trac",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Gateway requests, by protocol class and HTTP status.",
		}, []string{"protocol_class", "status"}),
		GatewayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trac",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway request latency, by protocol class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"protocol_class"}),
	}
}

// Handler exposes the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
