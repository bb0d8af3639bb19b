// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package telemetry

import (
	"net/http"
	"strconv"
	"time"
)

// statusRecorder captures the status code an inner handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// InstrumentGateway wraps handler, recording GatewayRequests and
// GatewayLatency for every request under the given protocol class
// label (one of the gateway's five protocol classes).
func (r *Registry) InstrumentGateway(protocolClass string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler.ServeHTTP(rec, req)
		r.GatewayLatency.WithLabelValues(protocolClass).Observe(time.Since(start).Seconds())
		r.GatewayRequests.WithLabelValues(protocolClass, strconv.Itoa(rec.status)).Inc()
	})
}
