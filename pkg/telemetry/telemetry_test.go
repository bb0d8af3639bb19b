// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package telemetry_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trac-platform/trac/pkg/telemetry"
)

func TestInstrumentGatewayRecordsRequestsAndLatency(t *testing.T) {
	reg := telemetry.New()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	handler := reg.InstrumentGateway("REST_MAPPED", inner)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, float64(1), testutilCount(t, reg, "REST_MAPPED", "404"))

	metrics := httptest.NewRecorder()
	reg.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, metrics.Body.String(), `trac_gateway_request_duration_seconds_count{protocol_class="REST_MAPPED"} 1`)
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	reg := telemetry.New()
	reg.JobTransitions.WithLabelValues("COMPLETED").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "trac_jobmanager_transitions_total")
}

func testutilCount(t *testing.T, reg *telemetry.Registry, protocolClass, status string) float64 {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)
	body := rec.Body.String()
	prefix := fmt.Sprintf("trac_gateway_requests_total{protocol_class=%q,status=%q} ", protocolClass, status)
	require.Contains(t, body, prefix)
	rest := body[strings.Index(body, prefix)+len(prefix):]
	count, err := strconv.ParseFloat(strings.TrimSpace(strings.SplitN(rest, "\n", 2)[0]), 64)
	require.NoError(t, err)
	return count
}
