// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trac-platform/trac/internal/config"
	"github.com/trac-platform/trac/internal/gateway"
)

const sampleRoutesYAML = `
routes:
  - prefix: /v1/jobs
    class: REST_MAPPED
    target:
      scheme: http
      host: 127.0.0.1
      port: 7071
    rest:
      - http_method: GET
        path_template: /v1/jobs/{id}
        grpc_method: /trac.JobService/GetJob
      - http_method: POST
        path_template: /v1/jobs
        grpc_method: /trac.JobService/CreateJob
        body_fields:
          - spec
          - priority
  - prefix: /v1/grpc
    class: GRPC_PROXY
    target:
      host: 127.0.0.1
      port: 7072
`

func TestLoadRoutesParsesDeclarativeTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRoutesYAML), 0o600))

	routes, restMappings, err := config.LoadRoutes(path)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	require.Equal(t, gateway.RESTMapped, routes[0].Class)
	require.Equal(t, gateway.GRPCProxy, routes[1].Class)
	require.Equal(t, 7072, routes[1].Target.Port)

	mappings := restMappings["/v1/jobs"]
	require.Len(t, mappings, 2)
	require.Equal(t, "/trac.JobService/GetJob", mappings[0].GRPCMethod)
	require.Empty(t, mappings[0].BodyFields)
	require.Equal(t, "/trac.JobService/CreateJob", mappings[1].GRPCMethod)
	require.Equal(t, []string{"spec", "priority"}, mappings[1].BodyFields)
}

func TestLoadRoutesRejectsUnknownClass(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - prefix: /x\n    class: BOGUS\n"), 0o600))

	_, _, err := config.LoadRoutes(path)
	require.Error(t, err)
}
