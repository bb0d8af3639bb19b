// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package restproxy_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/trac-platform/trac/internal/gateway/restproxy"
)

func TestHTTPStatusFromCodeAppliesFailedPreconditionOverride(t *testing.T) {
	require.Equal(t, 412, restproxy.HTTPStatusFromCode(codes.FailedPrecondition))
}

func TestHTTPStatusFromCodeFallsBackToLibraryDefaults(t *testing.T) {
	require.Equal(t, 404, restproxy.HTTPStatusFromCode(codes.NotFound))
	require.Equal(t, 200, restproxy.HTTPStatusFromCode(codes.OK))
}
