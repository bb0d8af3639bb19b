// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package restproxy implements the REST_MAPPED protocol class: a
// declarative REST-to-gRPC mapping table, strict JSON request
// decoding, and the gRPC-code-to-HTTP-status table a REST caller
// expects.
package restproxy

import (
	"google.golang.org/grpc/codes"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/runtime"
)

// Mapping is one declarative REST<->gRPC binding: an HTTP method and
// path template routed to a gRPC full method name, plus the allow-list
// of JSON field names the request body may carry. There is no generated
// proto.Message for these methods to decode strictly against, so
// BodyFields stands in for one: ServeHTTP rejects any body field not
// named here rather than silently forwarding it.
type Mapping struct {
	HTTPMethod string
	PathTmpl   string
	GRPCMethod string
	BodyFields []string
}

// httpStatusOverrides holds the codes where the required status table
// diverges from grpc-gateway's own runtime.HTTPStatusFromCode default:
// FAILED_PRECONDITION maps to 412 Precondition Failed here, not the
// library's 400 Bad Request, and CANCELLED, DEADLINE_EXCEEDED, ABORTED
// and OUT_OF_RANGE map to 500 rather than the library's 408, 504, 409
// and 400.
var httpStatusOverrides = map[codes.Code]int{
	codes.FailedPrecondition: 412,
	codes.Canceled:           500,
	codes.DeadlineExceeded:   500,
	codes.Aborted:            500,
	codes.OutOfRange:         500,
}

// HTTPStatusFromCode renders a gRPC status code as the required HTTP
// status. It delegates to grpc-gateway's own table for every code
// except those overridden above, rather than reimplementing the
// whole table by hand.
func HTTPStatusFromCode(code codes.Code) int {
	if status, ok := httpStatusOverrides[code]; ok {
		return status
	}
	return gwruntime.HTTPStatusFromCode(code)
}
