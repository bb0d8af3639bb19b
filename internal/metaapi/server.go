// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metaapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/trac-platform/trac/internal/metaservices"
)

// identityFromContext builds the caller Identity from the incoming gRPC
// metadata an auth interceptor (not implemented by this package) would
// populate, defaulting to the zero Identity when the keys are absent --
// the common case in tests that invoke handlers directly.
func identityFromContext(ctx context.Context) metaservices.Identity {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return metaservices.Identity{}
	}
	return metaservices.Identity{
		UserID:   firstOrEmpty(md.Get("trac-user-id")),
		UserName: firstOrEmpty(md.Get("trac-user-name")),
	}
}

func firstOrEmpty(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// unaryMethod adapts a simplified (srv, ctx, dec) handler into the full
// grpc.MethodHandler signature grpc.MethodDesc requires. Interceptors are
// run with the already-typed decode closure rather than a generic
// interface{} request, since there is no generated concrete request type
// to hand them independent of dec (see codec.go).
func unaryMethod(name string, fn func(srv interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			if interceptor == nil {
				return fn(srv, ctx, dec)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: name}
			return interceptor(ctx, nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
				return fn(srv, ctx, dec)
			})
		},
	}
}
