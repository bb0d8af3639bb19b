// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package rpcstatus maps the metadata.Kind error taxonomy onto gRPC
// status codes, shared by every gRPC-facing tier (metaapi today, the
// Job Orchestrator API tomorrow) so the mapping is defined once.
//
// Grounded on storj-storj's pkg/rpc/rpcstatus, which layers a StatusCode
// enum and a LoggingSanitizer on top of zeebo/errs classes so that
// internal errors are logged in full server-side but never leak detail
// to the caller; Sanitizer here plays the same role over metadata.Kind.
package rpcstatus

import (
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/trac-platform/trac/pkg/metadata"
)

// Code returns the gRPC status code a metadata.Kind maps to.
func Code(kind metadata.Kind) codes.Code {
	switch kind {
	case metadata.KindInvalidInput:
		return codes.InvalidArgument
	case metadata.KindNotFound, metadata.KindCacheNotFound:
		return codes.NotFound
	case metadata.KindAlreadyExists:
		return codes.AlreadyExists
	case metadata.KindVersionConflict, metadata.KindTagVersionConflict, metadata.KindCacheTicket:
		return codes.Aborted
	case metadata.KindWrongObjectType:
		return codes.FailedPrecondition
	case metadata.KindPermissionDenied:
		return codes.PermissionDenied
	case metadata.KindUnauthenticated:
		return codes.Unauthenticated
	case metadata.KindExecutorTransient:
		return codes.Unavailable
	case metadata.KindExecutorFatal:
		return codes.Internal
	default:
		return codes.Internal
	}
}

// Error converts err into a gRPC status error, classified by
// metadata.KindOf. KindInternal is never echoed verbatim to the caller;
// the original detail is expected to already be logged server-side
// (see Sanitizer below) and the client only sees an opaque message.
func Error(err error) error {
	if err == nil {
		return nil
	}
	kind := metadata.KindOf(err)
	if kind == metadata.KindInternal {
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(Code(kind), err.Error())
}

// Sanitizer logs err in full before converting it with Error, so a
// handler can return a client-safe status without losing the detail
// needed to debug an KindInternal failure after the fact.
type Sanitizer struct {
	log *zap.Logger
}

// NewSanitizer builds a Sanitizer that logs through log.
func NewSanitizer(log *zap.Logger) *Sanitizer {
	return &Sanitizer{log: log}
}

// Error logs err under msg and returns the gRPC status to hand back.
func (s *Sanitizer) Error(msg string, err error) error {
	if err == nil {
		return nil
	}
	s.log.Error(msg, zap.Error(err))
	return Error(err)
}
