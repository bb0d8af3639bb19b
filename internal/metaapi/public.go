// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metaapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/trac-platform/trac/internal/metaservices"
	"github.com/trac-platform/trac/internal/rpcstatus"
	"github.com/trac-platform/trac/pkg/metadata"
)

// PublicServer exposes the Metadata Services layer through the Public API
// tier: object types outside metadata.PublicWritableTypes are rejected by
// the services layer itself.
type PublicServer struct {
	svc *metaservices.Service
}

// NewPublicServer builds a PublicServer over svc.
func NewPublicServer(svc *metaservices.Service) *PublicServer {
	return &PublicServer{svc: svc}
}

func (s *PublicServer) createObject(ctx context.Context, req *MetadataWriteRequest) (*TagResponse, error) {
	tag, err := s.svc.CreateObject(ctx, req.Tenant, metaservices.TierPublic, identityFromContext(ctx), req.ObjectType, req.Definition, req.Attrs)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *PublicServer) createPreallocatedObject(ctx context.Context, req *MetadataWriteRequest) (*TagResponse, error) {
	if req.ObjectId == nil {
		return nil, rpcstatus.Error(metadata.NewKindedError(metadata.KindInvalidInput, "objectId is required"))
	}
	tag, err := s.svc.CreatePreallocatedObject(ctx, req.Tenant, metaservices.TierPublic, identityFromContext(ctx), *req.ObjectId, req.ObjectType, req.Definition, req.Attrs)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *PublicServer) updateObject(ctx context.Context, req *MetadataWriteRequest) (*TagResponse, error) {
	if req.PriorVersion == nil {
		return nil, rpcstatus.Error(metadata.NewKindedError(metadata.KindInvalidInput, "priorVersion is required"))
	}
	tag, err := s.svc.UpdateObject(ctx, req.Tenant, metaservices.TierPublic, identityFromContext(ctx), *req.PriorVersion, req.Definition, req.Attrs)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *PublicServer) updateTag(ctx context.Context, req *TagUpdateRequest) (*TagResponse, error) {
	tag, err := s.svc.UpdateTag(ctx, req.Tenant, metaservices.TierPublic, identityFromContext(ctx), req.Selector, req.Attrs)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *PublicServer) preallocateId(ctx context.Context, req *PreallocateRequest) (*PreallocateResponse, error) {
	id, err := s.svc.PreallocateId(ctx, req.Tenant, metaservices.TierPublic, req.ObjectType)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &PreallocateResponse{ObjectId: id}, nil
}

func (s *PublicServer) readObject(ctx context.Context, req *ReadRequest) (*TagResponse, error) {
	tag, err := s.svc.ReadObject(ctx, req.Tenant, req.Selector)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

// getLatestObject resolves req.Selector with both version selectors
// forced to latest, a distinct method descriptor from readObject/
// getLatestTag per Open Question #1 (DESIGN.md).
func (s *PublicServer) getLatestObject(ctx context.Context, req *ReadRequest) (*TagResponse, error) {
	sel := req.Selector
	sel.ObjectVersion = metadata.LatestVersion()
	sel.TagVersion = metadata.LatestVersion()
	tag, err := s.svc.ReadObject(ctx, req.Tenant, sel)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

// getLatestTag resolves req.Selector with only the tag version selector
// forced to latest, keeping the caller's object version pinned.
func (s *PublicServer) getLatestTag(ctx context.Context, req *ReadRequest) (*TagResponse, error) {
	sel := req.Selector
	sel.TagVersion = metadata.LatestVersion()
	tag, err := s.svc.ReadObject(ctx, req.Tenant, sel)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *PublicServer) readObjects(ctx context.Context, req *ReadBatchRequest) (*TagBatchResponse, error) {
	tags, err := s.svc.ReadObjects(ctx, req.Tenant, req.Selectors)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagBatchResponse{Tags: tags}, nil
}

func (s *PublicServer) search(ctx context.Context, req *SearchRequest) (*TagBatchResponse, error) {
	tags, err := s.svc.Search(ctx, req.Tenant, searchParamsFromWire(req.Params))
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagBatchResponse{Tags: tags}, nil
}

// PublicServiceDesc is the hand-built analogue of what protoc-gen-go-grpc
// would emit for a "PublicMetadataApi" service; it is hand-built because
// the messages are the plain structs in messages.go (see codec.go).
var PublicServiceDesc = grpc.ServiceDesc{
	ServiceName: "trac.metaapi.PublicMetadataApi",
	HandlerType: (*PublicServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("createObject", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(MetadataWriteRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*PublicServer).createObject(ctx, req)
		}),
		unaryMethod("createPreallocatedObject", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(MetadataWriteRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*PublicServer).createPreallocatedObject(ctx, req)
		}),
		unaryMethod("updateObject", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(MetadataWriteRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*PublicServer).updateObject(ctx, req)
		}),
		unaryMethod("updateTag", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(TagUpdateRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*PublicServer).updateTag(ctx, req)
		}),
		unaryMethod("preallocateId", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(PreallocateRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*PublicServer).preallocateId(ctx, req)
		}),
		unaryMethod("readObject", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(ReadRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*PublicServer).readObject(ctx, req)
		}),
		unaryMethod("getLatestObject", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(ReadRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*PublicServer).getLatestObject(ctx, req)
		}),
		unaryMethod("getLatestTag", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(ReadRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*PublicServer).getLatestTag(ctx, req)
		}),
		unaryMethod("readObjects", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(ReadBatchRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*PublicServer).readObjects(ctx, req)
		}),
		unaryMethod("search", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(SearchRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*PublicServer).search(ctx, req)
		}),
	},
	Metadata: "trac/metaapi/public.proto",
}

// RegisterPublicServer registers srv against grpcServer.
func RegisterPublicServer(grpcServer *grpc.Server, srv *PublicServer) {
	grpcServer.RegisterService(&PublicServiceDesc, srv)
}
