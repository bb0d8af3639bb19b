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

// TrustedServer exposes the Metadata Services layer through the Trusted
// API tier: no object-type restriction, plus the batch-write and tenant
// administration operations the Public tier doesn't expose.
type TrustedServer struct {
	svc *metaservices.Service
}

// NewTrustedServer builds a TrustedServer over svc.
func NewTrustedServer(svc *metaservices.Service) *TrustedServer {
	return &TrustedServer{svc: svc}
}

func (s *TrustedServer) createObject(ctx context.Context, req *MetadataWriteRequest) (*TagResponse, error) {
	tag, err := s.svc.CreateObject(ctx, req.Tenant, metaservices.TierTrusted, identityFromContext(ctx), req.ObjectType, req.Definition, req.Attrs)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *TrustedServer) createPreallocatedObject(ctx context.Context, req *MetadataWriteRequest) (*TagResponse, error) {
	if req.ObjectId == nil {
		return nil, rpcstatus.Error(metadata.NewKindedError(metadata.KindInvalidInput, "objectId is required"))
	}
	tag, err := s.svc.CreatePreallocatedObject(ctx, req.Tenant, metaservices.TierTrusted, identityFromContext(ctx), *req.ObjectId, req.ObjectType, req.Definition, req.Attrs)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *TrustedServer) updateObject(ctx context.Context, req *MetadataWriteRequest) (*TagResponse, error) {
	if req.PriorVersion == nil {
		return nil, rpcstatus.Error(metadata.NewKindedError(metadata.KindInvalidInput, "priorVersion is required"))
	}
	tag, err := s.svc.UpdateObject(ctx, req.Tenant, metaservices.TierTrusted, identityFromContext(ctx), *req.PriorVersion, req.Definition, req.Attrs)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *TrustedServer) updateTag(ctx context.Context, req *TagUpdateRequest) (*TagResponse, error) {
	tag, err := s.svc.UpdateTag(ctx, req.Tenant, metaservices.TierTrusted, identityFromContext(ctx), req.Selector, req.Attrs)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *TrustedServer) preallocateId(ctx context.Context, req *PreallocateRequest) (*PreallocateResponse, error) {
	id, err := s.svc.PreallocateId(ctx, req.Tenant, metaservices.TierTrusted, req.ObjectType)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &PreallocateResponse{ObjectId: id}, nil
}

func (s *TrustedServer) readObject(ctx context.Context, req *ReadRequest) (*TagResponse, error) {
	tag, err := s.svc.ReadObject(ctx, req.Tenant, req.Selector)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *TrustedServer) getLatestObject(ctx context.Context, req *ReadRequest) (*TagResponse, error) {
	sel := req.Selector
	sel.ObjectVersion = metadata.LatestVersion()
	sel.TagVersion = metadata.LatestVersion()
	tag, err := s.svc.ReadObject(ctx, req.Tenant, sel)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *TrustedServer) getLatestTag(ctx context.Context, req *ReadRequest) (*TagResponse, error) {
	sel := req.Selector
	sel.TagVersion = metadata.LatestVersion()
	tag, err := s.svc.ReadObject(ctx, req.Tenant, sel)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagResponse{Tag: tag}, nil
}

func (s *TrustedServer) readObjects(ctx context.Context, req *ReadBatchRequest) (*TagBatchResponse, error) {
	tags, err := s.svc.ReadObjects(ctx, req.Tenant, req.Selectors)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagBatchResponse{Tags: tags}, nil
}

func (s *TrustedServer) search(ctx context.Context, req *SearchRequest) (*TagBatchResponse, error) {
	tags, err := s.svc.Search(ctx, req.Tenant, searchParamsFromWire(req.Params))
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagBatchResponse{Tags: tags}, nil
}

func (s *TrustedServer) writeBatch(ctx context.Context, req *WriteBatchRequest) (*TagBatchResponse, error) {
	batch := dalBatchFromWire(req)
	if err := s.svc.WriteBatch(ctx, req.Tenant, metaservices.TierTrusted, batch); err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TagBatchResponse{}, nil
}

func (s *TrustedServer) listTenants(ctx context.Context, _ *struct{}) (*TenantListResponse, error) {
	tenants, err := s.svc.ListTenants(ctx)
	if err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &TenantListResponse{Tenants: tenantsToWire(tenants)}, nil
}

func (s *TrustedServer) createTenant(ctx context.Context, req *CreateTenantRequest) (*struct{}, error) {
	if err := s.svc.CreateTenant(ctx, req.Code, req.Description); err != nil {
		return nil, rpcstatus.Error(err)
	}
	return &struct{}{}, nil
}

// TrustedServiceDesc is the hand-built analogue of what protoc-gen-go-grpc
// would emit for a "TrustedMetadataApi" service.
var TrustedServiceDesc = grpc.ServiceDesc{
	ServiceName: "trac.metaapi.TrustedMetadataApi",
	HandlerType: (*TrustedServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("createObject", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(MetadataWriteRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).createObject(ctx, req)
		}),
		unaryMethod("createPreallocatedObject", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(MetadataWriteRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).createPreallocatedObject(ctx, req)
		}),
		unaryMethod("updateObject", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(MetadataWriteRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).updateObject(ctx, req)
		}),
		unaryMethod("updateTag", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(TagUpdateRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).updateTag(ctx, req)
		}),
		unaryMethod("preallocateId", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(PreallocateRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).preallocateId(ctx, req)
		}),
		unaryMethod("readObject", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(ReadRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).readObject(ctx, req)
		}),
		unaryMethod("getLatestObject", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(ReadRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).getLatestObject(ctx, req)
		}),
		unaryMethod("getLatestTag", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(ReadRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).getLatestTag(ctx, req)
		}),
		unaryMethod("readObjects", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(ReadBatchRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).readObjects(ctx, req)
		}),
		unaryMethod("search", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(SearchRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).search(ctx, req)
		}),
		unaryMethod("writeBatch", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(WriteBatchRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).writeBatch(ctx, req)
		}),
		unaryMethod("listTenants", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(struct{})
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).listTenants(ctx, req)
		}),
		unaryMethod("createTenant", func(s interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(CreateTenantRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return s.(*TrustedServer).createTenant(ctx, req)
		}),
	},
	Metadata: "trac/metaapi/trusted.proto",
}

// RegisterTrustedServer registers srv against grpcServer.
func RegisterTrustedServer(grpcServer *grpc.Server, srv *TrustedServer) {
	grpcServer.RegisterService(&TrustedServiceDesc, srv)
}
