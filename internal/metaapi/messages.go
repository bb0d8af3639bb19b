// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metaapi

import (
	"github.com/trac-platform/trac/pkg/metadata"
	"github.com/trac-platform/trac/pkg/types"
)

// MetadataWriteRequest is the request message shared by createObject,
// createPreallocatedObject and updateObject.
type MetadataWriteRequest struct {
	Tenant       string                  `json:"tenant"`
	ObjectType   metadata.ObjectType     `json:"objectType"`
	Definition   metadata.ObjectDefinition `json:"definition"`
	Attrs        map[string]types.Value  `json:"attrs"`
	PriorVersion *metadata.TagSelector   `json:"priorVersion,omitempty"`
	ObjectId     *metadata.ObjectId      `json:"objectId,omitempty"`
}

// TagUpdateRequest is the request message for updateTag.
type TagUpdateRequest struct {
	Tenant   string                  `json:"tenant"`
	Selector metadata.TagSelector    `json:"selector"`
	Attrs    map[string]types.Value  `json:"attrs"`
}

// PreallocateRequest is the request message for preallocateId.
type PreallocateRequest struct {
	Tenant     string              `json:"tenant"`
	ObjectType metadata.ObjectType `json:"objectType"`
}

// PreallocateResponse is the response message for preallocateId.
type PreallocateResponse struct {
	ObjectId metadata.ObjectId `json:"objectId"`
}

// ReadRequest is the request message for readObject/getLatestObject/getLatestTag.
type ReadRequest struct {
	Tenant   string              `json:"tenant"`
	Selector metadata.TagSelector `json:"selector"`
}

// ReadBatchRequest is the request message for readObjects.
type ReadBatchRequest struct {
	Tenant     string                `json:"tenant"`
	Selectors  []metadata.TagSelector `json:"selectors"`
}

// TagResponse wraps a single tag result.
type TagResponse struct {
	Tag metadata.Tag `json:"tag"`
}

// TagBatchResponse wraps multiple tag results, preserving request order.
type TagBatchResponse struct {
	Tags []metadata.Tag `json:"tags"`
}

// SearchRequest is the request message for search.
type SearchRequest struct {
	Tenant string          `json:"tenant"`
	Params SearchParamsJSON `json:"params"`
}

// SearchParamsJSON mirrors dal.SearchParams; defined locally so this
// package doesn't need to import internal/dal's Go-only SearchNode type
// into the wire message set.
type SearchParamsJSON struct {
	ObjectType    metadata.ObjectType `json:"objectType"`
	Query         SearchNodeJSON      `json:"query"`
	PriorVersions bool                `json:"priorVersions"`
	PriorTags     bool                `json:"priorTags"`
}

// SearchNodeJSON is the wire form of a dal.SearchNode query tree.
type SearchNodeJSON struct {
	Kind     string            `json:"kind"`
	AttrName string            `json:"attrName,omitempty"`
	AttrType types.BasicType   `json:"attrType,omitempty"`
	Op       string            `json:"op,omitempty"`
	Values   []interface{}     `json:"values,omitempty"`
	Children []SearchNodeJSON  `json:"children,omitempty"`
}

// TenantListResponse is the response message for listTenants.
type TenantListResponse struct {
	Tenants []TenantInfoJSON `json:"tenants"`
}

// TenantInfoJSON is the wire form of dal.TenantInfo.
type TenantInfoJSON struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// CreateTenantRequest is the request message for the Trusted-only
// createTenant bootstrap operation.
type CreateTenantRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// WriteBatchRequest is the request message for writeBatch.
type WriteBatchRequest struct {
	Tenant              string                `json:"tenant"`
	PreallocateIds      []metadata.TagHeader  `json:"preallocateIds"`
	PreallocatedObjects []metadata.Tag        `json:"preallocatedObjects"`
	NewObjects          []metadata.Tag        `json:"newObjects"`
	NewVersions         []metadata.Tag        `json:"newVersions"`
	NewTags             []metadata.Tag        `json:"newTags"`
}
