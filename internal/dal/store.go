// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package dal defines the tenant-scoped persistence interface for the
// metadata store and the types shared by every backend implementation
// (internal/dal/postgres, internal/dal/sqlite).
package dal

import (
	"context"

	"github.com/zeebo/errs"

	"github.com/trac-platform/trac/pkg/metadata"
	"github.com/trac-platform/trac/pkg/types"
)

// Error is the error class for the DAL.
var Error = errs.Class("dal")

// TenantInfo is one row of listTenants.
type TenantInfo struct {
	Code        string
	Description string
}

// BatchOp is one kind of save operation a write batch can contain, in
// its fixed required processing order:
// preallocatedIds -> preallocatedObjects -> newObjects -> newVersions -> newTags.
type BatchOp int

// Batch operation kinds, numbered in their required processing order.
const (
	OpPreallocateIds BatchOp = iota
	OpPreallocatedObjects
	OpNewObjects
	OpNewVersions
	OpNewTags
)

// Batch bundles the five save operations kinds into one atomic unit for
// saveBatchUpdate.
type Batch struct {
	PreallocateIds      []metadata.TagHeader
	PreallocatedObjects []metadata.Tag
	NewObjects          []metadata.Tag
	NewVersions         []metadata.Tag
	NewTags             []metadata.Tag
}

// IsEmpty reports whether the batch has no operations at all.
func (b Batch) IsEmpty() bool {
	return len(b.PreallocateIds) == 0 && len(b.PreallocatedObjects) == 0 &&
		len(b.NewObjects) == 0 && len(b.NewVersions) == 0 && len(b.NewTags) == 0
}

// SearchOp is a comparison operator for a search leaf term.
type SearchOp int

// Search operators.
const (
	OpEQ SearchOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpIN
	OpEXISTS
)

// SearchNodeKind distinguishes leaf terms from AND/OR/NOT combinators.
type SearchNodeKind int

// Search node kinds.
const (
	NodeLeaf SearchNodeKind = iota
	NodeAnd
	NodeOr
	NodeNot
)

// SearchTerm is a leaf node of a search query tree: attrType must match
// the type the attribute was actually stored with, or the query fails
// with an InvalidInput error rather than silently returning no results: a type
// mismatch is a query error, not an empty result set.
type SearchTerm struct {
	AttrName string
	AttrType types.BasicType
	Op       SearchOp
	Values   []interface{}
}

// SearchNode is one node of a search query tree: either a leaf SearchTerm
// or an AND/OR/NOT combinator over child nodes.
type SearchNode struct {
	Kind     SearchNodeKind
	Term     SearchTerm
	Children []SearchNode
}

// Leaf builds a leaf SearchNode.
func Leaf(term SearchTerm) SearchNode {
	return SearchNode{Kind: NodeLeaf, Term: term}
}

// And builds an AND combinator over children.
func And(children ...SearchNode) SearchNode {
	return SearchNode{Kind: NodeAnd, Children: children}
}

// Or builds an OR combinator over children.
func Or(children ...SearchNode) SearchNode {
	return SearchNode{Kind: NodeOr, Children: children}
}

// Not builds a NOT combinator over a single child.
func Not(child SearchNode) SearchNode {
	return SearchNode{Kind: NodeNot, Children: []SearchNode{child}}
}

// SearchParams is the structured query accepted by Search.
type SearchParams struct {
	ObjectType   metadata.ObjectType
	Query        SearchNode
	PriorVersions bool
	PriorTags     bool
}

// Store is the tenant-scoped persistence interface implemented by every
// DAL backend. Every operation is serializable with respect to concurrent
// writes to the same (tenant, objectId).
type Store interface {
	ListTenants(ctx context.Context) ([]TenantInfo, error)
	CreateTenant(ctx context.Context, code, description string) error

	SavePreallocatedIds(ctx context.Context, tenant string, headers []metadata.TagHeader) error
	SavePreallocatedObjects(ctx context.Context, tenant string, tags []metadata.Tag) error
	SaveNewObjects(ctx context.Context, tenant string, tags []metadata.Tag) error
	SaveNewVersions(ctx context.Context, tenant string, tags []metadata.Tag) error
	SaveNewTags(ctx context.Context, tenant string, tags []metadata.Tag) error
	SaveBatchUpdate(ctx context.Context, tenant string, batch Batch) error

	LoadObject(ctx context.Context, tenant string, sel metadata.TagSelector) (metadata.Tag, error)
	LoadObjects(ctx context.Context, tenant string, sels []metadata.TagSelector) ([]metadata.Tag, error)

	Search(ctx context.Context, tenant string, params SearchParams) ([]metadata.Tag, error)

	Close() error
}
