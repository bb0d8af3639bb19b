// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package metaservices implements the object-lifecycle rules above the
// raw DAL: createObject, updateObject, updateTag, preallocation and
// batch writes, plus the static/semantic validation required before
// anything reaches the DAL.
package metaservices

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trac-platform/trac/internal/dal"
	"github.com/trac-platform/trac/pkg/metadata"
	"github.com/trac-platform/trac/pkg/types"
)

// Identity describes the caller on whose behalf a write is made; it
// drives the trac_create_user_*/trac_update_user_* controlled attributes.
type Identity struct {
	UserID   string
	UserName string
}

// Tier distinguishes the Public API (restricted object types) from the
// Trusted API (no restriction).
type Tier int

// API tiers.
const (
	TierPublic Tier = iota
	TierTrusted
)

// Service implements the object lifecycle rules on top of a dal.Store.
type Service struct {
	log   *zap.Logger
	store dal.Store
}

// New builds a Service over store.
func New(log *zap.Logger, store dal.Store) *Service {
	return &Service{log: log, store: store}
}

func checkTierAllowed(tier Tier, objType metadata.ObjectType) error {
	if tier == TierTrusted {
		return nil
	}
	if !metadata.IsPublicWritable(objType) {
		return metadata.NewKindedError(metadata.KindPermissionDenied, "object type %s is not writable through the public API", objType)
	}
	return nil
}

// checkNoControlledAttrs rejects client-supplied attributes beginning
// with the controlled prefix, which only the service layer itself may set.
func checkNoControlledAttrs(attrs map[string]types.Value) error {
	for name := range attrs {
		if metadata.IsControlledAttr(name) {
			return metadata.NewKindedError(metadata.KindInvalidInput, "attribute %q uses the reserved trac_ prefix", name)
		}
	}
	return nil
}

// CreateObject validates req, stamps controlled attributes, and inserts
// a fresh v1/t1 tag. Rejects if a prior version already exists for the id
// (unless preallocated, handled by CreatePreallocatedObject instead).
func (s *Service) CreateObject(ctx context.Context, tenant string, tier Tier, identity Identity, objType metadata.ObjectType, def metadata.ObjectDefinition, attrs map[string]types.Value) (metadata.Tag, error) {
	if err := checkTierAllowed(tier, objType); err != nil {
		return metadata.Tag{}, err
	}
	if err := checkNoControlledAttrs(attrs); err != nil {
		return metadata.Tag{}, err
	}

	now := time.Now().UTC()
	merged := cloneAttrs(attrs)
	stampCreate(merged, now, identity)
	if err := deriveStructuredAttrs(merged, objType, def); err != nil {
		return metadata.Tag{}, err
	}

	tag := metadata.Tag{
		Header: metadata.TagHeader{
			ObjectType:    objType,
			ObjectId:      metadata.NewObjectId(),
			ObjectVersion: 1,
			TagVersion:    1,
		},
		Definition: def,
		Attrs:      merged,
	}

	if err := s.store.SaveNewObjects(ctx, tenant, []metadata.Tag{tag}); err != nil {
		return metadata.Tag{}, err
	}
	return s.store.LoadObject(ctx, tenant, metadata.SelectorOf(tag.Header))
}

// PreallocateId reserves an ObjectId (objectVersion=0, tagVersion=0)
// ahead of the first real definition.
func (s *Service) PreallocateId(ctx context.Context, tenant string, tier Tier, objType metadata.ObjectType) (metadata.ObjectId, error) {
	if err := checkTierAllowed(tier, objType); err != nil {
		return metadata.ObjectId{}, err
	}
	id := metadata.NewObjectId()
	header := metadata.TagHeader{ObjectType: objType, ObjectId: id}
	if err := s.store.SavePreallocatedIds(ctx, tenant, []metadata.TagHeader{header}); err != nil {
		return metadata.ObjectId{}, err
	}
	return id, nil
}

// CreatePreallocatedObject writes the first real definition (v1/t1) onto
// a previously reserved id.
func (s *Service) CreatePreallocatedObject(ctx context.Context, tenant string, tier Tier, identity Identity, id metadata.ObjectId, objType metadata.ObjectType, def metadata.ObjectDefinition, attrs map[string]types.Value) (metadata.Tag, error) {
	if err := checkTierAllowed(tier, objType); err != nil {
		return metadata.Tag{}, err
	}
	if err := checkNoControlledAttrs(attrs); err != nil {
		return metadata.Tag{}, err
	}

	now := time.Now().UTC()
	merged := cloneAttrs(attrs)
	stampCreate(merged, now, identity)
	if err := deriveStructuredAttrs(merged, objType, def); err != nil {
		return metadata.Tag{}, err
	}

	tag := metadata.Tag{
		Header: metadata.TagHeader{
			ObjectType:    objType,
			ObjectId:      id,
			ObjectVersion: 1,
			TagVersion:    1,
		},
		Definition: def,
		Attrs:      merged,
	}
	if err := s.store.SavePreallocatedObjects(ctx, tenant, []metadata.Tag{tag}); err != nil {
		return metadata.Tag{}, err
	}
	return s.store.LoadObject(ctx, tenant, metadata.SelectorOf(tag.Header))
}

// UpdateObject loads the prior latest version, requires the submitted
// priorVersion selector to match it, refuses to change the object type,
// and appends a new version with reapplied structured/update attributes.
func (s *Service) UpdateObject(ctx context.Context, tenant string, tier Tier, identity Identity, priorVersion metadata.TagSelector, def metadata.ObjectDefinition, attrs map[string]types.Value) (metadata.Tag, error) {
	prior, err := s.store.LoadObject(ctx, tenant, priorVersion)
	if err != nil {
		return metadata.Tag{}, err
	}
	if err := checkTierAllowed(tier, prior.Header.ObjectType); err != nil {
		return metadata.Tag{}, err
	}
	if def.Type != prior.Header.ObjectType {
		return metadata.Tag{}, metadata.NewKindedError(metadata.KindWrongObjectType, "cannot change object type from %s to %s on update", prior.Header.ObjectType, def.Type)
	}
	if !prior.Header.IsLatestObject {
		return metadata.Tag{}, metadata.NewKindedError(metadata.KindVersionConflict, "priorVersion selector does not resolve to the current latest version")
	}
	if err := checkNoControlledAttrs(attrs); err != nil {
		return metadata.Tag{}, err
	}

	now := time.Now().UTC()
	merged := cloneAttrs(attrs)
	stampUpdate(merged, now, identity)
	if err := deriveStructuredAttrs(merged, prior.Header.ObjectType, def); err != nil {
		return metadata.Tag{}, err
	}

	tag := metadata.Tag{
		Header: metadata.TagHeader{
			ObjectType:    prior.Header.ObjectType,
			ObjectId:      prior.Header.ObjectId,
			ObjectVersion: prior.Header.ObjectVersion + 1,
			TagVersion:    1,
		},
		Definition: def,
		Attrs:      merged,
	}
	if err := s.store.SaveNewVersions(ctx, tenant, []metadata.Tag{tag}); err != nil {
		return metadata.Tag{}, err
	}
	return s.store.LoadObject(ctx, tenant, metadata.SelectorOf(tag.Header))
}

// UpdateTag behaves like UpdateObject but leaves the definition untouched,
// appending a new tagVersion on the same object version.
func (s *Service) UpdateTag(ctx context.Context, tenant string, tier Tier, identity Identity, selector metadata.TagSelector, attrs map[string]types.Value) (metadata.Tag, error) {
	prior, err := s.store.LoadObject(ctx, tenant, selector)
	if err != nil {
		return metadata.Tag{}, err
	}
	if err := checkTierAllowed(tier, prior.Header.ObjectType); err != nil {
		return metadata.Tag{}, err
	}
	if !prior.Header.IsLatestTag {
		return metadata.Tag{}, metadata.NewKindedError(metadata.KindTagVersionConflict, "selector does not resolve to the current latest tag")
	}
	if err := checkNoControlledAttrs(attrs); err != nil {
		return metadata.Tag{}, err
	}

	now := time.Now().UTC()
	merged := cloneAttrs(prior.Attrs)
	for k, v := range attrs {
		merged[k] = v
	}
	stampUpdate(merged, now, identity)

	tag := metadata.Tag{
		Header: metadata.TagHeader{
			ObjectType:    prior.Header.ObjectType,
			ObjectId:      prior.Header.ObjectId,
			ObjectVersion: prior.Header.ObjectVersion,
			TagVersion:    prior.Header.TagVersion + 1,
		},
		Definition: prior.Definition,
		Attrs:      merged,
	}
	if err := s.store.SaveNewTags(ctx, tenant, []metadata.Tag{tag}); err != nil {
		return metadata.Tag{}, err
	}
	return s.store.LoadObject(ctx, tenant, metadata.SelectorOf(tag.Header))
}

// WriteBatch validates and applies a mixed batch of writes atomically.
// Tier and controlled-attribute checks apply per-tag, exactly as they
// would to the equivalent single-tag call.
func (s *Service) WriteBatch(ctx context.Context, tenant string, tier Tier, batch dal.Batch) error {
	for _, h := range batch.PreallocateIds {
		if err := checkTierAllowed(tier, h.ObjectType); err != nil {
			return err
		}
	}
	for _, group := range [][]metadata.Tag{batch.PreallocatedObjects, batch.NewObjects, batch.NewVersions, batch.NewTags} {
		for _, t := range group {
			if err := checkTierAllowed(tier, t.Header.ObjectType); err != nil {
				return err
			}
			if err := checkNoControlledAttrs(t.Attrs); err != nil {
				return err
			}
		}
	}
	return s.store.SaveBatchUpdate(ctx, tenant, batch)
}

// ReadObject is a thin passthrough to the DAL with no tier check: both
// API tiers expose identical reads.
func (s *Service) ReadObject(ctx context.Context, tenant string, sel metadata.TagSelector) (metadata.Tag, error) {
	return s.store.LoadObject(ctx, tenant, sel)
}

// ReadObjects loads every selector, preserving order.
func (s *Service) ReadObjects(ctx context.Context, tenant string, sels []metadata.TagSelector) ([]metadata.Tag, error) {
	return s.store.LoadObjects(ctx, tenant, sels)
}

// Search passes a validated query through to the DAL.
func (s *Service) Search(ctx context.Context, tenant string, params dal.SearchParams) ([]metadata.Tag, error) {
	return s.store.Search(ctx, tenant, params)
}

// ListTenants returns every tenant the metadata store knows about.
func (s *Service) ListTenants(ctx context.Context) ([]dal.TenantInfo, error) {
	return s.store.ListTenants(ctx)
}

// CreateTenant registers a new tenant (Trusted-only bootstrap operation,
// part of the tenant administration surface).
func (s *Service) CreateTenant(ctx context.Context, code, description string) error {
	return s.store.CreateTenant(ctx, code, description)
}

func cloneAttrs(attrs map[string]types.Value) map[string]types.Value {
	out := make(map[string]types.Value, len(attrs)+4)
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func stampCreate(attrs map[string]types.Value, now time.Time, identity Identity) {
	attrs["trac_create_time"] = types.NewDatetime(now)
	attrs["trac_create_user_id"] = types.NewString(identity.UserID)
	attrs["trac_create_user_name"] = types.NewString(identity.UserName)
	attrs["trac_update_time"] = types.NewDatetime(now)
	attrs["trac_update_user_id"] = types.NewString(identity.UserID)
	attrs["trac_update_user_name"] = types.NewString(identity.UserName)
}

func stampUpdate(attrs map[string]types.Value, now time.Time, identity Identity) {
	attrs["trac_update_time"] = types.NewDatetime(now)
	attrs["trac_update_user_id"] = types.NewString(identity.UserID)
	attrs["trac_update_user_name"] = types.NewString(identity.UserName)
}
