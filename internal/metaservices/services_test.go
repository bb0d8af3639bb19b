// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metaservices_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trac-platform/trac/internal/dal/sqlite"
	"github.com/trac-platform/trac/internal/metaservices"
	"github.com/trac-platform/trac/pkg/metadata"
	"github.com/trac-platform/trac/pkg/types"
)

func newTestService(t *testing.T) *metaservices.Service {
	store, err := sqlite.Open(zaptest.NewLogger(t), ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	require.NoError(t, store.CreateTenant(context.Background(), "ACME_CORP", "Acme Corporation"))
	t.Cleanup(func() { _ = store.Close() })
	return metaservices.New(zaptest.NewLogger(t), store)
}

func dataDef(rowCount int64) metadata.ObjectDefinition {
	body, _ := json.Marshal(map[string]int64{"rowCount": rowCount})
	return metadata.ObjectDefinition{Type: metadata.DATA, MetaFormat: "json", MetaVersion: 1, Definition: body}
}

func TestCreateObjectStampsControlledAttrsAndDerivesRowCount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	identity := metaservices.Identity{UserID: "u1", UserName: "Alice"}

	tag, err := svc.CreateObject(ctx, "ACME_CORP", metaservices.TierPublic, identity, metadata.DATA, dataDef(42), map[string]types.Value{
		"description": types.NewString("a dataset"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, tag.Header.ObjectVersion)
	require.True(t, types.Equal(types.NewInteger(42), tag.Attrs["trac_data_row_count"]))
	require.Equal(t, "u1", tag.Attrs["trac_create_user_id"].StringValue)
	require.Equal(t, "u1", tag.Attrs["trac_update_user_id"].StringValue)
}

func TestCreateObjectRejectsClientControlledAttr(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateObject(ctx, "ACME_CORP", metaservices.TierPublic, metaservices.Identity{}, metadata.DATA, dataDef(1), map[string]types.Value{
		"trac_data_row_count": types.NewInteger(999),
	})
	require.Error(t, err)
}

func TestCreateObjectRejectsNonPublicTypeOnPublicTier(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateObject(ctx, "ACME_CORP", metaservices.TierPublic, metaservices.Identity{}, metadata.JOB, metadata.ObjectDefinition{Type: metadata.JOB}, nil)
	require.Error(t, err)
}

func TestCreateObjectAllowsTrustedTierForJob(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	tag, err := svc.CreateObject(ctx, "ACME_CORP", metaservices.TierTrusted, metaservices.Identity{}, metadata.JOB, metadata.ObjectDefinition{Type: metadata.JOB}, nil)
	require.NoError(t, err)
	require.Equal(t, metadata.JOB, tag.Header.ObjectType)
}

func TestUpdateObjectRequiresLatestPriorVersion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	identity := metaservices.Identity{UserID: "u1"}

	v1, err := svc.CreateObject(ctx, "ACME_CORP", metaservices.TierPublic, identity, metadata.DATA, dataDef(1), nil)
	require.NoError(t, err)

	v2, err := svc.UpdateObject(ctx, "ACME_CORP", metaservices.TierPublic, identity, metadata.SelectorOf(v1.Header), dataDef(2), nil)
	require.NoError(t, err)
	require.Equal(t, 2, v2.Header.ObjectVersion)
	require.True(t, types.Equal(types.NewInteger(2), v2.Attrs["trac_data_row_count"]))

	// Updating against the now-stale v1 selector must fail.
	_, err = svc.UpdateObject(ctx, "ACME_CORP", metaservices.TierPublic, identity, metadata.SelectorOf(v1.Header), dataDef(3), nil)
	require.Error(t, err)
}

func TestUpdateObjectRejectsTypeChange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	identity := metaservices.Identity{}
	v1, err := svc.CreateObject(ctx, "ACME_CORP", metaservices.TierPublic, identity, metadata.DATA, dataDef(1), nil)
	require.NoError(t, err)

	_, err = svc.UpdateObject(ctx, "ACME_CORP", metaservices.TierPublic, identity, metadata.SelectorOf(v1.Header), metadata.ObjectDefinition{Type: metadata.MODEL}, nil)
	require.Error(t, err)
}

func TestUpdateTagAppendsTagVersion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	identity := metaservices.Identity{}
	v1, err := svc.CreateObject(ctx, "ACME_CORP", metaservices.TierPublic, identity, metadata.DATA, dataDef(1), nil)
	require.NoError(t, err)

	t2, err := svc.UpdateTag(ctx, "ACME_CORP", metaservices.TierPublic, identity, metadata.SelectorOf(v1.Header), map[string]types.Value{
		"reviewed": types.NewBoolean(true),
	})
	require.NoError(t, err)
	require.Equal(t, 2, t2.Header.TagVersion)
	require.Equal(t, 1, t2.Header.ObjectVersion)
	require.True(t, types.Equal(types.NewBoolean(true), t2.Attrs["reviewed"]))
}

func TestPreallocateThenCreatePreallocatedObject(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, err := svc.PreallocateId(ctx, "ACME_CORP", metaservices.TierTrusted, metadata.DATA)
	require.NoError(t, err)

	tag, err := svc.CreatePreallocatedObject(ctx, "ACME_CORP", metaservices.TierTrusted, metaservices.Identity{}, id, metadata.DATA, dataDef(7), nil)
	require.NoError(t, err)
	require.Equal(t, id, tag.Header.ObjectId)
	require.Equal(t, 1, tag.Header.ObjectVersion)
}
