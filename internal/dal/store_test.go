// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package dal_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trac-platform/trac/internal/dal"
	"github.com/trac-platform/trac/internal/dal/sqlite"
	"github.com/trac-platform/trac/internal/dal/sqlstore"
	"github.com/trac-platform/trac/pkg/metadata"
	"github.com/trac-platform/trac/pkg/types"
)

func openTestStore(t *testing.T) *sqlstore.Store {
	store, err := sqlite.Open(zaptest.NewLogger(t), ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	require.NoError(t, store.CreateTenant(context.Background(), "ACME_CORP", "Acme Corporation"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newDataTag(rowCount int64) metadata.Tag {
	return metadata.Tag{
		Header: metadata.TagHeader{
			ObjectType:    metadata.DATA,
			ObjectId:      metadata.NewObjectId(),
			ObjectVersion: 1,
			TagVersion:    1,
		},
		Definition: metadata.ObjectDefinition{
			Type:        metadata.DATA,
			MetaFormat:  "proto",
			MetaVersion: 1,
			Definition:  []byte("data-def-v1"),
		},
		Attrs: map[string]types.Value{
			"trac_data_row_count": types.NewInteger(rowCount),
		},
	}
}

func TestListTenants(t *testing.T) {
	store := openTestStore(t)
	tenants, err := store.ListTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	require.Equal(t, "ACME_CORP", tenants[0].Code)
}

// TestS1CreateDataObject covers a straight create-and-read round trip.
func TestS1CreateDataObject(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	tag := newDataTag(1000)

	require.NoError(t, store.SaveNewObjects(ctx, "ACME_CORP", []metadata.Tag{tag}))

	sel := metadata.TagSelector{
		ObjectType:    metadata.DATA,
		ObjectId:      tag.Header.ObjectId,
		ObjectVersion: metadata.LatestVersion(),
		TagVersion:    metadata.LatestVersion(),
	}
	got, err := store.LoadObject(ctx, "ACME_CORP", sel)
	require.NoError(t, err)
	require.Equal(t, 1, got.Header.ObjectVersion)
	require.Equal(t, 1, got.Header.TagVersion)
	require.True(t, got.Header.IsLatestObject)
	require.True(t, got.Header.IsLatestTag)
	require.True(t, types.Equal(types.NewInteger(1000), got.Attrs["trac_data_row_count"]))
}

// TestS2VersionHistoryPreserved covers that prior object versions remain
// readable by explicit version after a new version is saved.
func TestS2VersionHistoryPreserved(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	v1 := newDataTag(100)

	require.NoError(t, store.SaveNewObjects(ctx, "ACME_CORP", []metadata.Tag{v1}))

	v2 := v1
	v2.Header.ObjectVersion = 2
	v2.Header.TagVersion = 1
	v2.Definition.Definition = []byte("data-def-v2")
	require.NoError(t, store.SaveNewVersions(ctx, "ACME_CORP", []metadata.Tag{v2}))

	latest, err := store.LoadObject(ctx, "ACME_CORP", metadata.TagSelector{
		ObjectType: metadata.DATA, ObjectId: v1.Header.ObjectId,
		ObjectVersion: metadata.LatestVersion(), TagVersion: metadata.LatestVersion(),
	})
	require.NoError(t, err)
	require.Equal(t, 2, latest.Header.ObjectVersion)
	require.Equal(t, []byte("data-def-v2"), latest.Definition.Definition)

	prior, err := store.LoadObject(ctx, "ACME_CORP", metadata.TagSelector{
		ObjectType: metadata.DATA, ObjectId: v1.Header.ObjectId,
		ObjectVersion: metadata.ExplicitVersion(1), TagVersion: metadata.LatestVersion(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, prior.Header.ObjectVersion)
	require.Equal(t, []byte("data-def-v1"), prior.Definition.Definition)
	require.False(t, prior.Header.IsLatestObject)
}

// TestS3TagUpdateAndSearch covers that a new tag version is searchable
// by its updated attributes.
func TestS3TagUpdateAndSearch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	v1 := newDataTag(10)
	require.NoError(t, store.SaveNewObjects(ctx, "ACME_CORP", []metadata.Tag{v1}))

	t2 := v1
	t2.Header.TagVersion = 2
	t2.Attrs = map[string]types.Value{
		"trac_data_row_count": types.NewInteger(10),
		"reviewed":            types.NewBoolean(true),
	}
	require.NoError(t, store.SaveNewTags(ctx, "ACME_CORP", []metadata.Tag{t2}))

	results, err := store.Search(ctx, "ACME_CORP", dal.SearchParams{
		ObjectType: metadata.DATA,
		Query: dal.Leaf(dal.SearchTerm{
			AttrName: "reviewed",
			AttrType: types.BOOLEAN,
			Op:       dal.OpEQ,
			Values:   []interface{}{true},
		}),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 2, results[0].Header.TagVersion)
}

// TestS4ConcurrentUpdateObjectConflict covers that two concurrent
// updates racing on the same object produce one winner and one conflict
// error, never two successful writes.
func TestS4ConcurrentUpdateObjectConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	v1 := newDataTag(1)
	require.NoError(t, store.SaveNewObjects(ctx, "ACME_CORP", []metadata.Tag{v1}))

	v2a := v1
	v2a.Header.ObjectVersion = 2
	v2a.Header.TagVersion = 1
	v2b := v2a

	errA := store.SaveNewVersions(ctx, "ACME_CORP", []metadata.Tag{v2a})
	errB := store.SaveNewVersions(ctx, "ACME_CORP", []metadata.Tag{v2b})

	require.True(t, (errA == nil) != (errB == nil), "exactly one of the two concurrent updates must succeed")
}

func TestDuplicateObjectRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	v1 := newDataTag(1)
	require.NoError(t, store.SaveNewObjects(ctx, "ACME_CORP", []metadata.Tag{v1}))
	err := store.SaveNewObjects(ctx, "ACME_CORP", []metadata.Tag{v1})
	require.Error(t, err)
}

func TestSearchTypeMismatchIsError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	v1 := newDataTag(1)
	require.NoError(t, store.SaveNewObjects(ctx, "ACME_CORP", []metadata.Tag{v1}))

	_, err := store.Search(ctx, "ACME_CORP", dal.SearchParams{
		Query: dal.Leaf(dal.SearchTerm{
			AttrName: "trac_data_row_count",
			AttrType: types.STRING, // wrong: stored as INTEGER
			Op:       dal.OpEQ,
			Values:   []interface{}{"1"},
		}),
	})
	require.Error(t, err)
}

// TestSearchDecimalIsScaleInsensitive covers that DECIMAL equality
// matches by numeric value, not by the stored string's scale: "1.50"
// and "1.5" are the same value.
func TestSearchDecimalIsScaleInsensitive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	v1 := newDataTag(1)
	v1.Attrs["price"] = types.NewDecimal(decimal.RequireFromString("1.5"))
	require.NoError(t, store.SaveNewObjects(ctx, "ACME_CORP", []metadata.Tag{v1}))

	results, err := store.Search(ctx, "ACME_CORP", dal.SearchParams{
		ObjectType: metadata.DATA,
		Query: dal.Leaf(dal.SearchTerm{
			AttrName: "price",
			AttrType: types.DECIMAL,
			Op:       dal.OpEQ,
			Values:   []interface{}{decimal.RequireFromString("1.50")},
		}),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

// TestSearchDecimalOrdersNumerically covers that DECIMAL comparisons
// order by numeric value, not lexicographically: "10" is greater than
// "9", even though "10" sorts before "9" as a string.
func TestSearchDecimalOrdersNumerically(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	v1 := newDataTag(1)
	v1.Attrs["price"] = types.NewDecimal(decimal.RequireFromString("10"))
	require.NoError(t, store.SaveNewObjects(ctx, "ACME_CORP", []metadata.Tag{v1}))

	results, err := store.Search(ctx, "ACME_CORP", dal.SearchParams{
		ObjectType: metadata.DATA,
		Query: dal.Leaf(dal.SearchTerm{
			AttrName: "price",
			AttrType: types.DECIMAL,
			Op:       dal.OpGT,
			Values:   []interface{}{decimal.RequireFromString("9")},
		}),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestPreallocatedObjectLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	header := metadata.TagHeader{ObjectType: metadata.DATA, ObjectId: metadata.NewObjectId()}
	require.NoError(t, store.SavePreallocatedIds(ctx, "ACME_CORP", []metadata.TagHeader{header}))

	tag := newDataTag(5)
	tag.Header.ObjectId = header.ObjectId
	require.NoError(t, store.SavePreallocatedObjects(ctx, "ACME_CORP", []metadata.Tag{tag}))

	got, err := store.LoadObject(ctx, "ACME_CORP", metadata.TagSelector{
		ObjectType: metadata.DATA, ObjectId: header.ObjectId,
		ObjectVersion: metadata.ExplicitVersion(1), TagVersion: metadata.ExplicitVersion(1),
	})
	require.NoError(t, err)
	require.Equal(t, 1, got.Header.ObjectVersion)
}

func TestAsOfBeforeFirstVersionIsMissing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	v1 := newDataTag(1)
	require.NoError(t, store.SaveNewObjects(ctx, "ACME_CORP", []metadata.Tag{v1}))

	_, err := store.LoadObject(ctx, "ACME_CORP", metadata.TagSelector{
		ObjectType: metadata.DATA, ObjectId: v1.Header.ObjectId,
		ObjectVersion: metadata.AsOfVersion(time.Now().AddDate(-10, 0, 0)),
		TagVersion:    metadata.LatestVersion(),
	})
	require.Error(t, err)
}
