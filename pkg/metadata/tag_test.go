// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metadata_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trac-platform/trac/pkg/metadata"
)

func TestIsControlledAttr(t *testing.T) {
	var testCases = []struct {
		name string
		attr string
		want bool
	}{
		{"controlled", "trac_create_time", true},
		{"controlled exact prefix", "trac_", true},
		{"user attribute", "reviewed", false},
		{"similar but not prefixed", "my_trac_thing", false},
	}
	for _, tt := range testCases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, metadata.IsControlledAttr(tt.attr))
		})
	}
}

func TestObjectIdRoundTripsThroughHiLo(t *testing.T) {
	id := metadata.NewObjectId()
	hi, lo := id.HiLo()
	got := metadata.ObjectIdFromHiLo(hi, lo)
	require.Equal(t, id, got)
}

func TestParseObjectIdRoundTrip(t *testing.T) {
	id := metadata.NewObjectId()
	parsed, err := metadata.ParseObjectId(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseObjectIdInvalid(t *testing.T) {
	_, err := metadata.ParseObjectId("not-a-uuid")
	require.Error(t, err)
}

func TestSelectorOfRoundTrip(t *testing.T) {
	header := metadata.TagHeader{
		ObjectType:    metadata.DATA,
		ObjectId:      metadata.NewObjectId(),
		ObjectVersion: 2,
		TagVersion:    3,
		ObjectTimestamp: time.Now(),
		TagTimestamp:    time.Now(),
	}
	sel := metadata.SelectorOf(header)
	require.Equal(t, header.ObjectId, sel.ObjectId)
	require.Equal(t, metadata.SelectExplicitVersion, sel.ObjectVersion.Kind)
	require.Equal(t, 2, sel.ObjectVersion.Version)
	require.Equal(t, 3, sel.TagVersion.Version)
}

func TestObjectTypeRoundTrip(t *testing.T) {
	for _, ot := range []metadata.ObjectType{metadata.DATA, metadata.MODEL, metadata.JOB, metadata.RESOURCE} {
		parsed, ok := metadata.ParseObjectType(ot.String())
		require.True(t, ok)
		require.Equal(t, ot, parsed)
	}
}

func TestPublicWritableTypes(t *testing.T) {
	require.True(t, metadata.IsPublicWritable(metadata.DATA))
	require.False(t, metadata.IsPublicWritable(metadata.JOB))
	require.False(t, metadata.IsPublicWritable(metadata.RESULT))
}
