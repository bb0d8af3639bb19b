// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metadata

import (
	"strings"
	"time"

	"github.com/trac-platform/trac/pkg/types"
)

// ControlledAttrPrefix marks attributes that may only be set by the
// server, never by a client request.
const ControlledAttrPrefix = "trac_"

// IsControlledAttr reports whether name is a server-controlled attribute.
func IsControlledAttr(name string) bool {
	return strings.HasPrefix(name, ControlledAttrPrefix)
}

// TagHeader uniquely identifies one version of one tag on one object.
type TagHeader struct {
	ObjectType      ObjectType
	ObjectId        ObjectId
	ObjectVersion   int
	TagVersion      int
	ObjectTimestamp time.Time
	TagTimestamp    time.Time
	IsLatestObject  bool
	IsLatestTag     bool
}

// ObjectDefinition is a tagged union holding exactly one typed body,
// matching Type. The DAL treats Definition as opaque serialized bytes;
// MetaFormat/MetaVersion describe how to interpret them.
type ObjectDefinition struct {
	Type       ObjectType
	MetaFormat string
	MetaVersion int
	Definition []byte
}

// Tag is the unit of read/write in the metadata store: a header, the
// object definition it points at, and the attribute map.
type Tag struct {
	Header     TagHeader
	Definition ObjectDefinition
	Attrs      map[string]types.Value
}

// SelectorVersionKind distinguishes the three ways a selector may pin an
// object or tag version.
type SelectorVersionKind int

// Selector version kinds.
const (
	SelectExplicitVersion SelectorVersionKind = iota
	SelectAsOf
	SelectLatest
)

// VersionSelector is one of {objectVersion | asOf | latestObject} or the
// tag-version analogue.
type VersionSelector struct {
	Kind    SelectorVersionKind
	Version int
	AsOf    time.Time
}

// ExplicitVersion builds a VersionSelector pinned to an exact version.
func ExplicitVersion(v int) VersionSelector {
	return VersionSelector{Kind: SelectExplicitVersion, Version: v}
}

// AsOfVersion builds a VersionSelector resolved as of a point in time.
func AsOfVersion(t time.Time) VersionSelector {
	return VersionSelector{Kind: SelectAsOf, AsOf: t}
}

// LatestVersion builds a VersionSelector that always resolves to the
// current latest version.
func LatestVersion() VersionSelector {
	return VersionSelector{Kind: SelectLatest}
}

// TagSelector is a tenant-scoped query for exactly one tag.
type TagSelector struct {
	ObjectType    ObjectType
	ObjectId      ObjectId
	ObjectVersion VersionSelector
	TagVersion    VersionSelector
}

// SelectorOf builds the TagSelector that resolves back to exactly the
// tag identified by header — the basis for a write-then-read round trip.
func SelectorOf(header TagHeader) TagSelector {
	return TagSelector{
		ObjectType:    header.ObjectType,
		ObjectId:      header.ObjectId,
		ObjectVersion: ExplicitVersion(header.ObjectVersion),
		TagVersion:    ExplicitVersion(header.TagVersion),
	}
}
