// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package metadata holds the core, storage-agnostic data model shared by
// the DAL, the metadata services layer, and the gRPC API tier: object
// identifiers, tag headers, selectors, object types and tags.
package metadata

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
)

// Error is the error class for the metadata data model.
var Error = errs.Class("metadata")

// ObjectId is a universally unique 128-bit identifier, represented
// textually everywhere outside the DAL's internal hi/lo columns.
type ObjectId uuid.UUID

// NewObjectId generates a fresh random ObjectId.
func NewObjectId() ObjectId {
	return ObjectId(uuid.New())
}

// ParseObjectId parses the textual form of an ObjectId.
func ParseObjectId(s string) (ObjectId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ObjectId{}, Error.Wrap(err)
	}
	return ObjectId(id), nil
}

// String renders the textual form of the id.
func (id ObjectId) String() string {
	return uuid.UUID(id).String()
}

// MarshalJSON renders the id as its textual UUID form; ObjectId doesn't
// inherit uuid.UUID's own MarshalText since it's a distinct defined type.
func (id ObjectId) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON parses the textual UUID form produced by MarshalJSON.
func (id *ObjectId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return Error.Wrap(err)
	}
	parsed, err := ParseObjectId(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// HiLo splits the id into the two 64-bit halves used by the object_id
// table's (objectIdHi, objectIdLo) unique key.
func (id ObjectId) HiLo() (hi, lo uint64) {
	raw := uuid.UUID(id)
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(raw[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(raw[i])
	}
	return hi, lo
}

// ObjectIdFromHiLo reassembles an ObjectId from its two 64-bit halves.
func ObjectIdFromHiLo(hi, lo uint64) ObjectId {
	var raw uuid.UUID
	for i := 7; i >= 0; i-- {
		raw[i] = byte(hi)
		hi >>= 8
	}
	for i := 15; i >= 8; i-- {
		raw[i] = byte(lo)
		lo >>= 8
	}
	return ObjectId(raw)
}
