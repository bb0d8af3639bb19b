// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metadata

import "encoding/json"

// ObjectType enumerates the kinds of object the store can hold.
type ObjectType int

// Object type values.
const (
	ObjectTypeUnknown ObjectType = iota
	DATA
	MODEL
	FLOW
	JOB
	FILE
	SCHEMA
	CUSTOM
	STORAGE
	RESULT
	CONFIG
	RESOURCE
)

var objectTypeNames = map[ObjectType]string{
	DATA:     "DATA",
	MODEL:    "MODEL",
	FLOW:     "FLOW",
	JOB:      "JOB",
	FILE:     "FILE",
	SCHEMA:   "SCHEMA",
	CUSTOM:   "CUSTOM",
	STORAGE:  "STORAGE",
	RESULT:   "RESULT",
	CONFIG:   "CONFIG",
	RESOURCE: "RESOURCE",
}

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseObjectType converts the textual form back to an ObjectType.
func ParseObjectType(s string) (ObjectType, bool) {
	for t, name := range objectTypeNames {
		if name == s {
			return t, true
		}
	}
	return ObjectTypeUnknown, false
}

// MarshalJSON renders t by name rather than its underlying int value.
func (t ObjectType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the textual form produced by MarshalJSON.
func (t *ObjectType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return Error.Wrap(err)
	}
	v, ok := ParseObjectType(s)
	if !ok {
		return Error.New("unknown object type %q", s)
	}
	*t = v
	return nil
}

// PublicWritableTypes are the object types a client may write through
// the Public API. JOB, RESULT, CONFIG, RESOURCE and STORAGE are
// server-only and can only be written through the Trusted API.
var PublicWritableTypes = map[ObjectType]bool{
	DATA:   true,
	MODEL:  true,
	FLOW:   true,
	CUSTOM: true,
	SCHEMA: true,
	FILE:   true,
}

// IsPublicWritable reports whether the Public API may create or update
// objects of type t.
func IsPublicWritable(t ObjectType) bool {
	return PublicWritableTypes[t]
}
