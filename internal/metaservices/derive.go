// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metaservices

import (
	"encoding/json"

	"github.com/trac-platform/trac/pkg/metadata"
	"github.com/trac-platform/trac/pkg/types"
)

// structuredFields is the subset of an object definition's JSON body that
// feeds a trac_* derived attribute. Wire schemas are out of scope for this
// project (only operation signatures and attribute semantics matter), so
// definitions are carried as JSON rather than protobuf; a definition that
// isn't valid JSON for its declared metaFormat simply yields no derived
// attributes rather than an error, since not every object type has one.
type structuredFields struct {
	RowCount    *int64  `json:"rowCount,omitempty"`
	FieldCount  *int64  `json:"fieldCount,omitempty"`
	SizeBytes   *int64  `json:"sizeBytes,omitempty"`
	ModelVersion *int64 `json:"modelVersion,omitempty"`
}

// deriveStructuredAttrs fills in the controlled structured attributes
// named below, with the exact mapping per ObjectType fixed here:
// DATA.rowCount -> trac_data_row_count, SCHEMA.fieldCount ->
// trac_schema_field_count, FILE.sizeBytes -> trac_file_size,
// MODEL.modelVersion -> trac_model_version.
func deriveStructuredAttrs(attrs map[string]types.Value, objType metadata.ObjectType, def metadata.ObjectDefinition) error {
	if def.MetaFormat != "json" || len(def.Definition) == 0 {
		return nil
	}

	var fields structuredFields
	if err := json.Unmarshal(def.Definition, &fields); err != nil {
		// Not every definition encodes these fields; absence of a
		// derivable attribute is not an error.
		return nil
	}

	switch objType {
	case metadata.DATA:
		if fields.RowCount != nil {
			attrs["trac_data_row_count"] = types.NewInteger(*fields.RowCount)
		}
	case metadata.SCHEMA:
		if fields.FieldCount != nil {
			attrs["trac_schema_field_count"] = types.NewInteger(*fields.FieldCount)
		}
	case metadata.FILE:
		if fields.SizeBytes != nil {
			attrs["trac_file_size"] = types.NewInteger(*fields.SizeBytes)
		}
	case metadata.MODEL:
		if fields.ModelVersion != nil {
			attrs["trac_model_version"] = types.NewInteger(*fields.ModelVersion)
		}
	}
	return nil
}
