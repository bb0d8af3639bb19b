// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/trac-platform/trac/pkg/metadata"
)

// LoadObject resolves sel to exactly one tag.
func (s *Store) LoadObject(ctx context.Context, tenant string, sel metadata.TagSelector) (metadata.Tag, error) {
	objectPk, ok, err := s.objectPkByID(ctx, s.db, tenant, sel.ObjectId)
	if err != nil {
		return metadata.Tag{}, err
	}
	if !ok {
		return metadata.Tag{}, metadata.NewKindedError(metadata.KindNotFound, "object %s does not exist", sel.ObjectId)
	}

	definitionPk, objectVersion, err := s.resolveObjectVersion(ctx, s.db, tenant, objectPk, sel.ObjectVersion)
	if err != nil {
		return metadata.Tag{}, err
	}
	tagPk, tagVersion, err := s.resolveTagVersion(ctx, s.db, tenant, definitionPk, sel.TagVersion)
	if err != nil {
		return metadata.Tag{}, err
	}
	_, _ = objectVersion, tagVersion

	return s.assembleTag(ctx, s.db, tenant, sel.ObjectType, sel.ObjectId, objectPk, definitionPk, tagPk)
}

// LoadObjects resolves every selector, preserving input order, and fails
// on the first missing selector.
func (s *Store) LoadObjects(ctx context.Context, tenant string, sels []metadata.TagSelector) ([]metadata.Tag, error) {
	out := make([]metadata.Tag, len(sels))
	for i, sel := range sels {
		tag, err := s.LoadObject(ctx, tenant, sel)
		if err != nil {
			return nil, err
		}
		out[i] = tag
	}
	return out, nil
}

func (s *Store) objectPkByID(ctx context.Context, q queryer, tenant string, id metadata.ObjectId) (int64, bool, error) {
	hi, lo := id.HiLo()
	query := `SELECT object_pk FROM object_id WHERE tenant_id = ` + s.dialect.Placeholder(1) +
		` AND object_id_hi = ` + s.dialect.Placeholder(2) + ` AND object_id_lo = ` + s.dialect.Placeholder(3)
	r := s.queryRow(ctx, q, query, tenant, int64(hi), int64(lo))
	var pk int64
	err := r.Scan(&pk)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, Error.Wrap(err)
	}
	return pk, true, nil
}

// queryRow runs a single-row query on a *sql.DB or *sql.Tx. queryer
// doesn't include QueryRowContext, so this helper dispatches on the
// concrete type.
func (s *Store) queryRow(ctx context.Context, q queryer, query string, args ...interface{}) *sql.Row {
	switch v := q.(type) {
	case *sql.DB:
		return v.QueryRowContext(ctx, query, args...)
	case *sql.Tx:
		return v.QueryRowContext(ctx, query, args...)
	default:
		panic("sqlstore: unsupported queryer")
	}
}

// resolveObjectVersion implements the object-version resolution rules
// and returns the matching definition_pk and the concrete version
// number it resolved to.
func (s *Store) resolveObjectVersion(ctx context.Context, q queryer, tenant string, objectPk int64, sel metadata.VersionSelector) (int64, int, error) {
	switch sel.Kind {
	case metadata.SelectLatest:
		query := `SELECT definition_pk, object_version FROM object_definition
			WHERE tenant_id = ` + s.dialect.Placeholder(1) + ` AND object_fk = ` + s.dialect.Placeholder(2) + ` AND is_latest = ` + trueLiteral(s.dialect)
		row := s.queryRow(ctx, q, query, tenant, objectPk)
		var pk int64
		var v int
		if err := row.Scan(&pk, &v); err != nil {
			return 0, 0, metadata.NewKindedError(metadata.KindNotFound, "no latest object version")
		}
		return pk, v, nil

	case metadata.SelectExplicitVersion:
		query := `SELECT definition_pk FROM object_definition
			WHERE tenant_id = ` + s.dialect.Placeholder(1) + ` AND object_fk = ` + s.dialect.Placeholder(2) + ` AND object_version = ` + s.dialect.Placeholder(3)
		row := s.queryRow(ctx, q, query, tenant, objectPk, sel.Version)
		var pk int64
		if err := row.Scan(&pk); err != nil {
			return 0, 0, metadata.NewKindedError(metadata.KindNotFound, "object version %d does not exist", sel.Version)
		}
		return pk, sel.Version, nil

	case metadata.SelectAsOf:
		// The version whose objectTimestamp <= T, and which was either
		// still latest or only superseded after T.
		query := `SELECT definition_pk, object_version FROM object_definition
			WHERE tenant_id = ` + s.dialect.Placeholder(1) + ` AND object_fk = ` + s.dialect.Placeholder(2) +
			` AND object_timestamp <= ` + s.dialect.Placeholder(3) +
			` AND (superseded IS NULL OR superseded > ` + s.dialect.Placeholder(4) + `)`
		row := s.queryRow(ctx, q, query, tenant, objectPk, sel.AsOf.UTC(), sel.AsOf.UTC())
		var pk int64
		var v int
		if err := row.Scan(&pk, &v); err != nil {
			return 0, 0, metadata.NewKindedError(metadata.KindNotFound, "no object version as of %s", sel.AsOf)
		}
		return pk, v, nil

	default:
		return 0, 0, metadata.NewKindedError(metadata.KindInvalidInput, "unknown object version selector")
	}
}

func (s *Store) resolveTagVersion(ctx context.Context, q queryer, tenant string, definitionPk int64, sel metadata.VersionSelector) (int64, int, error) {
	switch sel.Kind {
	case metadata.SelectLatest:
		query := `SELECT tag_pk, tag_version FROM tag
			WHERE tenant_id = ` + s.dialect.Placeholder(1) + ` AND definition_fk = ` + s.dialect.Placeholder(2) + ` AND is_latest = ` + trueLiteral(s.dialect)
		row := s.queryRow(ctx, q, query, tenant, definitionPk)
		var pk int64
		var v int
		if err := row.Scan(&pk, &v); err != nil {
			return 0, 0, metadata.NewKindedError(metadata.KindNotFound, "no latest tag")
		}
		return pk, v, nil

	case metadata.SelectExplicitVersion:
		query := `SELECT tag_pk FROM tag
			WHERE tenant_id = ` + s.dialect.Placeholder(1) + ` AND definition_fk = ` + s.dialect.Placeholder(2) + ` AND tag_version = ` + s.dialect.Placeholder(3)
		row := s.queryRow(ctx, q, query, tenant, definitionPk, sel.Version)
		var pk int64
		if err := row.Scan(&pk); err != nil {
			return 0, 0, metadata.NewKindedError(metadata.KindNotFound, "tag version %d does not exist", sel.Version)
		}
		return pk, sel.Version, nil

	case metadata.SelectAsOf:
		query := `SELECT tag_pk, tag_version FROM tag
			WHERE tenant_id = ` + s.dialect.Placeholder(1) + ` AND definition_fk = ` + s.dialect.Placeholder(2) +
			` AND tag_timestamp <= ` + s.dialect.Placeholder(3) +
			` AND (superseded IS NULL OR superseded > ` + s.dialect.Placeholder(4) + `)`
		row := s.queryRow(ctx, q, query, tenant, definitionPk, sel.AsOf.UTC(), sel.AsOf.UTC())
		var pk int64
		var v int
		if err := row.Scan(&pk, &v); err != nil {
			return 0, 0, metadata.NewKindedError(metadata.KindNotFound, "no tag version as of %s", sel.AsOf)
		}
		return pk, v, nil

	default:
		return 0, 0, metadata.NewKindedError(metadata.KindInvalidInput, "unknown tag version selector")
	}
}

// assembleTag hydrates a full metadata.Tag from resolved primary keys.
func (s *Store) assembleTag(ctx context.Context, q queryer, tenant string, objType metadata.ObjectType, id metadata.ObjectId, objectPk, definitionPk, tagPk int64) (metadata.Tag, error) {
	query := `SELECT od.object_version, od.object_timestamp, od.is_latest, od.meta_format, od.meta_version, od.definition,
		t.tag_version, t.tag_timestamp, t.is_latest, t.object_type
		FROM object_definition od JOIN tag t ON t.definition_fk = od.definition_pk
		WHERE od.tenant_id = ` + s.dialect.Placeholder(1) + ` AND od.definition_pk = ` + s.dialect.Placeholder(2) + ` AND t.tag_pk = ` + s.dialect.Placeholder(3)
	row := s.queryRow(ctx, q, query, tenant, definitionPk, tagPk)

	var objVersion, tagVersion, metaVersion int
	var objTimestamp, tagTimestamp time.Time
	var objIsLatest, tagIsLatest bool
	var metaFormat, objectTypeStr string
	var definition []byte
	if err := row.Scan(&objVersion, &objTimestamp, &objIsLatest, &metaFormat, &metaVersion, &definition,
		&tagVersion, &tagTimestamp, &tagIsLatest, &objectTypeStr); err != nil {
		return metadata.Tag{}, metadata.NewKindedError(metadata.KindNotFound, "%w", err)
	}

	resolvedType, _ := metadata.ParseObjectType(objectTypeStr)
	if objType != metadata.ObjectTypeUnknown && objType != resolvedType {
		return metadata.Tag{}, metadata.NewKindedError(metadata.KindWrongObjectType, "selector asked for %s, stored object is %s", objType, resolvedType)
	}

	attrs, err := s.loadAttrs(ctx, q, tenant, tagPk)
	if err != nil {
		return metadata.Tag{}, err
	}

	return metadata.Tag{
		Header: metadata.TagHeader{
			ObjectType:      resolvedType,
			ObjectId:        id,
			ObjectVersion:   objVersion,
			TagVersion:      tagVersion,
			ObjectTimestamp: objTimestamp,
			TagTimestamp:    tagTimestamp,
			IsLatestObject:  objIsLatest,
			IsLatestTag:     tagIsLatest,
		},
		Definition: metadata.ObjectDefinition{
			Type:        resolvedType,
			MetaFormat:  metaFormat,
			MetaVersion: metaVersion,
			Definition:  definition,
		},
		Attrs: attrs,
	}, nil
}
