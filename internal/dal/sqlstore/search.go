// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trac-platform/trac/internal/dal"
	"github.com/trac-platform/trac/pkg/metadata"
)

// Search evaluates params.Query against tag_attr/tag, returning the
// matching tags. Each leaf term resolves to a sub-select over tag_attr
// joined back to tag; subselects are composed
// with set operations for AND/OR/NOT. We compute those set operations in
// Go over sets of tag_pk rather than with SQL INTERSECT/EXCEPT so the
// same code runs unmodified against sqlite and Postgres.
func (s *Store) Search(ctx context.Context, tenant string, params dal.SearchParams) ([]metadata.Tag, error) {
	matched, err := s.evalNode(ctx, tenant, params.Query, params)
	if err != nil {
		return nil, err
	}

	scope, err := s.universe(ctx, tenant, params)
	if err != nil {
		return nil, err
	}
	for pk := range matched {
		if !scope[pk] {
			delete(matched, pk)
		}
	}

	tagPks := make([]int64, 0, len(matched))
	for pk := range matched {
		tagPks = append(tagPks, pk)
	}

	out := make([]metadata.Tag, 0, len(tagPks))
	for _, tagPk := range tagPks {
		tag, err := s.assembleTagByTagPk(ctx, tenant, tagPk)
		if err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, nil
}

// universe computes the set of tag_pk values in scope for the search: all
// tags for the tenant (optionally restricted to one object type), limited
// to latest object/tag versions unless the caller asked for history.
func (s *Store) universe(ctx context.Context, tenant string, params dal.SearchParams) (map[int64]bool, error) {
	query := `SELECT t.tag_pk FROM tag t JOIN object_definition od ON od.definition_pk = t.definition_fk
		WHERE t.tenant_id = ` + s.dialect.Placeholder(1)
	args := []interface{}{tenant}

	if params.ObjectType != metadata.ObjectTypeUnknown {
		query += ` AND t.object_type = ` + s.dialect.Placeholder(len(args)+1)
		args = append(args, params.ObjectType.String())
	}
	if !params.PriorVersions {
		query += ` AND od.is_latest = ` + trueLiteral(s.dialect)
	}
	if !params.PriorTags {
		query += ` AND t.is_latest = ` + trueLiteral(s.dialect)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	out := map[int64]bool{}
	for rows.Next() {
		var pk int64
		if err := rows.Scan(&pk); err != nil {
			return nil, Error.Wrap(err)
		}
		out[pk] = true
	}
	return out, Error.Wrap(rows.Err())
}

func (s *Store) evalNode(ctx context.Context, tenant string, node dal.SearchNode, params dal.SearchParams) (map[int64]bool, error) {
	switch node.Kind {
	case dal.NodeLeaf:
		return s.evalLeaf(ctx, tenant, node.Term)

	case dal.NodeAnd:
		var result map[int64]bool
		for i, child := range node.Children {
			set, err := s.evalNode(ctx, tenant, child, params)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				result = set
				continue
			}
			for pk := range result {
				if !set[pk] {
					delete(result, pk)
				}
			}
		}
		if result == nil {
			result = map[int64]bool{}
		}
		return result, nil

	case dal.NodeOr:
		result := map[int64]bool{}
		for _, child := range node.Children {
			set, err := s.evalNode(ctx, tenant, child, params)
			if err != nil {
				return nil, err
			}
			for pk := range set {
				result[pk] = true
			}
		}
		return result, nil

	case dal.NodeNot:
		if len(node.Children) != 1 {
			return nil, metadata.NewKindedError(metadata.KindInvalidInput, "NOT requires exactly one child")
		}
		child, err := s.evalNode(ctx, tenant, node.Children[0], params)
		if err != nil {
			return nil, err
		}
		universe, err := s.universe(ctx, tenant, params)
		if err != nil {
			return nil, err
		}
		for pk := range child {
			delete(universe, pk)
		}
		return universe, nil

	default:
		return nil, metadata.NewKindedError(metadata.KindInvalidInput, "unknown query node kind")
	}
}

func (s *Store) evalLeaf(ctx context.Context, tenant string, term dal.SearchTerm) (map[int64]bool, error) {
	if term.Op == dal.OpEXISTS {
		return s.evalExists(ctx, tenant, term)
	}

	storedType, column, err := attrColumn(term.AttrType)
	if err != nil {
		return nil, metadata.NewKindedError(metadata.KindInvalidInput, "%v", err)
	}
	if err := s.checkAttrTypeMatches(ctx, tenant, term.AttrName, storedType); err != nil {
		return nil, err
	}

	if storedType == "DECIMAL" {
		return s.evalDecimalLeaf(ctx, tenant, term)
	}

	query := `SELECT tag_fk FROM tag_attr WHERE tenant_id = ` + s.dialect.Placeholder(1) +
		` AND attr_name = ` + s.dialect.Placeholder(2) + ` AND attr_type = ` + s.dialect.Placeholder(3)
	args := []interface{}{tenant, term.AttrName, storedType}

	switch term.Op {
	case dal.OpEQ:
		query += ` AND ` + column + ` = ` + s.dialect.Placeholder(len(args)+1)
		args = append(args, term.Values[0])
	case dal.OpNE:
		query += ` AND ` + column + ` != ` + s.dialect.Placeholder(len(args)+1)
		args = append(args, term.Values[0])
	case dal.OpLT:
		query += ` AND ` + column + ` < ` + s.dialect.Placeholder(len(args)+1)
		args = append(args, term.Values[0])
	case dal.OpLE:
		query += ` AND ` + column + ` <= ` + s.dialect.Placeholder(len(args)+1)
		args = append(args, term.Values[0])
	case dal.OpGT:
		query += ` AND ` + column + ` > ` + s.dialect.Placeholder(len(args)+1)
		args = append(args, term.Values[0])
	case dal.OpGE:
		query += ` AND ` + column + ` >= ` + s.dialect.Placeholder(len(args)+1)
		args = append(args, term.Values[0])
	case dal.OpIN:
		if len(term.Values) == 0 {
			return map[int64]bool{}, nil
		}
		query += ` AND ` + column + ` IN (` + placeholderList(s.dialect, len(args)+1, len(term.Values)) + `)`
		args = append(args, term.Values...)
	default:
		return nil, metadata.NewKindedError(metadata.KindInvalidInput, "unsupported operator")
	}

	return s.tagFksFromQuery(ctx, query, args)
}

// evalDecimalLeaf evaluates a DECIMAL comparison in Go rather than in SQL.
// attr_value_decimal is stored as the plain VARCHAR rendering of
// decimal.Decimal.String(), which is neither scale-normalized ("1.5" and
// "1.50" are different strings for the same number) nor lexicographically
// ordered ("10" sorts before "9"), so delegating EQ/NE/LT/LE/GT/GE/IN to raw
// SQL string comparison against that column would be wrong. Every stored
// value for the attribute is loaded and compared numerically via
// decimal.Decimal.Cmp instead, matching types.Equal's scale-insensitive
// semantics.
func (s *Store) evalDecimalLeaf(ctx context.Context, tenant string, term dal.SearchTerm) (map[int64]bool, error) {
	wants := make([]decimal.Decimal, len(term.Values))
	for i, v := range term.Values {
		d, err := coerceDecimal(v)
		if err != nil {
			return nil, metadata.NewKindedError(metadata.KindInvalidInput, "search value %v is not a valid decimal: %v", v, err)
		}
		wants[i] = d
	}

	query := `SELECT tag_fk, attr_value_decimal FROM tag_attr WHERE tenant_id = ` + s.dialect.Placeholder(1) +
		` AND attr_name = ` + s.dialect.Placeholder(2) + ` AND attr_type = ` + s.dialect.Placeholder(3)
	rows, err := s.db.QueryContext(ctx, query, tenant, term.AttrName, "DECIMAL")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	out := map[int64]bool{}
	for rows.Next() {
		var pk int64
		var stored sql.NullString
		if err := rows.Scan(&pk, &stored); err != nil {
			return nil, Error.Wrap(err)
		}
		if !stored.Valid {
			continue
		}
		got, err := decimal.NewFromString(stored.String)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if decimalMatches(term.Op, got, wants) {
			out[pk] = true
		}
	}
	return out, Error.Wrap(rows.Err())
}

// coerceDecimal accepts either a decimal.Decimal (the Go-native form
// produced by types.Value) or its string rendering, covering callers that
// build SearchTerm.Values from already-parsed values and callers that
// build it from wire/JSON input.
func coerceDecimal(v interface{}) (decimal.Decimal, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case string:
		return decimal.NewFromString(d)
	case fmt.Stringer:
		return decimal.NewFromString(d.String())
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported decimal value type %T", v)
	}
}

func decimalMatches(op dal.SearchOp, got decimal.Decimal, wants []decimal.Decimal) bool {
	switch op {
	case dal.OpEQ:
		return got.Cmp(wants[0]) == 0
	case dal.OpNE:
		return got.Cmp(wants[0]) != 0
	case dal.OpLT:
		return got.Cmp(wants[0]) < 0
	case dal.OpLE:
		return got.Cmp(wants[0]) <= 0
	case dal.OpGT:
		return got.Cmp(wants[0]) > 0
	case dal.OpGE:
		return got.Cmp(wants[0]) >= 0
	case dal.OpIN:
		for _, w := range wants {
			if got.Cmp(w) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (s *Store) evalExists(ctx context.Context, tenant string, term dal.SearchTerm) (map[int64]bool, error) {
	query := `SELECT tag_fk FROM tag_attr WHERE tenant_id = ` + s.dialect.Placeholder(1) + ` AND attr_name = ` + s.dialect.Placeholder(2)
	return s.tagFksFromQuery(ctx, query, []interface{}{tenant, term.AttrName})
}

func (s *Store) tagFksFromQuery(ctx context.Context, query string, args []interface{}) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	out := map[int64]bool{}
	for rows.Next() {
		var pk int64
		if err := rows.Scan(&pk); err != nil {
			return nil, Error.Wrap(err)
		}
		out[pk] = true
	}
	return out, Error.Wrap(rows.Err())
}

// checkAttrTypeMatches rejects a search term whose declared type disagrees
// with the type the attribute is actually stored under anywhere in the
// tenant. A type mismatch is a query error, not an empty result: without
// this check the attr_type filter in evalLeaf would silently match
// nothing.
func (s *Store) checkAttrTypeMatches(ctx context.Context, tenant, attrName, wantType string) error {
	query := `SELECT DISTINCT attr_type FROM tag_attr WHERE tenant_id = ` + s.dialect.Placeholder(1) +
		` AND attr_name = ` + s.dialect.Placeholder(2)
	rows, err := s.db.QueryContext(ctx, query, tenant, attrName)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var storedType string
		if err := rows.Scan(&storedType); err != nil {
			return Error.Wrap(err)
		}
		if storedType != wantType {
			return metadata.NewKindedError(metadata.KindInvalidInput, "attribute %q is stored as %s, not %s", attrName, storedType, wantType)
		}
	}
	return Error.Wrap(rows.Err())
}

// attrColumn maps a BasicType to its stored type name and tag_attr column,
// rejecting non-primitive search types outright.
func attrColumn(t interface{ String() string }) (string, string, error) {
	name := t.String()
	switch name {
	case "BOOLEAN":
		return name, "attr_value_boolean", nil
	case "INTEGER":
		return name, "attr_value_integer", nil
	case "FLOAT":
		return name, "attr_value_float", nil
	case "STRING":
		return name, "attr_value_string", nil
	case "DECIMAL":
		return name, "attr_value_decimal", nil
	case "DATE":
		return name, "attr_value_date", nil
	case "DATETIME":
		return name, "attr_value_datetime", nil
	default:
		return "", "", fmt.Errorf("type %s cannot be searched on", name)
	}
}

func (s *Store) assembleTagByTagPk(ctx context.Context, tenant string, tagPk int64) (metadata.Tag, error) {
	query := `SELECT od.object_fk, od.definition_pk, oi.object_id_hi, oi.object_id_lo
		FROM tag t JOIN object_definition od ON od.definition_pk = t.definition_fk
		JOIN object_id oi ON oi.object_pk = od.object_fk
		WHERE t.tenant_id = ` + s.dialect.Placeholder(1) + ` AND t.tag_pk = ` + s.dialect.Placeholder(2)
	row := s.db.QueryRowContext(ctx, query, tenant, tagPk)
	var objectPk, definitionPk int64
	var hi, lo int64
	if err := row.Scan(&objectPk, &definitionPk, &hi, &lo); err != nil {
		if err == sql.ErrNoRows {
			return metadata.Tag{}, metadata.NewKindedError(metadata.KindNotFound, "tag %d does not exist", tagPk)
		}
		return metadata.Tag{}, Error.Wrap(err)
	}
	id := metadata.ObjectIdFromHiLo(uint64(hi), uint64(lo))
	return s.assembleTag(ctx, s.db, tenant, metadata.ObjectTypeUnknown, id, objectPk, definitionPk, tagPk)
}
