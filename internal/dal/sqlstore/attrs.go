// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package sqlstore

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/trac-platform/trac/pkg/types"
)

// singleValueIndex is the sentinel attr_index for a non-array
// attribute: primitives use index = -1 as a sentinel for single-valued.
const singleValueIndex = -1

// insertAttrs writes one tag_attr row per scalar value: a primitive
// attribute writes one row at singleValueIndex, an array attribute
// expands to one row per element with an increasing attrIndex.
func (s *Store) insertAttrs(ctx context.Context, tx *sql.Tx, tenant string, tagPk int64, attrs map[string]types.Value) error {
	for name, v := range attrs {
		if v.Type.Basic == types.ARRAY {
			for i, elem := range v.ArrayValue {
				if err := s.insertAttrRow(ctx, tx, tenant, tagPk, name, elem, i); err != nil {
					return err
				}
			}
			continue
		}
		if err := s.insertAttrRow(ctx, tx, tenant, tagPk, name, v, singleValueIndex); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertAttrRow(ctx context.Context, tx *sql.Tx, tenant string, tagPk int64, name string, v types.Value, index int) error {
	var boolVal sql.NullBool
	var intVal sql.NullInt64
	var floatVal sql.NullFloat64
	var stringVal, decimalVal sql.NullString
	var dateVal, datetimeVal sql.NullTime

	switch v.Type.Basic {
	case types.BOOLEAN:
		boolVal = sql.NullBool{Bool: v.BooleanValue, Valid: true}
	case types.INTEGER:
		intVal = sql.NullInt64{Int64: v.IntegerValue, Valid: true}
	case types.FLOAT:
		floatVal = sql.NullFloat64{Float64: v.FloatValue, Valid: true}
	case types.STRING:
		stringVal = sql.NullString{String: v.StringValue, Valid: true}
	case types.DECIMAL:
		decimalVal = sql.NullString{String: v.DecimalValue.String(), Valid: true}
	case types.DATE:
		dateVal = sql.NullTime{Time: v.DateValue, Valid: true}
	case types.DATETIME:
		datetimeVal = sql.NullTime{Time: v.DatetimeValue, Valid: true}
	default:
		return Error.New("attribute %q has non-primitive type %s", name, v.Type.Basic)
	}

	q := `INSERT INTO tag_attr
		(tenant_id, tag_fk, attr_name, attr_type, attr_index,
		 attr_value_boolean, attr_value_integer, attr_value_float, attr_value_string, attr_value_decimal, attr_value_date, attr_value_datetime)
		VALUES (` + placeholderList(s.dialect, 1, 12) + `)`
	_, err := tx.ExecContext(ctx, q, tenant, tagPk, name, v.Type.Basic.String(), index,
		boolVal, intVal, floatVal, stringVal, decimalVal, dateVal, datetimeVal)
	return Error.Wrap(err)
}

// attrRow mirrors one tag_attr row for scanning.
type attrRow struct {
	name       string
	attrType   string
	index      int
	boolVal    sql.NullBool
	intVal     sql.NullInt64
	floatVal   sql.NullFloat64
	stringVal  sql.NullString
	decimalVal sql.NullString
	dateVal    sql.NullTime
	datetimeVal sql.NullTime
}

func (r attrRow) toValue() (types.Value, error) {
	switch r.attrType {
	case "BOOLEAN":
		return types.NewBoolean(r.boolVal.Bool), nil
	case "INTEGER":
		return types.NewInteger(r.intVal.Int64), nil
	case "FLOAT":
		return types.NewFloat(r.floatVal.Float64), nil
	case "STRING":
		return types.NewString(r.stringVal.String), nil
	case "DECIMAL":
		d, err := decimal.NewFromString(r.decimalVal.String)
		if err != nil {
			return types.Value{}, Error.Wrap(err)
		}
		return types.NewDecimal(d), nil
	case "DATE":
		return types.NewDate(r.dateVal.Time), nil
	case "DATETIME":
		return types.NewDatetime(r.datetimeVal.Time), nil
	default:
		return types.Value{}, Error.New("unknown stored attribute type %q", r.attrType)
	}
}

// loadAttrs reads every tag_attr row for tagPk and reassembles the
// attribute map, regrouping indexed rows back into ARRAY values.
func (s *Store) loadAttrs(ctx context.Context, tx queryer, tenant string, tagPk int64) (map[string]types.Value, error) {
	q := `SELECT attr_name, attr_type, attr_index, attr_value_boolean, attr_value_integer, attr_value_float,
		attr_value_string, attr_value_decimal, attr_value_date, attr_value_datetime
		FROM tag_attr WHERE tenant_id = ` + s.dialect.Placeholder(1) + ` AND tag_fk = ` + s.dialect.Placeholder(2) + `
		ORDER BY attr_name, attr_index`
	rows, err := tx.QueryContext(ctx, q, tenant, tagPk)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	arrays := map[string][]types.Value{}
	out := map[string]types.Value{}
	for rows.Next() {
		var r attrRow
		if err := rows.Scan(&r.name, &r.attrType, &r.index, &r.boolVal, &r.intVal, &r.floatVal,
			&r.stringVal, &r.decimalVal, &r.dateVal, &r.datetimeVal); err != nil {
			return nil, Error.Wrap(err)
		}
		v, err := r.toValue()
		if err != nil {
			return nil, err
		}
		if r.index == singleValueIndex {
			out[r.name] = v
			continue
		}
		arrays[r.name] = append(arrays[r.name], v)
	}
	if err := rows.Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	for name, elems := range arrays {
		elemType := types.TypeDescriptor{Basic: types.STRING}
		if len(elems) > 0 {
			elemType = elems[0].Type
		}
		out[name] = types.NewArray(elemType, elems)
	}
	return out, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx, letting loadAttrs run
// either inside a write transaction or against a plain read connection.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}
