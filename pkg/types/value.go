// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

// Package types implements the canonical primitive/array/map value model
// shared by the metadata store and the tag attribute system.
package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/errs"
)

// Error is the error class for the type system.
var Error = errs.Class("types")

// BasicType enumerates the primitive and container kinds a Value can hold.
type BasicType int

// Primitive and container kinds.
const (
	BOOLEAN BasicType = iota
	INTEGER
	FLOAT
	STRING
	DECIMAL
	DATE
	DATETIME
	ARRAY
	MAP
)

func (t BasicType) String() string {
	switch t {
	case BOOLEAN:
		return "BOOLEAN"
	case INTEGER:
		return "INTEGER"
	case FLOAT:
		return "FLOAT"
	case STRING:
		return "STRING"
	case DECIMAL:
		return "DECIMAL"
	case DATE:
		return "DATE"
	case DATETIME:
		return "DATETIME"
	case ARRAY:
		return "ARRAY"
	case MAP:
		return "MAP"
	default:
		return "UNKNOWN"
	}
}

var basicTypeValues = map[string]BasicType{
	"BOOLEAN":  BOOLEAN,
	"INTEGER":  INTEGER,
	"FLOAT":    FLOAT,
	"STRING":   STRING,
	"DECIMAL":  DECIMAL,
	"DATE":     DATE,
	"DATETIME": DATETIME,
	"ARRAY":    ARRAY,
	"MAP":      MAP,
}

// MarshalJSON renders t by name rather than its underlying int value.
func (t BasicType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the textual form produced by MarshalJSON.
func (t *BasicType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return Error.Wrap(err)
	}
	v, ok := basicTypeValues[s]
	if !ok {
		return Error.New("unknown basic type %q", s)
	}
	*t = v
	return nil
}

// IsPrimitive reports whether t is one of the seven primitive kinds.
func IsPrimitive(t BasicType) bool {
	switch t {
	case BOOLEAN, INTEGER, FLOAT, STRING, DECIMAL, DATE, DATETIME:
		return true
	default:
		return false
	}
}

// TypeDescriptor describes the shape of a Value: its basic type, and for
// containers, the descriptor of the elements (ARRAY) or values (MAP).
type TypeDescriptor struct {
	Basic      BasicType
	ArrayType  *TypeDescriptor
	MapValueType *TypeDescriptor
}

// Value is a tagged union over the primitive and container kinds. Exactly
// one field is meaningful, selected by Type.Basic.
type Value struct {
	Type TypeDescriptor

	BooleanValue  bool
	IntegerValue  int64
	FloatValue    float64
	StringValue   string
	DecimalValue  decimal.Decimal
	DateValue     time.Time
	DatetimeValue time.Time

	ArrayValue []Value
	MapValue   map[string]Value
}

// microsecondTruncate truncates t to microsecond precision: datetime
// values are truncated, never rounded.
func microsecondTruncate(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}

// NewBoolean builds a BOOLEAN value.
func NewBoolean(v bool) Value {
	return Value{Type: TypeDescriptor{Basic: BOOLEAN}, BooleanValue: v}
}

// NewInteger builds an INTEGER value.
func NewInteger(v int64) Value {
	return Value{Type: TypeDescriptor{Basic: INTEGER}, IntegerValue: v}
}

// NewFloat builds a FLOAT value.
func NewFloat(v float64) Value {
	return Value{Type: TypeDescriptor{Basic: FLOAT}, FloatValue: v}
}

// NewString builds a STRING value.
func NewString(v string) Value {
	return Value{Type: TypeDescriptor{Basic: STRING}, StringValue: v}
}

// NewDecimal builds a DECIMAL value.
func NewDecimal(v decimal.Decimal) Value {
	return Value{Type: TypeDescriptor{Basic: DECIMAL}, DecimalValue: v}
}

// NewDate builds a DATE value. Only the date components are significant.
func NewDate(v time.Time) Value {
	return Value{Type: TypeDescriptor{Basic: DATE}, DateValue: v.Truncate(24 * time.Hour)}
}

// NewDatetime builds a DATETIME value, truncated to microsecond precision.
func NewDatetime(v time.Time) Value {
	return Value{Type: TypeDescriptor{Basic: DATETIME}, DatetimeValue: microsecondTruncate(v)}
}

// NewArray builds an ARRAY value whose elements are primitives or nested
// containers. The array may be empty but elements must already share
// elemType.
func NewArray(elemType TypeDescriptor, elems []Value) Value {
	return Value{
		Type:       TypeDescriptor{Basic: ARRAY, ArrayType: &elemType},
		ArrayValue: elems,
	}
}

// NewMap builds a MAP value whose entries are primitives of valueType.
func NewMap(valueType TypeDescriptor, entries map[string]Value) Value {
	return Value{
		Type:       TypeDescriptor{Basic: MAP, MapValueType: &valueType},
		MapValue:   entries,
	}
}

// DescriptorOf returns the TypeDescriptor for v, recursing into containers.
func DescriptorOf(v Value) TypeDescriptor {
	switch v.Type.Basic {
	case ARRAY:
		var elem TypeDescriptor
		if len(v.ArrayValue) > 0 {
			elem = DescriptorOf(v.ArrayValue[0])
		} else if v.Type.ArrayType != nil {
			elem = *v.Type.ArrayType
		}
		return TypeDescriptor{Basic: ARRAY, ArrayType: &elem}
	case MAP:
		var val TypeDescriptor
		for _, entry := range v.MapValue {
			val = DescriptorOf(entry)
			break
		}
		if v.Type.MapValueType != nil {
			val = *v.Type.MapValueType
		}
		return TypeDescriptor{Basic: MAP, MapValueType: &val}
	default:
		return TypeDescriptor{Basic: v.Type.Basic}
	}
}

// Validate checks that v's fields are internally consistent with its
// declared Type, and, if want is non-nil, that v matches want exactly.
//
// Arrays may be empty but the ArrayValue slice itself must be non-nil: a
// missing array (nil slice on an ARRAY-typed Value with no elements) is
// rejected, matching the "null arrays are rejected" boundary behavior.
func Validate(v Value, want *TypeDescriptor) error {
	if want != nil && want.Basic != v.Type.Basic {
		return Error.New("InvalidType: expected %s, got %s", want.Basic, v.Type.Basic)
	}

	switch v.Type.Basic {
	case ARRAY:
		if v.ArrayValue == nil {
			return Error.New("InvalidType: array value is null, not empty")
		}
		var elemWant *TypeDescriptor
		if want != nil {
			elemWant = want.ArrayType
		} else if v.Type.ArrayType != nil {
			elemWant = v.Type.ArrayType
		}
		for i, elem := range v.ArrayValue {
			if err := Validate(elem, elemWant); err != nil {
				return Error.New("InvalidType: array element %d: %v", i, err)
			}
		}
		return nil

	case MAP:
		var valWant *TypeDescriptor
		if want != nil {
			valWant = want.MapValueType
		} else if v.Type.MapValueType != nil {
			valWant = v.Type.MapValueType
		}
		for k, val := range v.MapValue {
			if !IsPrimitive(val.Type.Basic) {
				return Error.New("InvalidType: map value %q is not a primitive", k)
			}
			if err := Validate(val, valWant); err != nil {
				return Error.New("InvalidType: map value %q: %v", k, err)
			}
		}
		return nil

	default:
		if !IsPrimitive(v.Type.Basic) {
			return Error.New("InvalidType: unknown basic type %s", v.Type.Basic)
		}
		return nil
	}
}

// Equal compares two values for logical equality: decimals compare by
// numeric value regardless of scale, datetimes compare at microsecond
// precision, and arrays/maps compare element-wise.
func Equal(a, b Value) bool {
	if a.Type.Basic != b.Type.Basic {
		return false
	}
	switch a.Type.Basic {
	case BOOLEAN:
		return a.BooleanValue == b.BooleanValue
	case INTEGER:
		return a.IntegerValue == b.IntegerValue
	case FLOAT:
		return a.FloatValue == b.FloatValue
	case STRING:
		return a.StringValue == b.StringValue
	case DECIMAL:
		return a.DecimalValue.Cmp(b.DecimalValue) == 0
	case DATE:
		return a.DateValue.Equal(b.DateValue)
	case DATETIME:
		return microsecondTruncate(a.DatetimeValue).Equal(microsecondTruncate(b.DatetimeValue))
	case ARRAY:
		if len(a.ArrayValue) != len(b.ArrayValue) {
			return false
		}
		for i := range a.ArrayValue {
			if !Equal(a.ArrayValue[i], b.ArrayValue[i]) {
				return false
			}
		}
		return true
	case MAP:
		if len(a.MapValue) != len(b.MapValue) {
			return false
		}
		for k, av := range a.MapValue {
			bv, ok := b.MapValue[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
