// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package types_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/trac-platform/trac/pkg/types"
)

func TestValidatePrimitives(t *testing.T) {
	var testCases = []struct {
		name  string
		value types.Value
	}{
		{"boolean", types.NewBoolean(true)},
		{"integer", types.NewInteger(42)},
		{"float", types.NewFloat(3.14)},
		{"string", types.NewString("hello")},
		{"decimal", types.NewDecimal(decimal.NewFromFloat(1.50))},
		{"date", types.NewDate(time.Now())},
		{"datetime", types.NewDatetime(time.Now())},
	}
	for _, tt := range testCases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, types.Validate(tt.value, nil))
		})
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	want := types.TypeDescriptor{Basic: types.STRING}
	err := types.Validate(types.NewInteger(1), &want)
	require.Error(t, err)
}

func TestValidateEmptyArrayAllowed(t *testing.T) {
	elemType := types.TypeDescriptor{Basic: types.INTEGER}
	arr := types.NewArray(elemType, []types.Value{})
	require.NoError(t, types.Validate(arr, nil))
}

func TestValidateNullArrayRejected(t *testing.T) {
	arr := types.Value{Type: types.TypeDescriptor{Basic: types.ARRAY}}
	require.Error(t, types.Validate(arr, nil))
}

func TestValidateMapRequiresPrimitiveValues(t *testing.T) {
	inner := types.NewArray(types.TypeDescriptor{Basic: types.INTEGER}, nil)
	m := types.NewMap(types.TypeDescriptor{Basic: types.ARRAY}, map[string]types.Value{"a": inner})
	require.Error(t, types.Validate(m, nil))
}

func TestValidateNestedContainersPermitted(t *testing.T) {
	arr := types.NewArray(types.TypeDescriptor{Basic: types.INTEGER}, []types.Value{
		types.NewInteger(1), types.NewInteger(2),
	})
	outer := types.NewArray(types.TypeDescriptor{Basic: types.ARRAY}, []types.Value{arr})
	require.NoError(t, types.Validate(outer, nil))
}

func TestDecimalEqualityIsScaleInsensitive(t *testing.T) {
	a := types.NewDecimal(decimal.RequireFromString("1.50"))
	b := types.NewDecimal(decimal.RequireFromString("1.5000"))
	require.True(t, types.Equal(a, b))
}

func TestDatetimeTruncatesNotRounds(t *testing.T) {
	withNanos := time.Date(2025, 1, 1, 12, 0, 0, 999_999_999, time.UTC)
	v := types.NewDatetime(withNanos)
	require.Equal(t, 999999000, v.DatetimeValue.Nanosecond())
}

func TestEqualArraysElementwise(t *testing.T) {
	elemType := types.TypeDescriptor{Basic: types.STRING}
	a := types.NewArray(elemType, []types.Value{types.NewString("x"), types.NewString("y")})
	b := types.NewArray(elemType, []types.Value{types.NewString("x"), types.NewString("y")})
	c := types.NewArray(elemType, []types.Value{types.NewString("x"), types.NewString("z")})
	require.True(t, types.Equal(a, b))
	require.False(t, types.Equal(a, c))
}

func TestDescriptorOfArray(t *testing.T) {
	arr := types.NewArray(types.TypeDescriptor{Basic: types.INTEGER}, []types.Value{types.NewInteger(1)})
	d := types.DescriptorOf(arr)
	require.Equal(t, types.ARRAY, d.Basic)
	require.NotNil(t, d.ArrayType)
	require.Equal(t, types.INTEGER, d.ArrayType.Basic)
}
