package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFilterFnValuesList(t *testing.T) {
	fn, err := compileFilterFn(&ColumnCriteria{Filters: []string{"hello", "univer"}})
	require.NoError(t, err)
	assert.True(t, fn("hello", true))
	assert.True(t, fn("univer", true))
	assert.False(t, fn("world", true))
	// Blank and missing cells match only when the list carries the
	// empty-string entry
	assert.False(t, fn("", true))
	assert.False(t, fn("", false))
}

func TestCompileFilterFnValuesListWithBlank(t *testing.T) {
	fn, err := compileFilterFn(&ColumnCriteria{Filters: []string{"", "x"}})
	require.NoError(t, err)
	assert.True(t, fn("", true))
	assert.True(t, fn("", false))
	assert.True(t, fn("x", true))
	assert.False(t, fn("y", true))
}

func TestCompileFilterFnCustomAnd(t *testing.T) {
	fn, err := compileFilterFn(&ColumnCriteria{CustomFilters: &CustomFilters{
		And: 1,
		CustomFilters: []CustomFilterItem{
			{Operator: OpGreaterThanOrEqual, Val: "123"},
			{Operator: OpLessThanOrEqual, Val: "456"},
		},
	}})
	require.NoError(t, err)
	assert.True(t, fn("123", true))
	assert.True(t, fn("300", true))
	assert.True(t, fn("456", true))
	assert.False(t, fn("122", true))
	assert.False(t, fn("457", true))
	assert.False(t, fn("abc", true))
	assert.False(t, fn("", false))
}

func TestCompileFilterFnCustomOr(t *testing.T) {
	fn, err := compileFilterFn(&ColumnCriteria{CustomFilters: &CustomFilters{
		CustomFilters: []CustomFilterItem{
			{Operator: OpLessThan, Val: "123"},
			{Operator: OpGreaterThan, Val: "456"},
		},
	}})
	require.NoError(t, err)
	assert.True(t, fn("122", true))
	assert.True(t, fn("457", true))
	assert.False(t, fn("123", true))
	assert.False(t, fn("300", true))
	assert.False(t, fn("456", true))
}

func TestCompileFilterFnSingleCustom(t *testing.T) {
	fn, err := compileFilterFn(&ColumnCriteria{CustomFilters: &CustomFilters{
		CustomFilters: []CustomFilterItem{{Operator: OpContains, Val: "uni"}},
	}})
	require.NoError(t, err)
	assert.True(t, fn("univer", true))
	assert.False(t, fn("hello", true))
}

func TestCompileFilterFnRejectsUnsupportedShapes(t *testing.T) {
	// Unrecognized shapes fail; they must never degrade into pass-all
	_, err := compileFilterFn(nil)
	require.ErrorIs(t, err, errUnsupportedFilter)

	_, err = compileFilterFn(&ColumnCriteria{})
	require.ErrorIs(t, err, errUnsupportedFilter)

	_, err = compileFilterFn(&ColumnCriteria{
		Filters:       []string{"x"},
		CustomFilters: &CustomFilters{CustomFilters: []CustomFilterItem{{Operator: OpEqual, Val: "x"}}},
	})
	require.ErrorIs(t, err, errUnsupportedFilter)

	_, err = compileFilterFn(&ColumnCriteria{CustomFilters: &CustomFilters{}})
	require.ErrorIs(t, err, errUnsupportedFilter)

	_, err = compileFilterFn(&ColumnCriteria{CustomFilters: &CustomFilters{
		CustomFilters: []CustomFilterItem{
			{Operator: OpEqual, Val: "1"},
			{Operator: OpEqual, Val: "2"},
			{Operator: OpEqual, Val: "3"},
		},
	}})
	require.ErrorIs(t, err, errUnsupportedFilter)

	// A bad operator inside an otherwise valid shape also fails
	_, err = compileFilterFn(&ColumnCriteria{CustomFilters: &CustomFilters{
		CustomFilters: []CustomFilterItem{{Operator: "between", Val: "1"}},
	}})
	require.Error(t, err)
}

func TestFilterRangeValid(t *testing.T) {
	assert.True(t, FilterRange{StartRow: 1, EndRow: 5, StartColumn: 1, EndColumn: 3}.Valid())
	assert.True(t, FilterRange{StartRow: 2, EndRow: 3, StartColumn: 4, EndColumn: 4}.Valid())
	// Header-only range has no data rows
	assert.False(t, FilterRange{StartRow: 1, EndRow: 1, StartColumn: 1, EndColumn: 3}.Valid())
	assert.False(t, FilterRange{StartRow: 0, EndRow: 5, StartColumn: 1, EndColumn: 3}.Valid())
	assert.False(t, FilterRange{StartRow: 1, EndRow: 5, StartColumn: 3, EndColumn: 2}.Valid())
}

func TestFilterRangeColumnCount(t *testing.T) {
	assert.Equal(t, 3, FilterRange{StartRow: 1, EndRow: 5, StartColumn: 2, EndColumn: 4}.ColumnCount())
	assert.Equal(t, 1, FilterRange{StartRow: 1, EndRow: 5, StartColumn: 2, EndColumn: 2}.ColumnCount())
}
