package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGrid is an in-memory cellValueReader keyed by (row, col). It counts
// reads per column so tests can assert which cells were actually evaluated.
type fakeGrid struct {
	cells map[[2]int]string
	reads map[int]int // col -> read count
}

func newFakeGrid() *fakeGrid {
	return &fakeGrid{
		cells: make(map[[2]int]string),
		reads: make(map[int]int),
	}
}

func (g *fakeGrid) set(row, col int, value string) {
	g.cells[[2]int{row, col}] = value
}

func (g *fakeGrid) filterCellValue(row, col int) (string, bool) {
	g.reads[col]++
	v, ok := g.cells[[2]int{row, col}]
	return v, ok
}

// amountGrid is the shared fixture: header row 1, amounts in column 1,
// names in column 2, rows 2-6. Row 6 has no name cell.
func amountGrid() *fakeGrid {
	g := newFakeGrid()
	g.set(1, 1, "amount")
	g.set(1, 2, "name")
	g.set(2, 1, "100")
	g.set(3, 1, "123")
	g.set(4, 1, "300")
	g.set(5, 1, "456")
	g.set(6, 1, "500")
	g.set(2, 2, "hello")
	g.set(3, 2, "univer")
	g.set(4, 2, "world")
	g.set(5, 2, "hello")
	return g
}

func amountRange() FilterRange {
	return FilterRange{StartRow: 1, EndRow: 6, StartColumn: 1, EndColumn: 2}
}

func betweenCriteria() *ColumnCriteria {
	return &ColumnCriteria{CustomFilters: &CustomFilters{
		And: 1,
		CustomFilters: []CustomFilterItem{
			{Operator: OpGreaterThanOrEqual, Val: "123"},
			{Operator: OpLessThanOrEqual, Val: "456"},
		},
	}}
}

func namesCriteria() *ColumnCriteria {
	return &ColumnCriteria{Filters: []string{"hello", "univer"}}
}

func TestFilterColumnReCalcBeforeSetupErrors(t *testing.T) {
	fc := newFilterColumn(amountGrid(), nil)
	_, err := fc.ReCalc()
	require.Error(t, err)

	fc.SetRangeAndOffset(amountRange(), 0)
	_, err = fc.ReCalc()
	require.Error(t, err)
}

func TestFilterColumnNoComputationBeforeReCalc(t *testing.T) {
	g := amountGrid()
	fc := newFilterColumn(g, nil)
	fc.SetRangeAndOffset(amountRange(), 0)
	require.NoError(t, fc.SetCriteria(betweenCriteria()))

	// Setting range and criteria alone reads nothing
	assert.Equal(t, 0, g.reads[1])
	assert.False(t, fc.HasCache())
}

func TestFilterColumnReCalc(t *testing.T) {
	g := amountGrid()
	fc := newFilterColumn(g, nil)
	fc.SetRangeAndOffset(amountRange(), 0)
	require.NoError(t, fc.SetCriteria(betweenCriteria()))

	excluded, err := fc.ReCalc()
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{2: true, 6: true}, excluded)
	assert.True(t, fc.HasCache())
	// The header row is never evaluated
	assert.Equal(t, 5, g.reads[1])
}

func TestFilterColumnSkipsAlreadyFilteredRows(t *testing.T) {
	g := amountGrid()
	fc := newFilterColumn(g, func() map[int]bool {
		return map[int]bool{2: true, 6: true}
	})
	fc.SetRangeAndOffset(amountRange(), 1)
	require.NoError(t, fc.SetCriteria(namesCriteria()))

	excluded, err := fc.ReCalc()
	require.NoError(t, err)
	// Rows 2 and 6 were never read; only row 4 fails here
	assert.Equal(t, map[int]bool{4: true}, excluded)
	assert.Equal(t, 3, g.reads[2])
}

func TestFilterColumnMissingCellFailsValueFilter(t *testing.T) {
	g := amountGrid()
	fc := newFilterColumn(g, nil)
	fc.SetRangeAndOffset(amountRange(), 1)
	require.NoError(t, fc.SetCriteria(namesCriteria()))

	excluded, err := fc.ReCalc()
	require.NoError(t, err)
	// Row 6 has no name cell and the list has no blank entry
	assert.Equal(t, map[int]bool{4: true, 6: true}, excluded)
}

func TestFilterColumnSetCriteriaFailureKeepsPriorState(t *testing.T) {
	fc := newFilterColumn(amountGrid(), nil)
	fc.SetRangeAndOffset(amountRange(), 0)
	require.NoError(t, fc.SetCriteria(betweenCriteria()))
	_, err := fc.ReCalc()
	require.NoError(t, err)

	err = fc.SetCriteria(&ColumnCriteria{}) // unsupported shape
	require.Error(t, err)

	// Prior criteria and predicate survive; recalc still works
	excluded, err := fc.ReCalc()
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{2: true, 6: true}, excluded)
	data := fc.GetColumnData()
	require.NotNil(t, data)
	assert.NotNil(t, data.CustomFilters)
}

func TestFilterColumnInvalidation(t *testing.T) {
	fc := newFilterColumn(amountGrid(), nil)
	fc.SetRangeAndOffset(amountRange(), 0)
	require.NoError(t, fc.SetCriteria(betweenCriteria()))
	_, err := fc.ReCalc()
	require.NoError(t, err)
	require.True(t, fc.HasCache())

	fc.SetRangeAndOffset(amountRange(), 0)
	assert.False(t, fc.HasCache())

	_, err = fc.ReCalc()
	require.NoError(t, err)
	require.True(t, fc.HasCache())

	require.NoError(t, fc.SetCriteria(namesCriteria()))
	assert.False(t, fc.HasCache())
}

func TestFilterColumnSerialize(t *testing.T) {
	fc := newFilterColumn(amountGrid(), nil)
	fc.SetRangeAndOffset(amountRange(), 1)

	_, err := fc.Serialize()
	require.Error(t, err) // no criteria yet

	criteria := namesCriteria()
	require.NoError(t, fc.SetCriteria(criteria))
	rec, err := fc.Serialize()
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ColID)
	assert.Equal(t, []string{"hello", "univer"}, rec.Filters)

	// The record is a deep copy, not an alias of the live criteria
	rec.Filters[0] = "mutated"
	assert.Equal(t, "hello", criteria.Filters[0])
}

func TestFilterColumnGetColumnDataCopies(t *testing.T) {
	fc := newFilterColumn(amountGrid(), nil)
	fc.SetRangeAndOffset(amountRange(), 0)
	assert.Nil(t, fc.GetColumnData())

	require.NoError(t, fc.SetCriteria(betweenCriteria()))
	data := fc.GetColumnData()
	require.NotNil(t, data)
	data.CustomFilters.CustomFilters[0].Val = "999"
	assert.Equal(t, "123", fc.criteria.CustomFilters.CustomFilters[0].Val)
}
