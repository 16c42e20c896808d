package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportXLSXValuesAndHiddenRows(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)
	require.Equal(t, []int{2, 6}, s.HiddenRows)

	data, err := s.ExportXLSX()
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(exportSheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "amount", v)
	v, err = f.GetCellValue(exportSheetName, "A2")
	require.NoError(t, err)
	assert.Equal(t, "100", v)
	v, err = f.GetCellValue(exportSheetName, "B3")
	require.NoError(t, err)
	assert.Equal(t, "univer", v)

	// Filtered-out rows are hidden, the rest stay visible
	for _, row := range []int{2, 6} {
		visible, err := f.GetRowVisible(exportSheetName, row)
		require.NoError(t, err)
		assert.False(t, visible, "row %d should be hidden", row)
	}
	for _, row := range []int{1, 3, 4, 5} {
		visible, err := f.GetRowVisible(exportSheetName, row)
		require.NoError(t, err)
		assert.True(t, visible, "row %d should be visible", row)
	}
}

func TestExportXLSXWithoutFilter(t *testing.T) {
	s := newTestSheet(t)
	data, err := s.ExportXLSX()
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(exportSheetName, "B5")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
	visible, err := f.GetRowVisible(exportSheetName, 2)
	require.NoError(t, err)
	assert.True(t, visible)
}

func TestAutoFilterExpression(t *testing.T) {
	assert.Equal(t, "x >= 123 and x <= 456", autoFilterExpression(betweenCriteria()))

	or := &ColumnCriteria{CustomFilters: &CustomFilters{
		CustomFilters: []CustomFilterItem{
			{Operator: OpLessThan, Val: "123"},
			{Operator: OpGreaterThan, Val: "456"},
		},
	}}
	assert.Equal(t, "x < 123 or x > 456", autoFilterExpression(or))

	single := &ColumnCriteria{CustomFilters: &CustomFilters{
		CustomFilters: []CustomFilterItem{{Operator: OpNotEqual, Val: "5"}},
	}}
	assert.Equal(t, "x != 5", autoFilterExpression(single))

	// Value lists and text predicates have no expression form
	assert.Equal(t, "", autoFilterExpression(namesCriteria()))
	assert.Equal(t, "", autoFilterExpression(nil))
	contains := &ColumnCriteria{CustomFilters: &CustomFilters{
		CustomFilters: []CustomFilterItem{{Operator: OpContains, Val: "uni"}},
	}}
	assert.Equal(t, "", autoFilterExpression(contains))
}

func TestImportXLSXRoundTrip(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)
	data, err := s.ExportXLSX()
	require.NoError(t, err)

	imported, err := ImportXLSX(bytes.NewReader(data), "imported", "bob")
	require.NoError(t, err)
	defer globalSheetManager.DeleteSheet(imported.ID)

	assert.Equal(t, "imported", imported.Name)
	assert.Equal(t, "bob", imported.Owner)
	assert.Equal(t, "amount", imported.Data["1"]["A"].Value)
	assert.Equal(t, "123", imported.Data["3"]["A"].Value)
	// Hidden rows are still data rows; they come back too
	assert.Equal(t, "100", imported.Data["2"]["A"].Value)
	assert.Equal(t, "500", imported.Data["6"]["A"].Value)
}

func TestImportXLSXRejectsGarbage(t *testing.T) {
	_, err := ImportXLSX(bytes.NewReader([]byte("not a workbook")), "x", "bob")
	require.Error(t, err)
}
