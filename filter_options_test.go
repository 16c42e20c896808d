package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterPanelValuesRequiresFilter(t *testing.T) {
	s := newTestSheet(t)
	_, err := s.FilterPanelValues(0, "alice")
	require.Error(t, err)
}

func TestFilterPanelValuesOffsetBounds(t *testing.T) {
	s := newTestSheet(t)
	require.NoError(t, s.SetFilterRange(amountRange(), "alice"))
	_, err := s.FilterPanelValues(-1, "alice")
	require.Error(t, err)
	_, err = s.FilterPanelValues(2, "alice")
	require.Error(t, err)
}

func TestFilterPanelValuesNamesColumn(t *testing.T) {
	s := newTestSheet(t)
	require.NoError(t, s.SetFilterRange(amountRange(), "alice"))
	require.NoError(t, s.SetFilterCriteria(1, &ColumnCriteria{Filters: []string{"hello"}}, true, "alice"))

	items, err := s.FilterPanelValues(1, "alice")
	require.NoError(t, err)
	require.Len(t, items, 4)

	// Text values in lexical order, the blank entry last
	assert.Equal(t, FilterValueItem{Value: "hello", Count: 2, Checked: true}, items[0])
	assert.Equal(t, FilterValueItem{Value: "univer", Count: 1, Checked: false}, items[1])
	assert.Equal(t, FilterValueItem{Value: "world", Count: 1, Checked: false}, items[2])
	assert.Equal(t, FilterValueItem{Value: "", Count: 1, Blank: true, Checked: false}, items[3])
}

func TestFilterPanelValuesBlankCheckedWithSentinel(t *testing.T) {
	s := newTestSheet(t)
	require.NoError(t, s.SetFilterRange(amountRange(), "alice"))
	require.NoError(t, s.SetFilterCriteria(1, &ColumnCriteria{Filters: []string{"hello", ""}}, true, "alice"))

	items, err := s.FilterPanelValues(1, "alice")
	require.NoError(t, err)
	blank := items[len(items)-1]
	assert.True(t, blank.Blank)
	assert.True(t, blank.Checked)
	// Row 6 survives filtering because blanks are allowed
	assert.False(t, s.IsRowFiltered(6))
	assert.True(t, s.IsRowFiltered(3)) // univer not in the allow-list
}

func TestFilterPanelValuesNumericSort(t *testing.T) {
	s := newTestSheet(t)
	require.NoError(t, s.SetFilterRange(amountRange(), "alice"))

	items, err := s.FilterPanelValues(0, "alice")
	require.NoError(t, err)
	require.Len(t, items, 5)
	assert.Equal(t, "100", items[0].Value)
	assert.Equal(t, "123", items[1].Value)
	assert.Equal(t, "300", items[2].Value)
	assert.Equal(t, "456", items[3].Value)
	assert.Equal(t, "500", items[4].Value)
	// No criteria on this column: everything checked
	for _, item := range items {
		assert.True(t, item.Checked)
	}
}

func TestFilterPanelValuesCustomCriteriaAllChecked(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)

	// A predicate filter has no per-value selection to reflect
	items, err := s.FilterPanelValues(0, "alice")
	require.NoError(t, err)
	for _, item := range items {
		assert.True(t, item.Checked)
	}
}

func TestCompareFilterValuesNumbersBeforeText(t *testing.T) {
	assert.Negative(t, compareFilterValues("9", "100")) // numeric, not lexical
	assert.Negative(t, compareFilterValues("100", "apple"))
	assert.Positive(t, compareFilterValues("banana", "apple"))
	assert.Positive(t, compareFilterValues("apple", "999"))
	assert.Zero(t, compareFilterValues("1.0", "1"))
}
