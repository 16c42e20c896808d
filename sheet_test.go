package main

import (
	"encoding/json"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain points sheet persistence at a throwaway directory so tests never
// leave files in the working tree.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "sheetdata")
	if err != nil {
		log.Fatalf("creating temp data dir: %v", err)
	}
	dataDir = dir
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

// newTestSheet builds a sheet matching the amountGrid fixture: header row 1,
// amounts in A, names in B, data rows 2-6 with no name in row 6.
func newTestSheet(t *testing.T) *Sheet {
	t.Helper()
	s := &Sheet{
		ID:          "test-" + t.Name(),
		Name:        "test",
		Owner:       "alice",
		Data:        make(map[string]map[string]Cell),
		ColWidths:   make(map[string]int),
		RowHeights:  make(map[string]int),
		Permissions: Permissions{Editors: []string{"alice"}},
	}
	put := func(row, col, value string) {
		if s.Data[row] == nil {
			s.Data[row] = make(map[string]Cell)
		}
		s.Data[row][col] = Cell{Value: value, User: "alice"}
	}
	put("1", "A", "amount")
	put("1", "B", "name")
	put("2", "A", "100")
	put("3", "A", "123")
	put("4", "A", "300")
	put("5", "A", "456")
	put("6", "A", "500")
	put("2", "B", "hello")
	put("3", "B", "univer")
	put("4", "B", "world")
	put("5", "B", "hello")
	return s
}

func setupTestFilter(t *testing.T, s *Sheet) {
	t.Helper()
	require.NoError(t, s.SetFilterRange(amountRange(), "alice"))
	require.NoError(t, s.SetFilterCriteria(0, betweenCriteria(), true, "alice"))
}

func TestSheetFilterLifecycle(t *testing.T) {
	s := newTestSheet(t)
	assert.Nil(t, s.FilterRecord())
	assert.False(t, s.IsRowFiltered(2))

	setupTestFilter(t, s)
	assert.Equal(t, []int{2, 6}, s.HiddenRows)
	assert.True(t, s.IsRowFiltered(2))
	assert.True(t, s.IsRowFiltered(6))
	assert.False(t, s.IsRowFiltered(3))

	rec := s.FilterRecord()
	require.NotNil(t, rec)
	assert.Equal(t, amountRange(), rec.Ref)
	require.Len(t, rec.FilterColumns, 1)
	assert.Equal(t, 0, rec.FilterColumns[0].ColID)
	assert.Equal(t, []int{2, 6}, rec.CachedFilteredOut)

	assert.True(t, s.RemoveFilter("alice"))
	assert.Nil(t, s.FilterRecord())
	assert.Nil(t, s.HiddenRows)
	assert.False(t, s.IsRowFiltered(2))
	assert.False(t, s.RemoveFilter("alice"))
}

func TestSheetCriteriaBeforeRange(t *testing.T) {
	s := newTestSheet(t)
	err := s.SetFilterCriteria(0, betweenCriteria(), true, "alice")
	require.Error(t, err)
	err = s.RecalcFilter("alice")
	require.Error(t, err)
}

func TestSheetSetCellRecalculatesFilter(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)
	require.Equal(t, []int{2, 6}, s.HiddenRows)

	// Pushing row 3 out of the accepted band hides it
	s.SetCell("3", "A", "999", "alice")
	assert.Equal(t, []int{2, 3, 6}, s.HiddenRows)

	// And bringing row 2 back in reveals it
	s.SetCell("2", "A", "200", "alice")
	assert.Equal(t, []int{3, 6}, s.HiddenRows)
}

func TestSheetSetCellOutsideRangeLeavesFilterAlone(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)

	s.SetCell("9", "A", "999", "alice")
	s.SetCell("3", "C", "999", "alice")
	s.SetCell("1", "A", "renamed", "alice") // header edits don't re-filter
	assert.Equal(t, []int{2, 6}, s.HiddenRows)
}

func TestSheetSetCellLockedCellDenied(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)
	require.True(t, s.LockCell("3", "A", "alice"))

	s.SetCell("3", "A", "999", "bob")
	assert.Equal(t, "123", s.Data["3"]["A"].Value)
	assert.Equal(t, []int{2, 6}, s.HiddenRows)
}

func TestSheetInsertRowShiftsFilter(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)

	ok, pair := s.InsertRowBelow("1", "alice")
	require.True(t, ok)
	require.NotNil(t, pair)
	assert.Equal(t, amountRange(), pair.Before.Ref)
	assert.Equal(t, FilterRange{StartRow: 1, EndRow: 7, StartColumn: 1, EndColumn: 2}, pair.After.Ref)

	// The data rows moved down with the insertion, so the same values are
	// hidden at their new coordinates
	assert.Equal(t, "100", s.Data["3"]["A"].Value)
	assert.Equal(t, []int{2, 3, 7}, s.HiddenRows)
}

func TestSheetDeleteHeaderRowRemovesFilter(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)

	ok, pair := s.DeleteRow("1", "alice")
	require.True(t, ok)
	require.NotNil(t, pair)
	assert.NotNil(t, pair.Before)
	assert.Nil(t, pair.After)
	assert.Nil(t, s.FilterRecord())
	assert.Nil(t, s.HiddenRows)
}

func TestSheetDeleteDataRowShrinksFilter(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)

	ok, pair := s.DeleteRow("4", "alice")
	require.True(t, ok)
	require.NotNil(t, pair)
	assert.Equal(t, FilterRange{StartRow: 1, EndRow: 5, StartColumn: 1, EndColumn: 2}, pair.After.Ref)
	// Rows 5 and 6 moved up; 500 now sits in row 5
	assert.Equal(t, "500", s.Data["5"]["A"].Value)
	assert.Equal(t, []int{2, 5}, s.HiddenRows)
}

func TestSheetDeleteColumnDropsItsCriteria(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)

	ok, pair := s.DeleteColumn("A", "alice")
	require.True(t, ok)
	require.NotNil(t, pair)

	rec := s.FilterRecord()
	require.NotNil(t, rec)
	assert.Equal(t, FilterRange{StartRow: 1, EndRow: 6, StartColumn: 1, EndColumn: 1}, rec.Ref)
	assert.Empty(t, rec.FilterColumns)
	// The names column shifted into A
	assert.Equal(t, "hello", s.Data["2"]["A"].Value)
	// No criteria left, nothing hidden
	assert.Empty(t, s.HiddenRows)
}

func TestSheetMoveColumnCarriesCriteria(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)

	ok, pair := s.MoveColumnRight("A", "B", "alice")
	require.True(t, ok)
	require.NotNil(t, pair)

	// Amounts now live in B and the criteria followed them
	assert.Equal(t, "100", s.Data["2"]["B"].Value)
	assert.Equal(t, "hello", s.Data["2"]["A"].Value)
	rec := s.FilterRecord()
	require.NotNil(t, rec)
	require.Len(t, rec.FilterColumns, 1)
	assert.Equal(t, 1, rec.FilterColumns[0].ColID)
	assert.Equal(t, []int{2, 6}, s.HiddenRows)
}

func TestSheetInsertColumnShiftsCriteria(t *testing.T) {
	s := newTestSheet(t)
	require.NoError(t, s.SetFilterRange(amountRange(), "alice"))
	require.NoError(t, s.SetFilterCriteria(1, namesCriteria(), true, "alice"))
	require.Equal(t, []int{4, 6}, s.HiddenRows)

	ok, pair := s.InsertColumnRight("A", "alice")
	require.True(t, ok)
	require.NotNil(t, pair)

	rec := s.FilterRecord()
	require.NotNil(t, rec)
	assert.Equal(t, FilterRange{StartRow: 1, EndRow: 6, StartColumn: 1, EndColumn: 3}, rec.Ref)
	require.Len(t, rec.FilterColumns, 1)
	assert.Equal(t, 2, rec.FilterColumns[0].ColID)
	// Names moved from B to C; same rows stay hidden
	assert.Equal(t, "hello", s.Data["2"]["C"].Value)
	assert.Equal(t, []int{4, 6}, s.HiddenRows)
}

func TestSheetFilterSurvivesReload(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var reloaded Sheet
	require.NoError(t, json.Unmarshal(data, &reloaded))
	reloaded.initFilterFromRecord()

	// The persisted cache answers immediately, before any recalculation
	assert.True(t, reloaded.IsRowFiltered(2))
	assert.True(t, reloaded.IsRowFiltered(6))
	assert.False(t, reloaded.IsRowFiltered(3))

	rec := reloaded.FilterRecord()
	require.NotNil(t, rec)
	assert.Equal(t, amountRange(), rec.Ref)
	require.Len(t, rec.FilterColumns, 1)
}

func TestSheetCorruptFilterRecordDroppedOnLoad(t *testing.T) {
	s := newTestSheet(t)
	s.Filter = &FilterRangeRecord{
		Ref:           amountRange(),
		FilterColumns: []FilterColumnRecord{{ColID: 9, ColumnCriteria: *namesCriteria()}},
	}
	s.initFilterFromRecord()
	assert.Nil(t, s.Filter)
	assert.Nil(t, s.FilterRecord())
}

func TestSheetHiddenRowsReadableDuringEdits(t *testing.T) {
	s := newTestSheet(t)
	setupTestFilter(t, s)

	// Concurrent cell edits rewrite HiddenRows under the write lock;
	// readers must go through the locked snapshot accessor.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			s.SetCell("3", "A", itoa(100+i), "alice")
		}
	}()
	for i := 0; i < 50; i++ {
		_ = s.HiddenRowsSnapshot()
		_ = s.IsRowFiltered(3)
	}
	<-done

	// Final value 149 is inside the accepted band
	assert.Equal(t, []int{2, 6}, s.HiddenRowsSnapshot())

	// The snapshot is a copy, not an alias of the live slice
	rows := s.HiddenRowsSnapshot()
	rows[0] = 99
	assert.Equal(t, []int{2, 6}, s.HiddenRowsSnapshot())
}

func TestColumnLabelRoundTrip(t *testing.T) {
	cases := map[int]string{1: "A", 2: "B", 26: "Z", 27: "AA", 52: "AZ", 53: "BA", 702: "ZZ", 703: "AAA"}
	for idx, label := range cases {
		assert.Equal(t, label, columnLabel(idx))
		assert.Equal(t, idx, columnIndex(label))
	}
	assert.Equal(t, 0, columnIndex("a1"))
	assert.Equal(t, 0, columnIndex(""))
}
