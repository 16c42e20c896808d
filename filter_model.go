package main

import (
	"errors"
	"fmt"
	"slices"
)

// FilterModel owns one sheet's filter: the range, the per-offset
// FilterColumns and the merged set of excluded rows. The merged set is the
// authoritative "filtered out" result: the union of every cached column's
// excluded rows. It is rebuilt whenever a column's cache is invalidated or
// a column is removed, and doubles as the short-circuit input for columns
// not yet evaluated: a row excluded by any cached column need not be
// re-tested elsewhere.
//
// The model is synchronous and has no locking of its own; the owning sheet
// serializes access.
type FilterModel struct {
	sheetID string
	reader  cellValueReader

	hasRange bool
	rng      FilterRange
	columns  map[int]*FilterColumn

	filteredOut map[int]bool

	rowsListeners     []func(rows []int)
	criteriaListeners []func(hasCriteria bool)
	lastHasCriteria   bool
}

// NewFilterModel creates an empty model for the given sheet. A range must
// be set before any criteria.
func NewFilterModel(sheetID string, reader cellValueReader) *FilterModel {
	return &FilterModel{
		sheetID:     sheetID,
		reader:      reader,
		columns:     make(map[int]*FilterColumn),
		filteredOut: make(map[int]bool),
	}
}

// NewFilterModelFromRecord reconstructs a model from its persisted record.
// Criteria are compiled but not recalculated; the persisted excluded-row
// cache is restored as-is and trusted until an edit invalidates it. A
// column record matching neither filter kind fails loudly.
func NewFilterModelFromRecord(sheetID string, reader cellValueReader, rec *FilterRangeRecord) (*FilterModel, error) {
	if rec == nil {
		return nil, errors.New("filter model: nil record")
	}
	if !rec.Ref.Valid() {
		return nil, fmt.Errorf("filter model: invalid range %+v", rec.Ref)
	}
	fm := NewFilterModel(sheetID, reader)
	fm.rng = rec.Ref
	fm.hasRange = true
	for _, colRec := range rec.FilterColumns {
		if colRec.ColID < 0 || colRec.ColID >= fm.rng.ColumnCount() {
			return nil, fmt.Errorf("filter model: column offset %d outside range", colRec.ColID)
		}
		criteria := colRec.ColumnCriteria
		col := newFilterColumn(reader, fm.snapshotFilteredOut)
		col.SetRangeAndOffset(fm.rng, colRec.ColID)
		if err := col.SetCriteria(&criteria); err != nil {
			return nil, fmt.Errorf("filter model: column %d: %w", colRec.ColID, err)
		}
		fm.columns[colRec.ColID] = col
	}
	for _, row := range rec.CachedFilteredOut {
		fm.filteredOut[row] = true
	}
	fm.lastHasCriteria = len(fm.columns) > 0
	return fm, nil
}

// SheetID returns the id of the sheet this model filters.
func (fm *FilterModel) SheetID() string {
	return fm.sheetID
}

// HasCriteria reports whether any column currently carries criteria.
func (fm *FilterModel) HasCriteria() bool {
	return len(fm.columns) > 0
}

// GetRange returns the current filter range. It is an error to read the
// range before one has been set.
func (fm *FilterModel) GetRange() (FilterRange, error) {
	if !fm.hasRange {
		return FilterRange{}, errors.New("filter model: no range set")
	}
	return fm.rng, nil
}

// SetRange replaces the filter range and re-propagates it, with each
// column's unchanged offset, to every live column so future recalculation
// uses the new row bounds. It does not recalculate and does not drop
// columns whose offsets fall outside the new range.
// TODO: columns left outside the new column span keep stale criteria until
// the next structural edit removes them explicitly.
func (fm *FilterModel) SetRange(rng FilterRange) error {
	if !rng.Valid() {
		return fmt.Errorf("filter model: invalid range %+v", rng)
	}
	fm.rng = rng
	fm.hasRange = true
	for offset, col := range fm.columns {
		col.SetRangeAndOffset(rng, offset)
	}
	return nil
}

// SetCriteria sets, replaces, or (with nil criteria) removes the criteria
// at the given column offset. With reCalc true the merged excluded-row set
// is rebuilt from cached columns, every uncached column is recalculated in
// ascending offset order, and the result is published. With reCalc false
// nothing is recomputed; callers batching several changes follow up with
// an explicit ReCalc.
func (fm *FilterModel) SetCriteria(offset int, criteria *ColumnCriteria, reCalc bool) error {
	if criteria == nil {
		// Removal alone can only shrink the excluded set, so uncached
		// columns are not recalculated even when reCalc was requested.
		if _, ok := fm.columns[offset]; !ok {
			return nil
		}
		delete(fm.columns, offset)
		fm.rebuildWithCache()
		fm.emitRowsChanged()
		fm.emitCriteriaChanged()
		return nil
	}

	if !fm.hasRange {
		return errors.New("filter model: set criteria before range")
	}
	if offset < 0 || offset >= fm.rng.ColumnCount() {
		return fmt.Errorf("filter model: column offset %d outside range of %d columns", offset, fm.rng.ColumnCount())
	}

	col, exists := fm.columns[offset]
	if !exists {
		col = newFilterColumn(fm.reader, fm.snapshotFilteredOut)
		col.SetRangeAndOffset(fm.rng, offset)
	}
	if err := col.SetCriteria(criteria); err != nil {
		return err
	}
	if !exists {
		fm.columns[offset] = col
	}
	fm.emitCriteriaChanged()

	if !reCalc {
		return nil
	}
	fm.rebuildWithCache()
	if err := fm.recalcUncached(); err != nil {
		return err
	}
	fm.emitRowsChanged()
	return nil
}

// ReCalc drops every column's cache and the merged set, then recomputes
// all columns from scratch. Used after edits where incremental adjustment
// isn't safe.
func (fm *FilterModel) ReCalc() error {
	if !fm.hasRange {
		return errors.New("filter model: recalc before range")
	}
	for _, col := range fm.columns {
		col.invalidate()
	}
	fm.filteredOut = make(map[int]bool)
	if err := fm.recalcUncached(); err != nil {
		return err
	}
	fm.emitRowsChanged()
	return nil
}

// recalcUncached recalculates every column without a cache in ascending
// offset order, merging each result into the authoritative set. The first
// column error aborts the batch; columns recalculated earlier keep their
// caches, and nothing is published.
func (fm *FilterModel) recalcUncached() error {
	for _, offset := range fm.ColumnOffsets() {
		col := fm.columns[offset]
		if col.HasCache() {
			continue
		}
		excluded, err := col.ReCalc()
		if err != nil {
			return fmt.Errorf("filter model: column %d: %w", offset, err)
		}
		for row := range excluded {
			fm.filteredOut[row] = true
		}
	}
	return nil
}

// rebuildWithCache rebuilds the merged set as the union of every cached
// column's excluded rows. Columns without a cache contribute nothing until
// they are recalculated.
func (fm *FilterModel) rebuildWithCache() {
	merged := make(map[int]bool)
	for _, col := range fm.columns {
		if !col.HasCache() {
			continue
		}
		for row := range col.excluded {
			merged[row] = true
		}
	}
	fm.filteredOut = merged
}

// IsRowFiltered reports whether the row is currently excluded. This is the
// hot path of the row-visibility layer; it is a plain map lookup and never
// triggers recomputation. A row never evaluated is not filtered.
func (fm *FilterModel) IsRowFiltered(row int) bool {
	return fm.filteredOut[row]
}

// FilteredOutRows returns the merged excluded rows in ascending order.
func (fm *FilterModel) FilteredOutRows() []int {
	rows := make([]int, 0, len(fm.filteredOut))
	for row := range fm.filteredOut {
		rows = append(rows, row)
	}
	slices.Sort(rows)
	return rows
}

// ColumnOffsets returns the offsets carrying criteria in ascending order.
func (fm *FilterModel) ColumnOffsets() []int {
	offsets := make([]int, 0, len(fm.columns))
	for offset := range fm.columns {
		offsets = append(offsets, offset)
	}
	slices.Sort(offsets)
	return offsets
}

// GetColumnData returns a deep copy of the criteria at offset, or nil when
// the offset carries none.
func (fm *FilterModel) GetColumnData(offset int) *ColumnCriteria {
	col, ok := fm.columns[offset]
	if !ok {
		return nil
	}
	return col.GetColumnData()
}

// Serialize builds the portable record: the range, the columns sorted by
// offset for deterministic output, and the current excluded-row set.
func (fm *FilterModel) Serialize() (*FilterRangeRecord, error) {
	if !fm.hasRange {
		return nil, errors.New("filter model: serialize before range")
	}
	rec := &FilterRangeRecord{
		Ref:               fm.rng,
		CachedFilteredOut: fm.FilteredOutRows(),
	}
	for _, offset := range fm.ColumnOffsets() {
		colRec, err := fm.columns[offset].Serialize()
		if err != nil {
			return nil, err
		}
		rec.FilterColumns = append(rec.FilterColumns, *colRec)
	}
	return rec, nil
}

// OnFilteredRowsChanged registers a callback invoked with the sorted
// excluded rows after every completed merge. Callbacks always observe the
// post-mutation, fully merged state.
func (fm *FilterModel) OnFilteredRowsChanged(fn func(rows []int)) {
	fm.rowsListeners = append(fm.rowsListeners, fn)
}

// OnHasCriteriaChanged registers a callback invoked when the model gains
// its first criteria or loses its last one.
func (fm *FilterModel) OnHasCriteriaChanged(fn func(hasCriteria bool)) {
	fm.criteriaListeners = append(fm.criteriaListeners, fn)
}

func (fm *FilterModel) emitRowsChanged() {
	rows := fm.FilteredOutRows()
	for _, fn := range fm.rowsListeners {
		fn(rows)
	}
}

func (fm *FilterModel) emitCriteriaChanged() {
	has := fm.HasCriteria()
	if has == fm.lastHasCriteria {
		return
	}
	fm.lastHasCriteria = has
	for _, fn := range fm.criteriaListeners {
		fn(has)
	}
}

// snapshotFilteredOut hands each FilterColumn a stable copy of the merged
// set for the duration of one ReCalc pass.
func (fm *FilterModel) snapshotFilteredOut() map[int]bool {
	snapshot := make(map[int]bool, len(fm.filteredOut))
	for row := range fm.filteredOut {
		snapshot[row] = true
	}
	return snapshot
}
