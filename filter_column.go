package main

import (
	"errors"

	"github.com/mohae/deepcopy"
)

// cellValueReader is the narrow view of a sheet the filter engine needs:
// synchronous cell reads by 1-based row/column index. ok is false when the
// cell does not exist.
type cellValueReader interface {
	filterCellValue(row, col int) (value string, ok bool)
}

// FilterColumn owns one column's criteria, its compiled predicate and a
// cache of the rows this column excludes. It is created and destroyed by
// the owning FilterModel and never exists without criteria. The cache state
// is explicit: hasCache false means "dirty, contributes nothing" no matter
// what the excluded map holds.
type FilterColumn struct {
	reader cellValueReader
	// alreadyFiltered returns a snapshot of rows other columns have already
	// excluded. Read-only accessor into the owner; must never be used to
	// mutate the model.
	alreadyFiltered func() map[int]bool

	criteria *ColumnCriteria
	fn       filterFn

	hasRange bool
	rng      FilterRange
	offset   int

	hasCache bool
	excluded map[int]bool
}

func newFilterColumn(reader cellValueReader, alreadyFiltered func() map[int]bool) *FilterColumn {
	return &FilterColumn{
		reader:          reader,
		alreadyFiltered: alreadyFiltered,
	}
}

// SetRangeAndOffset records the column's position in the parent range. It
// invalidates the cache but does not trigger recalculation.
func (fc *FilterColumn) SetRangeAndOffset(rng FilterRange, offset int) {
	fc.rng = rng
	fc.offset = offset
	fc.hasRange = true
	fc.invalidate()
}

// SetCriteria replaces the stored criteria, recompiles the predicate and
// invalidates the cache. Compilation errors leave the previous criteria and
// predicate untouched. Recalculation is always explicit.
func (fc *FilterColumn) SetCriteria(criteria *ColumnCriteria) error {
	fn, err := compileFilterFn(criteria)
	if err != nil {
		return err
	}
	fc.criteria = criteria
	fc.fn = fn
	fc.invalidate()
	return nil
}

// HasCache reports whether a prior ReCalc result is still valid.
func (fc *FilterColumn) HasCache() bool {
	return fc.hasCache
}

func (fc *FilterColumn) invalidate() {
	fc.hasCache = false
	fc.excluded = nil
}

// ReCalc evaluates the compiled predicate against every data row of the
// range and caches the rows it excludes. Rows already excluded by other
// columns are skipped without evaluation; exclusion is a union across
// columns, so skipping cannot change the merged result. It is an error to
// recalculate before a range/offset or criteria has been set.
func (fc *FilterColumn) ReCalc() (map[int]bool, error) {
	if !fc.hasRange {
		return nil, errors.New("filter column: recalc before range/offset was set")
	}
	if fc.fn == nil {
		return nil, errors.New("filter column: recalc before criteria was set")
	}

	// Snapshot taken once per call; the view of cross-column exclusions is
	// stable for the whole pass.
	var skip map[int]bool
	if fc.alreadyFiltered != nil {
		skip = fc.alreadyFiltered()
	}

	col := fc.rng.StartColumn + fc.offset
	excluded := make(map[int]bool)
	for row := fc.rng.StartRow + 1; row <= fc.rng.EndRow; row++ {
		if skip[row] {
			continue
		}
		value, ok := fc.reader.filterCellValue(row, col)
		if !fc.fn(value, ok) {
			excluded[row] = true
		}
	}

	fc.excluded = excluded
	fc.hasCache = true
	return excluded, nil
}

// Serialize returns a deep copy of the criteria with the offset substituted
// as the column id, for persistence.
func (fc *FilterColumn) Serialize() (*FilterColumnRecord, error) {
	if fc.criteria == nil {
		return nil, errors.New("filter column: serialize without criteria")
	}
	criteria := deepcopy.Copy(*fc.criteria).(ColumnCriteria)
	return &FilterColumnRecord{
		ColID:          fc.offset,
		ColumnCriteria: criteria,
	}, nil
}

// GetColumnData returns a deep copy of the current criteria so callers can
// introspect it without aliasing the live state.
func (fc *FilterColumn) GetColumnData() *ColumnCriteria {
	if fc.criteria == nil {
		return nil
	}
	criteria := deepcopy.Copy(*fc.criteria).(ColumnCriteria)
	return &criteria
}
