package main

import "fmt"

// FilterMutationPair is the undo/redo contract of a structural edit: the
// serialized filter before and after the translation. The caller undoes by
// re-applying Before; a nil After means the edit removed the filter.
type FilterMutationPair struct {
	Before *FilterRangeRecord `json:"before,omitempty"`
	After  *FilterRangeRecord `json:"after,omitempty"`
}

// FilterAdapter translates sheet row/column insert, remove and move
// operations into range and offset updates on a FilterModel. The adapter
// owns nothing; it drives the model through its public mutation surface and
// reports the before/after records to the command layer.
type FilterAdapter struct {
	model *FilterModel
}

func newFilterAdapter(model *FilterModel) *FilterAdapter {
	return &FilterAdapter{model: model}
}

// OnRowsInserted adjusts the filter after count rows were inserted starting
// at row start (1-based, rows at start and below shifted down).
func (fa *FilterAdapter) OnRowsInserted(start, count int) (*FilterMutationPair, error) {
	before, err := fa.model.Serialize()
	if err != nil {
		return nil, err
	}
	after := translateRowsInserted(before, start, count)
	if after == nil {
		return nil, nil
	}
	if err := fa.apply(after); err != nil {
		return nil, err
	}
	return fa.pairAfterApply(before)
}

// OnRowsRemoved adjusts the filter after rows [start, start+count-1] were
// removed. Removing the header row, or every data row, removes the filter:
// removed is true and the caller must drop the model.
func (fa *FilterAdapter) OnRowsRemoved(start, count int) (*FilterMutationPair, bool, error) {
	before, err := fa.model.Serialize()
	if err != nil {
		return nil, false, err
	}
	after, removed := translateRowsRemoved(before, start, count)
	if removed {
		return &FilterMutationPair{Before: before}, true, nil
	}
	if after == nil {
		return nil, false, nil
	}
	if err := fa.apply(after); err != nil {
		return nil, false, err
	}
	pair, err := fa.pairAfterApply(before)
	return pair, false, err
}

// OnRowMoved adjusts the filter after the row at from was moved so that its
// final position is dest. The move is translated as a removal at from
// followed by an insertion at dest; moving the header row out of the range
// therefore removes the filter.
func (fa *FilterAdapter) OnRowMoved(from, dest int) (*FilterMutationPair, bool, error) {
	before, err := fa.model.Serialize()
	if err != nil {
		return nil, false, err
	}
	step, removed := translateRowsRemoved(before, from, 1)
	if removed {
		return &FilterMutationPair{Before: before}, true, nil
	}
	if step == nil {
		step = before
	}
	after := translateRowsInserted(step, dest, 1)
	if after == nil {
		after = step
	}
	if after == before {
		// Entirely outside the range; nothing to do.
		return nil, false, nil
	}
	if err := fa.apply(after); err != nil {
		return nil, false, err
	}
	pair, err := fa.pairAfterApply(before)
	return pair, false, err
}

// OnColumnsInserted adjusts the filter after count columns were inserted
// starting at column start (columns at start and beyond shifted right).
// Filtered columns at or beyond the insertion point keep their criteria
// under shifted offsets.
func (fa *FilterAdapter) OnColumnsInserted(start, count int) (*FilterMutationPair, error) {
	before, err := fa.model.Serialize()
	if err != nil {
		return nil, err
	}
	after := translateColumnsInserted(before, start, count)
	if after == nil {
		return nil, nil
	}
	if err := fa.apply(after); err != nil {
		return nil, err
	}
	return fa.pairAfterApply(before)
}

// OnColumnsRemoved adjusts the filter after columns [start, start+count-1]
// were removed. Criteria on removed columns are dropped; criteria to the
// right shift left. Removing the whole column span removes the filter.
func (fa *FilterAdapter) OnColumnsRemoved(start, count int) (*FilterMutationPair, bool, error) {
	before, err := fa.model.Serialize()
	if err != nil {
		return nil, false, err
	}
	after, removed := translateColumnsRemoved(before, start, count)
	if removed {
		return &FilterMutationPair{Before: before}, true, nil
	}
	if after == nil {
		return nil, false, nil
	}
	if err := fa.apply(after); err != nil {
		return nil, false, err
	}
	pair, err := fa.pairAfterApply(before)
	return pair, false, err
}

// OnColumnMoved adjusts the filter after the column at from was moved so
// that its final position is dest. A move with both endpoints inside the
// range reorders offsets and keeps every column's criteria; a move across
// the range boundary is translated as remove+insert, dropping the moved
// column's criteria if it had any.
func (fa *FilterAdapter) OnColumnMoved(from, dest int) (*FilterMutationPair, bool, error) {
	before, err := fa.model.Serialize()
	if err != nil {
		return nil, false, err
	}
	ref := before.Ref
	if from >= ref.StartColumn && from <= ref.EndColumn && dest >= ref.StartColumn && dest <= ref.EndColumn {
		after := translateColumnReorder(before, from, dest)
		if after == nil {
			return nil, false, nil
		}
		if err := fa.apply(after); err != nil {
			return nil, false, err
		}
		pair, err := fa.pairAfterApply(before)
		return pair, false, err
	}

	step, removed := translateColumnsRemoved(before, from, 1)
	if removed {
		return &FilterMutationPair{Before: before}, true, nil
	}
	if step == nil {
		step = before
	}
	after := translateColumnsInserted(step, dest, 1)
	if after == nil {
		after = step
	}
	if after == before {
		return nil, false, nil
	}
	if err := fa.apply(after); err != nil {
		return nil, false, err
	}
	pair, err := fa.pairAfterApply(before)
	return pair, false, err
}

// apply drives the model to the translated record: new range first so the
// shifted offsets are in bounds, then criteria removals and re-sets, then a
// full recalculation since row membership may have changed.
func (fa *FilterAdapter) apply(rec *FilterRangeRecord) error {
	if err := fa.model.SetRange(rec.Ref); err != nil {
		return err
	}
	wanted := make(map[int]*ColumnCriteria, len(rec.FilterColumns))
	for i := range rec.FilterColumns {
		criteria := rec.FilterColumns[i].ColumnCriteria
		wanted[rec.FilterColumns[i].ColID] = &criteria
	}
	for _, offset := range fa.model.ColumnOffsets() {
		if _, keep := wanted[offset]; !keep {
			if err := fa.model.SetCriteria(offset, nil, false); err != nil {
				return err
			}
		}
	}
	for offset, criteria := range wanted {
		if err := fa.model.SetCriteria(offset, criteria, false); err != nil {
			return fmt.Errorf("filter adapter: offset %d: %w", offset, err)
		}
	}
	return fa.model.ReCalc()
}

func (fa *FilterAdapter) pairAfterApply(before *FilterRangeRecord) (*FilterMutationPair, error) {
	after, err := fa.model.Serialize()
	if err != nil {
		return nil, err
	}
	return &FilterMutationPair{Before: before, After: after}, nil
}

// translateRowsInserted returns the record after count rows were inserted
// at start, or nil when the filter is unaffected.
func translateRowsInserted(rec *FilterRangeRecord, start, count int) *FilterRangeRecord {
	ref := rec.Ref
	switch {
	case start <= ref.StartRow:
		ref.StartRow += count
		ref.EndRow += count
	case start <= ref.EndRow:
		ref.EndRow += count
	default:
		return nil
	}
	out := cloneFilterRecord(rec)
	out.Ref = ref
	return out
}

// translateRowsRemoved returns the record after rows [start, start+count-1]
// were removed. removed is true when the header row or the whole data
// region is gone; a nil record with removed false means unaffected.
func translateRowsRemoved(rec *FilterRangeRecord, start, count int) (*FilterRangeRecord, bool) {
	ref := rec.Ref
	end := start + count - 1
	if start > ref.EndRow {
		return nil, false
	}
	if start <= ref.StartRow && end >= ref.StartRow {
		return nil, true
	}
	// removedBefore counts removed rows strictly above a coordinate.
	removedBefore := func(row int) int {
		if end < row {
			return count
		}
		if start >= row {
			return 0
		}
		return row - start
	}
	ref.StartRow -= removedBefore(ref.StartRow)
	ref.EndRow -= removedBefore(ref.EndRow + 1)
	if ref.EndRow <= ref.StartRow {
		return nil, true
	}
	out := cloneFilterRecord(rec)
	out.Ref = ref
	return out, false
}

// translateColumnsInserted returns the record after count columns were
// inserted at start, shifting criteria offsets as needed, or nil when the
// filter is unaffected.
func translateColumnsInserted(rec *FilterRangeRecord, start, count int) *FilterRangeRecord {
	ref := rec.Ref
	out := cloneFilterRecord(rec)
	switch {
	case start <= ref.StartColumn:
		ref.StartColumn += count
		ref.EndColumn += count
	case start <= ref.EndColumn:
		ref.EndColumn += count
		insertOffset := start - ref.StartColumn
		for i := range out.FilterColumns {
			if out.FilterColumns[i].ColID >= insertOffset {
				out.FilterColumns[i].ColID += count
			}
		}
	default:
		return nil
	}
	out.Ref = ref
	return out
}

// translateColumnsRemoved returns the record after columns
// [start, start+count-1] were removed. Criteria on removed columns are
// dropped. removed is true when no filtered-range column survives.
func translateColumnsRemoved(rec *FilterRangeRecord, start, count int) (*FilterRangeRecord, bool) {
	ref := rec.Ref
	end := start + count - 1
	if start > ref.EndColumn {
		return nil, false
	}
	if start <= ref.StartColumn && end >= ref.EndColumn {
		return nil, true
	}
	removedBefore := func(col int) int {
		if end < col {
			return count
		}
		if start >= col {
			return 0
		}
		return col - start
	}
	newStart := ref.StartColumn - removedBefore(ref.StartColumn)
	newEnd := ref.EndColumn - removedBefore(ref.EndColumn+1)
	out := cloneFilterRecord(rec)
	out.FilterColumns = out.FilterColumns[:0]
	for _, colRec := range rec.FilterColumns {
		abs := ref.StartColumn + colRec.ColID
		if abs >= start && abs <= end {
			continue // column removed, criteria dropped with it
		}
		shifted := colRec
		shifted.ColID = abs - removedBefore(abs) - newStart
		out.FilterColumns = append(out.FilterColumns, shifted)
	}
	out.Ref = ref
	out.Ref.StartColumn = newStart
	out.Ref.EndColumn = newEnd
	return out, false
}

// translateColumnReorder handles a column move with both endpoints inside
// the range: offsets between from and dest rotate by one and the moved
// column's criteria travel with it.
func translateColumnReorder(rec *FilterRangeRecord, from, dest int) *FilterRangeRecord {
	if from == dest {
		return nil
	}
	ref := rec.Ref
	fromOff := from - ref.StartColumn
	destOff := dest - ref.StartColumn
	out := cloneFilterRecord(rec)
	for i := range out.FilterColumns {
		off := out.FilterColumns[i].ColID
		switch {
		case off == fromOff:
			off = destOff
		case from < dest && off > fromOff && off <= destOff:
			off--
		case from > dest && off >= destOff && off < fromOff:
			off++
		}
		out.FilterColumns[i].ColID = off
	}
	return out
}

func cloneFilterRecord(rec *FilterRangeRecord) *FilterRangeRecord {
	out := &FilterRangeRecord{Ref: rec.Ref}
	out.FilterColumns = append(out.FilterColumns, rec.FilterColumns...)
	// The adapter recalculates after every translation, so the stale row
	// cache is not carried over.
	return out
}
