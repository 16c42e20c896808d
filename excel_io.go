package main

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheetName = "Sheet1"

// ExportXLSX renders the sheet as an xlsx workbook. The filter, when set,
// is written as a native AutoFilter on its range and the filtered-out rows
// are hidden, so the exported workbook opens looking like the live sheet.
func (s *Sheet) ExportXLSX() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := excelize.NewFile()
	defer f.Close()

	for rowKey, rowMap := range s.Data {
		row, ok := parseRow(rowKey)
		if !ok {
			continue
		}
		for colKey, cell := range rowMap {
			col := columnIndex(colKey)
			if col == 0 || cell.Value == "" {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(col, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(exportSheetName, ref, cell.Value); err != nil {
				return nil, err
			}
		}
	}

	if s.filter != nil {
		if err := s.exportFilterLocked(f); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// exportFilterLocked applies the filter range, per-column expressions where
// expressible, and row visibility to the workbook.
func (s *Sheet) exportFilterLocked(f *excelize.File) error {
	rng, err := s.filter.GetRange()
	if err != nil {
		return err
	}
	topLeft, err := excelize.CoordinatesToCellName(rng.StartColumn, rng.StartRow)
	if err != nil {
		return err
	}
	bottomRight, err := excelize.CoordinatesToCellName(rng.EndColumn, rng.EndRow)
	if err != nil {
		return err
	}

	var opts []excelize.AutoFilterOptions
	for _, offset := range s.filter.ColumnOffsets() {
		criteria := s.filter.GetColumnData(offset)
		expr := autoFilterExpression(criteria)
		if expr == "" {
			// Value allow-lists and text predicates have no expression
			// form here; the hidden rows below still carry their effect.
			continue
		}
		opts = append(opts, excelize.AutoFilterOptions{
			Column:     columnLabel(rng.StartColumn + offset),
			Expression: expr,
		})
	}
	if err := f.AutoFilter(exportSheetName, topLeft+":"+bottomRight, opts); err != nil {
		return err
	}

	for _, row := range s.filter.FilteredOutRows() {
		if err := f.SetRowVisible(exportSheetName, row, false); err != nil {
			return err
		}
	}
	return nil
}

// autoFilterExpression translates a custom numeric criteria into the
// AutoFilter expression syntax ("x > 123 and x <= 456"). Returns "" for
// shapes the syntax cannot carry.
func autoFilterExpression(criteria *ColumnCriteria) string {
	if criteria == nil || criteria.CustomFilters == nil {
		return ""
	}
	var terms []string
	for _, item := range criteria.CustomFilters.CustomFilters {
		var op string
		switch item.Operator {
		case OpEqual:
			op = "=="
		case OpNotEqual:
			op = "!="
		case OpGreaterThan:
			op = ">"
		case OpGreaterThanOrEqual:
			op = ">="
		case OpLessThan:
			op = "<"
		case OpLessThanOrEqual:
			op = "<="
		default:
			return ""
		}
		terms = append(terms, fmt.Sprintf("x %s %s", op, item.Val))
	}
	joiner := " or "
	if criteria.CustomFilters.IsAnd() || len(terms) == 1 {
		joiner = " and "
	}
	return strings.Join(terms, joiner)
}

// ImportXLSX reads the first worksheet of an xlsx workbook into a new
// sheet owned by the given user.
func ImportXLSX(r io.Reader, name, owner string) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	wsName := f.GetSheetName(0)
	if wsName == "" {
		return nil, fmt.Errorf("workbook has no worksheets")
	}
	rows, err := f.GetRows(wsName)
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", wsName, err)
	}

	if name == "" {
		name = wsName
	}
	sheet := globalSheetManager.CreateSheet(name, owner)
	sheet.mu.Lock()
	for i, cells := range rows {
		rowKey := itoa(i + 1)
		for j, value := range cells {
			if value == "" {
				continue
			}
			if sheet.Data[rowKey] == nil {
				sheet.Data[rowKey] = make(map[string]Cell)
			}
			sheet.Data[rowKey][columnLabel(j+1)] = Cell{Value: value, User: owner}
		}
	}
	sheet.mu.Unlock()
	globalSheetManager.SaveSheet(sheet)

	log.Printf("Imported %d rows from workbook into sheet %s", len(rows), sheet.ID)
	return sheet, nil
}
