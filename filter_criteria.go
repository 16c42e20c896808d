package main

import (
	"errors"
	"fmt"
)

// FilterRange is the rectangular region a filter applies to. Rows and
// columns are the sheet's 1-based coordinates (column 1 = "A"). StartRow is
// the header row and is never evaluated; filtering starts at StartRow+1.
type FilterRange struct {
	StartRow    int `json:"startRow"`
	EndRow      int `json:"endRow"`
	StartColumn int `json:"startColumn"`
	EndColumn   int `json:"endColumn"`
}

// ColumnCount returns how many columns the range spans.
func (r FilterRange) ColumnCount() int {
	return r.EndColumn - r.StartColumn + 1
}

// Valid reports whether the range is a sane non-empty rectangle with at
// least one data row under the header.
func (r FilterRange) Valid() bool {
	return r.StartRow >= 1 && r.StartColumn >= 1 &&
		r.EndRow > r.StartRow && r.EndColumn >= r.StartColumn
}

// CustomFilterItem is one comparison predicate of a custom filter.
type CustomFilterItem struct {
	Operator FilterOperator `json:"operator"`
	Val      string         `json:"val"`
}

// CustomFilters combines one or two predicates. And==1 means both must
// match; otherwise two predicates are OR-combined. With a single predicate
// the flag is irrelevant.
type CustomFilters struct {
	And           int                `json:"and,omitempty"`
	CustomFilters []CustomFilterItem `json:"customFilters"`
}

// IsAnd reports whether the two predicates are AND-combined.
func (cf *CustomFilters) IsAnd() bool {
	return cf.And == 1
}

// ColumnCriteria is the tagged union stored per filtered column: either a
// value allow-list (Filters non-nil) or a custom predicate combination
// (CustomFilters non-nil). Exactly one side must be present.
type ColumnCriteria struct {
	Filters       []string       `json:"filters,omitempty"`
	CustomFilters *CustomFilters `json:"customFilters,omitempty"`
}

// FilterColumnRecord is the persisted form of one filtered column. ColID is
// the column's offset within the filter range, not an absolute index.
type FilterColumnRecord struct {
	ColID int `json:"colId"`
	ColumnCriteria
}

// FilterRangeRecord is the portable on-disk representation of a sheet's
// filter: the range, the per-column criteria sorted by offset, and the last
// computed excluded rows so a reload can skip recomputation.
type FilterRangeRecord struct {
	Ref               FilterRange          `json:"ref"`
	FilterColumns     []FilterColumnRecord `json:"filterColumns,omitempty"`
	CachedFilteredOut []int                `json:"cachedFilteredOut,omitempty"`
}

// filterFn is a compiled column predicate. ok is false when the cell does
// not exist; value is then empty.
type filterFn func(value string, ok bool) bool

var errUnsupportedFilter = errors.New("unsupported filter shape")

// compileFilterFn compiles one column's criteria into a single match
// function. An unrecognized criteria shape is an error; it must never
// degrade into a pass-all filter.
func compileFilterFn(criteria *ColumnCriteria) (filterFn, error) {
	if criteria == nil {
		return nil, fmt.Errorf("%w: no criteria", errUnsupportedFilter)
	}
	if criteria.Filters != nil && criteria.CustomFilters != nil {
		return nil, fmt.Errorf("%w: both value and custom filters present", errUnsupportedFilter)
	}

	if criteria.Filters != nil {
		allowed := make(map[string]bool, len(criteria.Filters))
		for _, v := range criteria.Filters {
			allowed[v] = true
		}
		return func(value string, ok bool) bool {
			// A missing or blank cell matches only when the allow-list
			// carries the empty-string blank sentinel.
			if !ok || value == "" {
				return allowed[""]
			}
			return allowed[value]
		}, nil
	}

	if criteria.CustomFilters != nil {
		items := criteria.CustomFilters.CustomFilters
		switch len(items) {
		case 1:
			return compilePredicate(items[0])
		case 2:
			first, err := compilePredicate(items[0])
			if err != nil {
				return nil, err
			}
			second, err := compilePredicate(items[1])
			if err != nil {
				return nil, err
			}
			if criteria.CustomFilters.IsAnd() {
				return func(value string, ok bool) bool {
					return first(value, ok) && second(value, ok)
				}, nil
			}
			return func(value string, ok bool) bool {
				return first(value, ok) || second(value, ok)
			}, nil
		default:
			return nil, fmt.Errorf("%w: custom filter needs 1 or 2 predicates, got %d", errUnsupportedFilter, len(items))
		}
	}

	return nil, fmt.Errorf("%w: neither value nor custom filters present", errUnsupportedFilter)
}
