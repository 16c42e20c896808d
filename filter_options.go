package main

import (
	"fmt"
	"slices"
	"strconv"
)

// FilterValueItem is one entry of the filter dropdown for a column: a
// distinct cell value, how many data rows carry it, and whether the current
// criteria let it through. Blank cells are folded into a single item whose
// Value is the empty-string sentinel used by value filters.
type FilterValueItem struct {
	Value   string `json:"value"`
	Count   int    `json:"count"`
	Blank   bool   `json:"blank,omitempty"`
	Checked bool   `json:"checked"`
}

// FilterPanelValues builds the distinct-value list for the filter column at
// the given offset. Values are sorted numbers-first, then text, with the
// blank entry last. Checked reflects the column's value criteria; a column
// with no criteria, or with a custom (predicate) filter, shows everything
// checked.
func (s *Sheet) FilterPanelValues(offset int, user string) ([]FilterValueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.filter == nil {
		return nil, fmt.Errorf("sheet %s has no filter", s.ID)
	}
	rng, err := s.filter.GetRange()
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset >= rng.ColumnCount() {
		return nil, fmt.Errorf("filter column offset %d outside range of %d columns", offset, rng.ColumnCount())
	}

	col := rng.StartColumn + offset
	counts := make(map[string]int)
	blanks := 0
	for row := rng.StartRow + 1; row <= rng.EndRow; row++ {
		value, ok := s.filterCellValue(row, col)
		if !ok || value == "" {
			blanks++
			continue
		}
		counts[value]++
	}

	// With a value filter in place only listed values are checked; any
	// other criteria shape leaves the whole list checked.
	var allowed map[string]bool
	if criteria := s.filter.GetColumnData(offset); criteria != nil && criteria.Filters != nil {
		allowed = make(map[string]bool, len(criteria.Filters))
		for _, v := range criteria.Filters {
			allowed[v] = true
		}
	}
	checked := func(value string) bool {
		if allowed == nil {
			return true
		}
		return allowed[value]
	}

	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	slices.SortFunc(values, compareFilterValues)

	items := make([]FilterValueItem, 0, len(values)+1)
	for _, v := range values {
		items = append(items, FilterValueItem{
			Value:   v,
			Count:   counts[v],
			Checked: checked(v),
		})
	}
	if blanks > 0 {
		items = append(items, FilterValueItem{
			Value:   "",
			Count:   blanks,
			Blank:   true,
			Checked: checked(""),
		})
	}
	return items, nil
}

// compareFilterValues orders numeric values numerically before text values
// in lexical order, matching how the filter dropdown presents them.
func compareFilterValues(a, b string) int {
	na, errA := strconv.ParseFloat(a, 64)
	nb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
}
