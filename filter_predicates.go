package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FilterOperator identifies one comparison in a custom filter predicate.
type FilterOperator string

const (
	OpEqual              FilterOperator = "equal"
	OpNotEqual           FilterOperator = "notEqual"
	OpGreaterThan        FilterOperator = "greaterThan"
	OpGreaterThanOrEqual FilterOperator = "greaterThanOrEqual"
	OpLessThan           FilterOperator = "lessThan"
	OpLessThanOrEqual    FilterOperator = "lessThanOrEqual"
	OpContains           FilterOperator = "contains"
	OpNotContains        FilterOperator = "notContains"
	OpStartsWith         FilterOperator = "startsWith"
	OpEndsWith           FilterOperator = "endsWith"
)

// compilePredicate turns one {operator, val} pair into a match function.
// Numeric operators parse both sides as floats; a cell that doesn't parse
// never matches a numeric comparison. equal/notEqual with a non-numeric
// operand compare as text with * and ? wildcards.
func compilePredicate(item CustomFilterItem) (filterFn, error) {
	operand := item.Val
	switch item.Operator {
	case OpEqual:
		eq, err := compileEquality(operand)
		if err != nil {
			return nil, err
		}
		return eq, nil
	case OpNotEqual:
		eq, err := compileEquality(operand)
		if err != nil {
			return nil, err
		}
		return func(value string, ok bool) bool {
			return !eq(value, ok)
		}, nil
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		threshold, err := strconv.ParseFloat(operand, 64)
		if err != nil {
			return nil, fmt.Errorf("operator %s requires a numeric operand, got %q", item.Operator, operand)
		}
		op := item.Operator
		return func(value string, ok bool) bool {
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return false
			}
			switch op {
			case OpGreaterThan:
				return n > threshold
			case OpGreaterThanOrEqual:
				return n >= threshold
			case OpLessThan:
				return n < threshold
			default:
				return n <= threshold
			}
		}, nil
	case OpContains:
		return func(value string, ok bool) bool {
			return strings.Contains(value, operand)
		}, nil
	case OpNotContains:
		return func(value string, ok bool) bool {
			return !strings.Contains(value, operand)
		}, nil
	case OpStartsWith:
		return func(value string, ok bool) bool {
			return strings.HasPrefix(value, operand)
		}, nil
	case OpEndsWith:
		return func(value string, ok bool) bool {
			return strings.HasSuffix(value, operand)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported filter operator %q", item.Operator)
	}
}

// compileEquality builds the match for equal: numeric equality when the
// operand is a number, otherwise an exact/wildcard text match.
func compileEquality(operand string) (filterFn, error) {
	if threshold, err := strconv.ParseFloat(operand, 64); err == nil {
		return func(value string, ok bool) bool {
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return false
			}
			return n == threshold
		}, nil
	}
	if strings.ContainsAny(operand, "*?") {
		re, err := wildcardToRegexp(operand)
		if err != nil {
			return nil, err
		}
		return func(value string, ok bool) bool {
			return re.MatchString(value)
		}, nil
	}
	return func(value string, ok bool) bool {
		return value == operand
	}, nil
}

// wildcardToRegexp compiles an Excel-style pattern (* = any run, ? = one
// char) into an anchored regexp.
func wildcardToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("bad wildcard pattern %q: %w", pattern, err)
	}
	return re, nil
}
