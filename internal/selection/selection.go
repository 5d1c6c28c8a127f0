// Package selection sorts, filters and pages listing results. Strategies are
// pure: they never modify the slice they are given.
package selection

import (
	"slices"
	"strings"

	"kasirinaja/backoffice/internal/domain"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

const OrderDesc = "desc"

// Strategy holds the sort keys and filterable fields known for T. Unknown
// keys and fields pass the input through unchanged.
type Strategy[T any] struct {
	sorts  map[string]func(a, b T) int
	fields map[string]func(T) string
}

func NewStrategy[T any](sorts map[string]func(a, b T) int, fields map[string]func(T) string) Strategy[T] {
	return Strategy[T]{sorts: sorts, fields: fields}
}

// Sort orders a copy of items by key. Equal elements keep their relative
// order; "desc" reverses the comparison.
func (s Strategy[T]) Sort(items []T, key string, order string) []T {
	out := slices.Clone(items)
	cmp, ok := s.sorts[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return out
	}
	if strings.EqualFold(strings.TrimSpace(order), OrderDesc) {
		slices.SortStableFunc(out, func(a, b T) int { return cmp(b, a) })
		return out
	}
	slices.SortStableFunc(out, cmp)
	return out
}

// Filter keeps the items whose stringified field contains keyword,
// ignoring case. An empty keyword keeps everything.
func (s Strategy[T]) Filter(items []T, field string, keyword string) []T {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	value, ok := s.fields[strings.ToLower(strings.TrimSpace(field))]
	if !ok || keyword == "" {
		return slices.Clone(items)
	}

	out := make([]T, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(value(item)), keyword) {
			out = append(out, item)
		}
	}
	return out
}

// Apply runs sort, then filter, then pagination.
func (s Strategy[T]) Apply(items []T, q domain.ListQuery) domain.ListResult[T] {
	sorted := s.Sort(items, q.SortBy, q.Order)
	filtered := s.Filter(sorted, q.FilterField, q.Keyword)
	return Paginate(filtered, q.Page, q.Limit)
}

func (s Strategy[T]) SortKeys() []string {
	return sortedKeys(s.sorts)
}

func (s Strategy[T]) FilterFields() []string {
	return sortedKeys(s.fields)
}

// Paginate slices one page out of items. Page defaults to 1 and limit to
// DefaultLimit; limit is capped at MaxLimit. Pages past the end are empty.
func Paginate[T any](items []T, page int, limit int) domain.ListResult[T] {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	total := len(items)
	pages := (total + limit - 1) / limit
	result := domain.ListResult[T]{
		Items:      []T{},
		TotalCount: total,
		TotalPages: pages,
		Page:       page,
		Limit:      limit,
	}
	// Compared before multiplying so huge page numbers cannot overflow.
	if page > pages {
		return result
	}
	start := (page - 1) * limit
	end := min(start+limit, total)
	result.Items = slices.Clone(items[start:end])
	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
