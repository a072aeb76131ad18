package view

import (
	"maps"
	"strings"
)

// DefaultPageSize is the number of rows shown per page when the schema does
// not set one.
const DefaultPageSize = 10

// FilterAll is the filter value that means "no filter". The empty string
// means the same.
const FilterAll = "all"

// Direction is the sort direction of a column.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseDirection accepts "asc"/"desc" in any case. Anything else is Ascending.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), "desc") {
		return Descending
	}
	return Ascending
}

// Schema describes how a collection is searched, filtered and sorted.
type Schema struct {
	// SearchFields are matched by the free text search.
	SearchFields []string

	// StatusField holds the mutable state, "status" or "approval_status".
	StatusField    string
	ReferrerField  string
	ConditionField string

	// DefaultExcluded statuses are hidden while no status filter is active.
	DefaultExcluded []string

	// NumericSortKeys are compared as numbers after stripping everything
	// that is not part of a number (currency symbols, separators).
	NumericSortKeys []string

	PageSize int
}

func (s Schema) pageSize() int {
	if s.PageSize <= 0 {
		return DefaultPageSize
	}
	return s.PageSize
}

func (s Schema) isNumeric(key string) bool {
	for _, k := range s.NumericSortKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (s Schema) isExcludedByDefault(status string) bool {
	for _, excluded := range s.DefaultExcluded {
		if strings.EqualFold(excluded, status) {
			return true
		}
	}
	return false
}

// FilterState is the local, per-screen view state. It is never sent to the
// backend. The With helpers return a copy; every change other than WithPage
// resets the page to 1.
type FilterState struct {
	SearchText      string
	StatusFilter    string
	ReferrerFilter  string
	ConditionFilter string

	// Extra holds equality filters on fields the schema does not name,
	// e.g. "payment_method" on the billing screen.
	Extra map[string]string

	SortKey       string
	SortDirection Direction
	PageNumber    int
}

// NewFilterState returns the state of a freshly opened screen.
func NewFilterState() FilterState {
	return FilterState{PageNumber: 1}
}

// WithSearch sets the free-text search and returns to the first page.
func (f FilterState) WithSearch(text string) FilterState {
	f.SearchText = text
	return f.firstPage()
}

// WithStatus filters on the status field and returns to the first page.
func (f FilterState) WithStatus(status string) FilterState {
	f.StatusFilter = status
	return f.firstPage()
}

// WithReferrer filters on the referring doctor.
func (f FilterState) WithReferrer(referrer string) FilterState {
	f.ReferrerFilter = referrer
	return f.firstPage()
}

// WithCondition filters on the presenting condition.
func (f FilterState) WithCondition(condition string) FilterState {
	f.ConditionFilter = condition
	return f.firstPage()
}

// WithFilter sets an Extra equality filter. An inactive value removes it.
func (f FilterState) WithFilter(field, value string) FilterState {
	extra := maps.Clone(f.Extra)
	if extra == nil {
		extra = map[string]string{}
	}
	if isActive(value) {
		extra[field] = value
	} else {
		delete(extra, field)
	}
	f.Extra = extra
	return f.firstPage()
}

// WithSort sets the sort key and direction and returns to the first page.
func (f FilterState) WithSort(key string, dir Direction) FilterState {
	f.SortKey = key
	f.SortDirection = dir
	return f.firstPage()
}

// ToggleSort sorts by key ascending, or flips the direction when key is
// already the sort key.
func (f FilterState) ToggleSort(key string) FilterState {
	if f.SortKey == key {
		if f.SortDirection == Ascending {
			return f.WithSort(key, Descending)
		}
		return f.WithSort(key, Ascending)
	}
	return f.WithSort(key, Ascending)
}

// WithPage moves to page n without touching filters.
func (f FilterState) WithPage(n int) FilterState {
	f.PageNumber = n
	return f
}

// Reset clears every filter and the sort.
func (f FilterState) Reset() FilterState {
	return NewFilterState()
}

func (f FilterState) firstPage() FilterState {
	f.PageNumber = 1
	return f
}

func isActive(value string) bool {
	v := strings.TrimSpace(value)
	return v != "" && !strings.EqualFold(v, FilterAll)
}
