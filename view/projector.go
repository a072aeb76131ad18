package view

import (
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-listsync/record"
)

// Result is one page of a projection.
type Result struct {
	Items      []record.Record
	TotalCount int
	TotalPages int
	Page       int
}

// Projector derives the visible page of a collection from a cached snapshot.
// It holds no state besides its schema and is safe for concurrent use.
type Projector struct {
	schema Schema
}

// New returns a Projector for schema.
func New(schema Schema) Projector {
	return Projector{schema: schema}
}

// Schema returns the schema the projector was built with.
func (p Projector) Schema() Schema {
	return p.schema
}

// Project applies search, equality filters and the default exclusion in that
// order, sorts the survivors and slices out state.PageNumber. The input is
// never modified and an empty input yields an empty first page.
func (p Projector) Project(records []record.Record, state FilterState) Result {
	filtered := p.Filtered(records, state)

	size := p.schema.pageSize()
	totalPages := (len(filtered) + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}

	page := state.PageNumber
	if page < 1 {
		page = 1
	}

	items := []record.Record{}
	if start := (page - 1) * size; start < len(filtered) {
		end := min(start+size, len(filtered))
		items = filtered[start:end]
	}

	return Result{
		Items:      items,
		TotalCount: len(filtered),
		TotalPages: totalPages,
		Page:       page,
	}
}

// Filtered returns every record that survives state's predicates, sorted. It
// is what an export of the current view consumes.
func (p Projector) Filtered(records []record.Record, state FilterState) []record.Record {
	out := make([]record.Record, 0, len(records))
	needle := strings.ToLower(strings.TrimSpace(state.SearchText))

	for _, r := range records {
		if needle != "" && !p.matchesSearch(r, needle) {
			continue
		}
		if !p.matchesFilters(r, state) {
			continue
		}
		if !isActive(state.StatusFilter) && p.schema.StatusField != "" &&
			p.schema.isExcludedByDefault(r.Text(p.schema.StatusField)) {
			continue
		}
		out = append(out, r)
	}

	if state.SortKey != "" {
		p.sort(out, state.SortKey, state.SortDirection)
	}
	return out
}

func (p Projector) matchesSearch(r record.Record, needle string) bool {
	for _, field := range p.schema.SearchFields {
		if strings.Contains(strings.ToLower(r.Text(field)), needle) {
			return true
		}
	}
	return false
}

func (p Projector) matchesFilters(r record.Record, state FilterState) bool {
	checks := [...]struct{ field, value string }{
		{p.schema.StatusField, state.StatusFilter},
		{p.schema.ReferrerField, state.ReferrerFilter},
		{p.schema.ConditionField, state.ConditionFilter},
	}
	for _, c := range checks {
		if c.field == "" || !isActive(c.value) {
			continue
		}
		if !strings.EqualFold(r.Text(c.field), strings.TrimSpace(c.value)) {
			return false
		}
	}
	for field, value := range state.Extra {
		if !isActive(value) {
			continue
		}
		if !strings.EqualFold(r.Text(field), strings.TrimSpace(value)) {
			return false
		}
	}
	return true
}

func (p Projector) sort(records []record.Record, key string, dir Direction) {
	numeric := p.schema.isNumeric(key)
	compare := func(a, b record.Record) int {
		if numeric {
			x, y := Number(a.Text(key)), Number(b.Text(key))
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
		return strings.Compare(strings.ToLower(a.Text(key)), strings.ToLower(b.Text(key)))
	}

	sort.SliceStable(records, func(i, j int) bool {
		c := compare(records[i], records[j])
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
}

// Number coerces a display value such as "₱1,250.50" or "100" to a float.
// Values with no digits are 0.
func Number(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

// Rows renders records as plain string rows, one cell per field, for CSV or
// HTML export collaborators.
func Rows(records []record.Record, fields []string) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, len(fields))
		for i, field := range fields {
			row[i] = r.Text(field)
		}
		rows = append(rows, row)
	}
	return rows
}
