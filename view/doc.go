// Package view projects a cached snapshot into the page a list screen shows.
//
// All filtering, sorting and paging happen locally over the bulk snapshot;
// changing a FilterState never causes a network call. A projection is a pure
// function of its inputs:
//
//	p := view.New(schema)
//	state := view.NewFilterState().WithSearch("ann").WithSort("amount", view.Descending)
//	res := p.Project(entry.Records, state)
//
// Records whose status is listed in Schema.DefaultExcluded (e.g. "closed")
// only show up when a status filter selects them explicitly.
package view
