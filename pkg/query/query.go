// Package query encodes list UI state (pagination, sort, local filter and
// global search) into the canonical wire query a collection endpoint
// understands:
//
//	itemsPerPage=<int>&page=<int>&sortBy=<a|d>,<field>&filterBy=<field>,<value>
//
// Encoding is a pure function of its input. Identical state always yields an
// identical Query and an identical Key, which is what lets the polling layer
// share one request cycle between every consumer of the same query.
package query

import (
	"net/url"
	"strconv"
	"strings"
)

// Wire parameter names.
const (
	ParamItemsPerPage = "itemsPerPage"
	ParamPage         = "page"
	ParamSortBy       = "sortBy"
	ParamFilterBy     = "filterBy"
)

// Sort directions on the wire.
const (
	DirAscending  = "a"
	DirDescending = "d"
)

// Column names with special handling.
const (
	ColumnCreated   = "created"
	ColumnFirstSeen = "firstseen"
	ColumnLastSeen  = "lastseen"
	ColumnName      = "name"
)

// DefaultSortColumn is used when the user has not picked a sort column.
const DefaultSortColumn = ColumnCreated

// FilterField is the field every free-text filter and search term applies to.
const FilterField = ColumnName

// DefaultItemsPerPage applies when State.ItemsPerPage is not positive.
const DefaultItemsPerPage = 10

// timeColumns lists the columns whose UI direction is inverted before
// encoding, so that the default "up" arrow shows newest first.
var timeColumns = map[string]bool{
	ColumnCreated:   true,
	ColumnFirstSeen: true,
	ColumnLastSeen:  true,
}

// wireFields maps UI column names to backend sort fields. Columns not listed
// are sent unchanged.
var wireFields = map[string]string{
	ColumnCreated: "creationTimestamp",
}

// IsTimeColumn reports whether column is sorted with an inverted direction.
func IsTimeColumn(column string) bool {
	return timeColumns[column]
}

// WireField returns the backend field name for a UI column.
func WireField(column string) string {
	if f, ok := wireFields[column]; ok {
		return f
	}
	return column
}

// Sort is the sort state of a list as the UI shows it.
type Sort struct {
	// Column is the active column. Empty means DefaultSortColumn.
	Column string
	// Ascending is the direction of the UI arrow.
	Ascending bool
	// Set is false when the user never chose a direction; the UI default is
	// ascending in that case.
	Set bool
}

// State is everything the encoder needs from a list instance.
type State struct {
	PageIndex     int // 0-based, as the paginator reports it
	ItemsPerPage  int
	Sort          Sort
	Filter        string // local free-text filter
	Search        string // global search term
	SearchContext bool   // true when the list is shown in a global-search view
}

// Query is the canonical wire-ready query for one fetch.
type Query struct {
	Page          int // 1-based
	ItemsPerPage  int
	SortField     string
	SortAscending bool
	FilterField   string
	FilterValue   string
	SearchValue   string
}

// Encode maps list state into a Query.
func Encode(s State) Query {
	q := Query{
		Page:         s.PageIndex + 1,
		ItemsPerPage: s.ItemsPerPage,
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.ItemsPerPage <= 0 {
		q.ItemsPerPage = DefaultItemsPerPage
	}

	column := s.Sort.Column
	if column == "" {
		column = DefaultSortColumn
	}
	ascending := true
	if s.Sort.Set {
		ascending = s.Sort.Ascending
	}
	if IsTimeColumn(column) {
		ascending = !ascending
	}
	q.SortField = WireField(column)
	q.SortAscending = ascending

	if s.Filter != "" {
		q.FilterField = FilterField
		q.FilterValue = s.Filter
	}
	if s.SearchContext && s.Search != "" {
		q.SearchValue = s.Search
	}
	return q
}

// SortBy returns the sortBy parameter value, e.g. "d,creationTimestamp".
func (q Query) SortBy() string {
	dir := DirDescending
	if q.SortAscending {
		dir = DirAscending
	}
	return dir + "," + q.SortField
}

// FilterBy returns the filterBy parameter value, or "" when neither a local
// filter nor a search term applies. When both apply they are joined with a
// comma: "name,nginx,name,web".
func (q Query) FilterBy() string {
	var terms []string
	if q.FilterValue != "" {
		terms = append(terms, q.FilterField+","+q.FilterValue)
	}
	if q.SearchValue != "" {
		terms = append(terms, FilterField+","+q.SearchValue)
	}
	return strings.Join(terms, ",")
}

// Filtered reports whether the local filter contributes to the query.
func (q Query) Filtered() bool {
	return q.FilterValue != ""
}

// Params returns the wire parameters.
func (q Query) Params() url.Values {
	v := url.Values{}
	v.Set(ParamItemsPerPage, strconv.Itoa(q.ItemsPerPage))
	v.Set(ParamPage, strconv.Itoa(q.Page))
	v.Set(ParamSortBy, q.SortBy())
	if f := q.FilterBy(); f != "" {
		v.Set(ParamFilterBy, f)
	}
	return v
}

// Key returns the canonical encoding of the query. Params are sorted by key,
// so equal queries always produce byte-identical keys.
func (q Query) Key() string {
	return q.Params().Encode()
}
