package listctl

import (
	"gitlab.com/tinyland/lab/listpulse/pkg/query"
)

// Trigger is one UI signal that starts a new fetch cycle. The concrete types
// are PageChanged, SortChanged, FilterChanged, NamespaceChanged and
// ParamsChanged.
type Trigger interface {
	isTrigger()
}

// PageChanged selects a page by its 0-based index.
type PageChanged struct {
	Index int
}

// SortChanged selects a sort column and direction.
type SortChanged struct {
	Sort query.Sort
}

// FilterChanged replaces the local free-text filter.
type FilterChanged struct {
	Filter string
}

// NamespaceChanged reports a namespace switch.
type NamespaceChanged struct {
	Namespace string
}

// ParamsChanged reports a change of externally supplied parameters. The page
// size is re-read from the paginator; Search, when non-nil, replaces the
// global search term.
type ParamsChanged struct {
	Search *string
}

func (PageChanged) isTrigger()      {}
func (SortChanged) isTrigger()      {}
func (FilterChanged) isTrigger()    {}
func (NamespaceChanged) isTrigger() {}
func (ParamsChanged) isTrigger()    {}

// SearchChanged returns the ParamsChanged trigger for a new search term.
func SearchChanged(term string) ParamsChanged {
	return ParamsChanged{Search: &term}
}

// state is the part of a list instance the query derives from.
type state struct {
	PageIndex     int
	Sort          query.Sort
	Filter        string
	Search        string
	SearchContext bool
	Namespace     string
}

// reduce returns the state after t. Every trigger except a bare page change
// resets the page index.
func reduce(s state, t Trigger) state {
	switch t := t.(type) {
	case PageChanged:
		s.PageIndex = t.Index
		if s.PageIndex < 0 {
			s.PageIndex = 0
		}
		return s
	case SortChanged:
		s.Sort = t.Sort
	case FilterChanged:
		s.Filter = t.Filter
	case NamespaceChanged:
		s.Namespace = t.Namespace
	case ParamsChanged:
		if t.Search != nil {
			s.Search = *t.Search
		}
	}
	s.PageIndex = 0
	return s
}

// encode derives the wire query for s.
func (s state) encode(itemsPerPage int) query.Query {
	return query.Encode(query.State{
		PageIndex:     s.PageIndex,
		ItemsPerPage:  itemsPerPage,
		Sort:          s.Sort,
		Filter:        s.Filter,
		Search:        s.Search,
		SearchContext: s.SearchContext,
	})
}
