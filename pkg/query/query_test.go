package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeScenarios(t *testing.T) {
	tests := []struct {
		name       string
		state      State
		wantPage   string
		wantSort   string
		wantFilter string
	}{
		{
			name:     "page index is 1-based on the wire, name ascending",
			state:    State{PageIndex: 2, ItemsPerPage: 10, Sort: Sort{Column: "name", Ascending: true, Set: true}},
			wantPage: "3",
			wantSort: "a,name",
		},
		{
			name:     "created ascending is sent descending",
			state:    State{ItemsPerPage: 10, Sort: Sort{Column: "created", Ascending: true, Set: true}},
			wantPage: "1",
			wantSort: "d,creationTimestamp",
		},
		{
			name:     "no sort chosen defaults to created, newest first",
			state:    State{ItemsPerPage: 10},
			wantPage: "1",
			wantSort: "d,creationTimestamp",
		},
		{
			name: "local filter and global search are joined",
			state: State{
				ItemsPerPage:  10,
				Filter:        "nginx",
				Search:        "web",
				SearchContext: true,
			},
			wantPage:   "1",
			wantSort:   "d,creationTimestamp",
			wantFilter: "name,nginx,name,web",
		},
		{
			name:       "search alone",
			state:      State{ItemsPerPage: 10, Search: "web", SearchContext: true},
			wantPage:   "1",
			wantSort:   "d,creationTimestamp",
			wantFilter: "name,web",
		},
		{
			name:       "search ignored outside a search context",
			state:      State{ItemsPerPage: 10, Filter: "nginx", Search: "web"},
			wantPage:   "1",
			wantSort:   "d,creationTimestamp",
			wantFilter: "name,nginx",
		},
		{
			name:     "empty search term in a search context contributes nothing",
			state:    State{ItemsPerPage: 10, SearchContext: true},
			wantPage: "1",
			wantSort: "d,creationTimestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Encode(tt.state).Params()
			if got := p.Get(ParamPage); got != tt.wantPage {
				t.Errorf("page = %q, want %q", got, tt.wantPage)
			}
			if got := p.Get(ParamSortBy); got != tt.wantSort {
				t.Errorf("sortBy = %q, want %q", got, tt.wantSort)
			}
			if got := p.Get(ParamFilterBy); got != tt.wantFilter {
				t.Errorf("filterBy = %q, want %q", got, tt.wantFilter)
			}
			if _, present := p[ParamFilterBy]; present != (tt.wantFilter != "") {
				t.Errorf("filterBy present = %v, want %v", present, tt.wantFilter != "")
			}
		})
	}
}

func TestEncodeInversionLaw(t *testing.T) {
	for _, column := range []string{ColumnCreated, ColumnFirstSeen, ColumnLastSeen} {
		up := Encode(State{Sort: Sort{Column: column, Ascending: true, Set: true}})
		down := Encode(State{Sort: Sort{Column: column, Ascending: false, Set: true}})
		if up.SortAscending || !down.SortAscending {
			t.Errorf("%s: ascending=true -> %v, ascending=false -> %v; want inverted", column, up.SortAscending, down.SortAscending)
		}
	}

	for _, column := range []string{"name", "namespace", "status", "restarts"} {
		up := Encode(State{Sort: Sort{Column: column, Ascending: true, Set: true}})
		down := Encode(State{Sort: Sort{Column: column, Ascending: false, Set: true}})
		if !up.SortAscending || down.SortAscending {
			t.Errorf("%s: direction should be preserved", column)
		}
		if up.SortField != column {
			t.Errorf("%s: SortField = %q, want identity mapping", column, up.SortField)
		}
	}
}

func TestWireFieldTable(t *testing.T) {
	tests := map[string]string{
		"created":   "creationTimestamp",
		"firstseen": "firstseen",
		"lastseen":  "lastseen",
		"name":      "name",
	}
	for column, want := range tests {
		if got := WireField(column); got != want {
			t.Errorf("WireField(%q) = %q, want %q", column, got, want)
		}
	}
}

func TestEncodeDeterminism(t *testing.T) {
	s := State{
		PageIndex:     4,
		ItemsPerPage:  25,
		Sort:          Sort{Column: "lastseen", Ascending: false, Set: true},
		Filter:        "api",
		Search:        "prod",
		SearchContext: true,
	}
	first := Encode(s)
	for i := 0; i < 100; i++ {
		got := Encode(s)
		if diff := cmp.Diff(first, got); diff != "" {
			t.Fatalf("Encode not deterministic (-first +got):\n%s", diff)
		}
		if got.Key() != first.Key() {
			t.Fatalf("Key() = %q, want %q", got.Key(), first.Key())
		}
	}
}

func TestKeyDistinguishesQueries(t *testing.T) {
	a := Encode(State{ItemsPerPage: 10, Filter: "a"})
	b := Encode(State{ItemsPerPage: 10, Filter: "b"})
	if a.Key() == b.Key() {
		t.Errorf("different filters produced the same key %q", a.Key())
	}
	want := "filterBy=name%2Ca&itemsPerPage=10&page=1&sortBy=d%2CcreationTimestamp"
	if got := a.Key(); got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestEncodeDefaults(t *testing.T) {
	q := Encode(State{PageIndex: -3})
	if q.Page != 1 {
		t.Errorf("Page = %d, want 1", q.Page)
	}
	if q.ItemsPerPage != DefaultItemsPerPage {
		t.Errorf("ItemsPerPage = %d, want %d", q.ItemsPerPage, DefaultItemsPerPage)
	}
	if q.Filtered() {
		t.Error("Filtered() = true for empty filter")
	}
}
