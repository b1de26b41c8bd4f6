// Package overview folds the change events of many lists into the group and
// cluster level aggregates an overview page shows: per-list and per-group item
// counts, group visibility, the zero state and resource ratios.
package overview

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/listpulse/pkg/listctl"
	"gitlab.com/tinyland/lab/listpulse/pkg/metrics"
	"gitlab.com/tinyland/lab/listpulse/pkg/resource"
)

var listItems = metrics.MustRegisterGaugeVec("overview", "list_items",
	"Item count recorded per list, 1 for filtered lists.", "group", "list")

// Watchable publishes list change events. *listctl.Controller implements it.
type Watchable interface {
	OnChange(fn func(listctl.ChangeEvent)) (cancel func())
}

// Snapshot is a JSON-serializable copy of the aggregate.
type Snapshot struct {
	Cluster   string                 `json:"cluster,omitempty"`
	Lists     map[string]int         `json:"lists"`
	Groups    map[string]GroupState  `json:"groups"`
	ZeroState bool                   `json:"zero_state"`
	Ratios    map[string][]RatioItem `json:"ratios"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// GroupState is the per-group part of a Snapshot.
type GroupState struct {
	Visible bool           `json:"visible"`
	Total   int            `json:"total"`
	Lists   map[string]int `json:"lists"`
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCluster records the cluster or context name the overview describes.
func WithCluster(name string) Option {
	return func(a *Aggregator) { a.cluster = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Aggregator is the overview state for one session. It is safe for
// concurrent use.
type Aggregator struct {
	cluster string
	logger  *slog.Logger

	mu        sync.RWMutex
	perList   map[string]int
	perGroup  map[string]map[string]int
	statuses  map[string]listStatus
	ratios    map[string][]RatioItem
	updatedAt time.Time
	subs      []subscriber
	nextID    int
}

type listStatus struct {
	status resource.Status
	total  int
}

// New returns an empty Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		perList:  make(map[string]int),
		perGroup: make(map[string]map[string]int),
		statuses: make(map[string]listStatus),
		ratios:   make(map[string][]RatioItem),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnEvent records ev. A filtered list is recorded with count 1 whatever its
// real size, so it stays visible and does not skew the totals.
func (a *Aggregator) OnEvent(ev listctl.ChangeEvent) {
	count := ev.ItemCount
	if ev.Filtered {
		count = 1
	}

	a.mu.Lock()
	a.perList[ev.ListID] = count
	group, ok := a.perGroup[ev.GroupID]
	if !ok {
		group = make(map[string]int)
		a.perGroup[ev.GroupID] = group
	}
	group[ev.ListID] = count
	listItems.WithLabelValues(ev.GroupID, ev.ListID).Set(float64(count))

	if _, tracked := ratioModes[ev.ListID]; tracked {
		if ev.Result != nil && ev.Result.Status != nil {
			a.statuses[ev.ListID] = listStatus{status: *ev.Result.Status, total: ev.Result.TotalItems()}
		} else {
			delete(a.statuses, ev.ListID)
		}
		a.recomputeRatiosLocked()
	}
	a.updatedAt = time.Now()
	snap := a.snapshotLocked()
	subs := make([]subscriber, len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()

	a.logger.Debug("list recorded", "list", ev.ListID, "group", ev.GroupID, "count", count)
	for _, s := range subs {
		s.fn(snap)
	}
}

func (a *Aggregator) recomputeRatiosLocked() {
	ratios := make(map[string][]RatioItem, len(a.statuses))
	for id, ls := range a.statuses {
		if items := Ratio(ratioModes[id], ls.status, ls.total); len(items) > 0 {
			ratios[id] = items
		}
	}
	a.ratios = ratios
}

// IsGroupVisible reports whether any list of group recorded items.
func (a *Aggregator) IsGroupVisible(group string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sum(a.perGroup[group]) > 0
}

// ShouldShowZeroState reports whether at least one list reported and all of
// them are empty.
func (a *Aggregator) ShouldShowZeroState() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.zeroStateLocked()
}

func (a *Aggregator) zeroStateLocked() bool {
	return len(a.perList) > 0 && sum(a.perList) == 0
}

// Count returns the recorded count for listID.
func (a *Aggregator) Count(listID string) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n, ok := a.perList[listID]
	return n, ok
}

// Ratios returns a copy of the current resource ratios keyed by list id.
func (a *Aggregator) Ratios() map[string][]RatioItem {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyRatios(a.ratios)
}

// Watch records every event of w until the returned function is called.
func (a *Aggregator) Watch(w Watchable) (cancel func()) {
	return w.OnChange(a.OnEvent)
}

// OnUpdate registers fn to receive a snapshot after every recorded event.
// The returned function removes the registration.
func (a *Aggregator) OnUpdate(fn func(Snapshot)) (cancel func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.subs = append(a.subs, subscriber{id: id, fn: fn})
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, s := range a.subs {
			if s.id == id {
				a.subs = append(a.subs[:i], a.subs[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a copy of the aggregate.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Cluster:   a.cluster,
		Lists:     make(map[string]int, len(a.perList)),
		Groups:    make(map[string]GroupState, len(a.perGroup)),
		ZeroState: a.zeroStateLocked(),
		Ratios:    copyRatios(a.ratios),
		UpdatedAt: a.updatedAt,
	}
	for id, n := range a.perList {
		snap.Lists[id] = n
	}
	for g, lists := range a.perGroup {
		gs := GroupState{Lists: make(map[string]int, len(lists))}
		for id, n := range lists {
			gs.Lists[id] = n
			gs.Total += n
		}
		gs.Visible = gs.Total > 0
		snap.Groups[g] = gs
	}
	return snap
}

func copyRatios(in map[string][]RatioItem) map[string][]RatioItem {
	out := make(map[string][]RatioItem, len(in))
	for k, v := range in {
		out[k] = append([]RatioItem(nil), v...)
	}
	return out
}

func sum(m map[string]int) int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}
